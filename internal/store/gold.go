package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// goldInsertSQL promotes a batch's cleaned rows into the curated layer.
// Stray quoting left over from the source export is stripped, the
// per-distance revenue metric is derived (zero for non-positive distance),
// and a booking already curated by another batch wins the conflict.
const goldInsertSQL = `
INSERT INTO gold.rides (
    booking_id,
    _batch_id,
    ride_timestamp,
    booking_status,
    customer_id,
    vehicle_type,
    unified_cancellation_reason,
    booking_value,
    ride_distance,
    revenue_per_km,
    driver_rating,
    customer_rating,
    payment_method
)
SELECT
    TRIM(BOTH '"' FROM TRIM(booking_id)),
    _batch_id,
    ride_timestamp,
    TRIM(BOTH '"' FROM TRIM(booking_status)),
    TRIM(BOTH '"' FROM TRIM(customer_id)),
    TRIM(BOTH '"' FROM TRIM(vehicle_type)),
    unified_cancellation_reason,
    booking_value,
    ride_distance,
    CASE WHEN ride_distance > 0 THEN booking_value / ride_distance ELSE 0 END,
    driver_rating,
    customer_rating,
    TRIM(BOTH '"' FROM TRIM(payment_method))
FROM silver.cleaned_rides
WHERE _batch_id = $1
ON CONFLICT (booking_id) DO NOTHING`

// TransformGold rebuilds the curated layer for a batch. The per-batch
// delete scopes the conflict no-op to cross-batch collisions only: within
// a retry of the same batch the delete-then-insert is a clean rewrite,
// while a booking first curated by an earlier batch is never overwritten.
func (s *PostgresStore) TransformGold(ctx context.Context, batchID uuid.UUID) (int64, error) {
	var affected int64

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM gold.rides WHERE _batch_id = $1`, batchID); err != nil {
			return fmt.Errorf("clear curated rows: %w", err)
		}
		tag, err := tx.Exec(ctx, goldInsertSQL, batchID)
		if err != nil {
			return fmt.Errorf("insert curated rows: %w", err)
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}
