package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// silverInsertSQL rewrites the cleaned layer for one batch from its raw
// rows. Rows without a usable business key are excluded; the cancellation
// reason is unified by booking status; missing numerics default to zero
// and a missing payment method becomes an explicit sentinel.
const silverInsertSQL = `
INSERT INTO silver.cleaned_rides (
    _batch_id,
    ride_timestamp,
    booking_id,
    booking_status,
    customer_id,
    vehicle_type,
    unified_cancellation_reason,
    booking_value,
    ride_distance,
    driver_rating,
    customer_rating,
    payment_method
)
SELECT
    _batch_id,
    (ride_date + ride_time::time)::timestamp,
    TRIM(booking_id),
    TRIM(booking_status),
    TRIM(customer_id),
    TRIM(vehicle_type),
    CASE
        WHEN booking_status = 'Cancelled by Customer' THEN reason_customer
        WHEN booking_status = 'Cancelled by Driver' THEN driver_reason
        WHEN booking_status = 'Incomplete' THEN incomplete_reason
        ELSE 'Not Cancelled'
    END,
    COALESCE(booking_value, 0),
    COALESCE(ride_distance, 0),
    driver_rating,
    customer_rating,
    CASE
        WHEN payment_method IS NULL OR LOWER(TRIM(payment_method)) = 'null' THEN 'Not Specified'
        ELSE TRIM(payment_method)
    END
FROM bronze.raw_rides
WHERE _batch_id = $1
  AND booking_id IS NOT NULL
  AND LOWER(TRIM(booking_id)) <> 'null'`

// TransformSilver rebuilds the cleaned layer for a batch. The delete and
// insert run in one transaction, so a failure leaves no partial cleaned
// rows and a retry starts from the same raw input.
func (s *PostgresStore) TransformSilver(ctx context.Context, batchID uuid.UUID) (int64, error) {
	var affected int64

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM silver.cleaned_rides WHERE _batch_id = $1`, batchID); err != nil {
			return fmt.Errorf("clear cleaned rows: %w", err)
		}
		tag, err := tx.Exec(ctx, silverInsertSQL, batchID)
		if err != nil {
			return fmt.Errorf("insert cleaned rows: %w", err)
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}
