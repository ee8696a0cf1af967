package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hyperengineering/ridelake/internal/types"
)

const goldRideColumns = `booking_id, ride_timestamp, booking_status, customer_id, vehicle_type,
       unified_cancellation_reason, booking_value, ride_distance, revenue_per_km,
       driver_rating, customer_rating, payment_method`

// ListRides returns a filtered, time-descending page of curated rides.
// The count and page queries share one batched round trip.
func (s *PostgresStore) ListRides(ctx context.Context, f types.RideFilter) (*types.PagedResult[types.GoldRide], error) {
	where, args := rideFilterClause(f)
	offset := (f.Page - 1) * f.PageSize

	b := &pgx.Batch{}
	b.Queue(`SELECT COUNT(*) FROM gold.rides`+where, args...)
	pageArgs := append(append([]any{}, args...), f.PageSize, offset)
	b.Queue(fmt.Sprintf(`
		SELECT %s
		FROM gold.rides%s
		ORDER BY ride_timestamp DESC
		LIMIT $%d OFFSET $%d`, goldRideColumns, where, len(args)+1, len(args)+2), pageArgs...)

	results := s.pool.SendBatch(ctx, b)
	defer results.Close()

	var total int64
	if err := results.QueryRow().Scan(&total); err != nil {
		return nil, fmt.Errorf("count rides: %w", err)
	}

	rows, err := results.Query()
	if err != nil {
		return nil, fmt.Errorf("list rides: %w", err)
	}
	defer rows.Close()

	items := []types.GoldRide{}
	for rows.Next() {
		var r types.GoldRide
		err := rows.Scan(&r.BookingID, &r.RideTimestamp, &r.BookingStatus, &r.CustomerID,
			&r.VehicleType, &r.UnifiedCancellationReason, &r.BookingValue, &r.RideDistance,
			&r.RevenuePerKm, &r.DriverRating, &r.CustomerRating, &r.PaymentMethod)
		if err != nil {
			return nil, fmt.Errorf("scan ride: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rides: %w", err)
	}

	return &types.PagedResult[types.GoldRide]{
		Items:      items,
		TotalCount: total,
		Page:       f.Page,
		PageSize:   f.PageSize,
	}, nil
}

func rideFilterClause(f types.RideFilter) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Status != "" {
		add("booking_status = $%d", f.Status)
	}
	if f.Vehicle != "" {
		add("vehicle_type = $%d", f.Vehicle)
	}
	if f.CustomerID != "" {
		add("customer_id = $%d", f.CustomerID)
	}
	if f.BookingIDs != nil {
		add("booking_id = ANY($%d)", f.BookingIDs)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// CreateRide inserts a curated ride directly, bypassing the pipeline. A
// fresh BOK- booking ID is generated; manually created rides are always
// Completed and not cancelled.
func (s *PostgresStore) CreateRide(ctx context.Context, ride types.NewRide) (string, error) {
	bookingID := "BOK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])

	ts := time.Now().UTC()
	if ride.RideTimestamp != nil {
		ts = *ride.RideTimestamp
	}

	var revenuePerKm float64
	if ride.RideDistance > 0 {
		revenuePerKm = ride.BookingValue / ride.RideDistance
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO gold.rides
		       (booking_id, ride_timestamp, booking_status, customer_id, vehicle_type,
		        unified_cancellation_reason, booking_value, ride_distance, revenue_per_km,
		        driver_rating, customer_rating, payment_method)
		VALUES ($1, $2, 'Completed', $3, $4, 'Not Cancelled', $5, $6, $7, $8, $9, $10)`,
		bookingID, ts, ride.CustomerID, ride.VehicleType,
		ride.BookingValue, ride.RideDistance, revenuePerKm,
		ride.DriverRating, ride.CustomerRating, ride.PaymentMethod)
	if err != nil {
		return "", fmt.Errorf("create ride: %w", err)
	}
	return bookingID, nil
}

// UpdateRideStatus sets a curated ride's status and cancellation reason.
func (s *PostgresStore) UpdateRideStatus(ctx context.Context, bookingID, status string, reason *string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE gold.rides
		SET booking_status = $2, unified_cancellation_reason = COALESCE($3, unified_cancellation_reason)
		WHERE booking_id = $1`,
		bookingID, status, reason)
	if err != nil {
		return fmt.Errorf("update ride status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRideNotFound
	}
	return nil
}

// DeleteRide removes a curated ride.
func (s *PostgresStore) DeleteRide(ctx context.Context, bookingID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM gold.rides WHERE booking_id = $1`, bookingID)
	if err != nil {
		return fmt.Errorf("delete ride: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRideNotFound
	}
	return nil
}

// CountRides returns the curated ride count, used by the health endpoint.
func (s *PostgresStore) CountRides(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM gold.rides`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rides: %w", err)
	}
	return count, nil
}

// CancellationReasons returns every curated booking with a cancellation
// reason, for vector-index synchronization.
func (s *PostgresStore) CancellationReasons(ctx context.Context) ([]CancellationReason, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT booking_id, unified_cancellation_reason
		FROM gold.rides
		WHERE unified_cancellation_reason IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("cancellation reasons: %w", err)
	}
	defer rows.Close()

	var out []CancellationReason
	for rows.Next() {
		var cr CancellationReason
		if err := rows.Scan(&cr.BookingID, &cr.Reason); err != nil {
			return nil, fmt.Errorf("scan cancellation reason: %w", err)
		}
		out = append(out, cr)
	}
	return out, rows.Err()
}
