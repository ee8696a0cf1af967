package store

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hyperengineering/ridelake/internal/types"
)

// copyChunkSize bounds how many rows are buffered per COPY statement.
// Chunking keeps memory flat for large files and makes already-written
// chunks durable when a later chunk fails mid-stream.
const copyChunkSize = 5000

var bronzeTable = pgx.Identifier{"bronze", "raw_rides"}

var bronzeColumns = []string{
	"_batch_id",
	"ride_date", "ride_time", "booking_id", "booking_status",
	"customer_id", "vehicle_type", "cancelled_by_customer", "reason_customer",
	"cancelled_by_driver", "driver_reason", "incomplete_ride", "incomplete_reason",
	"booking_value", "ride_distance", "driver_rating", "customer_rating",
	"payment_method",
}

// BulkLoadRaw streams rides from src into bronze.raw_rides via the COPY
// protocol, each row tagged with batchID. The ingestion timestamp is set
// by the table default. Returns the number of rows written; on error the
// count covers only the chunks that completed before the failure, and
// those rows are intentionally left in place.
func (s *PostgresStore) BulkLoadRaw(ctx context.Context, batchID uuid.UUID, src RawRideSource) (int64, error) {
	var written int64

	for {
		chunk, err := nextChunk(batchID, src)
		if len(chunk) > 0 {
			n, copyErr := s.pool.CopyFrom(ctx, bronzeTable, bronzeColumns, pgx.CopyFromRows(chunk))
			written += n
			if copyErr != nil {
				return written, fmt.Errorf("copy into bronze: %w", copyErr)
			}
		}
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}

// nextChunk drains up to copyChunkSize rows from src. It returns io.EOF
// alongside the final partial chunk.
func nextChunk(batchID uuid.UUID, src RawRideSource) ([][]any, error) {
	chunk := make([][]any, 0, copyChunkSize)
	for len(chunk) < copyChunkSize {
		ride, err := src.Next()
		if err != nil {
			return chunk, err
		}
		chunk = append(chunk, bronzeValues(batchID, ride))
	}
	return chunk, nil
}

func bronzeValues(batchID uuid.UUID, r types.RawRide) []any {
	return []any{
		batchID,
		r.RideDate, r.RideTime, r.BookingID, r.BookingStatus,
		r.CustomerID, r.VehicleType, r.CancelledByCustomer, r.CustomerReason,
		r.CancelledByDriver, r.DriverReason, r.IncompleteRide, r.IncompleteReason,
		r.BookingValue, r.RideDistance, r.DriverRating, r.CustomerRating,
		r.PaymentMethod,
	}
}
