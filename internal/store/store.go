// Package store provides the Postgres-backed storage layer for the
// medallion pipeline: the bronze/silver/gold tables, the pipeline status
// log, and the curated-ride query surface.
package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/hyperengineering/ridelake/internal/types"
)

// RawRideSource is a forward-only sequence of raw rides consumed by the
// bulk loader. It is satisfied by parse.Reader.
type RawRideSource interface {
	// Next returns the next ride, or io.EOF when the sequence ends.
	Next() (types.RawRide, error)
}

// StatusTracker is the durable per-batch, per-stage progress record. It is
// the single source of truth for pipeline state: stage tasks hold no
// in-memory state across invocations.
type StatusTracker interface {
	// BeginStage upserts (batch, stage) to Processing with a fresh start
	// time, clearing any error or end time from a previous attempt.
	BeginStage(ctx context.Context, batchID uuid.UUID, stage types.Stage) error

	// CompleteStage records a terminal status with the row count and, for
	// failures, a human-readable error message.
	CompleteStage(ctx context.Context, batchID uuid.UUID, stage types.Stage, status types.StageStatus, rows int64, errMsg string) error

	// LatestStage returns the most recently started status row for a
	// batch. Returns ErrBatchNotFound for an unknown batch.
	LatestStage(ctx context.Context, batchID uuid.UUID) (*types.PipelineStatus, error)

	// PageStatus returns a time-descending window over every batch's
	// latest status row, plus the total batch count.
	PageStatus(ctx context.Context, page, pageSize int) (*types.PagedResult[types.PipelineStatus], error)
}

// Store is the full storage contract consumed by the pipeline, the API
// layer, and the background workers.
type Store interface {
	StatusTracker

	// BulkLoadRaw streams rides into the bronze layer under batchID using
	// the COPY protocol. On failure it returns the number of rows durably
	// written before the error together with the error itself; rows
	// already written are not compensated.
	BulkLoadRaw(ctx context.Context, batchID uuid.UUID, src RawRideSource) (int64, error)

	// TransformSilver rebuilds the cleaned layer for a batch as one
	// atomic delete-then-insert. Safe to re-run any number of times.
	TransformSilver(ctx context.Context, batchID uuid.UUID) (int64, error)

	// TransformGold rebuilds the curated layer for a batch; business keys
	// already curated by another batch are left untouched.
	TransformGold(ctx context.Context, batchID uuid.UUID) (int64, error)

	// Curated ride queries.
	ListRides(ctx context.Context, filter types.RideFilter) (*types.PagedResult[types.GoldRide], error)
	CreateRide(ctx context.Context, ride types.NewRide) (string, error)
	UpdateRideStatus(ctx context.Context, bookingID, status string, reason *string) error
	DeleteRide(ctx context.Context, bookingID string) error
	CountRides(ctx context.Context) (int64, error)

	// Dashboard aggregates.
	KPIs(ctx context.Context, f types.AnalyticsFilter) (*types.DashboardKPIs, error)
	CancellationBreakdown(ctx context.Context, f types.AnalyticsFilter) ([]types.CancellationCount, error)
	VehiclePerformance(ctx context.Context, f types.AnalyticsFilter) ([]types.VehiclePerformance, error)
	HourlyTraffic(ctx context.Context, f types.AnalyticsFilter) ([]types.HourlyTraffic, error)

	// CancellationReasons returns curated (bookingID, reason) pairs for
	// vector-index synchronization.
	CancellationReasons(ctx context.Context) ([]CancellationReason, error)

	// QueryDynamic executes a read-only query produced by the chat
	// assistant and returns ordered, typed rows.
	QueryDynamic(ctx context.Context, sql string) ([]types.Row, error)

	Close()
}

// CancellationReason pairs a curated booking with its unified reason.
type CancellationReason struct {
	BookingID string
	Reason    string
}
