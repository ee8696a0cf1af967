package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hyperengineering/ridelake/internal/store"
	"github.com/hyperengineering/ridelake/internal/vector"
)

// Embedder generates embeddings for cancellation reasons.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ReasonSource yields the cancellation reasons eligible for indexing.
type ReasonSource interface {
	CancellationReasons(ctx context.Context) ([]store.CancellationReason, error)
}

// VectorSyncCoordinator periodically embeds new cancellation reasons and
// upserts them into the vector index.
type VectorSyncCoordinator struct {
	source     ReasonSource
	embedder   Embedder
	index      vector.Index
	interval   time.Duration
	dimensions int
	batchSize  int

	synced map[string]struct{} // booking IDs already indexed this process
}

// NewVectorSyncCoordinator creates a coordinator for cancellation-reason sync.
func NewVectorSyncCoordinator(
	source ReasonSource,
	embedder Embedder,
	index vector.Index,
	interval time.Duration,
	dimensions int,
) *VectorSyncCoordinator {
	return &VectorSyncCoordinator{
		source:     source,
		embedder:   embedder,
		index:      index,
		interval:   interval,
		dimensions: dimensions,
		batchSize:  64,
		synced:     make(map[string]struct{}),
	}
}

// Run starts the sync loop. It blocks until ctx is cancelled.
//
// The first cycle runs immediately so reasons curated before a restart are
// indexed without waiting a full interval. Upserts are idempotent, so
// re-indexing after a restart is harmless.
func (c *VectorSyncCoordinator) Run(ctx context.Context) {
	slog.Info("vector sync coordinator started",
		"component", "worker",
		"worker", "vector-sync",
		"interval", c.interval.String(),
		"dimensions", c.dimensions,
	)

	if err := c.index.EnsureCollection(ctx, c.dimensions); err != nil {
		slog.Error("failed to ensure vector collection",
			"component", "worker",
			"worker", "vector-sync",
			"error", err,
		)
		// Keep running; the next cycle retries via upsert failures.
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.syncOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("vector sync coordinator stopped",
				"component", "worker",
				"worker", "vector-sync",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.syncOnce(ctx)
		}
	}
}

// syncOnce indexes cancellation reasons not yet seen by this process.
func (c *VectorSyncCoordinator) syncOnce(ctx context.Context) {
	reasons, err := c.source.CancellationReasons(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("failed to load cancellation reasons",
			"component", "worker",
			"worker", "vector-sync",
			"error", err,
		)
		return
	}

	var pending []store.CancellationReason
	for _, r := range reasons {
		if _, ok := c.synced[r.BookingID]; ok {
			continue
		}
		pending = append(pending, r)
	}
	if len(pending) == 0 {
		return
	}

	var indexed int
	for start := 0; start < len(pending); start += c.batchSize {
		if ctx.Err() != nil {
			return
		}
		end := min(start+c.batchSize, len(pending))
		n, err := c.syncBatch(ctx, pending[start:end])
		indexed += n
		if err != nil {
			slog.Warn("vector sync batch failed, will retry next cycle",
				"component", "worker",
				"worker", "vector-sync",
				"batch_size", end-start,
				"error", err,
			)
			break
		}
	}

	if indexed > 0 {
		slog.Info("indexed cancellation reasons",
			"component", "worker",
			"worker", "vector-sync",
			"reasons_indexed", indexed,
			"reasons_pending", len(pending)-indexed,
		)
	}
}

// syncBatch embeds and upserts one batch, returning how many reasons were
// indexed.
func (c *VectorSyncCoordinator) syncBatch(ctx context.Context, batch []store.CancellationReason) (int, error) {
	texts := make([]string, len(batch))
	for i, r := range batch {
		texts[i] = r.Reason
	}

	embeddings, err := c.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}

	points := make([]vector.Point, len(batch))
	for i, r := range batch {
		points[i] = vector.Point{
			ID:     pointID(r.BookingID),
			Vector: embeddings[i],
			Payload: map[string]any{
				"booking_id": r.BookingID,
				"reason":     r.Reason,
			},
		}
	}

	if err := c.index.Upsert(ctx, points); err != nil {
		return 0, err
	}

	for _, r := range batch {
		c.synced[r.BookingID] = struct{}{}
	}
	return len(batch), nil
}

// pointID derives a stable UUID from the booking ID so re-upserts replace
// the existing point.
func pointID(bookingID string) string {
	return uuid.NewMD5(uuid.NameSpaceOID, []byte(bookingID)).String()
}
