// Package pipeline sequences the bronze, silver, and gold stages of one
// ingestion batch and implements resume-from-failure.
//
// Each stage executes as an independently dispatched task that receives
// only a batch identifier; every other piece of orchestration state is
// read from and written to the durable status tracker. Stage N schedules
// stage N+1 only on success, so stages of one batch never overlap, while
// different batches run fully concurrently.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/hyperengineering/ridelake/internal/archive"
	"github.com/hyperengineering/ridelake/internal/dispatch"
	"github.com/hyperengineering/ridelake/internal/parse"
	"github.com/hyperengineering/ridelake/internal/store"
	"github.com/hyperengineering/ridelake/internal/types"
)

// Store defines the storage operations the orchestrator depends on.
// Implemented by store.PostgresStore.
type Store interface {
	store.StatusTracker
	BulkLoadRaw(ctx context.Context, batchID uuid.UUID, src store.RawRideSource) (int64, error)
	TransformSilver(ctx context.Context, batchID uuid.UUID) (int64, error)
	TransformGold(ctx context.Context, batchID uuid.UUID) (int64, error)
}

// Orchestrator drives the three-stage pipeline for uploaded ride exports.
type Orchestrator struct {
	store      Store
	queue      dispatch.Enqueuer
	stagingDir string
	archiver   archive.Uploader
}

// Compile-time interface check
var _ dispatch.Runner = (*Orchestrator)(nil)

// New creates an orchestrator. stagingDir holds uploaded source files
// between enqueue and the bronze stage; archiver may be nil to skip
// source-file archival.
func New(s Store, queue dispatch.Enqueuer, stagingDir string, archiver archive.Uploader) *Orchestrator {
	return &Orchestrator{
		store:      s,
		queue:      queue,
		stagingDir: stagingDir,
		archiver:   archiver,
	}
}

// Enqueue stages the uploaded file, records the initial Bronze/Processing
// status, schedules the bronze load, and returns the new batch ID without
// waiting for any processing.
func (o *Orchestrator) Enqueue(ctx context.Context, src io.Reader) (uuid.UUID, error) {
	batchID := uuid.New()

	if err := o.stageFile(batchID, src); err != nil {
		return uuid.Nil, err
	}

	if err := o.store.BeginStage(ctx, batchID, types.StageBronze); err != nil {
		os.Remove(o.sourcePath(batchID))
		return uuid.Nil, fmt.Errorf("record initial status: %w", err)
	}

	o.queue.Enqueue(dispatch.Task{Stage: types.StageBronze, BatchID: batchID})

	slog.Info("batch enqueued",
		"component", "pipeline",
		"batch_id", batchID,
	)
	return batchID, nil
}

// Resume re-schedules the stage that previously failed for a batch. It is
// a silent no-op when the batch's latest stage is not Failed, and when the
// failed stage is Bronze: the staged source file is gone by then, so there
// is no safe resume point. An unknown batch is an error.
func (o *Orchestrator) Resume(ctx context.Context, batchID uuid.UUID) error {
	latest, err := o.store.LatestStage(ctx, batchID)
	if err != nil {
		return err
	}

	if latest.Status != types.StatusFailed || latest.Step == types.StageBronze {
		slog.Info("resume skipped",
			"component", "pipeline",
			"batch_id", batchID,
			"stage", latest.Step,
			"status", latest.Status,
		)
		return nil
	}

	o.queue.Enqueue(dispatch.Task{Stage: latest.Step, BatchID: batchID})

	slog.Info("batch resumed",
		"component", "pipeline",
		"batch_id", batchID,
		"stage", latest.Step,
	)
	return nil
}

// Run executes one stage task to a terminal status. Failures are caught
// at this boundary and recorded; they never propagate to the dispatcher.
func (o *Orchestrator) Run(ctx context.Context, task dispatch.Task) {
	switch task.Stage {
	case types.StageBronze:
		o.runBronze(ctx, task.BatchID)
	case types.StageSilver:
		o.runTransform(ctx, task.BatchID, types.StageSilver, o.store.TransformSilver)
	case types.StageGold:
		o.runTransform(ctx, task.BatchID, types.StageGold, o.store.TransformGold)
	default:
		slog.Error("unknown stage task",
			"component", "pipeline",
			"batch_id", task.BatchID,
			"stage", task.Stage,
		)
	}
}

// runBronze bulk-loads the staged source file into the raw layer. The
// source file is a single-use, batch-scoped resource: it is archived (when
// configured) and deleted once the stage terminates, success or failure.
func (o *Orchestrator) runBronze(ctx context.Context, batchID uuid.UUID) {
	path := o.sourcePath(batchID)
	defer o.disposeSource(ctx, batchID, path)

	if err := o.store.BeginStage(ctx, batchID, types.StageBronze); err != nil {
		slog.Error("stage begin failed",
			"component", "pipeline",
			"batch_id", batchID,
			"stage", types.StageBronze,
			"error", err,
		)
		return
	}

	rows, err := o.loadBronze(ctx, batchID, path)
	if err != nil {
		o.complete(ctx, batchID, types.StageBronze, types.StatusFailed, rows, err.Error())
		return
	}

	o.complete(ctx, batchID, types.StageBronze, types.StatusSuccess, rows, "")
	o.queue.Enqueue(dispatch.Task{Stage: types.StageSilver, BatchID: batchID})
}

func (o *Orchestrator) loadBronze(ctx context.Context, batchID uuid.UUID, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open source file: %w", err)
	}
	defer f.Close()

	reader, err := parse.NewReader(f)
	if err != nil {
		return 0, err
	}

	return o.store.BulkLoadRaw(ctx, batchID, reader)
}

// runTransform executes the silver or gold stage. The transforms are
// atomic delete-then-insert operations, so re-running after a failure is
// safe; a failed stage simply does not schedule its successor.
func (o *Orchestrator) runTransform(ctx context.Context, batchID uuid.UUID, stage types.Stage, fn func(context.Context, uuid.UUID) (int64, error)) {
	if err := o.store.BeginStage(ctx, batchID, stage); err != nil {
		slog.Error("stage begin failed",
			"component", "pipeline",
			"batch_id", batchID,
			"stage", stage,
			"error", err,
		)
		return
	}

	rows, err := fn(ctx, batchID)
	if err != nil {
		o.complete(ctx, batchID, stage, types.StatusFailed, 0, err.Error())
		return
	}

	o.complete(ctx, batchID, stage, types.StatusSuccess, rows, "")

	if next := stage.Next(); next != "" {
		o.queue.Enqueue(dispatch.Task{Stage: next, BatchID: batchID})
	}
}

func (o *Orchestrator) complete(ctx context.Context, batchID uuid.UUID, stage types.Stage, status types.StageStatus, rows int64, errMsg string) {
	if err := o.store.CompleteStage(ctx, batchID, stage, status, rows, errMsg); err != nil {
		slog.Error("status update failed",
			"component", "pipeline",
			"batch_id", batchID,
			"stage", stage,
			"status", status,
			"error", err,
		)
		return
	}

	if status == types.StatusFailed {
		slog.Warn("stage failed",
			"component", "pipeline",
			"batch_id", batchID,
			"stage", stage,
			"rows", rows,
			"error", errMsg,
		)
		return
	}
	slog.Info("stage completed",
		"component", "pipeline",
		"batch_id", batchID,
		"stage", stage,
		"rows", rows,
	)
}

func (o *Orchestrator) stageFile(batchID uuid.UUID, src io.Reader) error {
	if err := os.MkdirAll(o.stagingDir, 0o755); err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}

	f, err := os.Create(o.sourcePath(batchID))
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, src); err != nil {
		os.Remove(f.Name())
		return fmt.Errorf("write staging file: %w", err)
	}
	return nil
}

// disposeSource archives then removes the staged source file. Disposal is
// best-effort: a failed archive upload is logged, never fatal.
func (o *Orchestrator) disposeSource(ctx context.Context, batchID uuid.UUID, path string) {
	if o.archiver != nil {
		if err := o.archiver.Upload(ctx, batchID.String(), path); err != nil {
			slog.Warn("source archive failed",
				"component", "pipeline",
				"batch_id", batchID,
				"error", err,
			)
		}
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("source cleanup failed",
			"component", "pipeline",
			"batch_id", batchID,
			"error", err,
		)
	}
}

func (o *Orchestrator) sourcePath(batchID uuid.UUID) string {
	return filepath.Join(o.stagingDir, batchID.String()+".csv")
}
