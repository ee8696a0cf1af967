// Package dispatch provides the in-process task queue that executes
// pipeline stage tasks asynchronously. Stage completion hands the next
// stage back to the queue as a new task, so the chain of work stays
// inspectable independent of any stage's implementation.
//
// Delivery is at-least-once and never exactly-once: a panicking task is
// logged and dropped, and stage implementations are expected to be
// idempotent under re-execution.
package dispatch

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/hyperengineering/ridelake/internal/types"
)

// Task schedules one pipeline stage execution for one batch. Stage tasks
// carry only the batch identifier; all other state lives in the status
// tracker.
type Task struct {
	ID      string
	Stage   types.Stage
	BatchID uuid.UUID
}

// Enqueuer schedules tasks for later asynchronous execution. The caller
// observes no result; outcomes surface through the status tracker.
type Enqueuer interface {
	Enqueue(task Task)
}

// Runner executes one task to a terminal state. Implementations own their
// failure handling; an error never propagates out of Run.
type Runner interface {
	Run(ctx context.Context, task Task)
}

// Queue is a buffered in-process task queue drained by a fixed pool of
// worker goroutines.
type Queue struct {
	tasks   chan Task
	workers int
}

// NewQueue creates a queue with the given buffer capacity and worker
// count. Values below 1 are raised to 1.
func NewQueue(buffer, workers int) *Queue {
	if buffer < 1 {
		buffer = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &Queue{
		tasks:   make(chan Task, buffer),
		workers: workers,
	}
}

// Enqueue schedules a task and returns once it is queued. A task without
// an ID is assigned one for log correlation. Enqueue blocks when the
// buffer is full; that backpressure is the only flow control the queue
// provides.
func (q *Queue) Enqueue(task Task) {
	if task.ID == "" {
		task.ID = ulid.Make().String()
	}
	q.tasks <- task
}

// Run drains the queue with the configured number of workers, executing
// each task via runner. It blocks until ctx is cancelled and all in-flight
// tasks have finished. Tasks still buffered at shutdown are dropped; their
// batches remain resumable through the status tracker.
func (q *Queue) Run(ctx context.Context, runner Runner) {
	slog.Info("dispatcher started",
		"component", "dispatch",
		"workers", q.workers,
		"buffer", cap(q.tasks),
	)

	var wg sync.WaitGroup
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.work(ctx, runner)
		}()
	}
	wg.Wait()

	slog.Info("dispatcher stopped",
		"component", "dispatch",
		"reason", "context_cancelled",
	)
}

func (q *Queue) work(ctx context.Context, runner Runner) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-q.tasks:
			q.execute(ctx, runner, task)
		}
	}
}

// execute isolates a single task: a panic in a stage is logged and
// converted into a dropped task rather than a dead worker.
func (q *Queue) execute(ctx context.Context, runner Runner, task Task) {
	defer func() {
		if recovered := recover(); recovered != nil {
			slog.Error("task panicked",
				"component", "dispatch",
				"task_id", task.ID,
				"stage", task.Stage,
				"batch_id", task.BatchID,
				"error", recovered,
				"stack", string(debug.Stack()),
			)
		}
	}()

	slog.Debug("task started",
		"component", "dispatch",
		"task_id", task.ID,
		"stage", task.Stage,
		"batch_id", task.BatchID,
	)
	runner.Run(ctx, task)
}
