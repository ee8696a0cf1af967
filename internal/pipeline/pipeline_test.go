package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/hyperengineering/ridelake/internal/dispatch"
	"github.com/hyperengineering/ridelake/internal/store"
	"github.com/hyperengineering/ridelake/internal/types"
)

const csvHeader = "Date,Time,Booking ID,Booking Status,Customer ID,Vehicle Type,C1,R1,C2,R2,I1,IR,Value,Distance,DR,CR,Payment\n"

const csvRow = "2024-03-15,18:30:00,BOK-1,Completed,CID1,Auto,0,,0,,0,,100,5,4.5,4.8,UPI\n"

// statusKey identifies one (batch, stage) status row.
type statusKey struct {
	batch uuid.UUID
	stage types.Stage
}

// fakeStore tracks stage status in memory and counts transform runs.
type fakeStore struct {
	mu       sync.Mutex
	statuses map[statusKey]*types.PipelineStatus
	order    []statusKey

	loadRows   int64
	loadErr    error
	loadCalls  int
	silverRows int64
	silverErr  error
	silverRuns int
	goldRows   int64
	goldErr    error
	goldRuns   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		statuses:   map[statusKey]*types.PipelineStatus{},
		loadRows:   1,
		silverRows: 1,
		goldRows:   1,
	}
}

func (f *fakeStore) BeginStage(ctx context.Context, batchID uuid.UUID, stage types.Stage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := statusKey{batchID, stage}
	if _, exists := f.statuses[key]; !exists {
		f.order = append(f.order, key)
	}
	f.statuses[key] = &types.PipelineStatus{
		BatchID: batchID,
		Step:    stage,
		Status:  types.StatusProcessing,
	}
	return nil
}

func (f *fakeStore) CompleteStage(ctx context.Context, batchID uuid.UUID, stage types.Stage, status types.StageStatus, rows int64, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.statuses[statusKey{batchID, stage}]
	if !ok {
		return store.ErrBatchNotFound
	}
	st.Status = status
	st.RowsImported = rows
	if errMsg != "" {
		st.ErrorMessage = &errMsg
	}
	return nil
}

func (f *fakeStore) LatestStage(ctx context.Context, batchID uuid.UUID) (*types.PipelineStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.order) - 1; i >= 0; i-- {
		if f.order[i].batch == batchID {
			st := *f.statuses[f.order[i]]
			return &st, nil
		}
	}
	return nil, store.ErrBatchNotFound
}

func (f *fakeStore) PageStatus(ctx context.Context, page, pageSize int) (*types.PagedResult[types.PipelineStatus], error) {
	return &types.PagedResult[types.PipelineStatus]{Page: page, PageSize: pageSize}, nil
}

func (f *fakeStore) BulkLoadRaw(ctx context.Context, batchID uuid.UUID, src store.RawRideSource) (int64, error) {
	f.mu.Lock()
	f.loadCalls++
	f.mu.Unlock()
	// Drain the source the way the real bulk loader does.
	var n int64
	for {
		if _, err := src.Next(); err != nil {
			if err == io.EOF {
				break
			}
			return n, err
		}
		n++
	}
	if f.loadErr != nil {
		return f.loadRows, f.loadErr
	}
	return n, nil
}

func (f *fakeStore) TransformSilver(ctx context.Context, batchID uuid.UUID) (int64, error) {
	f.mu.Lock()
	f.silverRuns++
	f.mu.Unlock()
	return f.silverRows, f.silverErr
}

func (f *fakeStore) TransformGold(ctx context.Context, batchID uuid.UUID) (int64, error) {
	f.mu.Lock()
	f.goldRuns++
	f.mu.Unlock()
	return f.goldRows, f.goldErr
}

func (f *fakeStore) status(batchID uuid.UUID, stage types.Stage) *types.PipelineStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.statuses[statusKey{batchID, stage}]
	if !ok {
		return nil
	}
	cp := *st
	return &cp
}

// syncQueue runs every enqueued task inline, chaining stages to
// completion within the test goroutine.
type syncQueue struct {
	runner dispatch.Runner
	tasks  []dispatch.Task
}

func (q *syncQueue) Enqueue(task dispatch.Task) {
	q.tasks = append(q.tasks, task)
	if q.runner != nil {
		q.runner.Run(context.Background(), task)
	}
}

// recordQueue only records, never executes.
type recordQueue struct {
	tasks []dispatch.Task
}

func (q *recordQueue) Enqueue(task dispatch.Task) {
	q.tasks = append(q.tasks, task)
}

type archiveRecorder struct {
	uploads []string
	err     error
}

func (a *archiveRecorder) Upload(ctx context.Context, batchID, filePath string) error {
	if a.err != nil {
		return a.err
	}
	a.uploads = append(a.uploads, batchID)
	return nil
}

func TestEnqueueStagesFileAndSchedulesBronze(t *testing.T) {
	// Given an orchestrator with a recording queue
	fs := newFakeStore()
	queue := &recordQueue{}
	o := New(fs, queue, t.TempDir(), nil)

	// When a file is enqueued
	batchID, err := o.Enqueue(context.Background(), strings.NewReader(csvHeader+csvRow))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	// Then the initial status is Bronze/Processing
	st := fs.status(batchID, types.StageBronze)
	if st == nil || st.Status != types.StatusProcessing {
		t.Errorf("bronze status = %+v, want Processing", st)
	}

	// And exactly one bronze task is scheduled
	if len(queue.tasks) != 1 || queue.tasks[0].Stage != types.StageBronze || queue.tasks[0].BatchID != batchID {
		t.Errorf("scheduled tasks = %v", queue.tasks)
	}

	// And the source file is staged on disk
	if _, err := os.Stat(o.sourcePath(batchID)); err != nil {
		t.Errorf("staged file missing: %v", err)
	}
}

func TestPipelineChainsBronzeSilverGold(t *testing.T) {
	// Given an orchestrator wired to a synchronous queue
	fs := newFakeStore()
	queue := &syncQueue{}
	o := New(fs, queue, t.TempDir(), nil)
	queue.runner = o

	// When a two-row file is ingested
	batchID, err := o.Enqueue(context.Background(), strings.NewReader(csvHeader+csvRow+csvRow))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	// Then all three stages finish successfully in order
	for _, stage := range []types.Stage{types.StageBronze, types.StageSilver, types.StageGold} {
		st := fs.status(batchID, stage)
		if st == nil || st.Status != types.StatusSuccess {
			t.Errorf("%s status = %+v, want Success", stage, st)
		}
	}
	if st := fs.status(batchID, types.StageBronze); st.RowsImported != 2 {
		t.Errorf("bronze rows = %d, want 2", st.RowsImported)
	}
	if fs.silverRuns != 1 || fs.goldRuns != 1 {
		t.Errorf("transform runs = (%d, %d), want (1, 1)", fs.silverRuns, fs.goldRuns)
	}

	// And the staged source file is removed after the bronze stage
	if _, err := os.Stat(o.sourcePath(batchID)); !os.IsNotExist(err) {
		t.Errorf("staged file should be removed, stat err = %v", err)
	}
}

func TestBronzeFailureRecordsPartialRowsAndStopsChain(t *testing.T) {
	// Given a store that fails mid-load after writing 3 rows
	fs := newFakeStore()
	fs.loadErr = errors.New("copy stream broken")
	fs.loadRows = 3
	queue := &syncQueue{}
	o := New(fs, queue, t.TempDir(), nil)
	queue.runner = o

	// When the batch is ingested
	batchID, err := o.Enqueue(context.Background(), strings.NewReader(csvHeader+csvRow))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	// Then the bronze stage is Failed with the partial count and message
	st := fs.status(batchID, types.StageBronze)
	if st == nil || st.Status != types.StatusFailed {
		t.Fatalf("bronze status = %+v, want Failed", st)
	}
	if st.RowsImported != 3 {
		t.Errorf("rows imported = %d, want partial count 3", st.RowsImported)
	}
	if st.ErrorMessage == nil || !strings.Contains(*st.ErrorMessage, "copy stream broken") {
		t.Errorf("error message = %v", st.ErrorMessage)
	}

	// And no downstream stage ever ran
	if fs.silverRuns != 0 || fs.goldRuns != 0 {
		t.Errorf("transforms ran after bronze failure: (%d, %d)", fs.silverRuns, fs.goldRuns)
	}
}

func TestMalformedHeaderFailsBronze(t *testing.T) {
	fs := newFakeStore()
	queue := &syncQueue{}
	o := New(fs, queue, t.TempDir(), nil)
	queue.runner = o

	batchID, err := o.Enqueue(context.Background(), strings.NewReader("just,three,columns\nrow\n"))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	st := fs.status(batchID, types.StageBronze)
	if st == nil || st.Status != types.StatusFailed {
		t.Fatalf("bronze status = %+v, want Failed", st)
	}
	if fs.loadCalls != 0 {
		t.Errorf("bulk load ran despite header mismatch")
	}
}

func TestSilverFailureIsResumable(t *testing.T) {
	// Given a batch whose silver stage failed
	fs := newFakeStore()
	fs.silverErr = errors.New("relation busy")
	queue := &syncQueue{}
	o := New(fs, queue, t.TempDir(), nil)
	queue.runner = o

	batchID, err := o.Enqueue(context.Background(), strings.NewReader(csvHeader+csvRow))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if st := fs.status(batchID, types.StageSilver); st == nil || st.Status != types.StatusFailed {
		t.Fatalf("silver status = %+v, want Failed", st)
	}
	if fs.goldRuns != 0 {
		t.Fatalf("gold ran after silver failure")
	}

	// When the failure clears and the batch is resumed
	fs.silverErr = nil
	if err := o.Resume(context.Background(), batchID); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}

	// Then silver re-runs and the chain continues through gold
	if st := fs.status(batchID, types.StageSilver); st == nil || st.Status != types.StatusSuccess {
		t.Errorf("silver status after resume = %+v, want Success", st)
	}
	if st := fs.status(batchID, types.StageGold); st == nil || st.Status != types.StatusSuccess {
		t.Errorf("gold status after resume = %+v, want Success", st)
	}
	if fs.silverRuns != 2 {
		t.Errorf("silver runs = %d, want 2", fs.silverRuns)
	}
}

func TestResumeSkipsBronzeFailure(t *testing.T) {
	// Given a batch whose bronze stage failed; its source file is gone
	fs := newFakeStore()
	fs.loadErr = errors.New("disk error")
	queue := &syncQueue{}
	o := New(fs, queue, t.TempDir(), nil)
	queue.runner = o

	batchID, err := o.Enqueue(context.Background(), strings.NewReader(csvHeader+csvRow))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	// When resuming
	before := len(queue.tasks)
	if err := o.Resume(context.Background(), batchID); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}

	// Then nothing is re-scheduled
	if len(queue.tasks) != before {
		t.Errorf("resume scheduled a bronze retry: %v", queue.tasks)
	}
}

func TestResumeSkipsNonFailedBatch(t *testing.T) {
	fs := newFakeStore()
	queue := &syncQueue{}
	o := New(fs, queue, t.TempDir(), nil)
	queue.runner = o

	batchID, err := o.Enqueue(context.Background(), strings.NewReader(csvHeader+csvRow))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	before := fs.goldRuns
	if err := o.Resume(context.Background(), batchID); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if fs.goldRuns != before {
		t.Error("resume re-ran a successful batch")
	}
}

func TestResumeUnknownBatchIsError(t *testing.T) {
	fs := newFakeStore()
	o := New(fs, &recordQueue{}, t.TempDir(), nil)

	err := o.Resume(context.Background(), uuid.New())
	if !errors.Is(err, store.ErrBatchNotFound) {
		t.Errorf("error = %v, want ErrBatchNotFound", err)
	}
}

func TestBronzeArchivesSourceEvenOnFailure(t *testing.T) {
	// Given an archiver and a store that fails the load
	fs := newFakeStore()
	fs.loadErr = errors.New("copy failed")
	archiver := &archiveRecorder{}
	queue := &syncQueue{}
	o := New(fs, queue, t.TempDir(), archiver)
	queue.runner = o

	// When the batch runs
	batchID, err := o.Enqueue(context.Background(), strings.NewReader(csvHeader+csvRow))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	// Then the source file is archived and removed regardless of outcome
	if len(archiver.uploads) != 1 || archiver.uploads[0] != batchID.String() {
		t.Errorf("uploads = %v", archiver.uploads)
	}
	if _, err := os.Stat(o.sourcePath(batchID)); !os.IsNotExist(err) {
		t.Errorf("staged file should be removed, stat err = %v", err)
	}
}

func TestArchiveFailureDoesNotFailBronze(t *testing.T) {
	fs := newFakeStore()
	archiver := &archiveRecorder{err: errors.New("bucket unreachable")}
	queue := &syncQueue{}
	o := New(fs, queue, t.TempDir(), archiver)
	queue.runner = o

	batchID, err := o.Enqueue(context.Background(), strings.NewReader(csvHeader+csvRow))
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if st := fs.status(batchID, types.StageBronze); st == nil || st.Status != types.StatusSuccess {
		t.Errorf("bronze status = %+v, want Success despite archive failure", st)
	}
}
