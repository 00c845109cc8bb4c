package storage_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/jikko/internal/model"
	"github.com/ashita-ai/jikko/internal/storage"
	"github.com/ashita-ai/jikko/internal/testutil"
)

// fakeStore records calls in order so tests can assert that execution batches
// land before the finish write.
type fakeStore struct {
	mu         sync.Mutex
	runs       map[uuid.UUID]model.Run
	recs       []storage.ExecutionRecord
	calls      []string
	failAppend bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{runs: make(map[uuid.UUID]model.Run)}
}

func (f *fakeStore) CreateRun(_ context.Context, run model.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[run.ID] = run
	f.calls = append(f.calls, "create")
	return nil
}

func (f *fakeStore) AppendExecutions(_ context.Context, recs []storage.ExecutionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAppend {
		return errors.New("archive down")
	}
	f.recs = append(f.recs, recs...)
	f.calls = append(f.calls, "append")
	return nil
}

func (f *fakeStore) FinishRun(_ context.Context, run model.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.runs[run.ID]
	if !ok || existing.Status != model.RunStatusRunning {
		return storage.ErrNotFound
	}
	f.runs[run.ID] = run
	f.calls = append(f.calls, "finish")
	return nil
}

func (f *fakeStore) GetRun(_ context.Context, id uuid.UUID) (model.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return model.Run{}, storage.ErrNotFound
	}
	return run, nil
}

func (f *fakeStore) ListRuns(_ context.Context, _ int) ([]model.Run, error) {
	return nil, nil
}

func (f *fakeStore) ListExecutions(_ context.Context, _ uuid.UUID) ([]storage.ExecutionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storage.ExecutionRecord(nil), f.recs...), nil
}

func (f *fakeStore) setFailAppend(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAppend = fail
}

func (f *fakeStore) storedRecords() []storage.ExecutionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storage.ExecutionRecord(nil), f.recs...)
}

func (f *fakeStore) callOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func execution(action string) model.Execution {
	return model.NewExecution(model.NewInvocation(action, nil, nil), nil, nil)
}

func TestRecorderFlushesOnSize(t *testing.T) {
	store := newFakeStore()
	rec := storage.NewRecorder(store, testutil.TestLogger(), 2, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec.Start(ctx)

	run := startedRun("recon")
	require.NoError(t, rec.StartRun(ctx, run))
	require.NoError(t, rec.RecordExecution(ctx, run.ID, 0, execution("update-goal")))
	require.NoError(t, rec.RecordExecution(ctx, run.ID, 0, execution("run-command")))

	require.Eventually(t, func() bool {
		return len(store.storedRecords()) == 2
	}, 2*time.Second, 10*time.Millisecond, "size trigger should flush without waiting for the ticker")

	recs := store.storedRecords()
	assert.Equal(t, 1, recs[0].Seq)
	assert.Equal(t, "update-goal", recs[0].Action)
	assert.Equal(t, 2, recs[1].Seq)

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Second)
	defer drainCancel()
	rec.Drain(drainCtx)
}

func TestRecorderDrainFlushesRemainder(t *testing.T) {
	store := newFakeStore()
	rec := storage.NewRecorder(store, testutil.TestLogger(), 100, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec.Start(ctx)

	run := startedRun("recon")
	require.NoError(t, rec.StartRun(ctx, run))
	for _, action := range []string{"a", "b", "c"} {
		require.NoError(t, rec.RecordExecution(ctx, run.ID, 0, execution(action)))
	}
	assert.Equal(t, 3, rec.Len())

	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Second)
	defer drainCancel()
	rec.Drain(drainCtx)

	recs := store.storedRecords()
	require.Len(t, recs, 3)
	for i, action := range []string{"a", "b", "c"} {
		assert.Equal(t, i+1, recs[i].Seq)
		assert.Equal(t, action, recs[i].Action)
	}
	assert.Equal(t, 0, rec.Len())
}

func TestRecorderFinishFlushesBeforeFinish(t *testing.T) {
	store := newFakeStore()
	rec := storage.NewRecorder(store, testutil.TestLogger(), 100, time.Hour)

	ctx := context.Background()
	run := startedRun("recon")
	require.NoError(t, rec.StartRun(ctx, run))
	require.NoError(t, rec.RecordExecution(ctx, run.ID, 0, execution("update-goal")))
	require.NoError(t, rec.RecordExecution(ctx, run.ID, 1, execution("complete-task")))

	finished := time.Now().UTC()
	run.Status = model.RunStatusCompleted
	run.FinishedAt = &finished
	require.NoError(t, rec.FinishRun(ctx, run))

	assert.Equal(t, []string{"create", "append", "finish"}, store.callOrder())
	assert.Len(t, store.storedRecords(), 2)

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Status)
}

func TestRecorderSequencesPerRun(t *testing.T) {
	store := newFakeStore()
	rec := storage.NewRecorder(store, testutil.TestLogger(), 100, time.Hour)

	ctx := context.Background()
	runA := startedRun("a")
	runB := startedRun("b")
	require.NoError(t, rec.StartRun(ctx, runA))
	require.NoError(t, rec.StartRun(ctx, runB))

	require.NoError(t, rec.RecordExecution(ctx, runA.ID, 0, execution("x")))
	require.NoError(t, rec.RecordExecution(ctx, runB.ID, 0, execution("x")))
	require.NoError(t, rec.RecordExecution(ctx, runA.ID, 1, execution("y")))

	runA.Status = model.RunStatusCompleted
	require.NoError(t, rec.FinishRun(ctx, runA))

	var seqA []int
	var seqB []int
	for _, r := range store.storedRecords() {
		switch r.RunID {
		case runA.ID:
			seqA = append(seqA, r.Seq)
		case runB.ID:
			seqB = append(seqB, r.Seq)
		}
	}
	assert.Equal(t, []int{1, 2}, seqA)
	assert.Equal(t, []int{1}, seqB)
}

func TestRecorderRequeuesFailedFlush(t *testing.T) {
	store := newFakeStore()
	store.setFailAppend(true)
	rec := storage.NewRecorder(store, testutil.TestLogger(), 100, time.Hour)

	ctx := context.Background()
	run := startedRun("recon")
	require.NoError(t, rec.StartRun(ctx, run))
	require.NoError(t, rec.RecordExecution(ctx, run.ID, 0, execution("update-goal")))

	// The finish-path flush fails; the record goes back in the buffer and
	// the terminal state still lands.
	run.Status = model.RunStatusFailed
	require.NoError(t, rec.FinishRun(ctx, run))
	assert.Equal(t, 1, rec.Len())
	assert.Empty(t, store.storedRecords())
	assert.Zero(t, rec.Dropped())

	// Once the store recovers, a later flush delivers the record.
	store.setFailAppend(false)
	rec.Start(ctx)
	drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Second)
	defer drainCancel()
	rec.Drain(drainCtx)

	require.Len(t, store.storedRecords(), 1)
	assert.Equal(t, 0, rec.Len())
}

func TestRecorderBackpressure(t *testing.T) {
	store := newFakeStore()
	// maxSize above the capacity cap so nothing triggers a flush, and no
	// Start so nothing drains the buffer.
	rec := storage.NewRecorder(store, testutil.TestLogger(), 1_000_000, time.Hour)

	ctx := context.Background()
	run := startedRun("recon")
	exec := execution("x")
	for range 10_000 {
		require.NoError(t, rec.RecordExecution(ctx, run.ID, 0, exec))
	}

	err := rec.RecordExecution(ctx, run.ID, 0, exec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at capacity")
	assert.Equal(t, 10_000, rec.Len())
}
