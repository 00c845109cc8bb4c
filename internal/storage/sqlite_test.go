package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/jikko/internal/model"
	"github.com/ashita-ai/jikko/internal/storage"
	"github.com/ashita-ai/jikko/internal/testutil"
)

func newSQLiteStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.db")
	store, err := storage.NewSQLiteStore(context.Background(), path, testutil.TestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func startedRun(task string) model.Run {
	return model.Run{
		ID:        uuid.New(),
		TaskName:  task,
		Model:     "qwen2.5:7b",
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
}

func TestSQLiteCreateAndGetRun(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	run := startedRun("recon")
	require.NoError(t, store.CreateRun(ctx, run))

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "recon", got.TaskName)
	assert.Equal(t, "qwen2.5:7b", got.Model)
	assert.Equal(t, model.RunStatusRunning, got.Status)
	assert.True(t, got.StartedAt.Equal(run.StartedAt))
	assert.Nil(t, got.FinishedAt)
	assert.Nil(t, got.Reason)
	assert.Nil(t, got.RootHash)
}

func TestSQLiteGetRunNotFound(t *testing.T) {
	store := newSQLiteStore(t)

	_, err := store.GetRun(context.Background(), uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSQLiteFinishRun(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	run := startedRun("recon")
	require.NoError(t, store.CreateRun(ctx, run))

	finished := time.Now().UTC()
	reason := "all objectives reached"
	root := "deadbeef"
	run.Status = model.RunStatusCompleted
	run.FinishedAt = &finished
	run.Reason = &reason
	run.Iterations = 4
	run.RootHash = &root
	require.NoError(t, store.FinishRun(ctx, run))

	got, err := store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, got.Status)
	require.NotNil(t, got.FinishedAt)
	assert.True(t, got.FinishedAt.Equal(finished))
	require.NotNil(t, got.Reason)
	assert.Equal(t, reason, *got.Reason)
	assert.Equal(t, 4, got.Iterations)
	require.NotNil(t, got.RootHash)
	assert.Equal(t, root, *got.RootHash)

	// A finished run cannot be finished again.
	assert.ErrorIs(t, store.FinishRun(ctx, run), storage.ErrNotFound)
}

func TestSQLiteFinishUnknownRun(t *testing.T) {
	store := newSQLiteStore(t)

	run := startedRun("ghost")
	run.Status = model.RunStatusFailed
	assert.ErrorIs(t, store.FinishRun(context.Background(), run), storage.ErrNotFound)
}

func TestSQLiteAppendAndListExecutions(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	run := startedRun("recon")
	require.NoError(t, store.CreateRun(ctx, run))

	goal := "map the subnet"
	failure := "command not found"
	recs := []storage.ExecutionRecord{
		storage.NewExecutionRecord(run.ID, 1, 0, model.NewExecution(
			model.NewInvocation("update-goal", nil, &goal), nil, nil)),
		storage.NewExecutionRecord(run.ID, 2, 0, model.NewExecution(
			model.NewInvocation("run-command", nil, &goal), &goal, nil)),
		storage.NewExecutionRecord(run.ID, 3, 1, model.NewExecution(
			model.NewInvocation("run-command", nil, nil), nil, &failure)),
	}
	require.NoError(t, store.AppendExecutions(ctx, recs))

	got, err := store.ListExecutions(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, 1, got[0].Seq)
	assert.Equal(t, "update-goal", got[0].Action)
	assert.Equal(t, recs[0].Canonical, got[0].Canonical)
	assert.Nil(t, got[0].Result)
	assert.Nil(t, got[0].Error)
	assert.True(t, got[0].At.Equal(recs[0].At))

	require.NotNil(t, got[1].Result)
	assert.Equal(t, goal, *got[1].Result)

	assert.Equal(t, 1, got[2].Iteration)
	require.NotNil(t, got[2].Error)
	assert.Equal(t, failure, *got[2].Error)

	// Unknown runs have no records.
	none, err := store.ListExecutions(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteAppendEmptyBatch(t *testing.T) {
	store := newSQLiteStore(t)
	assert.NoError(t, store.AppendExecutions(context.Background(), nil))
}

func TestSQLiteListRunsNewestFirst(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	base := time.Now().UTC()
	for i, task := range []string{"first", "second", "third"} {
		run := startedRun(task)
		run.StartedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.CreateRun(ctx, run))
	}

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "third", runs[0].TaskName)
	assert.Equal(t, "second", runs[1].TaskName)

	all, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSQLiteReopenSeesData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.db")
	ctx := context.Background()

	store, err := storage.NewSQLiteStore(ctx, path, testutil.TestLogger())
	require.NoError(t, err)

	run := startedRun("persisted")
	require.NoError(t, store.CreateRun(ctx, run))
	require.NoError(t, store.Close())

	reopened, err := storage.NewSQLiteStore(ctx, path, testutil.TestLogger())
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	got, err := reopened.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.TaskName)
}
