package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/jikko/internal/model"
)

// ExecutionRecord is one archived history entry with its position in the run.
// Seq orders records within a run; Iteration is the step the record was
// produced in (several records can share an iteration).
type ExecutionRecord struct {
	RunID     uuid.UUID
	Seq       int
	Iteration int
	Action    string
	Canonical string
	Result    *string
	Error     *string
	At        time.Time
}

// NewExecutionRecord flattens an execution into its archive row.
func NewExecutionRecord(runID uuid.UUID, seq, iteration int, exec model.Execution) ExecutionRecord {
	return ExecutionRecord{
		RunID:     runID,
		Seq:       seq,
		Iteration: iteration,
		Action:    exec.Invocation.Action,
		Canonical: exec.Invocation.Canonical(),
		Result:    exec.Result,
		Error:     exec.Error,
		At:        exec.At,
	}
}

// Store archives runs and their execution history. DB implements it on
// Postgres, SQLiteStore on a local file.
type Store interface {
	// CreateRun inserts a run in its starting state.
	CreateRun(ctx context.Context, run model.Run) error
	// AppendExecutions writes a batch of records; records may span runs.
	AppendExecutions(ctx context.Context, recs []ExecutionRecord) error
	// FinishRun records a run's terminal state. Returns ErrNotFound when the
	// run does not exist or has already finished.
	FinishRun(ctx context.Context, run model.Run) error
	// GetRun returns a run by ID, or ErrNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (model.Run, error)
	// ListRuns returns the most recently started runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
	// ListExecutions returns a run's records ordered by sequence.
	ListExecutions(ctx context.Context, runID uuid.UUID) ([]ExecutionRecord, error)
}
