package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/jikko/internal/model"
)

// CreateRun inserts a new run in its starting state.
func (db *DB) CreateRun(ctx context.Context, run model.Run) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO runs (id, task_name, model, status, started_at, finished_at, reason, iterations, root_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID, run.TaskName, run.Model, string(run.Status), run.StartedAt,
		run.FinishedAt, run.Reason, run.Iterations, run.RootHash,
	)
	if err != nil {
		return fmt.Errorf("storage: create run: %w", err)
	}
	return nil
}

// FinishRun records a run's terminal state. Only a running run can be
// finished; anything else reports ErrNotFound.
func (db *DB) FinishRun(ctx context.Context, run model.Run) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE runs SET status = $1, finished_at = $2, reason = $3, iterations = $4, root_hash = $5
		 WHERE id = $6 AND status = 'running'`,
		string(run.Status), run.FinishedAt, run.Reason, run.Iterations, run.RootHash, run.ID,
	)
	if err != nil {
		return fmt.Errorf("storage: finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: run %s not running: %w", run.ID, ErrNotFound)
	}
	return nil
}

// AppendExecutions writes records using the COPY protocol. A batch is
// all-or-nothing, which keeps the recorder's retry-on-failure simple.
func (db *DB) AppendExecutions(ctx context.Context, recs []ExecutionRecord) error {
	if len(recs) == 0 {
		return nil
	}

	columns := []string{"run_id", "seq", "iteration", "action", "canonical", "result", "error", "created_at"}

	rows := make([][]any, len(recs))
	for i, r := range recs {
		rows[i] = []any{r.RunID, r.Seq, r.Iteration, r.Action, r.Canonical, r.Result, r.Error, r.At}
	}

	// Dedicated COPY timeout prevents a hung Postgres from blocking the
	// recorder's flush indefinitely.
	copyCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, err := db.pool.CopyFrom(copyCtx, pgx.Identifier{"run_executions"}, columns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("storage: copy executions: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (model.Run, error) {
	var (
		run    model.Run
		status string
	)
	err := db.pool.QueryRow(ctx,
		`SELECT id, task_name, model, status, started_at, finished_at, reason, iterations, root_hash
		 FROM runs WHERE id = $1`, id,
	).Scan(
		&run.ID, &run.TaskName, &run.Model, &status, &run.StartedAt,
		&run.FinishedAt, &run.Reason, &run.Iterations, &run.RootHash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Run{}, fmt.Errorf("storage: run %s: %w", id, ErrNotFound)
		}
		return model.Run{}, fmt.Errorf("storage: get run: %w", err)
	}
	run.Status = model.RunStatus(status)
	return run, nil
}

// ListRuns returns the most recently started runs, newest first.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.pool.Query(ctx,
		`SELECT id, task_name, model, status, started_at, finished_at, reason, iterations, root_hash
		 FROM runs ORDER BY started_at DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list runs: %w", err)
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var (
			run    model.Run
			status string
		)
		if err := rows.Scan(
			&run.ID, &run.TaskName, &run.Model, &status, &run.StartedAt,
			&run.FinishedAt, &run.Reason, &run.Iterations, &run.RootHash,
		); err != nil {
			return nil, fmt.Errorf("storage: scan run: %w", err)
		}
		run.Status = model.RunStatus(status)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListExecutions returns a run's records ordered by sequence.
func (db *DB) ListExecutions(ctx context.Context, runID uuid.UUID) ([]ExecutionRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT run_id, seq, iteration, action, canonical, result, error, created_at
		 FROM run_executions WHERE run_id = $1 ORDER BY seq`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list executions: %w", err)
	}
	defer rows.Close()

	var recs []ExecutionRecord
	for rows.Next() {
		var r ExecutionRecord
		if err := rows.Scan(&r.RunID, &r.Seq, &r.Iteration, &r.Action, &r.Canonical, &r.Result, &r.Error, &r.At); err != nil {
			return nil, fmt.Errorf("storage: scan execution: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}
