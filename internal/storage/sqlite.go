package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure Go driver, registers as "sqlite"

	"github.com/ashita-ai/jikko/internal/model"
)

// Timestamps are stored as fixed-width RFC 3339 text: the padded fraction
// keeps lexicographic order chronological, which ORDER BY relies on.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	task_name TEXT NOT NULL,
	model TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	reason TEXT,
	iterations INTEGER NOT NULL DEFAULT 0,
	root_hash TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs (started_at DESC);

CREATE TABLE IF NOT EXISTS run_executions (
	run_id TEXT NOT NULL REFERENCES runs(id),
	seq INTEGER NOT NULL,
	iteration INTEGER NOT NULL,
	action TEXT NOT NULL,
	canonical TEXT NOT NULL,
	result TEXT,
	error TEXT,
	created_at TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);
`

// SQLiteStore archives runs in a local SQLite file, for single-machine use
// that doesn't warrant a Postgres deployment.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if needed) the archive at path and ensures
// the schema exists.
func NewSQLiteStore(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	// SQLite serializes writers anyway; a single connection avoids
	// SQLITE_BUSY between the recorder's flush and lifecycle writes.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: create sqlite schema: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

func formatTime(t time.Time) string { return t.UTC().Format(sqliteTimeFormat) }

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// CreateRun inserts a new run in its starting state.
func (s *SQLiteStore) CreateRun(ctx context.Context, run model.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, task_name, model, status, started_at, finished_at, reason, iterations, root_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.TaskName, run.Model, string(run.Status),
		formatTime(run.StartedAt), formatTimePtr(run.FinishedAt), run.Reason, run.Iterations, run.RootHash,
	)
	if err != nil {
		return fmt.Errorf("storage: create run: %w", err)
	}
	return nil
}

// FinishRun records a run's terminal state. Only a running run can be
// finished; anything else reports ErrNotFound.
func (s *SQLiteStore) FinishRun(ctx context.Context, run model.Run) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, reason = ?, iterations = ?, root_hash = ?
		 WHERE id = ? AND status = 'running'`,
		string(run.Status), formatTimePtr(run.FinishedAt), run.Reason, run.Iterations, run.RootHash,
		run.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("storage: finish run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: finish run affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("storage: run %s not running: %w", run.ID, ErrNotFound)
	}
	return nil
}

// AppendExecutions writes records in one transaction so a batch is
// all-or-nothing, matching the Postgres COPY behavior.
func (s *SQLiteStore) AppendExecutions(ctx context.Context, recs []ExecutionRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_executions (run_id, seq, iteration, action, canonical, result, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage: prepare append: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx,
			r.RunID.String(), r.Seq, r.Iteration, r.Action, r.Canonical, r.Result, r.Error, formatTime(r.At),
		); err != nil {
			return fmt.Errorf("storage: insert execution: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit append: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id uuid.UUID) (model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, task_name, model, status, started_at, finished_at, reason, iterations, root_hash
		 FROM runs WHERE id = ?`, id.String(),
	)
	run, err := scanSQLiteRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Run{}, fmt.Errorf("storage: run %s: %w", id, ErrNotFound)
		}
		return model.Run{}, fmt.Errorf("storage: get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recently started runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_name, model, status, started_at, finished_at, reason, iterations, root_hash
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list runs: %w", err)
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListExecutions returns a run's records ordered by sequence.
func (s *SQLiteStore) ListExecutions(ctx context.Context, runID uuid.UUID) ([]ExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, seq, iteration, action, canonical, result, error, created_at
		 FROM run_executions WHERE run_id = ? ORDER BY seq`, runID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list executions: %w", err)
	}
	defer rows.Close()

	var recs []ExecutionRecord
	for rows.Next() {
		var (
			r             ExecutionRecord
			idStr, atStr  string
			result, rerr  sql.NullString
		)
		if err := rows.Scan(&idStr, &r.Seq, &r.Iteration, &r.Action, &r.Canonical, &result, &rerr, &atStr); err != nil {
			return nil, fmt.Errorf("storage: scan execution: %w", err)
		}
		if r.RunID, err = uuid.Parse(idStr); err != nil {
			return nil, fmt.Errorf("storage: parse run id: %w", err)
		}
		if r.At, err = time.Parse(sqliteTimeFormat, atStr); err != nil {
			return nil, fmt.Errorf("storage: parse execution time: %w", err)
		}
		if result.Valid {
			r.Result = &result.String
		}
		if rerr.Valid {
			r.Error = &rerr.String
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Close shuts down the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(row rowScanner) (model.Run, error) {
	var (
		run                        model.Run
		idStr, status, startedAt   string
		finished, reason, rootHash sql.NullString
	)
	if err := row.Scan(&idStr, &run.TaskName, &run.Model, &status, &startedAt, &finished, &reason, &run.Iterations, &rootHash); err != nil {
		return model.Run{}, err
	}

	var err error
	if run.ID, err = uuid.Parse(idStr); err != nil {
		return model.Run{}, fmt.Errorf("parse run id: %w", err)
	}
	if run.StartedAt, err = time.Parse(sqliteTimeFormat, startedAt); err != nil {
		return model.Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	run.Status = model.RunStatus(status)
	if finished.Valid {
		t, err := time.Parse(sqliteTimeFormat, finished.String)
		if err != nil {
			return model.Run{}, fmt.Errorf("parse finished_at: %w", err)
		}
		run.FinishedAt = &t
	}
	if reason.Valid {
		run.Reason = &reason.String
	}
	if rootHash.Valid {
		run.RootHash = &rootHash.String
	}
	return run, nil
}
