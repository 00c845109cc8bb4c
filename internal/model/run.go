package model

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the lifecycle state of an agent run.
type RunStatus string

const (
	RunStatusRunning    RunStatus = "running"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusImpossible RunStatus = "impossible"
	RunStatusExhausted  RunStatus = "exhausted"
	RunStatusFailed     RunStatus = "failed"
)

// Terminal reports whether the status ends a run. Completed and impossible
// are both terminal successes; exhausted means the iteration budget ran out;
// failed means a fatal step error (generation or snapshot I/O).
func (s RunStatus) Terminal() bool { return s != RunStatusRunning }

// Run is the archived record of one agent run from task start to its
// terminal state. Immutable once finished.
type Run struct {
	ID         uuid.UUID  `json:"id"`
	TaskName   string     `json:"task_name"`
	Model      string     `json:"model"`
	Status     RunStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Reason     *string    `json:"reason,omitempty"`
	Iterations int        `json:"iterations"`
	// RootHash is the Merkle root over the run's execution hashes, set when
	// the run finishes so the archived transcript is tamper-evident.
	RootHash *string `json:"root_hash,omitempty"`
}
