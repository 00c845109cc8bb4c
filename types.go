package jikko

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of an agent run.
type RunStatus string

const (
	RunStatusRunning    RunStatus = "running"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusImpossible RunStatus = "impossible"
	RunStatusExhausted  RunStatus = "exhausted"
	RunStatusFailed     RunStatus = "failed"
)

// RunResult is the public record of one finished run.
type RunResult struct {
	ID         uuid.UUID  `json:"id"`
	TaskName   string     `json:"task_name"`
	Model      string     `json:"model"`
	Status     RunStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	// Reason is the free-text explanation the model gave when it declared
	// the task complete or impossible; nil when it gave none.
	Reason     *string `json:"reason,omitempty"`
	Iterations int     `json:"iterations"`
	// RootHash is the Merkle root over the run's execution hashes, making
	// the archived transcript tamper-evident.
	RootHash *string `json:"root_hash,omitempty"`
}

// Invocation is one command the model issued.
type Invocation struct {
	Action     string            `json:"action"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Payload    *string           `json:"payload,omitempty"`
}

// Execution is one dispatched invocation and its outcome. Exactly one of
// Result and Error may be set; both nil means the action succeeded without
// producing output.
type Execution struct {
	Invocation Invocation `json:"invocation"`
	Result     *string    `json:"result,omitempty"`
	Error      *string    `json:"error,omitempty"`
	At         time.Time  `json:"at"`
}

// Failed reports whether the execution recorded an error.
func (e Execution) Failed() bool { return e.Error != nil }

// ChatMessage is one entry of the chat-style transcript view of a run.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationOptions is the sampling configuration sent with every
// generation request of a run.
type GenerationOptions struct {
	ContextWindow int     `json:"num_ctx"`
	Temperature   float64 `json:"temperature"`
	RepeatPenalty float64 `json:"repeat_penalty"`
	TopK          int     `json:"top_k"`
}

// KnowledgeMatch is one retrieved knowledge chunk with its similarity
// score; higher is closer.
type KnowledgeMatch struct {
	ID     string  `json:"id"`
	Source string  `json:"source"`
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
}
