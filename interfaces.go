package jikko

import "context"

// Task describes the work one run pursues. Most callers load one from a
// YAML file via WithTaskFile; implement this interface for tasks built at
// runtime.
type Task interface {
	// Name identifies the task in logs and the run archive.
	Name() string
	// Prompt is the user prompt sent on every generation call. It also
	// seeds the goal storage when the goal namespace is active.
	Prompt() (string, error)
	// SystemPrompt is the task-specific preamble of the system prompt.
	SystemPrompt() (string, error)
	// Guidance returns extra instruction lines rendered as a bullet list.
	Guidance() ([]string, error)
	// Namespaces returns the names of the capability namespaces to
	// enable. A nil slice enables every registered namespace; an empty
	// non-nil slice enables none.
	Namespaces() []string
}

// Handle is the control surface an Action receives while it runs. It can
// end the run and append to the run history; storage slots stay
// engine-internal.
type Handle interface {
	// Complete marks the task accomplished and halts the loop.
	Complete(reason string)
	// Impossible marks the task unachievable and halts the loop.
	Impossible(reason string)
	// AppendHistory records an execution the action performed itself, such
	// as a sub-step it dispatched internally. The record is timestamped on
	// append and archived alongside dispatched invocations.
	AppendHistory(exec Execution)
	// IsComplete reports whether the run was already marked complete.
	// Safe from any goroutine the action spawns.
	IsComplete() bool
}

// Action is one custom capability exposed to the model. Name is the tag
// the model emits; Description plus the worked example built from
// ExamplePayload and ExampleAttributes are rendered verbatim into the
// system prompt. Return nil from the example methods when the action needs
// no worked example — a non-nil example is also the echo guard: an
// invocation repeating it verbatim is rejected as misuse.
//
// Run receives the attributes and payload exactly as parsed. A returned
// error is fed back to the model as the execution result, never escalated.
type Action interface {
	Name() string
	Description() string
	ExamplePayload() *string
	ExampleAttributes() map[string]string
	Run(ctx context.Context, h Handle, attrs map[string]string, payload *string) (*string, error)
}

// ActionGroup is a named bundle of custom actions registered as one
// capability namespace. Groups added via WithActionGroup are always
// active, regardless of the task's namespace allowlist.
type ActionGroup struct {
	Name        string
	Description string
	Actions     []Action
}

// Generator replaces the built-in Ollama client as the per-step text
// generation service. The driver blocks on Generate once per step.
type Generator interface {
	Generate(ctx context.Context, model, system, prompt string, opts GenerationOptions) (string, error)
}

// SnapshotSink receives the full state dump after every mutation and the
// rendered prompts before every generation call. A write error is fatal to
// the step.
type SnapshotSink interface {
	Write(content string) error
}

// KnowledgeStore replaces the configured knowledge backend (naive, Qdrant,
// or pgvector) behind the save-knowledge and recall actions.
type KnowledgeStore interface {
	// Add indexes a chunk and reports whether it was new; re-adding an
	// existing id must be a no-op.
	Add(ctx context.Context, id, source, text string) (bool, error)
	// Retrieve returns up to topK chunks closest to the query, best first.
	Retrieve(ctx context.Context, query string, topK int) ([]KnowledgeMatch, error)
}

// RunHook observes run lifecycle events in addition to the configured
// archive. Hook errors are logged and never fail a step.
type RunHook interface {
	// OnExecution is called once per history record, in order.
	OnExecution(ctx context.Context, runID string, iteration int, exec Execution) error
	// OnFinish is called once when the run reaches a terminal state.
	OnFinish(ctx context.Context, result RunResult) error
}
