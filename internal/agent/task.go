package agent

import "github.com/ashita-ai/jikko/internal/registry"

// Task describes the work one run pursues. Implementations live outside the
// engine; the run state only consumes this surface.
type Task interface {
	// Name identifies the task in logs and the run archive.
	Name() string
	// Prompt is the user prompt sent on every generation call. It also
	// seeds the goal slot when the goal namespace is active.
	Prompt() (string, error)
	// SystemPrompt is the task-specific preamble of the system prompt.
	SystemPrompt() (string, error)
	// Guidance returns extra instruction lines rendered as a bullet list.
	Guidance() ([]string, error)
	// Namespaces returns the names of the namespaces to enable. A nil
	// slice enables every registered namespace; an empty non-nil slice
	// enables none.
	Namespaces() []string
	// Functions returns ad-hoc namespaces the task itself contributes,
	// appended after the registered ones.
	Functions() []registry.Namespace
}
