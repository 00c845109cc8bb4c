// Package task loads task definitions from YAML files. A task file names
// the objective, the namespaces to enable, extra guidance lines, and
// optional ad-hoc functions backed by shell commands that the run exposes
// as actions alongside the builtin namespaces.
package task

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ashita-ai/jikko/internal/registry"
)

// ErrNoPrompt reports a task without a prompt: neither the file nor the
// caller supplied one.
var ErrNoPrompt = errors.New("task: no prompt defined, pass one at load time")

// FileTask is a task definition loaded from a YAML file. It satisfies the
// agent's Task interface.
type FileTask struct {
	name string

	SystemPromptText string       `yaml:"system_prompt"`
	PromptText       string       `yaml:"prompt"`
	Timeout          string       `yaml:"timeout"`
	GuidanceLines    []string     `yaml:"guidance"`
	Using            []string     `yaml:"using"`
	Funcs            []FunctionNS `yaml:"functions"`
}

// FunctionNS declares one ad-hoc namespace of shell-backed actions.
type FunctionNS struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Actions     []FunctionSpec `yaml:"actions"`
}

// FunctionSpec declares one shell-backed action: Tool is the command line
// to run, with the invocation payload appended as the final argument.
type FunctionSpec struct {
	Name           string `yaml:"name"`
	Description    string `yaml:"description"`
	ExamplePayload string `yaml:"example_payload"`
	Tool           string `yaml:"tool"`
}

// Load reads and validates a task file. The task's name is the file's base
// name without extension.
func Load(path string) (*FileTask, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("task: read %s: %w", path, err)
	}

	var t FileTask
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("task: parse %s: %w", path, err)
	}

	base := filepath.Base(path)
	t.name = strings.TrimSuffix(base, filepath.Ext(base))

	if t.SystemPromptText == "" {
		return nil, fmt.Errorf("task: %s: system_prompt is required", path)
	}
	for _, fn := range t.Funcs {
		for _, spec := range fn.Actions {
			if spec.Name == "" || len(strings.Fields(spec.Tool)) == 0 {
				return nil, fmt.Errorf("task: %s: function %q: actions need a name and a tool", path, fn.Name)
			}
		}
	}

	return &t, nil
}

// SetPrompt supplies or overrides the prompt, typically from a CLI argument
// when the file leaves it out.
func (t *FileTask) SetPrompt(prompt string) { t.PromptText = prompt }

// Name returns the task's identity for logs and the archive.
func (t *FileTask) Name() string { return t.name }

// Prompt returns the task prompt, or ErrNoPrompt when none was supplied.
func (t *FileTask) Prompt() (string, error) {
	if t.PromptText == "" {
		return "", ErrNoPrompt
	}
	return t.PromptText, nil
}

// SystemPrompt returns the task's system prompt preamble.
func (t *FileTask) SystemPrompt() (string, error) { return t.SystemPromptText, nil }

// Guidance returns the task's extra instruction lines.
func (t *FileTask) Guidance() ([]string, error) { return t.GuidanceLines, nil }

// Namespaces returns the namespace allowlist; nil enables all builtins.
func (t *FileTask) Namespaces() []string { return t.Using }

// MaxDuration returns the task's optional wall-clock bound for the whole
// run. The loop itself enforces only the iteration budget; callers apply
// this to the run's context. Zero means unbounded.
func (t *FileTask) MaxDuration() (time.Duration, error) {
	if t.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(t.Timeout)
	if err != nil {
		return 0, fmt.Errorf("task: parse timeout: %w", err)
	}
	return d, nil
}

// Functions converts the declared function namespaces into registry
// namespaces of shell-backed actions.
func (t *FileTask) Functions() []registry.Namespace {
	var namespaces []registry.Namespace
	for _, fn := range t.Funcs {
		ns := registry.Namespace{
			Name:        fn.Name,
			Description: fn.Description,
		}
		for _, spec := range fn.Actions {
			ns.Actions = append(ns.Actions, newToolAction(spec))
		}
		namespaces = append(namespaces, ns)
	}
	return namespaces
}
