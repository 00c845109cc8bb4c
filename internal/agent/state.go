// Package agent implements the run-state orchestrator and the driver loop:
// the registry of active capabilities, the storage slots, the execution
// history, the iteration budget, and the guarded dispatch that turns a
// parsed invocation into an executed, logged effect.
package agent

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync/atomic"
	"text/template"

	"github.com/ashita-ai/jikko/internal/memory"
	"github.com/ashita-ai/jikko/internal/model"
	"github.com/ashita-ai/jikko/internal/registry"
)

var (
	// ErrBudgetExhausted reports that the configured iteration budget was
	// reached. It is the only way a run ends other than completion.
	ErrBudgetExhausted = errors.New("agent: iteration budget exhausted")

	// ErrSlotNotFound reports a request for a storage slot no active
	// namespace declared.
	ErrSlotNotFound = errors.New("agent: storage slot not found")
)

// exampleMisuseMessage is fed back to the model when it echoes a documented
// example instead of substituting real values.
const exampleMisuseMessage = "do not use the example values but use the information you have to create new ones"

//go:embed system_prompt.tpl
var systemPromptTpl string

var systemPrompt = template.Must(template.New("system_prompt").Parse(systemPromptTpl))

type systemPromptData struct {
	System     string
	Iterations string
	Storages   string
	Actions    string
	Guidance   string
}

// State owns everything one run needs between generation calls: the task,
// the capability registry, the storage slots, the history, the iteration
// counter, and the completion flag. It is built once per run and the
// catalog side of it never changes afterwards.
//
// State implements registry.RunState, so actions receive it as their
// handle; the completion flag is atomic and safe from any goroutine, while
// slots follow the package memory contract of dispatch-path-only mutation.
type State struct {
	task          Task
	registry      *registry.Registry
	slots         map[string]*memory.Slot
	history       *History
	iteration     int
	maxIterations int
	logger        *slog.Logger

	complete   atomic.Bool
	impossible atomic.Bool
	reason     atomic.Pointer[string]
}

// NewState assembles the run state for a task. The available namespaces are
// filtered by the task's allowlist (nil means all), the task's own ad-hoc
// namespaces are appended, and every storage slot any active namespace
// declares is created. When the goal slot exists it is seeded with the
// task's prompt so the model starts with its objective in state.
func NewState(task Task, available []registry.Namespace, maxIterations int, logger *slog.Logger) (*State, error) {
	if logger == nil {
		logger = slog.Default()
	}

	active := selectNamespaces(available, task.Namespaces())
	active = append(active, task.Functions()...)
	reg := registry.New(active, logger)

	slots := make(map[string]*memory.Slot)
	for _, spec := range reg.StorageSpecs() {
		slots[spec.Name] = memory.NewSlot(spec.Name, spec.Kind)
	}

	if goal, ok := slots["goal"]; ok {
		prompt, err := task.Prompt()
		if err != nil {
			return nil, fmt.Errorf("agent: seed goal from task prompt: %w", err)
		}
		goal.SetCurrent(prompt)
	}

	return &State{
		task:          task,
		registry:      reg,
		slots:         slots,
		history:       NewHistory(),
		maxIterations: maxIterations,
		logger:        logger,
	}, nil
}

func selectNamespaces(available []registry.Namespace, allow []string) []registry.Namespace {
	if allow == nil {
		return available
	}
	allowed := make(map[string]bool, len(allow))
	for _, name := range allow {
		allowed[strings.ToLower(name)] = true
	}
	var selected []registry.Namespace
	for _, ns := range available {
		if allowed[strings.ToLower(ns.Name)] {
			selected = append(selected, ns)
		}
	}
	return selected
}

// TaskName returns the task's name for logging and archiving.
func (s *State) TaskName() string { return s.task.Name() }

// Registry returns the run's capability catalog.
func (s *State) Registry() *registry.Registry { return s.registry }

// History returns the run's execution log.
func (s *State) History() *History { return s.history }

// Iteration returns the number of completed iterations.
func (s *State) Iteration() int { return s.iteration }

// MaxIterations returns the configured budget; zero means unbounded.
func (s *State) MaxIterations() int { return s.maxIterations }

// AdvanceIteration moves the run to the next iteration. When a positive
// budget is configured and the next iteration would reach it, the counter
// is left untouched and ErrBudgetExhausted is returned; this is the sole
// mechanism that caps total steps.
func (s *State) AdvanceIteration() error {
	next := s.iteration + 1
	if s.maxIterations > 0 && next >= s.maxIterations {
		return fmt.Errorf("reached step %d of %d: %w", next, s.maxIterations, ErrBudgetExhausted)
	}
	s.iteration = next
	return nil
}

// Slot returns the named storage slot.
func (s *State) Slot(name string) (*memory.Slot, error) {
	slot, ok := s.slots[name]
	if !ok {
		s.logger.Warn("agent: requested storage slot not found", "slot", name)
		return nil, fmt.Errorf("%w: %q", ErrSlotNotFound, name)
	}
	return slot, nil
}

// AppendHistory records an execution an action produced itself, outside the
// normal dispatch path. The record lands in the same history the driver
// archives, so self-reported work survives alongside dispatched invocations.
func (s *State) AppendHistory(exec model.Execution) { s.history.Append(exec) }

// MarkComplete flips the run's completion flag. The first call wins and is
// permanent for the run; it records whether the task was accomplished or
// judged impossible, which matters only for reporting — both halt the loop
// identically.
func (s *State) MarkComplete(impossible bool, reason *string) {
	if !s.complete.CompareAndSwap(false, true) {
		return
	}
	if impossible {
		s.impossible.Store(true)
	}
	if reason != nil {
		s.reason.Store(reason)
	}

	msg := "no reason provided"
	if reason != nil {
		msg = *reason
	}
	if impossible {
		s.logger.Warn("agent: task judged impossible", "reason", msg)
	} else {
		s.logger.Info("agent: task complete", "reason", msg)
	}
}

// IsComplete reports whether the run was marked complete. Lock-free; safe
// from any goroutine.
func (s *State) IsComplete() bool { return s.complete.Load() }

// Impossible reports whether completion was recorded as "task impossible".
func (s *State) Impossible() bool { return s.impossible.Load() }

// Reason returns the completion reason, or nil when none was given.
func (s *State) Reason() *string { return s.reason.Load() }

// Execute dispatches one invocation. An invocation naming no active action
// is a silent no-op: the model occasionally hallucinates command names and
// that must not fail the step or pollute the history. For a matched action,
// exactly one history record is appended — a guarded-skip error when the
// model echoed the action's documented example values, an error record when
// the action failed, or a success record otherwise. Action failures are
// never propagated.
func (s *State) Execute(ctx context.Context, inv model.Invocation) error {
	action, ok := s.registry.Find(inv.Action)
	if !ok {
		s.logger.Debug("agent: ignoring unknown action", "action", inv.Action)
		return nil
	}

	if usesExampleValues(action, inv) {
		msg := exampleMisuseMessage
		s.history.Append(model.NewExecution(inv, nil, &msg))
		return nil
	}

	result, err := action.Run(ctx, s, inv.Attributes, inv.Payload)
	if err != nil {
		s.logger.Warn("agent: action failed", "action", inv.Action, "error", err)
		msg := err.Error()
		s.history.Append(model.NewExecution(inv, nil, &msg))
		return nil
	}

	s.history.Append(model.NewExecution(inv, result, nil))
	return nil
}

// usesExampleValues reports whether the invocation repeats the action's
// documented example payload or attribute set verbatim.
func usesExampleValues(action registry.Action, inv model.Invocation) bool {
	if inv.Payload != nil {
		if ex := action.ExamplePayload(); ex != nil && *ex == *inv.Payload {
			return true
		}
	}
	if inv.Attributes != nil {
		if ex := action.ExampleAttributes(); ex != nil && maps.Equal(ex, inv.Attributes) {
			return true
		}
	}
	return false
}

// ChatTranscript returns the history as a bounded chat-style transcript.
func (s *State) ChatTranscript(max int) []model.ChatMessage {
	return s.history.ChatTranscript(max)
}

// RenderSystemPrompt projects the task preamble, storage slots, capability
// descriptions, guidance, and iteration banner into the system prompt.
func (s *State) RenderSystemPrompt() (string, error) {
	system, err := s.task.SystemPrompt()
	if err != nil {
		return "", fmt.Errorf("agent: render system prompt: %w", err)
	}
	guidance, err := s.task.Guidance()
	if err != nil {
		return "", fmt.Errorf("agent: render guidance: %w", err)
	}

	var bullets strings.Builder
	for i, line := range guidance {
		if i > 0 {
			bullets.WriteByte('\n')
		}
		bullets.WriteString("- ")
		bullets.WriteString(line)
	}

	var b strings.Builder
	err = systemPrompt.Execute(&b, systemPromptData{
		System:     system,
		Iterations: s.iterationBanner(),
		Storages:   s.renderSlots("\n\n"),
		Actions:    s.registry.Describe(),
		Guidance:   bullets.String(),
	})
	if err != nil {
		return "", fmt.Errorf("agent: render system prompt: %w", err)
	}
	return b.String(), nil
}

// RenderUserPrompt returns the task prompt sent as the user message.
func (s *State) RenderUserPrompt() (string, error) {
	prompt, err := s.task.Prompt()
	if err != nil {
		return "", fmt.Errorf("agent: render user prompt: %w", err)
	}
	return prompt, nil
}

// RenderSnapshot dumps all storage slots plus the iteration banner for
// external persistence and inspection. Capability descriptions are static
// and deliberately omitted to keep the dump compact.
func (s *State) RenderSnapshot() string {
	var b strings.Builder
	b.WriteString(s.renderSlots("\n"))
	b.WriteString("\n")
	if banner := s.iterationBanner(); banner != "" {
		b.WriteString(banner)
		b.WriteString("\n")
	}
	return b.String()
}

func (s *State) renderSlots(sep string) string {
	slots := make([]*memory.Slot, 0, len(s.slots))
	for _, slot := range s.slots {
		slots = append(slots, slot)
	}
	memory.SortForRender(slots)

	rendered := make([]string, len(slots))
	for i, slot := range slots {
		rendered[i] = slot.Render()
	}
	return strings.Join(rendered, sep)
}

func (s *State) iterationBanner() string {
	if s.maxIterations <= 0 {
		return ""
	}
	return fmt.Sprintf("You are currently at step %d of a maximum of %d.", s.iteration+1, s.maxIterations)
}
