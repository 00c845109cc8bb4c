package actions

import (
	"context"

	"github.com/ashita-ai/jikko/internal/registry"
)

type completeTask struct{}

func (completeTask) Name() string { return "complete-task" }

func (completeTask) Description() string {
	return "When your objective has been reached:"
}

func (completeTask) ExamplePayload() *string { return nil }

func (completeTask) ExampleAttributes() map[string]string { return nil }

func (completeTask) Run(_ context.Context, state registry.RunState, _ map[string]string, payload *string) (*string, error) {
	state.MarkComplete(false, payload)
	return nil, nil
}

type impossibleTask struct{}

func (impossibleTask) Name() string { return "impossible-task" }

func (impossibleTask) Description() string {
	return "If you determine that the given goal or task is impossible given the information you have:"
}

func (impossibleTask) ExamplePayload() *string {
	return strPtr("give a brief explanation of why the task is impossible")
}

func (impossibleTask) ExampleAttributes() map[string]string { return nil }

func (impossibleTask) Run(_ context.Context, state registry.RunState, _ map[string]string, payload *string) (*string, error) {
	state.MarkComplete(true, payload)
	return nil, nil
}

func taskNamespace() registry.Namespace {
	return registry.Namespace{
		Name:        "task",
		Description: "Use these actions to end the task, either way.",
		Actions:     []registry.Action{completeTask{}, impossibleTask{}},
	}
}
