package actions

import (
	"context"

	"github.com/ashita-ai/jikko/internal/memory"
	"github.com/ashita-ai/jikko/internal/registry"
)

type updateGoal struct{}

func (updateGoal) Name() string { return "update-goal" }

func (updateGoal) Description() string {
	return "When you believe you reached a milestone or that the current goal changed, you can set a new goal:"
}

func (updateGoal) ExamplePayload() *string { return strPtr("your new goal") }

func (updateGoal) ExampleAttributes() map[string]string { return nil }

func (updateGoal) Run(_ context.Context, state registry.RunState, _ map[string]string, payload *string) (*string, error) {
	goal, err := payloadOf(payload)
	if err != nil {
		return nil, err
	}
	slot, err := state.Slot("goal")
	if err != nil {
		return nil, err
	}
	slot.SetCurrent(goal)
	return nil, nil
}

func goalNamespace() registry.Namespace {
	return registry.Namespace{
		Name:        "goal",
		Description: "Use these actions to maintain your current goal. The previous goal stays visible so you can return to it.",
		Actions:     []registry.Action{updateGoal{}},
		Storages:    []memory.Spec{goalSpec},
	}
}
