package actions

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashita-ai/jikko/internal/memory"
	"github.com/ashita-ai/jikko/internal/registry"
)

var errNoKey = errors.New(`actions: a key="..." attribute is required`)

type saveMemory struct{}

func (saveMemory) Name() string { return "save-memory" }

func (saveMemory) Description() string {
	return "To store a piece of information under a short key so it stays visible in later steps:"
}

func (saveMemory) ExamplePayload() *string {
	return strPtr("put here the custom data you want to keep for later")
}

func (saveMemory) ExampleAttributes() map[string]string {
	return map[string]string{"key": "my-note"}
}

func (saveMemory) Run(_ context.Context, state registry.RunState, attrs map[string]string, payload *string) (*string, error) {
	key, ok := attrs["key"]
	if !ok || key == "" {
		return nil, errNoKey
	}
	content, err := payloadOf(payload)
	if err != nil {
		return nil, err
	}
	slot, err := state.Slot("memories")
	if err != nil {
		return nil, err
	}
	slot.Store(key, content)
	return nil, nil
}

type deleteMemory struct{}

func (deleteMemory) Name() string { return "delete-memory" }

func (deleteMemory) Description() string {
	return "To remove a stored memory that is no longer relevant:"
}

func (deleteMemory) ExamplePayload() *string { return nil }

func (deleteMemory) ExampleAttributes() map[string]string {
	return map[string]string{"key": "my-note"}
}

func (deleteMemory) Run(_ context.Context, state registry.RunState, attrs map[string]string, _ *string) (*string, error) {
	key, ok := attrs["key"]
	if !ok || key == "" {
		return nil, errNoKey
	}
	slot, err := state.Slot("memories")
	if err != nil {
		return nil, err
	}
	if !slot.Delete(key) {
		return nil, fmt.Errorf("actions: no memory stored under %q", key)
	}
	return nil, nil
}

func memoriesNamespace() registry.Namespace {
	return registry.Namespace{
		Name:        "memories",
		Description: "Use these actions to store and remove keyed memories. Memories render into your state every step.",
		Actions:     []registry.Action{saveMemory{}, deleteMemory{}},
		Storages:    []memory.Spec{memoriesSpec, goalSpec},
	}
}
