package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/jikko/internal/memory"
	"github.com/ashita-ai/jikko/internal/registry"
)

func strPtr(s string) *string { return &s }

type stubAction struct {
	name        string
	description string
	payload     *string
	attrs       map[string]string
	run         func(ctx context.Context, state registry.RunState, attrs map[string]string, payload *string) (*string, error)
}

func (a *stubAction) Name() string                         { return a.name }
func (a *stubAction) Description() string                  { return a.description }
func (a *stubAction) ExamplePayload() *string              { return a.payload }
func (a *stubAction) ExampleAttributes() map[string]string { return a.attrs }

func (a *stubAction) Run(ctx context.Context, state registry.RunState, attrs map[string]string, payload *string) (*string, error) {
	if a.run == nil {
		return nil, nil
	}
	return a.run(ctx, state, attrs, payload)
}

func TestRegistry_Find(t *testing.T) {
	reg := registry.New([]registry.Namespace{
		{
			Name:    "Goal",
			Actions: []registry.Action{&stubAction{name: "update-goal"}},
		},
		{
			Name:    "Task",
			Actions: []registry.Action{&stubAction{name: "complete-task"}, &stubAction{name: "impossible-task"}},
		},
	}, nil)

	action, ok := reg.Find("complete-task")
	require.True(t, ok)
	assert.Equal(t, "complete-task", action.Name())

	_, ok = reg.Find("no-such-action")
	assert.False(t, ok)
}

func TestRegistry_FindFirstMatchWins(t *testing.T) {
	first := &stubAction{name: "recall", description: "first"}
	second := &stubAction{name: "recall", description: "second"}

	reg := registry.New([]registry.Namespace{
		{Name: "Knowledge", Actions: []registry.Action{first}},
		{Name: "Shadowed", Actions: []registry.Action{second}},
	}, nil)

	action, ok := reg.Find("recall")
	require.True(t, ok)
	assert.Equal(t, "first", action.Description())
}

func TestRegistry_StorageSpecs(t *testing.T) {
	reg := registry.New([]registry.Namespace{
		{
			Name:     "Goal",
			Storages: []memory.Spec{{Name: "goal", Kind: memory.KindCurrentPrevious}},
		},
		{
			Name: "Memories",
			Storages: []memory.Spec{
				{Name: "memories", Kind: memory.KindTagged},
				{Name: "goal", Kind: memory.KindCurrentPrevious},
			},
		},
	}, nil)

	specs := reg.StorageSpecs()
	require.Len(t, specs, 2)
	assert.Equal(t, "goal", specs[0].Name)
	assert.Equal(t, "memories", specs[1].Name)
}

func TestRegistry_Describe(t *testing.T) {
	reg := registry.New([]registry.Namespace{
		{
			Name:        "Memories",
			Description: "Store and retrieve what you learn.",
			Actions: []registry.Action{
				&stubAction{
					name:        "save-memory",
					description: "Save a note under a tag.",
					payload:     strPtr("what to remember"),
					attrs:       map[string]string{"tag": "topic"},
				},
				&stubAction{
					name:        "delete-memory",
					description: "Forget a tag.",
					attrs:       map[string]string{"tag": "topic"},
				},
			},
		},
	}, nil)

	out := reg.Describe()

	assert.Contains(t, out, "## Memories\n")
	assert.Contains(t, out, "Store and retrieve what you learn.\n")
	assert.Contains(t, out, "Save a note under a tag.\n")
	assert.Contains(t, out, `<save-memory tag="topic">what to remember</save-memory>`)
	assert.Contains(t, out, `<delete-memory tag="topic"></delete-memory>`)
}
