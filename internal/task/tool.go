package task

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ashita-ai/jikko/internal/registry"
)

// toolAction runs a declared command line with the invocation payload
// appended as the final argument. Command failure surfaces as an action
// error, so the model sees the output either way.
type toolAction struct {
	spec FunctionSpec
	argv []string
}

func newToolAction(spec FunctionSpec) toolAction {
	return toolAction{spec: spec, argv: strings.Fields(spec.Tool)}
}

func (a toolAction) Name() string { return a.spec.Name }

func (a toolAction) Description() string { return a.spec.Description }

func (a toolAction) ExamplePayload() *string {
	if a.spec.ExamplePayload == "" {
		return nil
	}
	p := a.spec.ExamplePayload
	return &p
}

func (a toolAction) ExampleAttributes() map[string]string { return nil }

func (a toolAction) Run(ctx context.Context, _ registry.RunState, _ map[string]string, payload *string) (*string, error) {
	args := a.argv[1:]
	if payload != nil && *payload != "" {
		args = append(args, *payload)
	}

	out, err := exec.CommandContext(ctx, a.argv[0], args...).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("task: %s: %w: %s", a.spec.Name, err, strings.TrimSpace(string(out)))
	}
	result := string(out)
	return &result, nil
}

var _ registry.Action = toolAction{}
