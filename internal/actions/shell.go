package actions

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/ashita-ai/jikko/internal/registry"
)

type runCommand struct {
	logger *slog.Logger
}

func (runCommand) Name() string { return "run-command" }

func (runCommand) Description() string {
	return "To execute a shell command and observe its output:"
}

func (runCommand) ExamplePayload() *string { return strPtr("ls -la /tmp") }

func (runCommand) ExampleAttributes() map[string]string { return nil }

func (a runCommand) Run(ctx context.Context, _ registry.RunState, _ map[string]string, payload *string) (*string, error) {
	command, err := payloadOf(payload)
	if err != nil {
		return nil, err
	}

	a.logger.Info("actions: running shell command", "command", command)
	out, err := exec.CommandContext(ctx, "sh", "-c", command).CombinedOutput()
	if err != nil {
		// The output usually explains the failure better than the exit
		// status does, so the model gets both.
		return nil, fmt.Errorf("actions: command failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	result := string(out)
	return &result, nil
}

func shellNamespace(logger *slog.Logger) registry.Namespace {
	return registry.Namespace{
		Name:        "shell",
		Description: "Use these actions to run shell commands on the host.",
		Actions:     []registry.Action{runCommand{logger: logger}},
	}
}
