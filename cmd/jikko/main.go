// Command jikko runs one autonomous agent task from a YAML task file and
// reports how it ended.
//
// Usage:
//
//	jikko <task.yaml> [prompt...]
//
// The task file may also come from the JIKKO_TASK env var; a prompt given
// on the command line overrides the one in the file. Exit codes: 0 when
// the run reached a verdict (completed or impossible), 2 when the
// iteration budget ran out first, 1 on any other failure.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ashita-ai/jikko"
	"github.com/ashita-ai/jikko/internal/task"
)

// version is set at build time via -ldflags.
var version = "dev"

const exitExhausted = 2

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("JIKKO_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	code, err := run(ctx, logger)
	if err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return code
}

func run(ctx context.Context, logger *slog.Logger) (int, error) {
	taskPath := os.Getenv("JIKKO_TASK")
	args := os.Args[1:]
	if len(args) > 0 {
		taskPath = args[0]
		args = args[1:]
	}
	if taskPath == "" {
		return 1, errors.New("no task file: pass one as the first argument or set JIKKO_TASK")
	}

	ft, err := task.Load(taskPath)
	if err != nil {
		return 1, err
	}
	if len(args) > 0 {
		ft.SetPrompt(strings.Join(args, " "))
	}

	agent, err := jikko.New(
		jikko.WithTask(ft),
		jikko.WithLogger(logger),
		jikko.WithVersion(version),
	)
	if err != nil {
		return 1, err
	}
	defer func() {
		if err := agent.Shutdown(context.Background()); err != nil {
			logger.Warn("shutdown failed", "error", err)
		}
	}()

	// A task may bound its own wall-clock time.
	timeout, err := ft.MaxDuration()
	if err != nil {
		return 1, err
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, runErr := agent.Run(ctx)
	if err := json.NewEncoder(os.Stdout).Encode(result); err != nil {
		logger.Warn("encode result failed", "error", err)
	}

	switch result.Status {
	case jikko.RunStatusCompleted:
		fmt.Fprintf(os.Stderr, "task %q completed: %s\n", result.TaskName, reasonOrDefault(result.Reason))
		return 0, nil
	case jikko.RunStatusImpossible:
		fmt.Fprintf(os.Stderr, "task %q judged impossible: %s\n", result.TaskName, reasonOrDefault(result.Reason))
		return 0, nil
	case jikko.RunStatusExhausted:
		fmt.Fprintf(os.Stderr, "task %q ran out of steps after %d iterations\n", result.TaskName, result.Iterations)
		return exitExhausted, nil
	default:
		return 1, runErr
	}
}

func reasonOrDefault(reason *string) string {
	if reason == nil {
		return "no reason provided"
	}
	return *reason
}
