// Package actions provides the builtin capability namespaces an agent run
// can enable: goal management, memories, filesystem access, shell commands,
// knowledge retrieval, and task completion. Each namespace is a
// registry.Namespace assembled once per run; the run state filters them by
// the task's allowlist.
package actions

import (
	"errors"
	"log/slog"

	"github.com/ashita-ai/jikko/internal/memory"
	"github.com/ashita-ai/jikko/internal/rag"
	"github.com/ashita-ai/jikko/internal/registry"
)

var errNoPayload = errors.New("actions: payload is required")

// Config selects which optional namespaces are registered and supplies
// their collaborators.
type Config struct {
	Logger *slog.Logger
	// Knowledge enables the knowledge namespace when non-nil.
	Knowledge rag.Store
	// EnableShell registers the run-command action. Off by default: a
	// model with shell access can do anything the process can.
	EnableShell bool
}

// Builtin returns the namespace table for one run, in declaration order.
// Declaration order matters twice: it is the prompt rendering order and the
// collision-resolution order for Find.
func Builtin(cfg Config) []registry.Namespace {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	namespaces := []registry.Namespace{
		goalNamespace(),
		memoriesNamespace(),
		filesystemNamespace(),
	}
	if cfg.EnableShell {
		namespaces = append(namespaces, shellNamespace(cfg.Logger))
	}
	if cfg.Knowledge != nil {
		namespaces = append(namespaces, knowledgeNamespace(cfg.Knowledge, cfg.Logger))
	}
	namespaces = append(namespaces, taskNamespace())
	return namespaces
}

func strPtr(s string) *string { return &s }

func payloadOf(payload *string) (string, error) {
	if payload == nil || *payload == "" {
		return "", errNoPayload
	}
	return *payload, nil
}

// goalSpec and memoriesSpec are shared storage declarations; the registry
// deduplicates them across namespaces.
var (
	goalSpec     = memory.Spec{Name: "goal", Kind: memory.KindCurrentPrevious}
	memoriesSpec = memory.Spec{Name: "memories", Kind: memory.KindTagged}
)
