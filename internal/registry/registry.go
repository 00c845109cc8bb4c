// Package registry defines the capability surface of an agent run: actions
// grouped into namespaces, the narrow state handle actions run against, and
// the read-only catalog the run state consults to dispatch invocations.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashita-ai/jikko/internal/memory"
	"github.com/ashita-ai/jikko/internal/model"
)

// RunState is the handle an action receives while it runs. It exposes only
// the operations an action may need — reading storage slots, appending its
// own history records, and flipping the completion flag — so the capability
// surface stays auditable. IsComplete and AppendHistory must be safe to call
// from any goroutine an action spawns internally.
type RunState interface {
	Slot(name string) (*memory.Slot, error)
	AppendHistory(exec model.Execution)
	MarkComplete(impossible bool, reason *string)
	IsComplete() bool
}

// Action is one invocable capability. Name is the tag the model emits;
// Description plus the worked example built from ExamplePayload and
// ExampleAttributes are rendered verbatim into the system prompt so the
// model has in-context instructions for the command.
//
// Run receives the attributes and payload exactly as parsed. It must finish
// any internal concurrency before returning; the dispatcher treats every
// call as synchronous to the step.
type Action interface {
	Name() string
	Description() string
	ExamplePayload() *string
	ExampleAttributes() map[string]string
	Run(ctx context.Context, state RunState, attrs map[string]string, payload *string) (*string, error)
}

// Namespace groups related actions under a name and description, and
// declares the storage slots its actions depend on. Namespaces are built
// once at run construction and immutable afterwards.
type Namespace struct {
	Name        string
	Description string
	Actions     []Action
	Storages    []memory.Spec
}

// Registry is the read-only catalog of the namespaces active in one run.
type Registry struct {
	namespaces []Namespace
}

// New builds a registry from the given namespaces. Action names are not
// required to be unique across namespaces — Find resolves collisions by
// first match in declaration order — but a collision almost always means a
// misassembled run, so it is logged at build time.
func New(namespaces []Namespace, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	seen := make(map[string]string)
	for _, ns := range namespaces {
		for _, action := range ns.Actions {
			if prev, ok := seen[action.Name()]; ok && prev != ns.Name {
				logger.Warn("registry: action name collides across namespaces, first match wins",
					"action", action.Name(),
					"kept", prev,
					"shadowed", ns.Name)
				continue
			}
			seen[action.Name()] = ns.Name
		}
	}

	return &Registry{namespaces: namespaces}
}

// Namespaces returns the active namespaces in declaration order.
func (r *Registry) Namespaces() []Namespace {
	return r.namespaces
}

// Find returns the action registered under name, scanning namespaces in
// declaration order. The second return is false when no action matches.
func (r *Registry) Find(name string) (Action, bool) {
	for _, ns := range r.namespaces {
		for _, action := range ns.Actions {
			if action.Name() == name {
				return action, true
			}
		}
	}
	return nil, false
}

// StorageSpecs returns the deduplicated storage slots the active namespaces
// declare, in first-declaration order.
func (r *Registry) StorageSpecs() []memory.Spec {
	var specs []memory.Spec
	seen := make(map[string]bool)
	for _, ns := range r.namespaces {
		for _, spec := range ns.Storages {
			if seen[spec.Name] {
				continue
			}
			seen[spec.Name] = true
			specs = append(specs, spec)
		}
	}
	return specs
}

// Describe renders every namespace's name, description, and each action's
// description plus a worked example invocation. The result is included
// verbatim in the system prompt.
func (r *Registry) Describe() string {
	var b strings.Builder

	for _, ns := range r.namespaces {
		fmt.Fprintf(&b, "## %s\n\n", ns.Name)
		if ns.Description != "" {
			fmt.Fprintf(&b, "%s\n\n", ns.Description)
		}
		for _, action := range ns.Actions {
			example := model.NewInvocation(action.Name(), action.ExampleAttributes(), action.ExamplePayload())
			fmt.Fprintf(&b, "%s\n%s\n\n", action.Description(), example.Canonical())
		}
	}

	return b.String()
}
