// Package ctxutil provides shared context key accessors.
//
// This package exists so leaf packages (generate, mcptools) can annotate
// their logs and spans with the run they are serving without importing the
// agent package that owns the run: the runner stamps the context, everyone
// downstream reads it through ctxutil.
package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	keyRunID contextKey = "run_id"
	keyStep  contextKey = "step"
)

// WithRunID returns a new context carrying the run's identity.
func WithRunID(ctx context.Context, runID uuid.UUID) context.Context {
	return context.WithValue(ctx, keyRunID, runID)
}

// WithStep returns a new context carrying the current iteration number.
func WithStep(ctx context.Context, step int) context.Context {
	return context.WithValue(ctx, keyStep, step)
}

// RunIDFromContext extracts the run ID from the context, or uuid.Nil when
// the context was not stamped by a runner.
func RunIDFromContext(ctx context.Context) uuid.UUID {
	if v, ok := ctx.Value(keyRunID).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

// StepFromContext extracts the iteration number from the context, or -1
// when the context was not stamped by a runner.
func StepFromContext(ctx context.Context) int {
	if v, ok := ctx.Value(keyStep).(int); ok {
		return v
	}
	return -1
}
