package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/jikko/internal/ctxutil"
	"github.com/ashita-ai/jikko/internal/integrity"
	"github.com/ashita-ai/jikko/internal/model"
	"github.com/ashita-ai/jikko/internal/parse"
	"github.com/ashita-ai/jikko/internal/snapshot"
	"github.com/ashita-ai/jikko/internal/telemetry"
)

var tracer = otel.Tracer("jikko/agent")

// Generator is the single-shot text generation service the driver calls
// once per step. The driver blocks on the call; it is the only suspension
// point in the loop.
type Generator interface {
	Generate(ctx context.Context, modelName, system, prompt string, opts model.GenerationOptions) (string, error)
}

// Archive receives run lifecycle records for durable storage. Archive
// failures are logged and never fail a step — the snapshot sink, not the
// archive, is the surface the run's observability contract depends on.
type Archive interface {
	StartRun(ctx context.Context, run model.Run) error
	RecordExecution(ctx context.Context, runID uuid.UUID, iteration int, exec model.Execution) error
	FinishRun(ctx context.Context, run model.Run) error
}

// RunnerConfig carries the driver's collaborators. States and Prompts
// default to discarding sinks; Archive may be nil when runs are not
// persisted.
type RunnerConfig struct {
	Model   string
	Options model.GenerationOptions
	States  snapshot.Sink
	Prompts snapshot.Sink
	Archive Archive
}

// Runner drives one run of the agent loop over a State: render, generate,
// parse, dispatch, persist, repeat until a terminal state.
type Runner struct {
	state     *State
	generator Generator
	runID     uuid.UUID
	modelName string
	options   model.GenerationOptions
	states    snapshot.Sink
	prompts   snapshot.Sink
	archive   Archive
	logger    *slog.Logger

	// history entries already handed to the archive
	archived int

	stepsTotal       metric.Int64Counter
	invocationsTotal metric.Int64Counter
	generateDuration metric.Float64Histogram
}

// NewRunner builds a driver for one run.
func NewRunner(state *State, generator Generator, cfg RunnerConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.States == nil {
		cfg.States = snapshot.Discard{}
	}
	if cfg.Prompts == nil {
		cfg.Prompts = snapshot.Discard{}
	}
	if cfg.Options == (model.GenerationOptions{}) {
		cfg.Options = model.DefaultGenerationOptions()
	}

	meter := telemetry.Meter("jikko/agent")
	steps, _ := meter.Int64Counter("jikko.agent.steps",
		metric.WithDescription("Generation steps driven"),
	)
	invocations, _ := meter.Int64Counter("jikko.agent.invocations",
		metric.WithDescription("Invocations dispatched to the run state"),
	)
	genDur, _ := meter.Float64Histogram("jikko.agent.generate.duration",
		metric.WithDescription("Time spent waiting on the generation service (ms)"),
		metric.WithUnit("ms"),
	)

	return &Runner{
		state:            state,
		generator:        generator,
		runID:            uuid.New(),
		modelName:        cfg.Model,
		options:          cfg.Options,
		states:           cfg.States,
		prompts:          cfg.Prompts,
		archive:          cfg.Archive,
		logger:           logger,
		stepsTotal:       steps,
		invocationsTotal: invocations,
		generateDuration: genDur,
	}
}

// RunID identifies this run in the archive.
func (r *Runner) RunID() uuid.UUID { return r.runID }

// State returns the run state the driver operates on.
func (r *Runner) State() *State { return r.state }

// Step performs one iteration: render prompts, persist the observability
// dumps, call the generation service, parse the response, and dispatch each
// parsed invocation with duplicate suppression. A snapshot write failure is
// fatal to the step — losing observability mid-run is worse than stopping.
func (r *Runner) Step(ctx context.Context) error {
	ctx = ctxutil.WithRunID(ctx, r.runID)
	ctx = ctxutil.WithStep(ctx, r.state.Iteration())
	ctx, span := tracer.Start(ctx, "agent.step",
		trace.WithAttributes(attribute.Int("jikko.iteration", r.state.Iteration())))
	defer span.End()

	r.stepsTotal.Add(ctx, 1)

	// 1. Render both prompts and persist state before touching the model.
	system, err := r.state.RenderSystemPrompt()
	if err != nil {
		return err
	}
	prompt, err := r.state.RenderUserPrompt()
	if err != nil {
		return err
	}
	if err := r.states.Write(r.state.RenderSnapshot()); err != nil {
		return fmt.Errorf("agent: persist state snapshot: %w", err)
	}
	if err := r.prompts.Write(system + "\n\n" + prompt + "\n"); err != nil {
		return fmt.Errorf("agent: persist prompt dump: %w", err)
	}

	// 2. Single-shot generation call.
	start := time.Now()
	text, err := r.generator.Generate(ctx, r.modelName, system, prompt, r.options)
	r.generateDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		return fmt.Errorf("agent: generate: %w", err)
	}

	// 3. Parse and dispatch. A verbatim repeat of the previously executed
	// invocation means the model is stalled, not re-issuing the command,
	// so exact repeats are skipped without re-execution or re-logging.
	var prev string
	for _, inv := range parse.Parse(text) {
		if prev != "" && prev == inv.Canonical() {
			r.logger.Debug("agent: skipping repeated invocation", "action", inv.Action)
			continue
		}
		prev = inv.Canonical()

		r.invocationsTotal.Add(ctx, 1)
		if err := r.state.Execute(ctx, inv); err != nil {
			r.logger.Error("agent: execute failed", "action", inv.Action, "error", err)
		}
		r.archiveNewExecutions(ctx)

		if err := r.states.Write(r.state.RenderSnapshot()); err != nil {
			return fmt.Errorf("agent: persist state snapshot: %w", err)
		}
		if r.state.IsComplete() {
			break
		}
	}
	return nil
}

// Run drives the loop to a terminal state: completion, impossibility,
// budget exhaustion, or a fatal step error. On budget exhaustion the
// returned error matches ErrBudgetExhausted so callers can distinguish
// "ran out of steps" from "task declared complete or impossible".
// A Runner is good for exactly one run.
func (r *Runner) Run(ctx context.Context) (model.Run, error) {
	ctx = ctxutil.WithRunID(ctx, r.runID)
	run := model.Run{
		ID:        r.runID,
		TaskName:  r.state.TaskName(),
		Model:     r.modelName,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if r.archive != nil {
		if err := r.archive.StartRun(ctx, run); err != nil {
			r.logger.Warn("agent: archive run start failed", "error", err)
		}
	}

	var runErr error
	status := model.RunStatusFailed
	for {
		if err := r.Step(ctx); err != nil {
			runErr = err
			break
		}
		if r.state.IsComplete() {
			if r.state.Impossible() {
				status = model.RunStatusImpossible
			} else {
				status = model.RunStatusCompleted
			}
			break
		}
		if err := r.state.AdvanceIteration(); err != nil {
			if errors.Is(err, ErrBudgetExhausted) {
				status = model.RunStatusExhausted
			}
			runErr = err
			break
		}
	}

	finished := time.Now().UTC()
	run.Status = status
	run.FinishedAt = &finished
	run.Reason = r.state.Reason()
	run.Iterations = r.state.Iteration()
	if root := integrity.ExecutionsRoot(r.state.History().Executions()); root != "" {
		run.RootHash = &root
	}

	if r.archive != nil {
		if err := r.archive.FinishRun(ctx, run); err != nil {
			r.logger.Warn("agent: archive run finish failed", "error", err)
		}
	}
	return run, runErr
}

// archiveNewExecutions forwards history records the archive has not seen
// yet. Actions may append their own records mid-execution, so the driver
// archives by history offset rather than assuming one record per dispatch.
func (r *Runner) archiveNewExecutions(ctx context.Context) {
	if r.archive == nil {
		return
	}
	for _, exec := range r.state.History().Since(r.archived) {
		if err := r.archive.RecordExecution(ctx, r.runID, r.state.Iteration(), exec); err != nil {
			r.logger.Warn("agent: archive execution failed", "error", err)
		}
		r.archived++
	}
}
