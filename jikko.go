// Package jikko is the public API for embedding the jikko agent engine.
//
// Callers import this package to run autonomous tasks against a local
// model without forking the engine:
//
//	agent, err := jikko.New(
//	    jikko.WithTaskFile("research.yaml"),
//	    jikko.WithLogger(logger),
//	    jikko.WithActionGroup(myTools),
//	)
//	if err != nil { ... }
//	defer agent.Shutdown(context.Background())
//	result, err := agent.Run(ctx)
//
// The import graph enforces a strict no-cycle rule: jikko (root) imports
// internal/*, but internal/* never imports jikko (root). Public types
// (Execution, RunResult, etc.) are standalone structs with no internal
// imports; conversion helpers (toPublicExecution, toPublicRunResult)
// live here because this is the only file that sees both sides of the
// boundary.
package jikko

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/ashita-ai/jikko/internal/actions"
	"github.com/ashita-ai/jikko/internal/agent"
	"github.com/ashita-ai/jikko/internal/config"
	"github.com/ashita-ai/jikko/internal/embedding"
	"github.com/ashita-ai/jikko/internal/generate"
	"github.com/ashita-ai/jikko/internal/mcptools"
	"github.com/ashita-ai/jikko/internal/model"
	"github.com/ashita-ai/jikko/internal/rag"
	"github.com/ashita-ai/jikko/internal/registry"
	"github.com/ashita-ai/jikko/internal/snapshot"
	"github.com/ashita-ai/jikko/internal/storage"
	"github.com/ashita-ai/jikko/internal/task"
	"github.com/ashita-ai/jikko/internal/telemetry"
	"github.com/ashita-ai/jikko/migrations"
)

// ErrBudgetExhausted reports that the run ended because the configured
// iteration budget was reached before the task completed. Test with
// errors.Is on the error returned by Run or Step.
var ErrBudgetExhausted = agent.ErrBudgetExhausted

// Agent is one configured run of the engine. Construct with New(), drive
// with Run() or Step(), release resources with Shutdown(). An Agent is
// good for exactly one run.
type Agent struct {
	cfg          config.Config
	state        *agent.State
	runner       *agent.Runner
	recorder     *storage.Recorder
	db           *storage.DB
	sqlite       *storage.SQLiteStore
	knowledge    rag.Store
	bridge       *mcptools.Bridge
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises an agent run. It loads configuration, connects the
// archive and knowledge backends, bridges MCP servers, assembles the
// capability registry, and returns a ready-to-run Agent. It does NOT call
// the model — drive the loop with Run() or Step().
func New(opts ...Option) (*Agent, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// Load configuration (env vars), then apply option overrides.
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.model != "" {
		cfg.Model = o.model
	}
	if o.maxIterations != nil {
		cfg.MaxIterations = *o.maxIterations
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
		cfg.SQLitePath = ""
	}
	if o.sqlitePath != "" {
		cfg.SQLitePath = o.sqlitePath
		cfg.DatabaseURL = ""
	}
	if o.statePath != "" {
		cfg.StatePath = o.statePath
	}
	if o.promptPath != "" {
		cfg.PromptPath = o.promptPath
	}
	if o.enableShell != nil {
		cfg.EnableShell = *o.enableShell
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	runTask, err := resolveTask(o)
	if err != nil {
		return nil, err
	}

	logger.Info("jikko starting", "version", version, "task", runTask.Name(), "model", cfg.Model)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	a := &Agent{
		cfg:          cfg,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}
	fail := func(err error) (*Agent, error) {
		a.close()
		_ = otelShutdown(context.Background())
		return nil, err
	}

	// Run archive: Postgres, SQLite, or none.
	if err := a.connectArchive(o); err != nil {
		return fail(err)
	}

	// Knowledge store behind the save-knowledge and recall actions.
	if err := a.connectKnowledge(o); err != nil {
		return fail(err)
	}

	// Capability registry: built-ins, then bridged MCP tools.
	available := actions.Builtin(actions.Config{
		Logger:      logger,
		Knowledge:   a.knowledge,
		EnableShell: cfg.EnableShell,
	})
	if cfg.MCPURL != "" || cfg.MCPCommand != "" {
		bridged, err := a.connectMCP(context.Background())
		if err != nil {
			return fail(err)
		}
		available = append(available, bridged)
	}

	state, err := agent.NewState(runTask, available, cfg.MaxIterations, logger)
	if err != nil {
		return fail(err)
	}
	a.state = state

	genOptions := model.GenerationOptions{
		ContextWindow: cfg.ContextWindow,
		Temperature:   cfg.Temperature,
		RepeatPenalty: cfg.RepeatPenalty,
		TopK:          cfg.TopK,
	}
	if o.genOptions != nil {
		genOptions = model.GenerationOptions(*o.genOptions)
	}

	var gen agent.Generator = generate.NewOllama(cfg.OllamaURL)
	if o.generator != nil {
		gen = &generatorAdapter{inner: o.generator}
	}

	a.runner = agent.NewRunner(state, gen, agent.RunnerConfig{
		Model:   cfg.Model,
		Options: genOptions,
		States:  resolveSink(o.stateSink, cfg.StatePath),
		Prompts: resolveSink(o.promptSink, cfg.PromptPath),
		Archive: a.buildArchive(o.hooks),
	}, logger)

	return a, nil
}

// resolveTask builds the internal task from the WithTask / WithTaskFile /
// WithPrompt options. Ad-hoc action groups ride along as task functions so
// they bypass the task's namespace allowlist.
func resolveTask(o resolvedOptions) (agent.Task, error) {
	if o.task != nil && o.taskFile != "" {
		return nil, errors.New("jikko: WithTask and WithTaskFile are mutually exclusive")
	}

	var inner agent.Task
	switch {
	case o.taskFile != "":
		ft, err := task.Load(o.taskFile)
		if err != nil {
			return nil, err
		}
		if o.prompt != "" {
			ft.SetPrompt(o.prompt)
		}
		inner = ft
	case o.task != nil:
		// A task that already speaks the engine surface (the YAML file
		// task does) keeps its own functions; plain public tasks have
		// none.
		if full, ok := o.task.(agent.Task); ok {
			inner = full
		} else {
			inner = &taskAdapter{inner: o.task}
		}
	default:
		return nil, errors.New("jikko: a task is required: use WithTask or WithTaskFile")
	}

	if len(o.groups) == 0 {
		return inner, nil
	}
	extra := make([]registry.Namespace, len(o.groups))
	for i, g := range o.groups {
		extra[i] = toNamespace(g)
	}
	return &taskWithGroups{Task: inner, extra: extra}, nil
}

func resolveSink(custom SnapshotSink, path string) snapshot.Sink {
	if custom != nil {
		return sinkAdapter{inner: custom}
	}
	if path != "" {
		return snapshot.NewFileSink(path)
	}
	return nil
}

func (a *Agent) connectArchive(o resolvedOptions) error {
	if o.withoutArchive {
		return nil
	}

	var store storage.Store
	switch {
	case a.cfg.DatabaseURL != "":
		db, err := storage.New(context.Background(), a.cfg.DatabaseURL, a.logger)
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
			db.Close()
			return fmt.Errorf("migrations: %w", err)
		}
		db.RegisterPoolMetrics()
		a.db = db
		store = db
	case a.cfg.SQLitePath != "":
		sqlite, err := storage.NewSQLiteStore(context.Background(), a.cfg.SQLitePath, a.logger)
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		a.sqlite = sqlite
		store = sqlite
	default:
		return nil
	}

	a.recorder = storage.NewRecorder(store, a.logger, a.cfg.ArchiveBatchSize, a.cfg.ArchiveFlushEvery)
	a.recorder.Start(context.Background())
	return nil
}

func (a *Agent) connectKnowledge(o resolvedOptions) error {
	if o.knowledge != nil {
		a.knowledge = &knowledgeAdapter{inner: o.knowledge}
		return nil
	}

	switch a.cfg.KnowledgeStore {
	case "off":
		return nil
	case "naive":
		store, err := rag.NewNaiveStore(newEmbeddingProvider(a.cfg, a.logger), a.cfg.KnowledgePath, a.logger)
		if err != nil {
			return err
		}
		a.knowledge = store
	case "qdrant":
		if a.cfg.QdrantURL == "" {
			return errors.New("jikko: JIKKO_KNOWLEDGE=qdrant requires QDRANT_URL")
		}
		store, err := rag.NewQdrantStore(rag.QdrantConfig{
			URL:        a.cfg.QdrantURL,
			APIKey:     a.cfg.QdrantAPIKey,
			Collection: a.cfg.QdrantCollection,
			Dims:       uint64(a.cfg.EmbeddingDimensions),
		}, newEmbeddingProvider(a.cfg, a.logger), a.logger)
		if err != nil {
			return err
		}
		if err := store.EnsureCollection(context.Background()); err != nil {
			_ = store.Close()
			return err
		}
		a.knowledge = store
	case "pg":
		if a.db == nil {
			return errors.New("jikko: JIKKO_KNOWLEDGE=pg requires JIKKO_DATABASE_URL")
		}
		a.knowledge = rag.NewPgStore(a.db.Pool(), newEmbeddingProvider(a.cfg, a.logger), a.logger)
	}
	return nil
}

func (a *Agent) connectMCP(ctx context.Context) (registry.Namespace, error) {
	bridge, err := mcptools.Connect(ctx, mcptools.Config{
		URL:         a.cfg.MCPURL,
		BearerToken: a.cfg.MCPToken,
		Command:     a.cfg.MCPCommand,
		PayloadKey:  a.cfg.MCPPayloadKey,
		Logger:      a.logger,
	})
	if err != nil {
		return registry.Namespace{}, fmt.Errorf("mcp: %w", err)
	}
	ns, err := bridge.Namespace(ctx)
	if err != nil {
		_ = bridge.Close()
		return registry.Namespace{}, fmt.Errorf("mcp: %w", err)
	}
	a.bridge = bridge
	return ns, nil
}

// buildArchive fans run records out to the recorder and every registered
// hook. Nil when neither exists so the runner skips archiving entirely.
func (a *Agent) buildArchive(hooks []RunHook) agent.Archive {
	var archives []agent.Archive
	if a.recorder != nil {
		archives = append(archives, a.recorder)
	}
	for _, hook := range hooks {
		archives = append(archives, &hookArchive{hook: hook})
	}
	switch len(archives) {
	case 0:
		return nil
	case 1:
		return archives[0]
	default:
		return multiArchive(archives)
	}
}

// RunID identifies this run in the archive.
func (a *Agent) RunID() uuid.UUID { return a.runner.RunID() }

// Step performs one iteration — render, generate, parse, dispatch — and
// advances the iteration counter. Returns ErrBudgetExhausted when the
// budget is spent; check IsComplete after each call. Use either Step or
// Run to drive a run, never both.
func (a *Agent) Step(ctx context.Context) error {
	if err := a.runner.Step(ctx); err != nil {
		return err
	}
	if a.state.IsComplete() {
		return nil
	}
	return a.state.AdvanceIteration()
}

// Run drives the loop to a terminal state and returns the run record. On
// budget exhaustion the returned error matches ErrBudgetExhausted and the
// result carries RunStatusExhausted; on completion or impossibility the
// error is nil.
func (a *Agent) Run(ctx context.Context) (RunResult, error) {
	run, err := a.runner.Run(ctx)
	return toPublicRunResult(run), err
}

// IsComplete reports whether the run was marked complete, either as
// accomplished or as impossible.
func (a *Agent) IsComplete() bool { return a.state.IsComplete() }

// Impossible reports whether completion was recorded as "task impossible".
func (a *Agent) Impossible() bool { return a.state.Impossible() }

// Reason returns the completion reason, or nil when none was given.
func (a *Agent) Reason() *string { return a.state.Reason() }

// History returns the most recent max execution records in order; max <= 0
// returns all of them.
func (a *Agent) History(max int) []Execution {
	execs := a.state.History().Executions()
	if max > 0 && len(execs) > max {
		execs = execs[len(execs)-max:]
	}
	out := make([]Execution, len(execs))
	for i, exec := range execs {
		out[i] = toPublicExecution(exec)
	}
	return out
}

// Transcript returns the history as a bounded chat-style transcript; max
// <= 0 returns all of it.
func (a *Agent) Transcript(max int) []ChatMessage {
	msgs := a.state.ChatTranscript(max)
	out := make([]ChatMessage, len(msgs))
	for i, msg := range msgs {
		out[i] = ChatMessage{Role: string(msg.Role), Content: msg.Content}
	}
	return out
}

// ImportKnowledge indexes every *.txt file matching pattern into the
// knowledge store, splitting each into chunks of at most chunkSize runes
// (0 uses the default). Only the in-process store supports bulk import;
// populate Qdrant or Postgres out of band.
func (a *Agent) ImportKnowledge(ctx context.Context, pattern string, chunkSize int) (int, error) {
	naive, ok := a.knowledge.(*rag.NaiveStore)
	if !ok {
		return 0, errors.New("jikko: knowledge import requires the naive store")
	}
	return naive.ImportGlob(ctx, pattern, chunkSize)
}

// Shutdown drains the archive recorder and releases every connection the
// agent holds. Call it once, after the run ends; the passed context bounds
// the drain.
func (a *Agent) Shutdown(ctx context.Context) error {
	if a.recorder != nil {
		a.recorder.Drain(ctx)
	}
	a.close()
	if a.otelShutdown != nil {
		shutdown := a.otelShutdown
		a.otelShutdown = nil
		if err := shutdown(ctx); err != nil {
			return fmt.Errorf("jikko: telemetry shutdown: %w", err)
		}
	}
	return nil
}

// close releases connections without draining; Shutdown is the public
// surface.
func (a *Agent) close() {
	if a.bridge != nil {
		if err := a.bridge.Close(); err != nil {
			a.logger.Warn("jikko: mcp close failed", "error", err)
		}
		a.bridge = nil
	}
	if closer, ok := a.knowledge.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.logger.Warn("jikko: knowledge close failed", "error", err)
		}
	}
	a.knowledge = nil
	if a.sqlite != nil {
		if err := a.sqlite.Close(); err != nil {
			a.logger.Warn("jikko: sqlite close failed", "error", err)
		}
		a.sqlite = nil
	}
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
}

// newEmbeddingProvider picks the embedding backend: explicit configuration
// wins, auto prefers OpenAI when a key is present, then a reachable local
// Ollama, then the hash-based fallback.
func newEmbeddingProvider(cfg config.Config, logger *slog.Logger) embedding.Provider {
	switch cfg.EmbeddingProvider {
	case "openai":
		return embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel)
	case "ollama":
		return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaEmbeddingModel, cfg.EmbeddingDimensions)
	case "noop":
		return embedding.NewNoopProvider(cfg.EmbeddingDimensions)
	}

	if cfg.OpenAIAPIKey != "" {
		logger.Info("embedding provider: openai", "model", cfg.EmbeddingModel)
		return embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel)
	}
	if ollamaReachable(cfg.OllamaURL) {
		logger.Info("embedding provider: ollama", "model", cfg.OllamaEmbeddingModel)
		return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaEmbeddingModel, cfg.EmbeddingDimensions)
	}
	logger.Warn("embedding provider: noop fallback, retrieval quality will be poor")
	return embedding.NewNoopProvider(cfg.EmbeddingDimensions)
}

func ollamaReachable(baseURL string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/api/tags")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// taskAdapter bridges a public Task to the engine's task surface.
type taskAdapter struct {
	inner Task
}

func (t *taskAdapter) Name() string { return t.inner.Name() }

func (t *taskAdapter) Prompt() (string, error) { return t.inner.Prompt() }

func (t *taskAdapter) SystemPrompt() (string, error) { return t.inner.SystemPrompt() }

func (t *taskAdapter) Guidance() ([]string, error) { return t.inner.Guidance() }

func (t *taskAdapter) Namespaces() []string { return t.inner.Namespaces() }

func (t *taskAdapter) Functions() []registry.Namespace { return nil }

// taskWithGroups appends option-registered action groups to whatever
// functions the wrapped task already contributes.
type taskWithGroups struct {
	agent.Task
	extra []registry.Namespace
}

func (t *taskWithGroups) Functions() []registry.Namespace {
	fns := t.Task.Functions()
	out := make([]registry.Namespace, 0, len(fns)+len(t.extra))
	out = append(out, fns...)
	out = append(out, t.extra...)
	return out
}

func toNamespace(g ActionGroup) registry.Namespace {
	acts := make([]registry.Action, len(g.Actions))
	for i, act := range g.Actions {
		acts[i] = &actionAdapter{inner: act}
	}
	return registry.Namespace{
		Name:        g.Name,
		Description: g.Description,
		Actions:     acts,
	}
}

// actionAdapter bridges a public Action into the registry, narrowing the
// run state to the public Handle.
type actionAdapter struct {
	inner Action
}

func (a *actionAdapter) Name() string { return a.inner.Name() }

func (a *actionAdapter) Description() string { return a.inner.Description() }

func (a *actionAdapter) ExamplePayload() *string { return a.inner.ExamplePayload() }

func (a *actionAdapter) ExampleAttributes() map[string]string { return a.inner.ExampleAttributes() }

func (a *actionAdapter) Run(ctx context.Context, state registry.RunState, attrs map[string]string, payload *string) (*string, error) {
	return a.inner.Run(ctx, handle{state: state}, attrs, payload)
}

type handle struct {
	state registry.RunState
}

func (h handle) Complete(reason string) { h.state.MarkComplete(false, &reason) }

func (h handle) Impossible(reason string) { h.state.MarkComplete(true, &reason) }

func (h handle) AppendHistory(exec Execution) {
	inv := model.NewInvocation(exec.Invocation.Action, exec.Invocation.Attributes, exec.Invocation.Payload)
	h.state.AppendHistory(model.NewExecution(inv, exec.Result, exec.Error))
}

func (h handle) IsComplete() bool { return h.state.IsComplete() }

// generatorAdapter bridges a public Generator to the driver.
type generatorAdapter struct {
	inner Generator
}

func (g *generatorAdapter) Generate(ctx context.Context, modelName, system, prompt string, opts model.GenerationOptions) (string, error) {
	return g.inner.Generate(ctx, modelName, system, prompt, GenerationOptions(opts))
}

// sinkAdapter bridges a public SnapshotSink to the driver.
type sinkAdapter struct {
	inner SnapshotSink
}

func (s sinkAdapter) Write(content string) error { return s.inner.Write(content) }

// knowledgeAdapter bridges a public KnowledgeStore to the recall actions.
type knowledgeAdapter struct {
	inner KnowledgeStore
}

func (k *knowledgeAdapter) Add(ctx context.Context, chunk rag.Chunk) (bool, error) {
	return k.inner.Add(ctx, chunk.ID, chunk.Source, chunk.Text)
}

func (k *knowledgeAdapter) Retrieve(ctx context.Context, query string, topK int) ([]rag.Match, error) {
	matches, err := k.inner.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	out := make([]rag.Match, len(matches))
	for i, m := range matches {
		out[i] = rag.Match{
			Chunk: rag.Chunk{ID: m.ID, Source: m.Source, Text: m.Text},
			Score: m.Score,
		}
	}
	return out, nil
}

// hookArchive feeds run lifecycle records to a public RunHook.
type hookArchive struct {
	hook RunHook
}

func (h *hookArchive) StartRun(context.Context, model.Run) error { return nil }

func (h *hookArchive) RecordExecution(ctx context.Context, runID uuid.UUID, iteration int, exec model.Execution) error {
	return h.hook.OnExecution(ctx, runID.String(), iteration, toPublicExecution(exec))
}

func (h *hookArchive) FinishRun(ctx context.Context, run model.Run) error {
	return h.hook.OnFinish(ctx, toPublicRunResult(run))
}

// multiArchive fans every record out to all archives; the first error
// wins but every archive still sees the record.
type multiArchive []agent.Archive

func (m multiArchive) StartRun(ctx context.Context, run model.Run) error {
	var first error
	for _, a := range m {
		if err := a.StartRun(ctx, run); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m multiArchive) RecordExecution(ctx context.Context, runID uuid.UUID, iteration int, exec model.Execution) error {
	var first error
	for _, a := range m {
		if err := a.RecordExecution(ctx, runID, iteration, exec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m multiArchive) FinishRun(ctx context.Context, run model.Run) error {
	var first error
	for _, a := range m {
		if err := a.FinishRun(ctx, run); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func toPublicExecution(e model.Execution) Execution {
	return Execution{
		Invocation: Invocation{
			Action:     e.Invocation.Action,
			Attributes: e.Invocation.Attributes,
			Payload:    e.Invocation.Payload,
		},
		Result: e.Result,
		Error:  e.Error,
		At:     e.At,
	}
}

func toPublicRunResult(r model.Run) RunResult {
	return RunResult{
		ID:         r.ID,
		TaskName:   r.TaskName,
		Model:      r.Model,
		Status:     RunStatus(r.Status),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Reason:     r.Reason,
		Iterations: r.Iterations,
		RootHash:   r.RootHash,
	}
}
