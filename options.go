package jikko

import "log/slog"

// Option configures an Agent.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	logger         *slog.Logger
	version        string
	task           Task
	taskFile       string
	prompt         string
	generator      Generator
	model          string
	maxIterations  *int
	genOptions     *GenerationOptions
	stateSink      SnapshotSink
	promptSink     SnapshotSink
	statePath      string
	promptPath     string
	hooks          []RunHook
	groups         []ActionGroup
	knowledge      KnowledgeStore
	databaseURL    string
	sqlitePath     string
	withoutArchive bool
	enableShell    *bool
}

// WithLogger sets the structured logger for the Agent.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in telemetry and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithTask sets the task to run. Mutually exclusive with WithTaskFile.
func WithTask(t Task) Option {
	return func(o *resolvedOptions) { o.task = t }
}

// WithTaskFile loads the task from a YAML file. Mutually exclusive with
// WithTask.
func WithTaskFile(path string) Option {
	return func(o *resolvedOptions) { o.taskFile = path }
}

// WithPrompt overrides the task's prompt. Required when the task file
// defines no prompt of its own.
func WithPrompt(prompt string) Option {
	return func(o *resolvedOptions) { o.prompt = prompt }
}

// WithGenerator replaces the built-in Ollama client as the generation
// service.
func WithGenerator(g Generator) Option {
	return func(o *resolvedOptions) { o.generator = g }
}

// WithModel overrides the model tag from config (JIKKO_MODEL env var).
func WithModel(model string) Option {
	return func(o *resolvedOptions) { o.model = model }
}

// WithMaxIterations overrides the iteration budget from config
// (JIKKO_MAX_ITERATIONS env var). Zero means unbounded.
func WithMaxIterations(n int) Option {
	return func(o *resolvedOptions) { o.maxIterations = &n }
}

// WithGenerationOptions overrides the sampling configuration from config.
func WithGenerationOptions(opts GenerationOptions) Option {
	return func(o *resolvedOptions) { o.genOptions = &opts }
}

// WithStateSink replaces the file-based state dump with a custom sink.
// Takes precedence over WithStatePath.
func WithStateSink(s SnapshotSink) Option {
	return func(o *resolvedOptions) { o.stateSink = s }
}

// WithPromptSink replaces the file-based prompt dump with a custom sink.
// Takes precedence over WithPromptPath.
func WithPromptSink(s SnapshotSink) Option {
	return func(o *resolvedOptions) { o.promptSink = s }
}

// WithStatePath overrides the state dump path from config (JIKKO_STATE_PATH
// env var).
func WithStatePath(path string) Option {
	return func(o *resolvedOptions) { o.statePath = path }
}

// WithPromptPath overrides the prompt dump path from config
// (JIKKO_PROMPT_PATH env var).
func WithPromptPath(path string) Option {
	return func(o *resolvedOptions) { o.promptPath = path }
}

// WithRunHook registers a run lifecycle hook. Multiple hooks may be
// registered; all receive every event.
func WithRunHook(hook RunHook) Option {
	return func(o *resolvedOptions) { o.hooks = append(o.hooks, hook) }
}

// WithActionGroup registers a group of custom actions. Multiple groups may
// be registered; they are exposed to the model after the built-in
// namespaces, in registration order.
func WithActionGroup(group ActionGroup) Option {
	return func(o *resolvedOptions) { o.groups = append(o.groups, group) }
}

// WithKnowledgeStore replaces the configured knowledge backend
// (JIKKO_KNOWLEDGE env var) with a custom implementation.
func WithKnowledgeStore(ks KnowledgeStore) Option {
	return func(o *resolvedOptions) { o.knowledge = ks }
}

// WithDatabaseURL overrides the Postgres archive connection string from
// config (JIKKO_DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithSQLitePath overrides the SQLite archive path from config
// (JIKKO_SQLITE_PATH env var).
func WithSQLitePath(path string) Option {
	return func(o *resolvedOptions) { o.sqlitePath = path }
}

// WithoutArchive disables the run archive even when a database is
// configured. Run hooks still fire.
func WithoutArchive() Option {
	return func(o *resolvedOptions) { o.withoutArchive = true }
}

// WithShell overrides the shell capability toggle from config
// (JIKKO_ENABLE_SHELL env var). A model with shell access can do anything
// the process can.
func WithShell(enabled bool) Option {
	return func(o *resolvedOptions) { o.enableShell = &enabled }
}
