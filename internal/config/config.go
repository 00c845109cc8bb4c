// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Generation settings.
	Model         string // Ollama model tag driving the loop.
	OllamaURL     string
	MaxIterations int // 0 means unbounded.
	ContextWindow int
	Temperature   float64
	RepeatPenalty float64
	TopK          int

	// Observability dump paths; empty means skip persistence.
	StatePath  string
	PromptPath string

	// Run archive settings. DatabaseURL selects Postgres, SQLitePath a
	// local file; both empty disables archiving.
	DatabaseURL       string
	SQLitePath        string
	ArchiveBatchSize  int
	ArchiveFlushEvery time.Duration

	// Knowledge store settings.
	KnowledgeStore   string // "naive", "qdrant", "pg", or "off"
	KnowledgePath    string // Naive index file; empty keeps the index in memory only.
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string

	// Embedding provider settings.
	EmbeddingProvider    string // "auto", "openai", "ollama", or "noop"
	OpenAIAPIKey         string
	EmbeddingModel       string
	EmbeddingDimensions  int // Vector dimensions; must match the chosen model's output.
	OllamaEmbeddingModel string

	// MCP bridge settings; empty URL and command disables the bridge.
	MCPURL        string
	MCPToken      string
	MCPCommand    string
	MCPPayloadKey string

	// Capability toggles.
	EnableShell bool

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible
// defaults. Malformed values are collected and reported together so one
// run surfaces every bad variable, not just the first.
func Load() (Config, error) {
	var errs []error
	collectInt := func(key string, def int) int {
		v, err := envInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	collectFloat := func(key string, def float64) float64 {
		v, err := envFloat(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	collectBool := func(key string, def bool) bool {
		v, err := envBool(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	collectDuration := func(key string, def time.Duration) time.Duration {
		v, err := envDuration(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := Config{
		Model:                envStr("JIKKO_MODEL", "llama3.2"),
		OllamaURL:            envStr("OLLAMA_URL", "http://localhost:11434"),
		MaxIterations:        collectInt("JIKKO_MAX_ITERATIONS", 0),
		ContextWindow:        collectInt("JIKKO_CONTEXT_WINDOW", 10000),
		Temperature:          collectFloat("JIKKO_TEMPERATURE", 0.9),
		RepeatPenalty:        collectFloat("JIKKO_REPEAT_PENALTY", 1.3),
		TopK:                 collectInt("JIKKO_TOP_K", 20),
		StatePath:            envStr("JIKKO_STATE_PATH", ""),
		PromptPath:           envStr("JIKKO_PROMPT_PATH", ""),
		DatabaseURL:          envStr("JIKKO_DATABASE_URL", ""),
		SQLitePath:           envStr("JIKKO_SQLITE_PATH", ""),
		ArchiveBatchSize:     collectInt("JIKKO_ARCHIVE_BATCH_SIZE", 64),
		ArchiveFlushEvery:    collectDuration("JIKKO_ARCHIVE_FLUSH_INTERVAL", 2*time.Second),
		KnowledgeStore:       envStr("JIKKO_KNOWLEDGE", "naive"),
		KnowledgePath:        envStr("JIKKO_KNOWLEDGE_PATH", ""),
		QdrantURL:            envStr("QDRANT_URL", ""),
		QdrantAPIKey:         envStr("QDRANT_API_KEY", ""),
		QdrantCollection:     envStr("JIKKO_QDRANT_COLLECTION", "jikko_knowledge"),
		EmbeddingProvider:    envStr("JIKKO_EMBEDDING_PROVIDER", "auto"),
		OpenAIAPIKey:         envStr("OPENAI_API_KEY", ""),
		EmbeddingModel:       envStr("JIKKO_EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDimensions:  collectInt("JIKKO_EMBEDDING_DIMENSIONS", 1024),
		OllamaEmbeddingModel: envStr("JIKKO_OLLAMA_EMBEDDING_MODEL", "mxbai-embed-large"),
		MCPURL:               envStr("JIKKO_MCP_URL", ""),
		MCPToken:             envStr("JIKKO_MCP_TOKEN", ""),
		MCPCommand:           envStr("JIKKO_MCP_COMMAND", ""),
		MCPPayloadKey:        envStr("JIKKO_MCP_PAYLOAD_KEY", "input"),
		EnableShell:          collectBool("JIKKO_ENABLE_SHELL", false),
		OTELEndpoint:         envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:         collectBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:          envStr("OTEL_SERVICE_NAME", "jikko"),
		LogLevel:             envStr("JIKKO_LOG_LEVEL", "info"),
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("config: JIKKO_MODEL is required")
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("config: JIKKO_MAX_ITERATIONS must not be negative")
	}
	if c.ContextWindow <= 0 {
		return fmt.Errorf("config: JIKKO_CONTEXT_WINDOW must be positive")
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("config: JIKKO_EMBEDDING_DIMENSIONS must be positive")
	}
	if c.ArchiveBatchSize <= 0 {
		return fmt.Errorf("config: JIKKO_ARCHIVE_BATCH_SIZE must be positive")
	}
	switch c.KnowledgeStore {
	case "naive", "off":
	case "qdrant":
		if c.QdrantURL == "" {
			return fmt.Errorf("config: JIKKO_KNOWLEDGE=qdrant requires QDRANT_URL")
		}
	case "pg":
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: JIKKO_KNOWLEDGE=pg requires JIKKO_DATABASE_URL")
		}
	default:
		return fmt.Errorf("config: unknown JIKKO_KNOWLEDGE value %q", c.KnowledgeStore)
	}
	if c.DatabaseURL != "" && c.SQLitePath != "" {
		return fmt.Errorf("config: JIKKO_DATABASE_URL and JIKKO_SQLITE_PATH are mutually exclusive")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
