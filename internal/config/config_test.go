package config

import (
	"strings"
	"testing"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	// TEST_INT_MISSING is not set.
	v, err := envInt("TEST_INT_MISSING", 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-integer value, got nil")
	}
	if got := err.Error(); got != `TEST_INT_BAD="abc" is not a valid integer` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvFloatValid(t *testing.T) {
	t.Setenv("TEST_FLOAT", "1.3")
	v, err := envFloat("TEST_FLOAT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 1.3 {
		t.Fatalf("expected 1.3, got %f", v)
	}
}

func TestEnvBoolValid(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	v, err := envBool("TEST_BOOL", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v {
		t.Fatal("expected true")
	}
}

func TestEnvBoolInvalid(t *testing.T) {
	t.Setenv("TEST_BOOL_BAD", "maybe")
	_, err := envBool("TEST_BOOL_BAD", false)
	if err == nil {
		t.Fatal("expected error for non-boolean value, got nil")
	}
	if got := err.Error(); got != `TEST_BOOL_BAD="maybe" is not a valid boolean` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvDurationValid(t *testing.T) {
	t.Setenv("TEST_DUR", "5s")
	v, err := envDuration("TEST_DUR", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Seconds() != 5 {
		t.Fatalf("expected 5s, got %s", v)
	}
}

func TestEnvDurationInvalid(t *testing.T) {
	t.Setenv("TEST_DUR_BAD", "five-seconds")
	_, err := envDuration("TEST_DUR_BAD", 0)
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
	if got := err.Error(); got != `TEST_DUR_BAD="five-seconds" is not a valid duration` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestLoadFailsOnInvalidMaxIterations(t *testing.T) {
	t.Setenv("JIKKO_MAX_ITERATIONS", "abc")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with invalid JIKKO_MAX_ITERATIONS")
	}
	// Error should mention the variable name and value.
	if got := err.Error(); !strings.Contains(got, "JIKKO_MAX_ITERATIONS") || !strings.Contains(got, "abc") {
		t.Fatalf("error should mention JIKKO_MAX_ITERATIONS and value 'abc', got: %s", got)
	}
}

func TestLoadFailsOnMultipleInvalid(t *testing.T) {
	t.Setenv("JIKKO_MAX_ITERATIONS", "abc")
	t.Setenv("JIKKO_TEMPERATURE", "hot")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with multiple invalid vars")
	}
	got := err.Error()
	if !strings.Contains(got, "JIKKO_MAX_ITERATIONS") {
		t.Fatalf("error should mention JIKKO_MAX_ITERATIONS, got: %s", got)
	}
	if !strings.Contains(got, "JIKKO_TEMPERATURE") {
		t.Fatalf("error should mention JIKKO_TEMPERATURE, got: %s", got)
	}
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	// With no env vars set, Load should succeed using all defaults.
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed with defaults, got: %v", err)
	}
	if cfg.Model != "llama3.2" {
		t.Fatalf("expected default model llama3.2, got %s", cfg.Model)
	}
	if cfg.ContextWindow != 10000 {
		t.Fatalf("expected default context window 10000, got %d", cfg.ContextWindow)
	}
}

func TestValidateRejectsUnknownKnowledgeStore(t *testing.T) {
	t.Setenv("JIKKO_KNOWLEDGE", "graph")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with unknown knowledge store")
	}
}

func TestValidateQdrantRequiresURL(t *testing.T) {
	t.Setenv("JIKKO_KNOWLEDGE", "qdrant")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail when qdrant is selected without QDRANT_URL")
	}
}

func TestValidateRejectsBothArchives(t *testing.T) {
	t.Setenv("JIKKO_DATABASE_URL", "postgres://localhost/jikko")
	t.Setenv("JIKKO_SQLITE_PATH", "/tmp/jikko.db")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail when both archive backends are configured")
	}
}
