// Package generate provides the text generation client the agent loop
// drives. Generation is a single-shot request/response call, never a
// stream: the loop blocks on one complete response before parsing it.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/jikko/internal/ctxutil"
	"github.com/ashita-ai/jikko/internal/model"
)

var tracer = otel.Tracer("jikko/generate")

// Ollama calls a local Ollama server's completion API. This is the
// default backend: generation stays on-premises and data never leaves the
// operator's network.
type Ollama struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllama creates a client for an Ollama server. An empty baseURL
// defaults to the local daemon.
func NewOllama(baseURL string) *Ollama {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &Ollama{
		baseURL: baseURL,
		httpClient: &http.Client{
			// Generation of a full agent step can be slow on local
			// hardware; this bounds a hung server, not a slow one.
			Timeout: 10 * time.Minute,
		},
	}
}

type ollamaGenerateRequest struct {
	Model   string                  `json:"model"`
	Prompt  string                  `json:"prompt"`
	System  string                  `json:"system,omitempty"`
	Stream  bool                    `json:"stream"`
	Options model.GenerationOptions `json:"options"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// Generate performs one completion call and returns the raw response text.
func (c *Ollama) Generate(ctx context.Context, modelName, system, prompt string, opts model.GenerationOptions) (string, error) {
	ctx, span := tracer.Start(ctx, "generate.ollama",
		trace.WithAttributes(
			attribute.String("jikko.model", modelName),
			attribute.String("jikko.run_id", ctxutil.RunIDFromContext(ctx).String()),
			attribute.Int("jikko.step", ctxutil.StepFromContext(ctx)),
		))
	defer span.End()

	text, err := c.generate(ctx, modelName, system, prompt, opts)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.Int("jikko.response_chars", len(text)))
	return text, nil
}

func (c *Ollama) generate(ctx context.Context, modelName, system, prompt string, opts model.GenerationOptions) (string, error) {
	reqBody, err := json.Marshal(ollamaGenerateRequest{
		Model:   modelName,
		Prompt:  prompt,
		System:  system,
		Stream:  false,
		Options: opts,
	})
	if err != nil {
		return "", fmt.Errorf("generate: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("generate: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("generate: status %d: %s", resp.StatusCode, string(body))
	}

	var result ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("generate: decode response: %w", err)
	}

	return result.Response, nil
}
