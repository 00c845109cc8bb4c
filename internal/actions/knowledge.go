package actions

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/ashita-ai/jikko/internal/rag"
	"github.com/ashita-ai/jikko/internal/registry"
)

// recallTopK bounds how many chunks a single recall feeds back into the
// prompt; more would crowd out the rest of the state.
const recallTopK = 5

type saveKnowledge struct {
	store  rag.Store
	logger *slog.Logger
}

func (saveKnowledge) Name() string { return "save-knowledge" }

func (saveKnowledge) Description() string {
	return "To index a piece of information in the knowledge store so recall can find it later:"
}

func (saveKnowledge) ExamplePayload() *string {
	return strPtr("information you want to index for later retrieval")
}

func (saveKnowledge) ExampleAttributes() map[string]string { return nil }

func (a saveKnowledge) Run(ctx context.Context, _ registry.RunState, _ map[string]string, payload *string) (*string, error) {
	text, err := payloadOf(payload)
	if err != nil {
		return nil, err
	}

	// Identity is derived from the text so re-saving the same knowledge
	// dedups instead of accumulating copies.
	chunk := rag.Chunk{
		ID:     uuid.NewSHA1(uuid.NameSpaceOID, []byte(text)).String(),
		Source: "run",
		Text:   text,
	}
	added, err := a.store.Add(ctx, chunk)
	if err != nil {
		return nil, fmt.Errorf("actions: save knowledge: %w", err)
	}
	if !added {
		a.logger.Debug("actions: knowledge already indexed", "chunk", chunk.ID)
	}
	return nil, nil
}

type recall struct {
	store rag.Store
}

func (recall) Name() string { return "recall" }

func (recall) Description() string {
	return "To retrieve the stored knowledge most relevant to a question:"
}

func (recall) ExamplePayload() *string { return strPtr("what do you want to know?") }

func (recall) ExampleAttributes() map[string]string { return nil }

func (a recall) Run(ctx context.Context, _ registry.RunState, _ map[string]string, payload *string) (*string, error) {
	query, err := payloadOf(payload)
	if err != nil {
		return nil, err
	}

	matches, err := a.store.Retrieve(ctx, query, recallTopK)
	if err != nil {
		return nil, fmt.Errorf("actions: recall: %w", err)
	}
	if len(matches) == 0 {
		out := "no relevant knowledge found"
		return &out, nil
	}

	var b strings.Builder
	for _, m := range matches {
		fmt.Fprintf(&b, "[%.2f] (%s) %s\n", m.Score, m.Chunk.Source, m.Chunk.Text)
	}
	out := b.String()
	return &out, nil
}

func knowledgeNamespace(store rag.Store, logger *slog.Logger) registry.Namespace {
	return registry.Namespace{
		Name:        "knowledge",
		Description: "Use these actions to index information and retrieve it by similarity.",
		Actions: []registry.Action{
			saveKnowledge{store: store, logger: logger},
			recall{store: store},
		},
	}
}
