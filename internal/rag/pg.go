package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/ashita-ai/jikko/internal/embedding"
)

// PgStore implements Store on the knowledge_chunks table, using pgvector's
// cosine distance operator for retrieval. It shares the run archive's pool so
// a Postgres deployment needs no second datastore for knowledge.
type PgStore struct {
	pool     *pgxpool.Pool
	embedder embedding.Provider
	logger   *slog.Logger
}

// NewPgStore creates a Postgres-backed store on an existing pool. The pool
// must have pgvector types registered; storage.NewDB does that.
func NewPgStore(pool *pgxpool.Pool, embedder embedding.Provider, logger *slog.Logger) *PgStore {
	return &PgStore{pool: pool, embedder: embedder, logger: logger}
}

// Add embeds the chunk and inserts it, reporting false when the chunk ID is
// already present. The existence check runs before embedding so repeated
// imports don't pay for embeddings they won't store.
func (s *PgStore) Add(ctx context.Context, chunk Chunk) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM knowledge_chunks WHERE chunk_id = $1)`, chunk.ID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("rag: check chunk exists: %w", err)
	}
	if exists {
		return false, nil
	}

	vec, err := s.embedder.Embed(ctx, chunk.Text)
	if err != nil {
		return false, fmt.Errorf("rag: embed chunk: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO knowledge_chunks (chunk_id, source, content, embedding)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (chunk_id) DO NOTHING`,
		chunk.ID, chunk.Source, chunk.Text, pgvector.NewVector(vec),
	)
	if err != nil {
		return false, fmt.Errorf("rag: insert chunk: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Retrieve embeds the query and returns the topK nearest chunks by cosine
// distance, closest first. Similarity is reported as 1 - distance so all
// stores score on the same scale.
func (s *PgStore) Retrieve(ctx context.Context, query string, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("rag: embed query: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT chunk_id, source, content, 1 - (embedding <=> $1) AS similarity
		 FROM knowledge_chunks
		 ORDER BY embedding <=> $1
		 LIMIT $2`, pgvector.NewVector(queryVec), topK,
	)
	if err != nil {
		return nil, fmt.Errorf("rag: search chunks: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.Chunk.ID, &m.Chunk.Source, &m.Chunk.Text, &m.Score); err != nil {
			return nil, fmt.Errorf("rag: scan chunk: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rag: iterate chunks: %w", err)
	}
	return matches, nil
}
