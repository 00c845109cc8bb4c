// Package rag implements the knowledge stores behind the save-knowledge and
// recall actions: an in-process store with optional file persistence, a
// Qdrant-backed index, and a pgvector-backed index. All stores share one
// contract so a run can be wired to whichever backend the deployment has.
package rag

import (
	"context"
	"math"
)

// Chunk is one indexed piece of knowledge.
type Chunk struct {
	// ID is the chunk's stable identity; re-adding an existing ID is a
	// no-op so imports can run repeatedly.
	ID string `yaml:"id"`
	// Source names where the chunk came from: a file path for imported
	// documents, or "run" for knowledge saved mid-run.
	Source string `yaml:"source"`
	Text   string `yaml:"text"`
}

// Match is a retrieved chunk with its similarity score in [0, 1] for
// cosine-normalized backends; higher is closer.
type Match struct {
	Chunk Chunk
	Score float64
}

// Store indexes text chunks and retrieves the closest ones to a query.
type Store interface {
	// Add indexes a chunk and reports whether it was new.
	Add(ctx context.Context, chunk Chunk) (bool, error)
	// Retrieve returns up to topK chunks closest to the query, best first.
	Retrieve(ctx context.Context, query string, topK int) ([]Match, error)
}

// cosine returns the cosine similarity of two vectors, or 0 when either
// has zero magnitude.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
