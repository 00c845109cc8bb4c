package rag

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/ashita-ai/jikko/internal/embedding"
)

// NaiveStore keeps chunks and their embeddings in memory and scores every
// stored vector against the query. It is the zero-infrastructure backend:
// good up to a few thousand chunks, after which Qdrant or Postgres should
// take over.
type NaiveStore struct {
	embedder embedding.Provider
	dataPath string
	logger   *slog.Logger

	mu     sync.RWMutex
	chunks map[string]Chunk
	vecs   map[string][]float32
}

// naiveIndex is the on-disk shape of a persisted store.
type naiveIndex struct {
	Chunks     map[string]Chunk     `yaml:"chunks"`
	Embeddings map[string][]float32 `yaml:"embeddings"`
}

// NewNaiveStore creates an in-process store. When dataPath is non-empty the
// index is loaded from it if present and rewritten after every successful Add.
func NewNaiveStore(embedder embedding.Provider, dataPath string, logger *slog.Logger) (*NaiveStore, error) {
	s := &NaiveStore{
		embedder: embedder,
		dataPath: dataPath,
		logger:   logger,
		chunks:   make(map[string]Chunk),
		vecs:     make(map[string][]float32),
	}
	if dataPath != "" {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *NaiveStore) load() error {
	raw, err := os.ReadFile(s.dataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("rag: read index: %w", err)
	}

	var idx naiveIndex
	if err := yaml.Unmarshal(raw, &idx); err != nil {
		return fmt.Errorf("rag: decode index: %w", err)
	}
	if idx.Chunks != nil {
		s.chunks = idx.Chunks
	}
	if idx.Embeddings != nil {
		s.vecs = idx.Embeddings
	}

	s.logger.Debug("rag: loaded index", "path", s.dataPath, "chunks", len(s.chunks))
	return nil
}

// persist is called with the write lock held.
func (s *NaiveStore) persist() error {
	if s.dataPath == "" {
		return nil
	}

	raw, err := yaml.Marshal(naiveIndex{Chunks: s.chunks, Embeddings: s.vecs})
	if err != nil {
		return fmt.Errorf("rag: encode index: %w", err)
	}

	tmp := s.dataPath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("rag: write index: %w", err)
	}
	if err := os.Rename(tmp, s.dataPath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rag: replace index: %w", err)
	}
	return nil
}

// Add indexes the chunk unless its ID is already present.
func (s *NaiveStore) Add(ctx context.Context, chunk Chunk) (bool, error) {
	s.mu.RLock()
	_, exists := s.chunks[chunk.ID]
	s.mu.RUnlock()
	if exists {
		return false, nil
	}

	vec, err := s.embedder.Embed(ctx, chunk.Text)
	if err != nil {
		return false, fmt.Errorf("rag: embed chunk: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.chunks[chunk.ID]; exists {
		return false, nil
	}
	s.chunks[chunk.ID] = chunk
	s.vecs[chunk.ID] = vec
	if err := s.persist(); err != nil {
		delete(s.chunks, chunk.ID)
		delete(s.vecs, chunk.ID)
		return false, err
	}
	return true, nil
}

// Len reports how many chunks are indexed.
func (s *NaiveStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// ImportGlob indexes every *.txt file matching pattern, splitting each into
// chunkSize-rune pieces when chunkSize > 0. It returns the number of chunks
// that were new to the index.
func (s *NaiveStore) ImportGlob(ctx context.Context, pattern string, chunkSize int) (int, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return 0, fmt.Errorf("rag: bad import pattern %q: %w", pattern, err)
	}

	added := 0
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return added, fmt.Errorf("rag: read %s: %w", path, err)
		}

		text := strings.TrimSpace(string(raw))
		if text == "" {
			continue
		}

		for i, piece := range splitChunks(text, chunkSize) {
			ok, err := s.Add(ctx, Chunk{
				ID:     fmt.Sprintf("%s#%d", path, i),
				Source: path,
				Text:   piece,
			})
			if err != nil {
				return added, err
			}
			if ok {
				added++
			}
		}
	}

	s.logger.Info("rag: import finished", "pattern", pattern, "files", len(paths), "new_chunks", added)
	return added, nil
}

// splitChunks cuts text into pieces of at most size runes. A size of zero
// keeps the text whole.
func splitChunks(text string, size int) []string {
	if size <= 0 {
		return []string{text}
	}
	runes := []rune(text)
	pieces := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		pieces = append(pieces, string(runes[start:end]))
	}
	return pieces
}

// Retrieve embeds the query and scores it against every stored vector, in
// parallel across CPUs, returning the topK best matches.
func (s *NaiveStore) Retrieve(ctx context.Context, query string, topK int) ([]Match, error) {
	if topK <= 0 {
		return nil, nil
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("rag: embed query: %w", err)
	}

	s.mu.RLock()
	ids := make([]string, 0, len(s.vecs))
	for id := range s.vecs {
		ids = append(ids, id)
	}
	vecs := make([][]float32, len(ids))
	for i, id := range ids {
		vecs[i] = s.vecs[id]
	}
	s.mu.RUnlock()

	if len(ids) == 0 {
		return nil, nil
	}

	scores := make([]float64, len(ids))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range ids {
		g.Go(func() error {
			scores[i] = cosine(queryVec, vecs[i])
			return nil
		})
	}
	_ = g.Wait()

	order := make([]int, len(ids))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		if scores[order[a]] != scores[order[b]] {
			return scores[order[a]] > scores[order[b]]
		}
		return ids[order[a]] < ids[order[b]]
	})

	if topK > len(order) {
		topK = len(order)
	}
	matches := make([]Match, 0, topK)
	s.mu.RLock()
	for _, i := range order[:topK] {
		matches = append(matches, Match{Chunk: s.chunks[ids[i]], Score: scores[i]})
	}
	s.mu.RUnlock()
	return matches, nil
}
