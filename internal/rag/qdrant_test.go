package rag

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestQdrantStore creates a QdrantStore pointed at a local address with no
// server behind it. The connection succeeds (gRPC connects lazily) but actual
// RPCs fail, which is sufficient for testing early-return paths, error
// handling, and caching logic.
func newTestQdrantStore(t *testing.T) *QdrantStore {
	t.Helper()
	store, err := NewQdrantStore(QdrantConfig{
		URL:        "http://localhost:16334", // Non-standard port, no server running.
		Collection: "test_chunks",
		Dims:       768,
	}, &stubEmbedder{}, testLogger())
	require.NoError(t, err, "NewQdrantStore should succeed (gRPC is lazy-connect)")
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewQdrantStoreInvalidURL(t *testing.T) {
	_, err := NewQdrantStore(QdrantConfig{
		URL:        "",
		Collection: "chunks",
		Dims:       768,
	}, &stubEmbedder{}, testLogger())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid qdrant URL")
}

func TestQdrantRetrieveZeroTopK(t *testing.T) {
	store := newTestQdrantStore(t)

	// topK <= 0 returns before any RPC, so no server is needed.
	matches, err := store.Retrieve(context.Background(), "anything", 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestQdrantHealthErrStoreAndLoad(t *testing.T) {
	store := newTestQdrantStore(t)

	assert.Nil(t, store.loadHealthErr())

	testErr := fmt.Errorf("connection refused")
	store.storeHealthErr(testErr)
	loaded := store.loadHealthErr()
	require.Error(t, loaded)
	assert.Equal(t, "connection refused", loaded.Error())

	store.storeHealthErr(nil)
	assert.Nil(t, store.loadHealthErr())
}

func TestQdrantHealthyCachedResult(t *testing.T) {
	store := newTestQdrantStore(t)

	// A fresh cached healthy result is returned from the fast path without a
	// gRPC call (which would fail, since no server is running).
	store.storeHealthErr(nil)
	store.healthAt.Store(time.Now().UnixNano())
	assert.NoError(t, store.Healthy(context.Background()))

	cachedErr := fmt.Errorf("rag: qdrant unhealthy: previous failure")
	store.storeHealthErr(cachedErr)
	store.healthAt.Store(time.Now().UnixNano())

	err := store.Healthy(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "previous failure")
}

func TestQdrantHealthyExpiredCache(t *testing.T) {
	store := newTestQdrantStore(t)

	store.storeHealthErr(nil)
	store.healthAt.Store(time.Now().Add(-10 * time.Second).UnixNano())

	// With the cache expired, Healthy makes a real gRPC call, which fails
	// because there is no Qdrant server running.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := store.Healthy(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qdrant unhealthy")
}

func TestQdrantHealthyConcurrent(t *testing.T) {
	store := newTestQdrantStore(t)

	// Force real health checks; singleflight should deduplicate them.
	store.healthAt.Store(time.Now().Add(-10 * time.Second).UnixNano())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errs := make(chan error, 10)
	for range 10 {
		go func() {
			errs <- store.Healthy(ctx)
		}()
	}

	for range 10 {
		err := <-errs
		require.Error(t, err)
		assert.Contains(t, err.Error(), "qdrant unhealthy")
	}
}

func TestQdrantAddFailsWithoutServer(t *testing.T) {
	store := newTestQdrantStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := store.Add(ctx, Chunk{ID: "doc#0", Source: "doc", Text: "body"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check point exists")
}

func TestQdrantRetrieveFailsWithoutServer(t *testing.T) {
	store := newTestQdrantStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	matches, err := store.Retrieve(ctx, "query", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qdrant query")
	assert.Nil(t, matches)
}

func TestQdrantEnsureCollectionFailsWithoutServer(t *testing.T) {
	store := newTestQdrantStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := store.EnsureCollection(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "check collection exists")
}
