package integrity

import (
	"testing"
	"time"

	"github.com/ashita-ai/jikko/internal/model"
)

func strPtr(s string) *string { return &s }

func execAt(action string, result, execErr *string, at time.Time) model.Execution {
	return model.Execution{
		Invocation: model.NewInvocation(action, nil, strPtr("payload")),
		Result:     result,
		Error:      execErr,
		At:         at,
	}
}

func TestExecutionHash_Deterministic(t *testing.T) {
	at := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	exec := execAt("read-file", strPtr("file contents"), nil, at)

	h1 := ExecutionHash(exec)
	h2 := ExecutionHash(exec)

	if h1 != h2 {
		t.Fatalf("hash not deterministic: %q != %q", h1, h2)
	}
	if len(h1) != 64 {
		t.Fatalf("expected 64-char hex SHA-256, got %d chars", len(h1))
	}
}

func TestExecutionHash_NilResult(t *testing.T) {
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	h1 := ExecutionHash(execAt("update-goal", nil, nil, at))
	h2 := ExecutionHash(execAt("update-goal", strPtr(""), nil, at))

	if h1 != h2 {
		t.Fatalf("nil result and empty string result should produce the same hash: %q != %q", h1, h2)
	}
}

func TestExecutionHash_DifferentInputs(t *testing.T) {
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	h1 := ExecutionHash(execAt("read-file", strPtr("alpha"), nil, at))
	h2 := ExecutionHash(execAt("read-file", strPtr("beta"), nil, at))

	if h1 == h2 {
		t.Fatal("different results should produce different hashes")
	}

	h3 := ExecutionHash(execAt("read-file", nil, strPtr("permission denied"), at))
	if h1 == h3 {
		t.Fatal("error records should hash differently from success records")
	}
}

func TestBuildMerkleRoot_Empty(t *testing.T) {
	root := BuildMerkleRoot(nil)
	if root != "" {
		t.Fatalf("empty input should produce empty root, got %q", root)
	}
}

func TestBuildMerkleRoot_SingleLeaf(t *testing.T) {
	leaf := "abc123"
	root := BuildMerkleRoot([]string{leaf})
	if root != leaf {
		t.Fatalf("single leaf should be the root: got %q, want %q", root, leaf)
	}
}

func TestBuildMerkleRoot_Deterministic(t *testing.T) {
	leaves := []string{"hash_a", "hash_b", "hash_c", "hash_d"}

	r1 := BuildMerkleRoot(leaves)
	r2 := BuildMerkleRoot(leaves)

	if r1 != r2 {
		t.Fatalf("Merkle root not deterministic: %q != %q", r1, r2)
	}
	if len(r1) != 64 {
		t.Fatalf("expected 64-char hex SHA-256 root, got %d chars", len(r1))
	}
}

func TestBuildMerkleRoot_OrderMatters(t *testing.T) {
	r1 := BuildMerkleRoot([]string{"a", "b", "c"})
	r2 := BuildMerkleRoot([]string{"b", "a", "c"})

	if r1 == r2 {
		t.Fatal("different leaf ordering should produce different roots")
	}
}

func TestBuildMerkleRoot_OddLeafCount(t *testing.T) {
	// With 3 leaves: pair (0,1), promote (2). Then pair (hash01, leaf2) -> root.
	root := BuildMerkleRoot([]string{"x", "y", "z"})
	if root == "" {
		t.Fatal("odd leaf count should still produce a root")
	}
	if len(root) != 64 {
		t.Fatalf("expected 64-char hex SHA-256 root, got %d chars", len(root))
	}
}

func TestExecutionsRoot(t *testing.T) {
	at := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	execs := []model.Execution{
		execAt("read-file", strPtr("contents"), nil, at),
		execAt("update-goal", nil, nil, at.Add(time.Second)),
	}

	if root := ExecutionsRoot(nil); root != "" {
		t.Fatalf("empty history should produce empty root, got %q", root)
	}

	root := ExecutionsRoot(execs)
	if root == "" {
		t.Fatal("non-empty history should produce a root")
	}

	want := BuildMerkleRoot([]string{ExecutionHash(execs[0]), ExecutionHash(execs[1])})
	if root != want {
		t.Fatalf("root mismatch: got %q, want %q", root, want)
	}
}
