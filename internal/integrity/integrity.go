// Package integrity provides tamper-evident hashing and Merkle tree
// construction for run audit trails. All functions are pure and
// deterministic.
package integrity

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/ashita-ai/jikko/internal/model"
)

// ExecutionHash produces a SHA-256 hex digest over one execution record.
// Each field is encoded as a 4-byte big-endian length prefix followed by the
// field bytes, which avoids delimiter collisions when results contain
// arbitrary model output.
func ExecutionHash(exec model.Execution) string {
	h := sha256.New()
	writeField := func(s string) {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s))) //nolint:gosec // field lengths are bounded by model output size
		h.Write(lenBuf[:])
		h.Write([]byte(s))
	}
	writeField(exec.Invocation.Canonical())
	result := ""
	if exec.Result != nil {
		result = *exec.Result
	}
	writeField(result)
	execErr := ""
	if exec.Error != nil {
		execErr = *exec.Error
	}
	writeField(execErr)
	writeField(exec.At.UTC().Format(time.RFC3339Nano))
	return hex.EncodeToString(h.Sum(nil))
}

// hashPair produces SHA-256(0x01 || a || b) as a hex string.
// The 0x01 prefix is a domain separator for internal Merkle tree nodes (per
// RFC 6962), ensuring internal node hashes can never collide with leaf
// content hashes.
func hashPair(a, b string) string {
	h := sha256.New()
	h.Write([]byte{0x01}) // internal node domain separator
	h.Write([]byte(a))
	h.Write([]byte(b))
	return hex.EncodeToString(h.Sum(nil))
}

// BuildMerkleRoot constructs a Merkle tree from leaf hashes and returns the
// root. Leaf order is significant: the root binds both the records and the
// sequence they executed in.
// If leaves is empty, returns an empty string.
// If leaves has one element, the root is that element.
// Odd-length levels hash the last node with itself for structural binding.
func BuildMerkleRoot(leaves []string) string {
	if len(leaves) == 0 {
		return ""
	}
	if len(leaves) == 1 {
		return leaves[0]
	}

	// Build tree bottom-up.
	level := make([]string, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		var next []string
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(level[i], level[i+1]))
			} else {
				// Odd node: hash with itself for structural binding to tree position.
				next = append(next, hashPair(level[i], level[i]))
			}
		}
		level = next
	}

	return level[0]
}

// ExecutionsRoot hashes each execution and returns the Merkle root over the
// full history, in execution order.
func ExecutionsRoot(execs []model.Execution) string {
	if len(execs) == 0 {
		return ""
	}
	leaves := make([]string, len(execs))
	for i, exec := range execs {
		leaves[i] = ExecutionHash(exec)
	}
	return BuildMerkleRoot(leaves)
}
