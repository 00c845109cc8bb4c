// Package snapshot persists observable run state to caller-chosen
// destinations. The agent writes a fresh snapshot after every execution, so
// a sink must replace content, not append, and a failed write is surfaced
// to the caller — a run that can no longer be observed must not continue
// silently.
package snapshot

import (
	"fmt"
	"os"
)

// Sink receives one full rendering of run state per write.
type Sink interface {
	Write(content string) error
}

// Discard drops every write. Used when no destination is configured, which
// is a valid setup rather than an error.
type Discard struct{}

func (Discard) Write(string) error { return nil }

// FileSink replaces a file's contents atomically on each write, via a
// temp file rename, so an external reader never observes a torn snapshot.
type FileSink struct {
	path string
}

func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

func (s *FileSink) Write(content string) error {
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o600); err != nil {
		return fmt.Errorf("snapshot: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("snapshot: replace %s: %w", s.path, err)
	}
	return nil
}
