package agent

import (
	"sync"

	"github.com/ashita-ai/jikko/internal/model"
)

// History is the append-only log of executed invocations and their
// outcomes. Appends are serialized by a mutex because actions may record
// history through the state handle while the driver loop does its own
// bookkeeping; the completion flag deliberately lives elsewhere so checking
// it never contends with an append.
type History struct {
	mu    sync.Mutex
	execs []model.Execution
}

func NewHistory() *History {
	return &History{}
}

// Append adds one execution record to the end of the log.
func (h *History) Append(exec model.Execution) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.execs = append(h.execs, exec)
}

// Len returns the number of recorded executions.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.execs)
}

// Executions returns a copy of the full log in execution order.
func (h *History) Executions() []model.Execution {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]model.Execution, len(h.execs))
	copy(out, h.execs)
	return out
}

// Since returns a copy of the records appended at or after offset. It lets
// an incremental consumer pick up only what it has not seen yet.
func (h *History) Since(offset int) []model.Execution {
	h.mu.Lock()
	defer h.mu.Unlock()
	if offset < 0 {
		offset = 0
	}
	if offset >= len(h.execs) {
		return nil
	}
	out := make([]model.Execution, len(h.execs)-offset)
	copy(out, h.execs[offset:])
	return out
}

// ChatTranscript converts the log into a chat-style transcript for
// re-prompting: each execution becomes an assistant message carrying the
// invocation's canonical form, followed by a user message carrying the
// result, the error prefixed with "error: ", or an empty string when the
// action produced no output. When max is positive, only the most recent max
// executions are included.
func (h *History) ChatTranscript(max int) []model.ChatMessage {
	h.mu.Lock()
	defer h.mu.Unlock()

	execs := h.execs
	if max > 0 && len(execs) > max {
		execs = execs[len(execs)-max:]
	}

	msgs := make([]model.ChatMessage, 0, len(execs)*2)
	for _, exec := range execs {
		msgs = append(msgs, model.ChatMessage{
			Role:    model.RoleAssistant,
			Content: exec.Invocation.Canonical(),
		})

		feedback := ""
		switch {
		case exec.Error != nil:
			feedback = "error: " + *exec.Error
		case exec.Result != nil:
			feedback = *exec.Result
		}
		msgs = append(msgs, model.ChatMessage{Role: model.RoleUser, Content: feedback})
	}
	return msgs
}
