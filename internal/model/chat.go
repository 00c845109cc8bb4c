package model

// ChatRole identifies the author of a transcript message.
type ChatRole string

const (
	RoleAssistant ChatRole = "assistant"
	RoleUser      ChatRole = "user"
)

// ChatMessage is one entry of the chat-style transcript derived from the
// execution history: the assistant turn carries the canonical invocation,
// the user turn carries the feedback (result or error) it produced.
type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}
