package core

import "sync"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// History is an ordered, append-only sequence of conversation turns.
// Each participant owns one; the narrator Q&A shares another. Safe for
// concurrent use: overlapping sub-flows may append to the same history.
type History struct {
	mu       sync.Mutex
	messages []Message
}

// AddUser appends a user turn.
func (h *History) AddUser(text string) {
	h.mu.Lock()
	h.messages = append(h.messages, Message{Role: RoleUser, Content: text})
	h.mu.Unlock()
}

// AddAssistant appends an assistant turn.
func (h *History) AddAssistant(text string) {
	h.mu.Lock()
	h.messages = append(h.messages, Message{Role: RoleAssistant, Content: text})
	h.mu.Unlock()
}

// Messages returns a copy of the turns in order.
func (h *History) Messages() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of turns recorded so far.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}
