package sigil

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// History is the value carried by a history-typed input field: an ordered
// conversation the adapters weave into the request. The ChatAdapter and
// JSONAdapter expand it into real conversation turns; the DefaultAdapter
// renders it as a transcript block inside its single user message.
//
// A History is safe for concurrent use by multiple goroutines, but the
// pipeline itself never mutates one — appending the turns of a completed
// run is the caller's decision.
type History struct {
	id       string
	messages []Message
	mu       sync.RWMutex
}

// NewHistory creates an empty conversation history with a unique ID.
func NewHistory() *History {
	return &History{
		id:       uuid.New().String(),
		messages: make([]Message, 0),
	}
}

// ID returns the unique identifier for this history.
func (h *History) ID() string {
	return h.id
}

// Messages returns a copy of all messages, oldest first.
func (h *History) Messages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	messages := make([]Message, len(h.messages))
	copy(messages, h.messages)
	return messages
}

// Append adds a message. Role should be RoleUser or RoleAssistant.
func (h *History) Append(role, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, Message{Role: role, Content: content})
}

// Len returns the number of messages.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Clear removes all messages.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = make([]Message, 0)
}

// Prune removes the last n message pairs (user + assistant). If n would
// remove more messages than exist, all messages are removed.
func (h *History) Prune(n int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n < 0 {
		return fmt.Errorf("prune count must be non-negative, got %d", n)
	}
	toRemove := n * 2
	if toRemove >= len(h.messages) {
		h.messages = make([]Message, 0)
		return nil
	}
	h.messages = h.messages[:len(h.messages)-toRemove]
	return nil
}

// Truncate keeps only the first keepFirst and last keepLast messages,
// removing everything in between.
func (h *History) Truncate(keepFirst, keepLast int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if keepFirst < 0 || keepLast < 0 {
		return fmt.Errorf("keepFirst and keepLast must be non-negative")
	}
	total := len(h.messages)
	if keepFirst+keepLast >= total {
		return nil
	}
	kept := make([]Message, 0, keepFirst+keepLast)
	kept = append(kept, h.messages[:keepFirst]...)
	kept = append(kept, h.messages[total-keepLast:]...)
	h.messages = kept
	return nil
}

// Transcript renders the history as role-labeled lines for adapters that
// fold the conversation into prompt text.
func (h *History) Transcript() string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var b strings.Builder
	for _, m := range h.messages {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
