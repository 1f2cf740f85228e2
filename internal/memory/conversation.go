package memory

import (
	"sync"
	"time"
)

// Turn is one completed exchange.
type Turn struct {
	UserText      string    `json:"user_text"`
	AssistantText string    `json:"assistant_text"`
	Timestamp     time.Time `json:"timestamp"`
}

const DefaultConversationCapacity = 10

// Conversation is a bounded FIFO of the most recent turns, most recent
// last. Oldest turns are evicted on overflow. Nothing is ever read back
// from disk; the in-process window is the whole of conversational state.
type Conversation struct {
	mu       sync.RWMutex
	turns    []Turn
	capacity int
}

func NewConversation(capacity int) *Conversation {
	if capacity <= 0 {
		capacity = DefaultConversationCapacity
	}
	return &Conversation{capacity: capacity}
}

// Append records a completed exchange, evicting the oldest turn when the
// window is full.
func (c *Conversation) Append(userText, assistantText string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.turns = append(c.turns, Turn{
		UserText:      userText,
		AssistantText: assistantText,
		Timestamp:     time.Now(),
	})
	if len(c.turns) > c.capacity {
		c.turns = c.turns[len(c.turns)-c.capacity:]
	}
}

// Turns returns a copy of the stored turns, oldest first.
func (c *Conversation) Turns() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

func (c *Conversation) Capacity() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.capacity
}

// Context returns up to k of the most recent turns, oldest first.
func (c *Conversation) Context(k int) []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if k <= 0 || len(c.turns) == 0 {
		return nil
	}
	if k > len(c.turns) {
		k = len(c.turns)
	}
	out := make([]Turn, k)
	copy(out, c.turns[len(c.turns)-k:])
	return out
}

// Resize shrinks or grows the window, keeping the newest turns.
func (c *Conversation) Resize(capacity int) {
	if capacity <= 0 {
		capacity = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.capacity = capacity
	if len(c.turns) > capacity {
		c.turns = c.turns[len(c.turns)-capacity:]
	}
}

// Clear drops every stored turn.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = nil
}
