package agent

import (
	"sync"
	"time"

	"github.com/attestia/attestia/pkg/types"
)

// historyWindow is the maximum number of messages retained per
// conversation. Older messages fall off the front.
const historyWindow = 20

type historyKey struct {
	caller string
	agent  string
}

type conversation struct {
	messages []types.Message
	lastUsed time.Time
}

// History stores per-(caller, agent) conversation windows in process
// memory. Conversations are created lazily on first append and survive only
// for the lifetime of the process.
type History struct {
	mu            sync.Mutex
	conversations map[historyKey]*conversation
	now           func() time.Time
}

// NewHistory creates an empty history store.
func NewHistory() *History {
	return &History{
		conversations: make(map[historyKey]*conversation),
		now:           time.Now,
	}
}

// Get returns a copy of the conversation window for (callerKey, agentID).
// A missing conversation yields an empty slice.
func (h *History) Get(callerKey, agentID string) []types.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conversations[historyKey{caller: callerKey, agent: agentID}]
	if !ok {
		return nil
	}
	out := make([]types.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Append adds messages to the conversation, trimming the front so at most
// historyWindow entries remain.
func (h *History) Append(callerKey, agentID string, messages ...types.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := historyKey{caller: callerKey, agent: agentID}
	c, ok := h.conversations[key]
	if !ok {
		c = &conversation{}
		h.conversations[key] = c
	}
	c.messages = append(c.messages, messages...)
	if excess := len(c.messages) - historyWindow; excess > 0 {
		c.messages = c.messages[excess:]
	}
	c.lastUsed = h.now()
}

// Clear removes the conversation. Clearing a conversation that does not
// exist is a no-op.
func (h *History) Clear(callerKey, agentID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conversations, historyKey{caller: callerKey, agent: agentID})
}

// Len reports the number of live conversations.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conversations)
}

// Sweep drops conversations idle for longer than maxIdle and returns how
// many were removed.
func (h *History) Sweep(maxIdle time.Duration) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := h.now().Add(-maxIdle)
	removed := 0
	for key, c := range h.conversations {
		if c.lastUsed.Before(cutoff) {
			delete(h.conversations, key)
			removed++
		}
	}
	return removed
}
