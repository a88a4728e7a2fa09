package audit

import (
	"context"
	"sync"
)

// Compile-time interface check.
var _ Sink = (*MemorySink)(nil)

// MemorySink records events in memory. It exists for tests and for
// single-process deployments that only need the operator inspection
// endpoint, not durable audit storage.
//
// The zero value is ready to use.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// Log implements [Sink].
func (s *MemorySink) Log(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// Events returns a copy of all recorded events in insertion order.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// ByAction returns recorded events whose Action equals action.
func (s *MemorySink) ByAction(action string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.events {
		if ev.Action == action {
			out = append(out, ev)
		}
	}
	return out
}

// Reset discards all recorded events.
func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}
