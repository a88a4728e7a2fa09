package agent

import (
	"fmt"
	"testing"
	"time"

	"github.com/attestia/attestia/pkg/types"
)

func TestHistorySlidingWindow(t *testing.T) {
	h := NewHistory()
	for i := 0; i < 15; i++ {
		h.Append("user-1", "advisor",
			types.Message{Role: "user", Content: fmt.Sprintf("q%d", i)},
			types.Message{Role: "assistant", Content: fmt.Sprintf("a%d", i)},
		)
	}

	msgs := h.Get("user-1", "advisor")
	if len(msgs) != historyWindow {
		t.Fatalf("window size = %d, want %d", len(msgs), historyWindow)
	}
	// The oldest surviving entry is q5 (15 exchanges * 2 - 20 = 10 dropped).
	if msgs[0].Content != "q5" {
		t.Errorf("oldest message = %q, want q5", msgs[0].Content)
	}
	if msgs[len(msgs)-1].Content != "a14" {
		t.Errorf("newest message = %q, want a14", msgs[len(msgs)-1].Content)
	}
}

func TestHistoryKeyedByCallerAndAgent(t *testing.T) {
	h := NewHistory()
	h.Append("user-1", "advisor", types.Message{Role: "user", Content: "hello"})

	if got := h.Get("user-2", "advisor"); len(got) != 0 {
		t.Errorf("other caller sees %d messages, want 0", len(got))
	}
	if got := h.Get("user-1", "auditor"); len(got) != 0 {
		t.Errorf("other agent sees %d messages, want 0", len(got))
	}
	if got := h.Get("user-1", "advisor"); len(got) != 1 {
		t.Errorf("owner sees %d messages, want 1", len(got))
	}
}

func TestHistoryGetReturnsCopy(t *testing.T) {
	h := NewHistory()
	h.Append("user-1", "advisor", types.Message{Role: "user", Content: "original"})

	msgs := h.Get("user-1", "advisor")
	msgs[0].Content = "mutated"

	if got := h.Get("user-1", "advisor"); got[0].Content != "original" {
		t.Errorf("stored message = %q, want original", got[0].Content)
	}
}

func TestHistoryClearIdempotent(t *testing.T) {
	h := NewHistory()
	h.Append("user-1", "advisor", types.Message{Role: "user", Content: "hello"})

	h.Clear("user-1", "advisor")
	if got := h.Get("user-1", "advisor"); len(got) != 0 {
		t.Fatalf("messages after clear = %d, want 0", len(got))
	}

	// Clearing again, and clearing something that never existed, both
	// succeed silently.
	h.Clear("user-1", "advisor")
	h.Clear("nobody", "nothing")
}

func TestHistorySweep(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := NewHistory()
	h.now = func() time.Time { return now }

	h.Append("user-1", "advisor", types.Message{Role: "user", Content: "old"})
	now = now.Add(2 * time.Hour)
	h.Append("user-2", "advisor", types.Message{Role: "user", Content: "fresh"})

	removed := h.Sweep(time.Hour)
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if h.Len() != 1 {
		t.Errorf("remaining conversations = %d, want 1", h.Len())
	}
	if got := h.Get("user-2", "advisor"); len(got) != 1 {
		t.Error("fresh conversation was swept")
	}
}
