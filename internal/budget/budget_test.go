package budget

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/attestia/attestia/pkg/types"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.text); got != tt.want {
			t.Errorf("EstimateTokens(%d chars) = %d, want %d", len(tt.text), got, tt.want)
		}
	}
}

func TestMemoryLedger_DisabledCapAlwaysAllows(t *testing.T) {
	l := NewMemoryLedger(0)
	d, err := l.CheckBudget(context.Background(), CheckRequest{
		Prompt: strings.Repeat("x", 1_000_000),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Allowed {
		t.Fatal("disabled cap should always allow")
	}
}

func TestMemoryLedger_DeniesOverCap(t *testing.T) {
	l := NewMemoryLedger(100)
	actor := types.Actor{UserID: "u1"}
	ctx := context.Background()

	// Spend 90 tokens.
	_, err := l.RecordUsage(ctx, types.UsageRecord{
		Actor: actor, PromptTokens: 50, ResponseTokens: 40,
	})
	if err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}

	// A request needing ~20 more must be denied.
	d, err := l.CheckBudget(ctx, CheckRequest{
		Actor:  actor,
		Prompt: strings.Repeat("x", 80), // 20 tokens
	})
	if err != nil {
		t.Fatalf("CheckBudget: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected denial over daily cap")
	}
	if d.Reason != ReasonDailyCap {
		t.Errorf("reason = %q, want %q", d.Reason, ReasonDailyCap)
	}
}

func TestMemoryLedger_ActorsAreIndependent(t *testing.T) {
	l := NewMemoryLedger(100)
	ctx := context.Background()

	_, _ = l.RecordUsage(ctx, types.UsageRecord{
		Actor: types.Actor{UserID: "heavy"}, PromptTokens: 100,
	})

	d, err := l.CheckBudget(ctx, CheckRequest{
		Actor:  types.Actor{UserID: "light"},
		Prompt: "short",
	})
	if err != nil {
		t.Fatalf("CheckBudget: %v", err)
	}
	if !d.Allowed {
		t.Fatal("an unrelated actor must not be affected by another's spend")
	}
}

func TestMemoryLedger_DayRollover(t *testing.T) {
	l := NewMemoryLedger(10)
	actor := types.Actor{UserID: "u1"}
	ctx := context.Background()

	current := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return current }

	_, _ = l.RecordUsage(ctx, types.UsageRecord{Actor: actor, PromptTokens: 10})
	if got := l.Spent(actor); got != 10 {
		t.Fatalf("spent = %d, want 10", got)
	}

	// Next UTC day: counters reset.
	current = current.Add(2 * time.Hour)
	if got := l.Spent(actor); got != 0 {
		t.Fatalf("spent after rollover = %d, want 0", got)
	}

	d, err := l.CheckBudget(ctx, CheckRequest{Actor: actor, Prompt: "hi"})
	if err != nil {
		t.Fatalf("CheckBudget: %v", err)
	}
	if !d.Allowed {
		t.Fatal("expected allowance after day rollover")
	}
}

func TestMemoryLedger_RecordStampsTime(t *testing.T) {
	l := NewMemoryLedger(100)
	rec, err := l.RecordUsage(context.Background(), types.UsageRecord{
		Actor: types.Actor{UserID: "u1"}, PromptTokens: 1,
	})
	if err != nil {
		t.Fatalf("RecordUsage: %v", err)
	}
	if rec.RecordedAt.IsZero() {
		t.Fatal("RecordedAt not stamped")
	}
}
