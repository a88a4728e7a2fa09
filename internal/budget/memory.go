package budget

import (
	"context"
	"sync"
	"time"

	"github.com/attestia/attestia/pkg/types"
)

// Compile-time interface check.
var _ Service = (*MemoryLedger)(nil)

// ReasonDailyCap is the denial reason when an actor's daily token quota is
// exhausted.
const ReasonDailyCap = "daily_cap"

// MemoryLedger is an in-process [Service] enforcing a per-actor daily token
// cap. Counters reset when the UTC day rolls over; state is lost on process
// restart, which matches the best-effort accounting model of the rest of
// the core.
type MemoryLedger struct {
	dailyCap int
	now      func() time.Time

	mu      sync.Mutex
	day     string
	spent   map[string]int // key: actor key
	records []types.UsageRecord
}

// NewMemoryLedger creates a ledger allowing each actor dailyCap tokens per
// UTC day. A cap <= 0 disables enforcement (checks always pass).
func NewMemoryLedger(dailyCap int) *MemoryLedger {
	return &MemoryLedger{
		dailyCap: dailyCap,
		now:      time.Now,
		spent:    make(map[string]int),
	}
}

// CheckBudget implements [Service].
func (l *MemoryLedger) CheckBudget(_ context.Context, req CheckRequest) (Decision, error) {
	if l.dailyCap <= 0 {
		return Decision{Allowed: true}, nil
	}

	needed := EstimateTokens(req.Prompt) + req.ExpectedResponseTokens

	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()

	if l.spent[req.Actor.Key()]+needed > l.dailyCap {
		return Decision{Allowed: false, Reason: ReasonDailyCap}, nil
	}
	return Decision{Allowed: true}, nil
}

// RecordUsage implements [Service].
func (l *MemoryLedger) RecordUsage(_ context.Context, rec types.UsageRecord) (types.UsageRecord, error) {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = l.now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()

	l.spent[rec.Actor.Key()] += rec.PromptTokens + rec.ResponseTokens
	l.records = append(l.records, rec)
	return rec, nil
}

// Spent returns the tokens charged against actor today.
func (l *MemoryLedger) Spent(actor types.Actor) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	return l.spent[actor.Key()]
}

// rollover resets counters when the UTC day changes. Must be called with
// l.mu held.
func (l *MemoryLedger) rollover() {
	day := l.now().UTC().Format("2006-01-02")
	if day != l.day {
		l.day = day
		l.spent = make(map[string]int)
	}
}
