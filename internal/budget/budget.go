// Package budget provides the usage-accounting gate consulted before every
// model call, plus an in-memory daily ledger implementation.
//
// The engine treats the budget service as an external collaborator: a
// denial short-circuits the agent turn before any provider cost is
// incurred, and every completed turn is recorded for later reporting.
package budget

import (
	"context"

	"github.com/attestia/attestia/pkg/types"
)

// charsPerToken is the heuristic ratio used for token estimation.
// English text averages roughly 4 characters per token across common
// model tokenizers. This avoids pulling in a tokenizer dependency.
const charsPerToken = 4

// Decision is the outcome of a budget check.
type Decision struct {
	// Allowed reports whether the caller may proceed.
	Allowed bool

	// Reason names the violated policy when Allowed is false (e.g.,
	// "daily_cap"). Empty when allowed.
	Reason string
}

// CheckRequest describes the cost about to be incurred.
type CheckRequest struct {
	// Actor is whose quota the request is charged against.
	Actor types.Actor

	// Scope is the quota bucket ("agent", "tool"); scopes are accounted
	// independently.
	Scope string

	// ActionType labels the operation (e.g., "agent_turn").
	ActionType string

	// Model is the provider model that would serve the request.
	Model string

	// Prompt is the full prompt text, used for token estimation.
	Prompt string

	// ExpectedResponseTokens is the caller's response-size estimate.
	ExpectedResponseTokens int
}

// Service is the usage-accounting collaborator contract.
//
// Implementations must be safe for concurrent use.
type Service interface {
	// CheckBudget evaluates req against the actor's remaining quota
	// without consuming any of it.
	CheckBudget(ctx context.Context, req CheckRequest) (Decision, error)

	// RecordUsage charges actual consumption against the actor's quota
	// and returns the stored record.
	RecordUsage(ctx context.Context, rec types.UsageRecord) (types.UsageRecord, error)
}

// EstimateTokens returns a rough token count for text using the
// 1-token-per-4-characters heuristic. The result need not be exact but
// should not undercount badly.
func EstimateTokens(text string) int {
	tokens := (len(text) + charsPerToken - 1) / charsPerToken
	return tokens
}
