// Package audit defines the audit event model and sink contract used by the
// tool registry, the agent engine, and the gateway.
//
// Audit logging is fire-and-forget from the caller's perspective: a sink
// failure must never abort the operation that produced the event. Callers
// should record events through [Emit], which swallows sink errors after
// logging them.
package audit

import (
	"context"
	"log/slog"
	"time"
)

// Severity grades an audit event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Well-known audit actions emitted by the core. Consumers filter on these,
// so they are stable identifiers, not display strings.
const (
	// ActionToolExecute is emitted before every attempted tool execution.
	ActionToolExecute = "execute_mcp_tool"

	// ActionToolRateLimited is emitted when a call is rejected by a tool's
	// rate limit window.
	ActionToolRateLimited = "tool_rate_limit_exceeded"

	// ActionToolFailed is emitted when a handler returns an unsuccessful
	// result.
	ActionToolFailed = "tool_execution_failed"

	// ActionToolPanicked is emitted when a handler panics or the circuit
	// breaker reports a hard failure.
	ActionToolPanicked = "tool_execution_error"

	// ActionAgentExecute is emitted for every agent turn processed by the
	// engine.
	ActionAgentExecute = "execute_agent"

	// ActionAgentBudgetBlocked is emitted when the usage budget denies a
	// turn before any provider call.
	ActionAgentBudgetBlocked = "agent_budget_blocked"

	// ActionAgentProviderError is emitted when a model provider call fails
	// mid-turn.
	ActionAgentProviderError = "agent_provider_error"

	// ActionGatewayToolExecute and ActionGatewayAgentExecute are the
	// gateway's own records, emitted in addition to the registry and
	// engine events for the same request.
	ActionGatewayToolExecute  = "gateway_tool_execute"
	ActionGatewayAgentExecute = "gateway_agent_execute"

	// ActionGatewayTimeout is emitted when a tool execution exceeds the
	// gateway deadline and its eventual result is discarded.
	ActionGatewayTimeout = "gateway_tool_timeout"
)

// Event is a single audit record.
type Event struct {
	// Action is one of the Action* constants.
	Action string

	// ActorID identifies who triggered the event ("anonymous" when the
	// caller carried no identity).
	ActorID string

	// OrganizationID is the actor's tenant, when known.
	OrganizationID string

	// ResourceType and ResourceID name what was acted on (e.g., "tool",
	// "document_search").
	ResourceType string
	ResourceID   string

	// Severity grades the event.
	Severity Severity

	// Details holds structured context (parameters summary, error text,
	// session id). Values must be JSON-serialisable.
	Details map[string]any

	// OccurredAt is when the event happened. The zero value is replaced
	// with the current time by sinks.
	OccurredAt time.Time
}

// Sink persists audit events.
//
// Implementations must be safe for concurrent use. They should not retry
// internally for longer than the caller's context allows.
type Sink interface {
	Log(ctx context.Context, ev Event) error
}

// Emit records ev on sink, logging (not returning) any sink error. A nil
// sink is a no-op, which keeps audit wiring optional in tests.
func Emit(ctx context.Context, sink Sink, ev Event) {
	if sink == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if err := sink.Log(ctx, ev); err != nil {
		slog.Error("audit sink failure",
			"action", ev.Action,
			"resource", ev.ResourceID,
			"err", err)
	}
}
