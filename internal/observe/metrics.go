// Package observe provides application-wide observability primitives for
// Attestia: OpenTelemetry metrics, distributed tracing, and HTTP middleware
// that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so metrics can be scraped
// via the standard /metrics endpoint. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Attestia metrics.
const meterName = "github.com/attestia/attestia"

// Metrics holds all OpenTelemetry metric instruments for the service. All
// fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// ToolDuration tracks tool execution latency.
	ToolDuration metric.Float64Histogram

	// ModelDuration tracks individual model call latency.
	ModelDuration metric.Float64Histogram

	// TurnDuration tracks end-to-end agent turn latency, tool loop
	// included.
	TurnDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: method, path.
	HTTPRequestDuration metric.Float64Histogram

	// ToolCalls counts tool invocations. Attributes: tool, status.
	ToolCalls metric.Int64Counter

	// AgentTurns counts completed agent turns. Attributes: agent, status.
	AgentTurns metric.Int64Counter

	// RateLimitRejections counts calls rejected by tool rate limits.
	// Attribute: tool.
	RateLimitRejections metric.Int64Counter

	// BudgetDenials counts turns blocked by the usage budget. Attribute:
	// reason.
	BudgetDenials metric.Int64Counter

	// ProviderErrors counts model provider failures. Attributes: provider,
	// model.
	ProviderErrors metric.Int64Counter

	// ActiveConversations tracks the number of live conversation windows.
	ActiveConversations metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Tool and
// model calls span tens of milliseconds to tens of seconds.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ToolDuration, err = m.Float64Histogram("attestia.tool.duration",
		metric.WithDescription("Latency of tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ModelDuration, err = m.Float64Histogram("attestia.model.duration",
		metric.WithDescription("Latency of individual model calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("attestia.turn.duration",
		metric.WithDescription("End-to-end agent turn latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("attestia.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if met.ToolCalls, err = m.Int64Counter("attestia.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.AgentTurns, err = m.Int64Counter("attestia.agent.turns",
		metric.WithDescription("Total agent turns by agent ID and status."),
	); err != nil {
		return nil, err
	}
	if met.RateLimitRejections, err = m.Int64Counter("attestia.tool.rate_limit_rejections",
		metric.WithDescription("Tool calls rejected by rate limits."),
	); err != nil {
		return nil, err
	}
	if met.BudgetDenials, err = m.Int64Counter("attestia.budget.denials",
		metric.WithDescription("Agent turns blocked by the usage budget."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("attestia.provider.errors",
		metric.WithDescription("Model provider failures by provider and model."),
	); err != nil {
		return nil, err
	}

	if met.ActiveConversations, err = m.Int64UpDownCounter("attestia.active_conversations",
		metric.WithDescription("Number of live conversation windows."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Panics if instrument
// creation fails (should not happen with the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordToolCall records one tool invocation with its outcome.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	)
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("tool", tool)))
}

// RecordAgentTurn records one completed agent turn.
func (m *Metrics) RecordAgentTurn(ctx context.Context, agent, status string, seconds float64) {
	m.AgentTurns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent", agent),
		attribute.String("status", status),
	))
	m.TurnDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("agent", agent)))
}

// RecordRateLimitRejection records a rate-limited tool call.
func (m *Metrics) RecordRateLimitRejection(ctx context.Context, tool string) {
	m.RateLimitRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", tool)))
}

// RecordBudgetDenial records a budget-blocked turn.
func (m *Metrics) RecordBudgetDenial(ctx context.Context, reason string) {
	m.BudgetDenials.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordProviderError records a model provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, model string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
	))
}
