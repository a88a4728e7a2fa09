package tool

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/attestia/attestia/internal/audit"
	"github.com/attestia/attestia/internal/observe"
	"github.com/attestia/attestia/internal/resilience"
	"github.com/attestia/attestia/pkg/types"
)

// suggestionThreshold is the minimum Jaro-Winkler similarity for an unknown
// tool name to earn a "did you mean" hint.
const suggestionThreshold = 0.85

// Registry holds the registered tools and runs the execution pipeline:
// lookup, auth gate, parameter validation, rate limiting, audit, handler
// invocation (circuit-broken for externally classified tools).
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool

	limiter  *rateLimiter
	breakers *resilience.BreakerSet
	sink     audit.Sink
	metrics  *observe.Metrics
	log      *slog.Logger

	// development leaves raw internal error text in results. In production
	// internal faults are reduced to a generic message; the detail still
	// reaches the audit trail.
	development bool
}

// Option configures a [Registry].
type Option func(*Registry)

// WithAuditSink sets the sink receiving the registry's audit events.
func WithAuditSink(sink audit.Sink) Option {
	return func(r *Registry) { r.sink = sink }
}

// WithBreakerSet sets the circuit breakers used for external tools.
func WithBreakerSet(set *resilience.BreakerSet) Option {
	return func(r *Registry) { r.breakers = set }
}

// WithLogger sets the registry's logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// WithMetrics sets the metric instruments the registry records on.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithDevelopmentMode exposes internal error details in results instead of
// sanitizing them.
func WithDevelopmentMode(on bool) Option {
	return func(r *Registry) { r.development = on }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		tools:   make(map[string]Tool),
		limiter: newRateLimiter(),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.breakers == nil {
		r.breakers = resilience.NewBreakerSet(resilience.Config{})
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Register adds a tool. Re-registering an existing name replaces the tool
// and logs a warning; startup wiring treats that as a configuration smell,
// not an error.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool: register: name must not be empty")
	}
	if !t.Classification.IsValid() {
		return fmt.Errorf("tool: register %q: invalid classification %q", t.Name, t.Classification)
	}
	if t.Handler == nil {
		return fmt.Errorf("tool: register %q: handler must not be nil", t.Name)
	}
	if t.RateLimit != nil && (t.RateLimit.MaxCalls <= 0 || t.RateLimit.WindowMs <= 0) {
		return fmt.Errorf("tool: register %q: rate limit requires positive maxCalls and windowMs", t.Name)
	}

	r.mu.Lock()
	_, overwrite := r.tools[t.Name]
	r.tools[t.Name] = t
	r.mu.Unlock()

	if overwrite {
		r.log.Warn("tool redefined", "tool", t.Name)
	}
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Describe returns the documentation projection for one tool.
func (r *Registry) Describe(name string) (Doc, bool) {
	t, ok := r.Get(name)
	if !ok {
		return Doc{}, false
	}
	return t.Doc(), true
}

// List returns documentation for every registered tool, sorted by name.
func (r *Registry) List() []Doc {
	r.mu.RLock()
	docs := make([]Doc, 0, len(r.tools))
	for _, t := range r.tools {
		docs = append(docs, t.Doc())
	}
	r.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs
}

// Definitions projects the named tools into model-facing schemas. Names
// with no registered tool are skipped with a warning so a stale agent
// definition degrades instead of failing the whole turn.
func (r *Registry) Definitions(names []string) []types.ToolDefinition {
	defs := make([]types.ToolDefinition, 0, len(names))
	for _, name := range names {
		t, ok := r.Get(name)
		if !ok {
			r.log.Warn("skipping unregistered tool in schema projection", "tool", name)
			continue
		}
		defs = append(defs, t.Definition())
	}
	return defs
}

// ValidateParams checks params against the named tool's declared parameter
// specs without executing it. Callers that need to reject a request before
// committing to a sequence of executions (batch admission) use this; the
// same checks run again inside Execute.
func (r *Registry) ValidateParams(name string, params map[string]any) error {
	t, ok := r.Get(name)
	if !ok {
		return fmt.Errorf("unknown tool: %s", name)
	}
	if params == nil {
		params = map[string]any{}
	}
	return validateParams(t, params)
}

// Execute runs the named tool through the full pipeline. Rejections and
// handler failures are reported as unsuccessful results, never as panics;
// the returned Result always satisfies the Success/Error invariant.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any, inv types.InvocationContext) Result {
	t, ok := r.Get(name)
	if !ok {
		msg := fmt.Sprintf("unknown tool: %s", name)
		if hint := r.suggest(name); hint != "" {
			msg += fmt.Sprintf(" (did you mean %q?)", hint)
		}
		return Failure(msg)
	}

	if t.RequiresAuth && inv.Actor.IsAnonymous() {
		return Failure(fmt.Sprintf("tool %s requires authentication", name))
	}

	if params == nil {
		params = map[string]any{}
	}
	if err := validateParams(t, params); err != nil {
		return Failure(err.Error())
	}

	if t.RateLimit != nil {
		allowed, resetAt := r.limiter.allow(name, inv.Actor.Key(), *t.RateLimit)
		if !allowed {
			audit.Emit(ctx, r.sink, audit.Event{
				Action:         audit.ActionToolRateLimited,
				ActorID:        inv.Actor.Key(),
				OrganizationID: inv.Actor.OrganizationID,
				ResourceType:   "tool",
				ResourceID:     name,
				Severity:       audit.SeverityMedium,
				Details: map[string]any{
					"maxCalls": t.RateLimit.MaxCalls,
					"windowMs": t.RateLimit.WindowMs,
					"resetAt":  resetAt.UTC().Format(time.RFC3339),
				},
			})
			r.metrics.RecordRateLimitRejection(ctx, name)
			return Failure(fmt.Sprintf("rate limit exceeded for tool %s: %d calls per %dms", name, t.RateLimit.MaxCalls, t.RateLimit.WindowMs))
		}
	}

	// Every attempted execution is audited before the handler runs, so the
	// trail records attempts even when the handler never returns.
	audit.Emit(ctx, r.sink, audit.Event{
		Action:         audit.ActionToolExecute,
		ActorID:        inv.Actor.Key(),
		OrganizationID: inv.Actor.OrganizationID,
		ResourceType:   "tool",
		ResourceID:     name,
		Severity:       audit.SeverityLow,
		Details: map[string]any{
			"sessionId":  inv.SessionID,
			"agentId":    inv.AgentID,
			"paramNames": paramNames(params),
		},
	})

	start := time.Now()
	res := r.invoke(ctx, t, params, inv)
	elapsed := time.Since(start)

	if res.Metadata == nil {
		res.Metadata = map[string]any{}
	}
	res.Metadata["durationMs"] = elapsed.Milliseconds()

	if !res.Success {
		audit.Emit(ctx, r.sink, audit.Event{
			Action:         audit.ActionToolFailed,
			ActorID:        inv.Actor.Key(),
			OrganizationID: inv.Actor.OrganizationID,
			ResourceType:   "tool",
			ResourceID:     name,
			Severity:       audit.SeverityMedium,
			Details: map[string]any{
				"sessionId": inv.SessionID,
				"error":     res.Error,
			},
		})
	}
	return res
}

// invoke calls the handler, routing externally classified tools through
// their circuit breaker and converting panics and internal errors into
// unsuccessful results.
func (r *Registry) invoke(ctx context.Context, t Tool, params map[string]any, inv types.InvocationContext) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			detail := fmt.Sprintf("panic in tool %s: %v", t.Name, rec)
			r.auditInternalFault(ctx, t.Name, inv, detail)
			res = Failure(r.internalError(detail))
		}
	}()

	run := func() error {
		var err error
		res, err = t.Handler(ctx, params, inv)
		return err
	}

	var err error
	if t.Classification == ClassExternal || t.Classification == ClassHybrid {
		err = r.breakers.Execute(t.Name, run)
	} else {
		err = run()
	}
	if err != nil {
		detail := fmt.Sprintf("tool %s failed: %v", t.Name, err)
		r.auditInternalFault(ctx, t.Name, inv, detail)
		return Failure(r.internalError(detail))
	}

	// Normalise handler results so the invariant holds even for sloppy
	// handlers.
	if !res.Success {
		res.Data = nil
		if res.Error == "" {
			res.Error = "tool execution failed"
		}
	} else {
		res.Error = ""
	}
	return res
}

func (r *Registry) auditInternalFault(ctx context.Context, name string, inv types.InvocationContext, detail string) {
	r.log.Error("tool execution fault", "tool", name, "detail", detail)
	audit.Emit(ctx, r.sink, audit.Event{
		Action:         audit.ActionToolPanicked,
		ActorID:        inv.Actor.Key(),
		OrganizationID: inv.Actor.OrganizationID,
		ResourceType:   "tool",
		ResourceID:     name,
		Severity:       audit.SeverityHigh,
		Details: map[string]any{
			"sessionId": inv.SessionID,
			"error":     detail,
		},
	})
}

// internalError returns the message callers see for an internal fault. The
// raw detail stays in logs and audit; production callers get a generic
// message.
func (r *Registry) internalError(detail string) string {
	if r.development {
		return detail
	}
	return "internal tool execution error"
}

// suggest returns the closest registered tool name when it is similar
// enough to be a likely typo.
func (r *Registry) suggest(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	best := ""
	bestScore := 0.0
	for candidate := range r.tools {
		score := matchr.JaroWinkler(name, candidate, true)
		if score > bestScore {
			best, bestScore = candidate, score
		}
	}
	if bestScore < suggestionThreshold {
		return ""
	}
	return best
}

// SweepRateLimits drops expired rate-limit windows. Intended to be called
// periodically from the application lifecycle.
func (r *Registry) SweepRateLimits() {
	r.limiter.sweep()
}

func paramNames(params map[string]any) []string {
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
