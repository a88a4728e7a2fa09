// Package gateway exposes the tool registry and agent engine over HTTP.
//
// The gateway owns the concerns the inner services must not trust clients
// with: caller identity is resolved server-side from credentials, never
// from request bodies; attachments are normalized and size-checked before
// they reach the engine; and every execution is raced against a fixed
// caller-side timeout. Each tool and agent execution is additionally
// audit-logged here, on top of the Registry's own events.
package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/antzucaro/matchr"
	"github.com/attestia/attestia/internal/agent"
	"github.com/attestia/attestia/internal/audit"
	"github.com/attestia/attestia/internal/health"
	"github.com/attestia/attestia/internal/observe"
	"github.com/attestia/attestia/internal/tool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// defaultExecTimeout bounds every tool and agent execution as seen by the
// caller. The underlying handler is not cancelled when the race is lost;
// its result is discarded.
const defaultExecTimeout = 30 * time.Second

// suggestionThreshold matches the Registry's "did you mean" cutoff.
const suggestionThreshold = 0.85

// Server is the HTTP gateway in front of the registry and the engine.
type Server struct {
	registry *tool.Registry
	engine   *agent.Engine
	auth     Authenticator
	sink     audit.Sink
	metrics  *observe.Metrics
	health   *health.Handler
	log      *slog.Logger

	execTimeout     time.Duration
	developmentMode bool
}

// Option configures a Server.
type Option func(*Server)

// WithAuditSink sets the sink receiving gateway-level audit events.
func WithAuditSink(s audit.Sink) Option {
	return func(g *Server) { g.sink = s }
}

// WithMetrics sets the metrics instruments. Defaults to the global set.
func WithMetrics(m *observe.Metrics) Option {
	return func(g *Server) { g.metrics = m }
}

// WithHealth sets the health handler registered under /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(g *Server) { g.health = h }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Server) { g.log = l }
}

// WithExecTimeout overrides the caller-side execution timeout.
func WithExecTimeout(d time.Duration) Option {
	return func(g *Server) {
		if d > 0 {
			g.execTimeout = d
		}
	}
}

// WithDevelopmentMode exposes detailed error messages in responses. Never
// enable in production.
func WithDevelopmentMode(on bool) Option {
	return func(g *Server) { g.developmentMode = on }
}

// New creates the gateway. registry and engine are required; auth decides
// which callers count as authenticated.
func New(registry *tool.Registry, engine *agent.Engine, auth Authenticator, opts ...Option) *Server {
	g := &Server{
		registry:    registry,
		engine:      engine,
		auth:        auth,
		execTimeout: defaultExecTimeout,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.metrics == nil {
		g.metrics = observe.DefaultMetrics()
	}
	if g.health == nil {
		g.health = health.New()
	}
	return g
}

// Routes returns the gateway's route table.
func (g *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/tools", g.handleListTools)
	mux.HandleFunc("GET /v1/tools/{name}", g.handleGetTool)
	mux.HandleFunc("POST /v1/tools/{name}/execute", g.handleExecuteTool)
	mux.HandleFunc("POST /v1/tools/batch", g.handleBatchExecute)

	mux.HandleFunc("GET /v1/agents", g.handleListAgents)
	mux.HandleFunc("GET /v1/agents/{id}", g.handleGetAgent)
	mux.HandleFunc("POST /v1/agents/{id}/turns", g.handleAgentTurn)
	mux.HandleFunc("DELETE /v1/agents/{id}/conversation", g.handleClearConversation)

	g.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

// Handler returns the full handler chain: observability middleware around
// the route table.
func (g *Server) Handler() http.Handler {
	return observe.Middleware(g.metrics, g.log)(g.Routes())
}

// ─── Response envelope ──────────────────────────────────────────────────────

// envelope is the uniform response shape: {success, ...}.
type envelope map[string]any

func (g *Server) writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		g.log.Error("gateway: encode response", "err", err)
	}
}

func (g *Server) writeError(w http.ResponseWriter, status int, msg string) {
	g.writeJSON(w, status, envelope{"success": false, "error": msg})
}

// sanitized returns detail in development mode and the generic message
// otherwise.
func (g *Server) sanitized(generic, detail string) string {
	if g.developmentMode && detail != "" {
		return detail
	}
	return generic
}

// ─── Execution race ─────────────────────────────────────────────────────────

// race runs fn in its own goroutine and waits at most timeout for it to
// settle. The second return is false when the timer wins; fn keeps running
// in that case and its eventual result is discarded. fn receives a context
// detached from ctx's cancellation (trace values survive) so that losing
// the race, or the caller hanging up, never aborts the work in flight.
func race[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) T) (T, bool) {
	ch := make(chan T, 1)
	go func() { ch <- fn(context.WithoutCancel(ctx)) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case v := <-ch:
		return v, true
	case <-timer.C:
		var zero T
		return zero, false
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// sessionID returns the request's correlation ID, or a fresh random one when
// the request carries no trace context.
func (g *Server) sessionID(r *http.Request) string {
	if cid := observe.CorrelationID(r.Context()); cid != "" {
		return cid
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b[:])
}

// suggest returns the best near-match for name among candidates, or "".
func suggest(name string, candidates []string) string {
	best := ""
	bestScore := suggestionThreshold
	for _, c := range candidates {
		if score := matchr.JaroWinkler(name, c, true); score >= bestScore {
			best, bestScore = c, score
		}
	}
	return best
}
