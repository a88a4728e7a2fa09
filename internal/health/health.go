// Package health exposes the attestia gateway's liveness and readiness
// endpoints.
//
//   - /healthz — liveness; a process that can serve HTTP is alive.
//   - /readyz  — readiness; passes only when every registered [Checker]
//     (database pool, agent roster, tool registry) reports healthy.
//
// Responses are JSON: {"service":"attestia","status":"ok"|"fail"} with a
// "checks" map naming each probe's outcome, so an operator reading a failed
// readiness probe can tell whether it is the database, the roster, or the
// tools that went away.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// serviceName identifies this service in probe responses.
const serviceName = "attestia"

// defaultCheckTimeout bounds a single readiness probe. Hung dependencies
// must fail the probe, not hang the endpoint.
const defaultCheckTimeout = 5 * time.Second

// Checker is a named readiness probe. Check returns nil when the dependency
// is healthy and an error describing the failure otherwise; it must respect
// context cancellation.
type Checker struct {
	// Name keys the probe's outcome in the JSON response ("database",
	// "agents", "tools").
	Name string

	// Check probes the dependency.
	Check func(ctx context.Context) error
}

// status is the JSON body for both probe endpoints.
type status struct {
	Service string            `json:"service"`
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. The checker list is fixed at
// construction; the check timeout may be adjusted before the handler is
// registered. Safe for concurrent use once serving.
type Handler struct {
	checkers []Checker
	timeout  time.Duration
}

// New creates a [Handler] that evaluates the given checkers, in order, on
// each /readyz request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c, timeout: defaultCheckTimeout}
}

// SetCheckTimeout overrides the per-check deadline. Zero and negative
// values are ignored.
func (h *Handler) SetCheckTimeout(d time.Duration) {
	if d > 0 {
		h.timeout = d
	}
}

// Healthz always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, status{Service: serviceName, Status: "ok"})
}

// Readyz runs every checker under the configured deadline and returns 200
// only when all of them pass; any failure yields 503 with the failing
// checks named in the body.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := status{
		Service: serviceName,
		Status:  "ok",
		Checks:  make(map[string]string, len(h.checkers)),
	}
	code := http.StatusOK

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			res.Checks[c.Name] = "fail: " + err.Error()
			res.Status = "fail"
			code = http.StatusServiceUnavailable
			continue
		}
		res.Checks[c.Name] = "ok"
	}

	writeJSON(w, code, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
