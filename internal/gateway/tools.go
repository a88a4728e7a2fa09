package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/attestia/attestia/internal/audit"
	"github.com/attestia/attestia/internal/tool"
	"github.com/attestia/attestia/pkg/types"
)

// maxBatchSize bounds how many tool calls one batch request may carry.
const maxBatchSize = 10

func (g *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, envelope{
		"success": true,
		"tools":   g.registry.List(),
	})
}

func (g *Server) handleGetTool(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	doc, ok := g.registry.Describe(name)
	if !ok {
		msg := fmt.Sprintf("unknown tool %q", name)
		if s := suggest(name, g.toolNames()); s != "" {
			msg += fmt.Sprintf("; did you mean %q?", s)
		}
		g.writeError(w, http.StatusNotFound, msg)
		return
	}
	g.writeJSON(w, http.StatusOK, envelope{"success": true, "tool": doc})
}

// executeToolRequest is the body of a single tool execution.
type executeToolRequest struct {
	Parameters map[string]any `json:"parameters"`
}

func (g *Server) handleExecuteTool(w http.ResponseWriter, r *http.Request) {
	actor := g.auth.Resolve(r)
	if actor.IsAnonymous() {
		g.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	name := r.PathValue("name")
	var req executeToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, http.StatusBadRequest, g.sanitized("malformed request body", err.Error()))
		return
	}

	inv := types.InvocationContext{
		Actor:     actor,
		SessionID: g.sessionID(r),
	}

	start := time.Now()
	res, ok := race(r.Context(), g.execTimeout, func(ctx context.Context) tool.Result {
		return g.registry.Execute(ctx, name, req.Parameters, inv)
	})
	elapsed := time.Since(start)

	if !ok {
		g.auditTimeout(r.Context(), "tool", name, actor, inv.SessionID)
		g.metrics.RecordToolCall(r.Context(), name, "timeout", elapsed.Seconds())
		g.writeError(w, http.StatusGatewayTimeout, "tool execution timed out")
		return
	}

	status := "success"
	severity := audit.SeverityLow
	if !res.Success {
		status = "error"
		severity = audit.SeverityMedium
	}
	g.metrics.RecordToolCall(r.Context(), name, status, elapsed.Seconds())
	audit.Emit(r.Context(), g.sink, audit.Event{
		Action:         audit.ActionGatewayToolExecute,
		ActorID:        actor.Key(),
		OrganizationID: actor.OrganizationID,
		ResourceType:   "tool",
		ResourceID:     name,
		Severity:       severity,
		Details: map[string]any{
			"sessionId":  inv.SessionID,
			"success":    res.Success,
			"durationMs": elapsed.Milliseconds(),
		},
	})

	g.writeJSON(w, http.StatusOK, envelope{
		"success": res.Success,
		"result":  res,
	})
}

// batchRequest is the body of a batch execution: up to maxBatchSize calls,
// executed sequentially.
type batchRequest struct {
	Calls []batchCall `json:"calls"`
}

type batchCall struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
}

func (g *Server) handleBatchExecute(w http.ResponseWriter, r *http.Request) {
	actor := g.auth.Resolve(r)
	if actor.IsAnonymous() {
		g.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, http.StatusBadRequest, g.sanitized("malformed request body", err.Error()))
		return
	}
	if len(req.Calls) == 0 {
		g.writeError(w, http.StatusBadRequest, "batch contains no calls")
		return
	}
	if len(req.Calls) > maxBatchSize {
		g.writeError(w, http.StatusBadRequest,
			fmt.Sprintf("batch size %d exceeds the maximum of %d", len(req.Calls), maxBatchSize))
		return
	}

	inv := types.InvocationContext{
		Actor:     actor,
		SessionID: g.sessionID(r),
	}

	// Calls run in sequence. An invalid entry (unknown tool name or
	// malformed parameters) fails the whole batch; results collected before
	// that point are discarded.
	results := make([]tool.Result, 0, len(req.Calls))
	for i, call := range req.Calls {
		if _, known := g.registry.Get(call.Name); !known {
			msg := fmt.Sprintf("batch entry %d: unknown tool %q", i, call.Name)
			if s := suggest(call.Name, g.toolNames()); s != "" {
				msg += fmt.Sprintf("; did you mean %q?", s)
			}
			g.writeError(w, http.StatusBadRequest, msg)
			return
		}
		if err := g.registry.ValidateParams(call.Name, call.Parameters); err != nil {
			g.writeError(w, http.StatusBadRequest,
				fmt.Sprintf("batch entry %d: %s", i, err.Error()))
			return
		}

		start := time.Now()
		res, ok := race(r.Context(), g.execTimeout, func(ctx context.Context) tool.Result {
			return g.registry.Execute(ctx, call.Name, call.Parameters, inv)
		})
		elapsed := time.Since(start)

		if !ok {
			g.auditTimeout(r.Context(), "tool", call.Name, actor, inv.SessionID)
			g.metrics.RecordToolCall(r.Context(), call.Name, "timeout", elapsed.Seconds())
			res = tool.Failure("tool execution timed out")
		} else {
			status := "success"
			if !res.Success {
				status = "error"
			}
			g.metrics.RecordToolCall(r.Context(), call.Name, status, elapsed.Seconds())
		}

		audit.Emit(r.Context(), g.sink, audit.Event{
			Action:         audit.ActionGatewayToolExecute,
			ActorID:        actor.Key(),
			OrganizationID: actor.OrganizationID,
			ResourceType:   "tool",
			ResourceID:     call.Name,
			Severity:       batchSeverity(res),
			Details: map[string]any{
				"sessionId":  inv.SessionID,
				"batchIndex": i,
				"success":    res.Success,
				"durationMs": elapsed.Milliseconds(),
			},
		})

		results = append(results, res)
	}

	g.writeJSON(w, http.StatusOK, envelope{
		"success": true,
		"results": results,
	})
}

func batchSeverity(res tool.Result) audit.Severity {
	if res.Success {
		return audit.SeverityLow
	}
	return audit.SeverityMedium
}

func (g *Server) auditTimeout(ctx context.Context, resourceType, resourceID string, actor types.Actor, sessionID string) {
	audit.Emit(ctx, g.sink, audit.Event{
		Action:         audit.ActionGatewayTimeout,
		ActorID:        actor.Key(),
		OrganizationID: actor.OrganizationID,
		ResourceType:   resourceType,
		ResourceID:     resourceID,
		Severity:       audit.SeverityHigh,
		Details: map[string]any{
			"sessionId": sessionID,
			"timeoutMs": g.execTimeout.Milliseconds(),
		},
	})
}

func (g *Server) toolNames() []string {
	docs := g.registry.List()
	names := make([]string, len(docs))
	for i, d := range docs {
		names[i] = d.Name
	}
	return names
}
