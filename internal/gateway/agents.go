package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/attestia/attestia/internal/agent"
	"github.com/attestia/attestia/internal/audit"
)

// maxPromptChars bounds the prompt accepted for one agent turn.
const maxPromptChars = 10_000

// agentView is the client-facing projection of an agent definition. The
// system prompt stays server-side.
type agentView struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Description string   `json:"description,omitempty"`
	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	Tools       []string `json:"tools,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

func viewOf(def agent.Definition) agentView {
	return agentView{
		ID:          def.ID,
		DisplayName: def.DisplayName,
		Description: def.Description,
		Provider:    def.Provider,
		Model:       def.Model,
		Tools:       def.Tools,
		Tags:        def.Tags,
	}
}

func (g *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	defs := g.engine.Roster().List()
	views := make([]agentView, len(defs))
	for i, d := range defs {
		views[i] = viewOf(d)
	}
	g.writeJSON(w, http.StatusOK, envelope{"success": true, "agents": views})
}

func (g *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	def, _, ok := g.engine.Roster().Get(id)
	if !ok {
		g.writeError(w, http.StatusNotFound, g.unknownAgentMessage(id))
		return
	}
	g.writeJSON(w, http.StatusOK, envelope{"success": true, "agent": viewOf(def)})
}

// turnRequestBody is the body of one agent turn. Identity fields in the
// body are ignored; the actor comes from the gateway's authenticator.
type turnRequestBody struct {
	Prompt        string              `json:"prompt"`
	Attachments   []attachmentPayload `json:"attachments,omitempty"`
	MaxIterations int                 `json:"maxIterations,omitempty"`
}

// turnOutcome carries ExecuteTurn's pair through the timeout race.
type turnOutcome struct {
	resp *agent.Response
	err  error
}

func (g *Server) handleAgentTurn(w http.ResponseWriter, r *http.Request) {
	actor := g.auth.Resolve(r)
	if actor.IsAnonymous() {
		g.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id := r.PathValue("id")
	var body turnRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		g.writeError(w, http.StatusBadRequest, g.sanitized("malformed request body", err.Error()))
		return
	}
	if body.Prompt == "" {
		g.writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	if len(body.Prompt) > maxPromptChars {
		g.writeError(w, http.StatusBadRequest,
			fmt.Sprintf("prompt length %d exceeds the maximum of %d characters", len(body.Prompt), maxPromptChars))
		return
	}

	attachments, err := normalizeAttachments(body.Attachments)
	if err != nil {
		g.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := agent.TurnRequest{
		AgentID:       id,
		Actor:         actor,
		SessionID:     g.sessionID(r),
		Prompt:        body.Prompt,
		Attachments:   attachments,
		MaxIterations: body.MaxIterations,
	}

	start := time.Now()
	out, ok := race(r.Context(), g.execTimeout, func(ctx context.Context) turnOutcome {
		resp, err := g.engine.ExecuteTurn(ctx, req)
		return turnOutcome{resp: resp, err: err}
	})
	elapsed := time.Since(start)

	if !ok {
		g.auditTimeout(r.Context(), "agent", id, actor, req.SessionID)
		g.metrics.RecordAgentTurn(r.Context(), id, "timeout", elapsed.Seconds())
		g.writeError(w, http.StatusGatewayTimeout, "agent turn timed out")
		return
	}

	if out.err != nil {
		if errors.Is(out.err, agent.ErrUnknownAgent) {
			g.writeError(w, http.StatusNotFound, g.unknownAgentMessage(id))
			return
		}
		g.metrics.RecordAgentTurn(r.Context(), id, "error", elapsed.Seconds())
		g.auditAgentExecute(r, id, req.SessionID, false, elapsed)
		g.writeError(w, http.StatusBadGateway,
			g.sanitized("agent turn failed", out.err.Error()))
		return
	}

	g.metrics.RecordAgentTurn(r.Context(), id, "success", elapsed.Seconds())
	g.auditAgentExecute(r, id, req.SessionID, true, elapsed)

	g.writeJSON(w, http.StatusOK, envelope{
		"success":   true,
		"content":   out.resp.Content,
		"toolCalls": out.resp.ToolCalls,
		"metadata":  out.resp.Metadata,
	})
}

func (g *Server) handleClearConversation(w http.ResponseWriter, r *http.Request) {
	actor := g.auth.Resolve(r)
	if actor.IsAnonymous() {
		g.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id := r.PathValue("id")
	if _, _, ok := g.engine.Roster().Get(id); !ok {
		g.writeError(w, http.StatusNotFound, g.unknownAgentMessage(id))
		return
	}

	// Clearing an already-empty conversation is a no-op, not an error.
	g.engine.ClearConversation(actor, id)
	g.writeJSON(w, http.StatusOK, envelope{"success": true})
}

func (g *Server) auditAgentExecute(r *http.Request, agentID, sessionID string, success bool, elapsed time.Duration) {
	actor := g.auth.Resolve(r)
	severity := audit.SeverityLow
	if !success {
		severity = audit.SeverityHigh
	}
	audit.Emit(r.Context(), g.sink, audit.Event{
		Action:         audit.ActionGatewayAgentExecute,
		ActorID:        actor.Key(),
		OrganizationID: actor.OrganizationID,
		ResourceType:   "agent",
		ResourceID:     agentID,
		Severity:       severity,
		Details: map[string]any{
			"sessionId":  sessionID,
			"success":    success,
			"durationMs": elapsed.Milliseconds(),
		},
	})
}

func (g *Server) unknownAgentMessage(id string) string {
	defs := g.engine.Roster().List()
	ids := make([]string, len(defs))
	for i, d := range defs {
		ids[i] = d.ID
	}
	msg := fmt.Sprintf("unknown agent %q", id)
	if s := suggest(id, ids); s != "" {
		msg += fmt.Sprintf("; did you mean %q?", s)
	}
	return msg
}
