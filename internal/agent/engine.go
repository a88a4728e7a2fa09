package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/attestia/attestia/internal/audit"
	"github.com/attestia/attestia/internal/budget"
	"github.com/attestia/attestia/internal/classify"
	"github.com/attestia/attestia/internal/observe"
	"github.com/attestia/attestia/internal/tool"
	"github.com/attestia/attestia/pkg/provider/llm"
	"github.com/attestia/attestia/pkg/types"
)

// Iteration bounds for the tool-calling loop.
const (
	DefaultMaxIterations = 5
	MinIterations        = 1
	MaxIterations        = 10
)

// maxIterationsContent is the reply substituted when the loop exhausts its
// iteration budget with tool calls still pending.
const maxIterationsContent = "I could not complete this request within the allowed number of steps. Partial work has been recorded; please narrow the request and try again."

// TurnRequest describes one agent turn.
type TurnRequest struct {
	// AgentID selects the registered agent.
	AgentID string

	// Actor is the resolved caller identity.
	Actor types.Actor

	// SessionID correlates the turn across audit records.
	SessionID string

	// Prompt is the caller's message.
	Prompt string

	// Attachments accompany the prompt, already normalized by the gateway.
	Attachments []types.Attachment

	// MaxIterations caps the tool-calling loop for this turn. Zero means
	// DefaultMaxIterations; other values are clamped to [1, 10].
	MaxIterations int
}

// ExecutedToolCall summarises one tool execution within a turn.
type ExecutedToolCall struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Response is the outcome of an agent turn.
type Response struct {
	// Content is the agent's final reply text.
	Content string `json:"content"`

	// ToolCalls lists every tool executed during the turn, in order.
	ToolCalls []ExecutedToolCall `json:"toolCalls,omitempty"`

	// Metadata carries turn diagnostics: model, strategy, iterations,
	// prompt template identity, classification, and flags such as
	// blocked or maxIterationsReached.
	Metadata map[string]any `json:"metadata"`
}

// Engine runs agent turns: budget gate, prompt assembly, the bounded
// tool-calling loop, and post-turn accounting.
type Engine struct {
	roster   *Roster
	registry *tool.Registry
	history  *History

	budget     budget.Service
	classifier classify.Classifier
	sink       audit.Sink
	metrics    *observe.Metrics
	log        *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithBudget sets the usage-accounting gate.
func WithBudget(svc budget.Service) EngineOption {
	return func(e *Engine) { e.budget = svc }
}

// WithClassifier sets the output classifier.
func WithClassifier(c classify.Classifier) EngineOption {
	return func(e *Engine) { e.classifier = c }
}

// WithAuditSink sets the sink receiving the engine's audit events.
func WithAuditSink(sink audit.Sink) EngineOption {
	return func(e *Engine) { e.sink = sink }
}

// WithLogger sets the engine's logger.
func WithLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) { e.log = log }
}

// WithMetrics sets the metric instruments the engine records on.
func WithMetrics(m *observe.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an engine over the given roster and tool registry.
func NewEngine(roster *Roster, registry *tool.Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		roster:   roster,
		registry: registry,
		history:  NewHistory(),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// History exposes the engine's conversation store for gateway operations
// (clear) and lifecycle sweepers.
func (e *Engine) History() *History {
	return e.history
}

// Roster exposes the agent roster for listing endpoints.
func (e *Engine) Roster() *Roster {
	return e.roster
}

// ErrUnknownAgent is returned by ExecuteTurn for unregistered agent IDs.
var ErrUnknownAgent = fmt.Errorf("agent: unknown agent")

// ExecuteTurn runs one turn. The returned Response is non-nil whenever
// error is nil, including budget denials and iteration exhaustion, which
// are reported in metadata rather than as errors.
func (e *Engine) ExecuteTurn(ctx context.Context, req TurnRequest) (*Response, error) {
	def, provider, ok := e.roster.Get(req.AgentID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, req.AgentID)
	}

	maxIter := clampIterations(req.MaxIterations)
	userPrompt, inlinedAttachments := assemblePrompt(req.Prompt, req.Attachments)

	// Budget gate runs before any provider work; a denial costs nothing.
	if e.budget != nil {
		decision, err := e.budget.CheckBudget(ctx, budget.CheckRequest{
			Actor:                  req.Actor,
			Scope:                  "agent",
			ActionType:             "agent_turn",
			Model:                  def.Model,
			Prompt:                 userPrompt,
			ExpectedResponseTokens: def.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("agent %s: budget check: %w", def.ID, err)
		}
		if !decision.Allowed {
			audit.Emit(ctx, e.sink, audit.Event{
				Action:         audit.ActionAgentBudgetBlocked,
				ActorID:        req.Actor.Key(),
				OrganizationID: req.Actor.OrganizationID,
				ResourceType:   "agent",
				ResourceID:     def.ID,
				Severity:       audit.SeverityMedium,
				Details: map[string]any{
					"reason":    decision.Reason,
					"sessionId": req.SessionID,
				},
			})
			e.metrics.RecordBudgetDenial(ctx, decision.Reason)
			return &Response{
				Content: "Usage budget exceeded; this request was not processed.",
				Metadata: map[string]any{
					"blocked": true,
					"reason":  decision.Reason,
				},
			}, nil
		}
	}

	family := def.Family
	if family == "" {
		family = def.Provider
	}
	strat := selectStrategy(family, provider.Capabilities())
	if !strat.supportsTools() {
		maxIter = 1
	}

	callerKey := req.Actor.Key()
	messages := strat.initialMessages(e.history.Get(callerKey, req.AgentID), userPrompt)

	var tools []types.ToolDefinition
	if strat.supportsTools() && len(def.Tools) > 0 {
		tools = e.registry.Definitions(def.Tools)
	}

	start := time.Now()
	var (
		executed   []ExecutedToolCall
		usage      llm.Usage
		content    string
		iterations int
		exhausted  bool
	)

	for iterations < maxIter {
		iterations++

		callStart := time.Now()
		resp, err := provider.Complete(ctx, llm.CompletionRequest{
			Messages:     messages,
			Tools:        tools,
			Temperature:  def.Temperature,
			MaxTokens:    def.MaxTokens,
			SystemPrompt: def.SystemPrompt,
		})
		e.metrics.ModelDuration.Record(ctx, time.Since(callStart).Seconds())
		if err != nil {
			e.metrics.RecordProviderError(ctx, def.Provider, def.Model)
			audit.Emit(ctx, e.sink, audit.Event{
				Action:         audit.ActionAgentProviderError,
				ActorID:        req.Actor.Key(),
				OrganizationID: req.Actor.OrganizationID,
				ResourceType:   "agent",
				ResourceID:     def.ID,
				Severity:       audit.SeverityHigh,
				Details: map[string]any{
					"sessionId": req.SessionID,
					"provider":  def.Provider,
					"model":     def.Model,
					"iteration": iterations,
					"error":     err.Error(),
				},
			})
			return nil, fmt.Errorf("agent %s: model call %d: %w", def.ID, iterations, err)
		}

		usage.PromptTokens += resp.Usage.PromptTokens
		usage.CompletionTokens += resp.Usage.CompletionTokens
		usage.TotalTokens += resp.Usage.TotalTokens

		messages = append(messages, strat.assistantMessage(resp))

		if len(resp.ToolCalls) == 0 || !strat.supportsTools() {
			content = resp.Content
			break
		}

		exchanges := make([]toolExchange, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			outcome := e.executeToolCall(ctx, def, req, call)
			executed = append(executed, ExecutedToolCall{
				ID:      call.ID,
				Name:    call.Name,
				Success: outcome.Success,
				Error:   outcome.Error,
			})
			exchanges = append(exchanges, toolExchange{
				call:    call,
				output:  serializeResult(outcome),
				isError: !outcome.Success,
			})
		}
		messages = append(messages, strat.toolResultMessages(exchanges)...)

		if iterations == maxIter {
			exhausted = true
		}
	}

	if exhausted {
		content = maxIterationsContent
		e.log.Warn("agent turn exhausted iteration budget",
			"agent", def.ID, "caller", callerKey, "iterations", iterations)
	}

	// History keeps the flat user/assistant exchange regardless of the
	// strategy's wire shape.
	e.history.Append(callerKey, req.AgentID,
		types.Message{Role: "user", Content: req.Prompt},
		types.Message{Role: "assistant", Content: content},
	)

	metadata := map[string]any{
		"model":          def.Model,
		"provider":       def.Provider,
		"strategy":       strat.name(),
		"promptTemplate": def.PromptTemplateID(),
		"iterations":     iterations,
		"durationMs":     time.Since(start).Milliseconds(),
		"promptTokens":   usage.PromptTokens,
		"responseTokens": usage.CompletionTokens,
	}
	if inlinedAttachments > 0 {
		metadata["attachmentsInlined"] = inlinedAttachments
	}
	if exhausted {
		metadata["maxIterationsReached"] = true
	}
	if !strat.supportsTools() {
		metadata["toolsDisabled"] = true
	}

	if e.budget != nil {
		if _, err := e.budget.RecordUsage(ctx, types.UsageRecord{
			Actor:          req.Actor,
			Model:          def.Model,
			Purpose:        "agent_turn",
			PromptTokens:   usage.PromptTokens,
			ResponseTokens: usage.CompletionTokens,
		}); err != nil {
			e.log.Error("usage recording failed", "agent", def.ID, "err", err)
		}
	}

	if e.classifier != nil && content != "" {
		cls, err := e.classifier.Classify(ctx, content)
		if err != nil {
			e.log.Warn("output classification failed", "agent", def.ID, "err", err)
		} else {
			metadata["classification"] = cls.Label
			if len(cls.Tags) > 0 {
				metadata["classificationTags"] = cls.Tags
			}
		}
	}

	audit.Emit(ctx, e.sink, audit.Event{
		Action:         audit.ActionAgentExecute,
		ActorID:        req.Actor.Key(),
		OrganizationID: req.Actor.OrganizationID,
		ResourceType:   "agent",
		ResourceID:     def.ID,
		Severity:       audit.SeverityLow,
		Details: map[string]any{
			"sessionId":  req.SessionID,
			"iterations": iterations,
			"toolCalls":  len(executed),
			"model":      def.Model,
		},
	})

	return &Response{Content: content, ToolCalls: executed, Metadata: metadata}, nil
}

// ClearConversation removes the caller's conversation with the agent.
// Clearing an absent conversation succeeds.
func (e *Engine) ClearConversation(actor types.Actor, agentID string) {
	e.history.Clear(actor.Key(), agentID)
}

// executeToolCall decodes a model-requested call and runs it through the
// registry. Malformed argument JSON becomes a failed result fed back to the
// model rather than an aborted turn.
func (e *Engine) executeToolCall(ctx context.Context, def Definition, req TurnRequest, call types.ToolCall) tool.Result {
	if !allowedTool(def, call.Name) {
		return tool.Failure(fmt.Sprintf("tool %s is not available to this agent", call.Name))
	}

	var params map[string]any
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &params); err != nil {
			return tool.Failure(fmt.Sprintf("invalid arguments for tool %s: %v", call.Name, err))
		}
	}

	return e.registry.Execute(ctx, call.Name, params, types.InvocationContext{
		Actor:     req.Actor,
		SessionID: req.SessionID,
		AgentID:   def.ID,
	})
}

func allowedTool(def Definition, name string) bool {
	for _, t := range def.Tools {
		if t == name {
			return true
		}
	}
	return false
}

// serializeResult renders a tool result as the text fed back to the model.
func serializeResult(res tool.Result) string {
	if !res.Success {
		return "Error: " + res.Error
	}
	data, err := json.Marshal(res.Data)
	if err != nil {
		return fmt.Sprintf("%v", res.Data)
	}
	return string(data)
}

func clampIterations(n int) int {
	switch {
	case n == 0:
		return DefaultMaxIterations
	case n < MinIterations:
		return MinIterations
	case n > MaxIterations:
		return MaxIterations
	default:
		return n
	}
}
