package agent

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/attestia/attestia/internal/audit"
	"github.com/attestia/attestia/internal/budget"
	"github.com/attestia/attestia/internal/classify"
	"github.com/attestia/attestia/internal/tool"
	"github.com/attestia/attestia/pkg/provider/llm"
	"github.com/attestia/attestia/pkg/provider/llm/mock"
	"github.com/attestia/attestia/pkg/types"
)

func advisorDef() Definition {
	return Definition{
		ID:           "advisor",
		DisplayName:  "Compliance Advisor",
		Provider:     "openai",
		Model:        "gpt-4o",
		Tools:        []string{"document_search"},
		SystemPrompt: "You help with compliance questions.",
	}
}

func newTestEngine(t *testing.T, def Definition, provider llm.Provider, opts ...EngineOption) (*Engine, *atomic.Int64) {
	t.Helper()

	var toolCalls atomic.Int64
	reg := tool.New()
	if err := reg.Register(tool.Tool{
		Name:           "document_search",
		Classification: tool.ClassInternal,
		Parameters:     []tool.Parameter{{Name: "query", Type: tool.TypeString, Required: true}},
		Handler: func(context.Context, map[string]any, types.InvocationContext) (tool.Result, error) {
			toolCalls.Add(1)
			return tool.Result{Success: true, Data: []string{"doc-1"}}, nil
		},
	}); err != nil {
		t.Fatal(err)
	}

	roster := NewRoster()
	if err := roster.Register(def, provider); err != nil {
		t.Fatal(err)
	}
	return NewEngine(roster, reg, opts...), &toolCalls
}

func searchCall(id string) types.ToolCall {
	return types.ToolCall{ID: id, Name: "document_search", Arguments: `{"query":"gdpr"}`}
}

func TestExecuteTurnSimpleReply(t *testing.T) {
	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "GDPR applies to any processing of EU personal data.",
			Usage:   llm.Usage{PromptTokens: 40, CompletionTokens: 12},
		},
		ModelCapabilities: types.ModelCapabilities{SupportsToolCalling: true},
	}
	engine, toolCalls := newTestEngine(t, advisorDef(), provider,
		WithClassifier(classify.NewKeywordClassifier()))

	resp, err := engine.ExecuteTurn(context.Background(), TurnRequest{
		AgentID: "advisor",
		Actor:   types.Actor{UserID: "user-1"},
		Prompt:  "Does GDPR apply to us?",
	})
	if err != nil {
		t.Fatalf("ExecuteTurn() = %v", err)
	}

	if !strings.Contains(resp.Content, "GDPR applies") {
		t.Errorf("content = %q", resp.Content)
	}
	if provider.Calls() != 1 {
		t.Errorf("provider calls = %d, want 1", provider.Calls())
	}
	if toolCalls.Load() != 0 {
		t.Errorf("tool executions = %d, want 0", toolCalls.Load())
	}
	if resp.Metadata["iterations"] != 1 {
		t.Errorf("iterations = %v, want 1", resp.Metadata["iterations"])
	}
	if resp.Metadata["strategy"] != "tool-role" {
		t.Errorf("strategy = %v, want tool-role", resp.Metadata["strategy"])
	}
	if tmpl, _ := resp.Metadata["promptTemplate"].(string); !strings.HasPrefix(tmpl, "advisor@") {
		t.Errorf("promptTemplate = %v, want advisor@<hash>", resp.Metadata["promptTemplate"])
	}
	if _, ok := resp.Metadata["classification"]; !ok {
		t.Error("metadata missing output classification")
	}

	// The exchange lands in history.
	history := engine.History().Get("user-1", "advisor")
	if len(history) != 2 || history[0].Role != "user" || history[1].Role != "assistant" {
		t.Errorf("history = %+v, want user+assistant pair", history)
	}
}

func TestExecuteTurnToolLoop(t *testing.T) {
	provider := &mock.Provider{
		CompleteScript: []*llm.CompletionResponse{
			{ToolCalls: []types.ToolCall{searchCall("call-1")}},
			{Content: "Found it in doc-1.", Usage: llm.Usage{PromptTokens: 80, CompletionTokens: 10}},
		},
		ModelCapabilities: types.ModelCapabilities{SupportsToolCalling: true},
	}
	engine, toolCalls := newTestEngine(t, advisorDef(), provider)

	resp, err := engine.ExecuteTurn(context.Background(), TurnRequest{
		AgentID: "advisor",
		Actor:   types.Actor{UserID: "user-1"},
		Prompt:  "Find the retention policy.",
	})
	if err != nil {
		t.Fatalf("ExecuteTurn() = %v", err)
	}

	if resp.Content != "Found it in doc-1." {
		t.Errorf("content = %q", resp.Content)
	}
	if provider.Calls() != 2 {
		t.Errorf("provider calls = %d, want 2", provider.Calls())
	}
	if toolCalls.Load() != 1 {
		t.Errorf("tool executions = %d, want 1", toolCalls.Load())
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "document_search" || !resp.ToolCalls[0].Success {
		t.Errorf("executed tool calls = %+v", resp.ToolCalls)
	}

	// The second model call must carry the tool result back.
	second := provider.CompleteCalls[1].Req
	last := second.Messages[len(second.Messages)-1]
	if last.Role != "tool" || last.ToolCallID != "call-1" {
		t.Errorf("last message of second call = %+v, want tool result", last)
	}
}

func TestExecuteTurnIterationExhaustion(t *testing.T) {
	// The model asks for a tool on every call; with maxIterations=2 the
	// engine makes exactly 2 model calls and 2 tool executions, then
	// substitutes the placeholder.
	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			ToolCalls: []types.ToolCall{searchCall("call-n")},
		},
		ModelCapabilities: types.ModelCapabilities{SupportsToolCalling: true},
	}
	engine, toolCalls := newTestEngine(t, advisorDef(), provider)

	resp, err := engine.ExecuteTurn(context.Background(), TurnRequest{
		AgentID:       "advisor",
		Actor:         types.Actor{UserID: "user-1"},
		Prompt:        "Keep digging.",
		MaxIterations: 2,
	})
	if err != nil {
		t.Fatalf("ExecuteTurn() = %v", err)
	}

	if provider.Calls() != 2 {
		t.Errorf("provider calls = %d, want 2", provider.Calls())
	}
	if toolCalls.Load() != 2 {
		t.Errorf("tool executions = %d, want 2", toolCalls.Load())
	}
	if resp.Metadata["maxIterationsReached"] != true {
		t.Error("metadata missing maxIterationsReached")
	}
	if !strings.Contains(resp.Content, "could not complete") {
		t.Errorf("content = %q, want placeholder", resp.Content)
	}

	// History is persisted even for exhausted turns.
	if got := engine.History().Get("user-1", "advisor"); len(got) != 2 {
		t.Errorf("history entries = %d, want 2", len(got))
	}
}

func TestExecuteTurnBudgetDenial(t *testing.T) {
	provider := &mock.Provider{
		CompleteResponse:  &llm.CompletionResponse{Content: "should never be sent"},
		ModelCapabilities: types.ModelCapabilities{SupportsToolCalling: true},
	}
	sink := &audit.MemorySink{}
	ledger := budget.NewMemoryLedger(1)
	engine, _ := newTestEngine(t, advisorDef(), provider,
		WithBudget(ledger), WithAuditSink(sink))

	resp, err := engine.ExecuteTurn(context.Background(), TurnRequest{
		AgentID: "advisor",
		Actor:   types.Actor{UserID: "user-1"},
		Prompt:  strings.Repeat("long prompt ", 50),
	})
	if err != nil {
		t.Fatalf("ExecuteTurn() = %v", err)
	}

	if resp.Metadata["blocked"] != true {
		t.Errorf("metadata = %v, want blocked:true", resp.Metadata)
	}
	if !strings.Contains(resp.Content, "budget exceeded") {
		t.Errorf("content = %q, want a reply naming the exceeded budget", resp.Content)
	}
	if resp.Metadata["reason"] != budget.ReasonDailyCap {
		t.Errorf("reason = %v, want %s", resp.Metadata["reason"], budget.ReasonDailyCap)
	}
	if provider.Calls() != 0 {
		t.Errorf("provider calls = %d, want 0 on budget denial", provider.Calls())
	}
	if got := len(sink.ByAction(audit.ActionAgentBudgetBlocked)); got != 1 {
		t.Errorf("budget-blocked audit events = %d, want 1", got)
	}
}

func TestExecuteTurnRecordsUsage(t *testing.T) {
	provider := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "done",
			Usage:   llm.Usage{PromptTokens: 100, CompletionTokens: 20},
		},
		ModelCapabilities: types.ModelCapabilities{SupportsToolCalling: true},
	}
	ledger := budget.NewMemoryLedger(1_000_000)
	engine, _ := newTestEngine(t, advisorDef(), provider, WithBudget(ledger))

	actor := types.Actor{UserID: "user-1"}
	if _, err := engine.ExecuteTurn(context.Background(), TurnRequest{
		AgentID: "advisor",
		Actor:   actor,
		Prompt:  "hello",
	}); err != nil {
		t.Fatalf("ExecuteTurn() = %v", err)
	}

	if spent := ledger.Spent(actor); spent != 120 {
		t.Errorf("spent = %d, want 120", spent)
	}
}

func TestExecuteTurnDisallowedToolFedBackAsError(t *testing.T) {
	provider := &mock.Provider{
		CompleteScript: []*llm.CompletionResponse{
			{ToolCalls: []types.ToolCall{{ID: "c1", Name: "profile_lookup", Arguments: "{}"}}},
			{Content: "understood"},
		},
		ModelCapabilities: types.ModelCapabilities{SupportsToolCalling: true},
	}
	engine, _ := newTestEngine(t, advisorDef(), provider)

	resp, err := engine.ExecuteTurn(context.Background(), TurnRequest{
		AgentID: "advisor",
		Actor:   types.Actor{UserID: "user-1"},
		Prompt:  "look me up",
	})
	if err != nil {
		t.Fatalf("ExecuteTurn() = %v", err)
	}

	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Success {
		t.Fatalf("executed calls = %+v, want one failed call", resp.ToolCalls)
	}
	if !strings.Contains(resp.ToolCalls[0].Error, "not available") {
		t.Errorf("error = %q, want not-available message", resp.ToolCalls[0].Error)
	}

	// The failure travels back to the model instead of aborting the turn.
	second := provider.CompleteCalls[1].Req
	last := second.Messages[len(second.Messages)-1]
	if !strings.Contains(last.Content, "not available") {
		t.Errorf("tool result fed to model = %q", last.Content)
	}
}

func TestExecuteTurnTextOnlyStrategy(t *testing.T) {
	def := advisorDef()
	def.Provider = "ollama"
	def.Model = "llama3.1"
	provider := &mock.Provider{
		CompleteResponse:  &llm.CompletionResponse{Content: "plain answer"},
		ModelCapabilities: types.ModelCapabilities{SupportsToolCalling: false},
	}
	engine, _ := newTestEngine(t, def, provider)

	resp, err := engine.ExecuteTurn(context.Background(), TurnRequest{
		AgentID:       "advisor",
		Actor:         types.Actor{UserID: "user-1"},
		Prompt:        "question",
		MaxIterations: 7,
	})
	if err != nil {
		t.Fatalf("ExecuteTurn() = %v", err)
	}

	if resp.Metadata["toolsDisabled"] != true {
		t.Error("metadata missing toolsDisabled")
	}
	if resp.Metadata["iterations"] != 1 {
		t.Errorf("iterations = %v, want forced 1", resp.Metadata["iterations"])
	}
	if req := provider.CompleteCalls[0].Req; len(req.Tools) != 0 {
		t.Errorf("tools offered = %d, want 0", len(req.Tools))
	}
}

func TestExecuteTurnUnknownAgent(t *testing.T) {
	provider := &mock.Provider{ModelCapabilities: toolCaps()}
	engine, _ := newTestEngine(t, advisorDef(), provider)

	_, err := engine.ExecuteTurn(context.Background(), TurnRequest{AgentID: "nope"})
	if !errors.Is(err, ErrUnknownAgent) {
		t.Fatalf("err = %v, want ErrUnknownAgent", err)
	}
}

func TestExecuteTurnProviderError(t *testing.T) {
	provider := &mock.Provider{
		CompleteErr:       errors.New("upstream 500"),
		ModelCapabilities: toolCaps(),
	}
	sink := &audit.MemorySink{}
	engine, _ := newTestEngine(t, advisorDef(), provider, WithAuditSink(sink))

	_, err := engine.ExecuteTurn(context.Background(), TurnRequest{
		AgentID: "advisor",
		Actor:   types.Actor{UserID: "user-1"},
		Prompt:  "hi",
	})
	if err == nil || !strings.Contains(err.Error(), "upstream 500") {
		t.Fatalf("err = %v, want wrapped provider error", err)
	}

	events := sink.ByAction(audit.ActionAgentProviderError)
	if len(events) != 1 {
		t.Fatalf("provider error audit events = %d, want 1", len(events))
	}
	if events[0].Severity != audit.SeverityHigh {
		t.Errorf("severity = %q, want %q", events[0].Severity, audit.SeverityHigh)
	}
	if events[0].Details["provider"] != "openai" {
		t.Errorf("details provider = %v", events[0].Details["provider"])
	}
}

func TestClampIterations(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, DefaultMaxIterations},
		{-3, MinIterations},
		{1, 1},
		{10, 10},
		{99, MaxIterations},
	}
	for _, tc := range tests {
		if got := clampIterations(tc.in); got != tc.want {
			t.Errorf("clampIterations(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestRosterRejectsDuplicateAndInvalid(t *testing.T) {
	roster := NewRoster()
	p := &mock.Provider{}

	if err := roster.Register(advisorDef(), p); err != nil {
		t.Fatal(err)
	}
	if err := roster.Register(advisorDef(), p); err == nil {
		t.Error("duplicate registration succeeded")
	}
	if err := roster.Register(Definition{ID: "x"}, p); err == nil {
		t.Error("definition without provider accepted")
	}
	if err := roster.Register(Definition{Provider: "openai", Model: "gpt-4o"}, p); err == nil {
		t.Error("definition without id accepted")
	}
}
