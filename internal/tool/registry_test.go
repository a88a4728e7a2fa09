package tool

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/attestia/attestia/internal/audit"
	"github.com/attestia/attestia/internal/resilience"
	"github.com/attestia/attestia/pkg/types"
)

func okHandler(data any) Handler {
	return func(context.Context, map[string]any, types.InvocationContext) (Result, error) {
		return Result{Success: true, Data: data}, nil
	}
}

func authedCtx() types.InvocationContext {
	return types.InvocationContext{Actor: types.Actor{UserID: "user-1", OrganizationID: "org-1"}}
}

func TestRegisterRejectsInvalidTools(t *testing.T) {
	r := New()

	tests := []struct {
		name string
		tool Tool
	}{
		{"empty name", Tool{Classification: ClassInternal, Handler: okHandler(nil)}},
		{"bad classification", Tool{Name: "x", Classification: "cloud", Handler: okHandler(nil)}},
		{"nil handler", Tool{Name: "x", Classification: ClassInternal}},
		{"bad rate limit", Tool{Name: "x", Classification: ClassInternal, Handler: okHandler(nil), RateLimit: &RateLimit{MaxCalls: 0, WindowMs: 1000}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := r.Register(tc.tool); err == nil {
				t.Fatal("Register() = nil, want error")
			}
		})
	}
}

func TestRegisterOverwriteReplacesTool(t *testing.T) {
	r := New()
	if err := r.Register(Tool{Name: "echo", Classification: ClassInternal, Handler: okHandler("v1")}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(Tool{Name: "echo", Classification: ClassInternal, Handler: okHandler("v2")}); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	res := r.Execute(context.Background(), "echo", nil, authedCtx())
	if !res.Success || res.Data != "v2" {
		t.Errorf("Execute after overwrite = %+v, want data v2", res)
	}
}

func TestExecuteUnknownToolSuggestsClosestName(t *testing.T) {
	r := New()
	r.Register(Tool{Name: "document_search", Classification: ClassInternal, Handler: okHandler(nil)})

	res := r.Execute(context.Background(), "document_serch", nil, authedCtx())
	if res.Success {
		t.Fatal("Execute of unknown tool succeeded")
	}
	if !strings.Contains(res.Error, "unknown tool") {
		t.Errorf("error %q does not report unknown tool", res.Error)
	}
	if !strings.Contains(res.Error, "document_search") {
		t.Errorf("error %q does not suggest the close name", res.Error)
	}

	// A wildly different name earns no suggestion.
	res = r.Execute(context.Background(), "zzzz", nil, authedCtx())
	if strings.Contains(res.Error, "did you mean") {
		t.Errorf("error %q suggests a name for dissimilar input", res.Error)
	}
}

func TestExecuteAuthGateBeforeHandler(t *testing.T) {
	var calls atomic.Int64
	r := New()
	r.Register(Tool{
		Name:           "profile_lookup",
		Classification: ClassInternal,
		RequiresAuth:   true,
		Handler: func(context.Context, map[string]any, types.InvocationContext) (Result, error) {
			calls.Add(1)
			return Result{Success: true}, nil
		},
	})

	res := r.Execute(context.Background(), "profile_lookup", nil, types.InvocationContext{})
	if res.Success {
		t.Fatal("anonymous call succeeded on auth-required tool")
	}
	if !strings.Contains(res.Error, "authentication") {
		t.Errorf("error %q does not mention authentication", res.Error)
	}
	if calls.Load() != 0 {
		t.Errorf("handler invoked %d times for rejected call, want 0", calls.Load())
	}

	if res := r.Execute(context.Background(), "profile_lookup", nil, authedCtx()); !res.Success {
		t.Fatalf("authenticated call failed: %s", res.Error)
	}
}

func TestExecuteValidationFailureNamesParameter(t *testing.T) {
	r := New()
	r.Register(Tool{
		Name:           "document_search",
		Classification: ClassInternal,
		Parameters:     []Parameter{{Name: "query", Type: TypeString, Required: true}},
		Handler:        okHandler(nil),
	})

	res := r.Execute(context.Background(), "document_search", map[string]any{}, authedCtx())
	if res.Success {
		t.Fatal("call with missing required parameter succeeded")
	}
	if !strings.Contains(res.Error, `"query"`) {
		t.Errorf("error %q does not name the missing parameter", res.Error)
	}
	if res.Data != nil {
		t.Error("failed result carries data")
	}
}

func TestValidateParams(t *testing.T) {
	r := New()
	r.Register(Tool{
		Name:           "document_search",
		Classification: ClassInternal,
		Parameters:     []Parameter{{Name: "query", Type: TypeString, Required: true}},
		Handler:        okHandler(nil),
	})

	if err := r.ValidateParams("document_search", map[string]any{"query": "soc2"}); err != nil {
		t.Errorf("valid params rejected: %v", err)
	}
	if err := r.ValidateParams("document_search", nil); err == nil {
		t.Error("nil params accepted despite a required parameter")
	}
	if err := r.ValidateParams("document_search", map[string]any{"query": 7}); err == nil || !strings.Contains(err.Error(), `"query"`) {
		t.Errorf("wrong type error = %v, want one naming the parameter", err)
	}
	if err := r.ValidateParams("nonexistent", nil); err == nil || !strings.Contains(err.Error(), "unknown tool") {
		t.Errorf("unknown tool error = %v", err)
	}
}

func TestExecuteRateLimitWindow(t *testing.T) {
	sink := &audit.MemorySink{}
	r := New(WithAuditSink(sink))
	r.Register(Tool{
		Name:           "regulation_fetch",
		Classification: ClassInternal,
		RateLimit:      &RateLimit{MaxCalls: 2, WindowMs: 60_000},
		Handler:        okHandler(nil),
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if res := r.Execute(ctx, "regulation_fetch", nil, authedCtx()); !res.Success {
			t.Fatalf("call %d failed: %s", i+1, res.Error)
		}
	}
	res := r.Execute(ctx, "regulation_fetch", nil, authedCtx())
	if res.Success {
		t.Fatal("3rd call in window succeeded, want rate-limited")
	}
	if !strings.Contains(res.Error, "rate limit") {
		t.Errorf("error %q does not mention rate limit", res.Error)
	}

	if got := len(sink.ByAction(audit.ActionToolRateLimited)); got != 1 {
		t.Errorf("rate-limit audit events = %d, want 1", got)
	}
	// The rejected call must not be audited as an execution.
	if got := len(sink.ByAction(audit.ActionToolExecute)); got != 2 {
		t.Errorf("execution audit events = %d, want 2", got)
	}

	// A different caller has its own window.
	other := types.InvocationContext{Actor: types.Actor{UserID: "user-2"}}
	if res := r.Execute(ctx, "regulation_fetch", nil, other); !res.Success {
		t.Fatalf("other caller rate-limited by first caller's window: %s", res.Error)
	}
}

func TestExecuteAuditsEveryAttempt(t *testing.T) {
	sink := &audit.MemorySink{}
	r := New(WithAuditSink(sink))
	r.Register(Tool{Name: "echo", Classification: ClassInternal, Handler: okHandler("hi")})

	inv := authedCtx()
	inv.SessionID = "sess-9"
	r.Execute(context.Background(), "echo", map[string]any{"ignored": true}, inv)

	events := sink.ByAction(audit.ActionToolExecute)
	if len(events) != 1 {
		t.Fatalf("audit events = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.ActorID != "user-1" || ev.ResourceID != "echo" {
		t.Errorf("event actor/resource = %s/%s, want user-1/echo", ev.ActorID, ev.ResourceID)
	}
	if ev.Details["sessionId"] != "sess-9" {
		t.Errorf("event sessionId = %v, want sess-9", ev.Details["sessionId"])
	}
}

func TestExecuteAnonymousCallerAuditedAsAnonymous(t *testing.T) {
	sink := &audit.MemorySink{}
	r := New(WithAuditSink(sink))
	r.Register(Tool{Name: "echo", Classification: ClassInternal, Handler: okHandler(nil)})

	r.Execute(context.Background(), "echo", nil, types.InvocationContext{})

	events := sink.ByAction(audit.ActionToolExecute)
	if len(events) != 1 {
		t.Fatalf("audit events = %d, want 1", len(events))
	}
	if events[0].ActorID != "anonymous" {
		t.Errorf("ActorID = %q, want anonymous", events[0].ActorID)
	}
}

func TestExecutePanicBecomesSanitizedFailure(t *testing.T) {
	sink := &audit.MemorySink{}
	r := New(WithAuditSink(sink))
	r.Register(Tool{
		Name:           "broken",
		Classification: ClassInternal,
		Handler: func(context.Context, map[string]any, types.InvocationContext) (Result, error) {
			panic("index out of range")
		},
	})

	res := r.Execute(context.Background(), "broken", nil, authedCtx())
	if res.Success {
		t.Fatal("panicking tool reported success")
	}
	if strings.Contains(res.Error, "index out of range") {
		t.Errorf("production error %q leaks panic detail", res.Error)
	}

	faults := sink.ByAction(audit.ActionToolPanicked)
	if len(faults) != 1 {
		t.Fatalf("fault audit events = %d, want 1", len(faults))
	}
	if faults[0].Severity != audit.SeverityHigh {
		t.Errorf("fault severity = %s, want high", faults[0].Severity)
	}
	if !strings.Contains(faults[0].Details["error"].(string), "index out of range") {
		t.Error("audit detail lost the panic message")
	}
}

func TestExecuteDevelopmentModeExposesDetail(t *testing.T) {
	r := New(WithDevelopmentMode(true))
	r.Register(Tool{
		Name:           "broken",
		Classification: ClassInternal,
		Handler: func(context.Context, map[string]any, types.InvocationContext) (Result, error) {
			return Result{}, errors.New("connection refused")
		},
	})

	res := r.Execute(context.Background(), "broken", nil, authedCtx())
	if !strings.Contains(res.Error, "connection refused") {
		t.Errorf("development error %q hides detail", res.Error)
	}
}

func TestExecuteExternalToolTripsBreaker(t *testing.T) {
	set := resilience.NewBreakerSet(resilience.Config{MaxFailures: 2, ResetTimeout: time.Hour})
	r := New(WithBreakerSet(set))

	var calls atomic.Int64
	r.Register(Tool{
		Name:           "regulation_fetch",
		Classification: ClassExternal,
		Handler: func(context.Context, map[string]any, types.InvocationContext) (Result, error) {
			calls.Add(1)
			return Result{}, errors.New("upstream 503")
		},
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		r.Execute(ctx, "regulation_fetch", nil, authedCtx())
	}
	// Breaker is open now; the handler must not be reached again.
	res := r.Execute(ctx, "regulation_fetch", nil, authedCtx())
	if res.Success {
		t.Fatal("call through open breaker succeeded")
	}
	if calls.Load() != 2 {
		t.Errorf("handler calls = %d, want 2 (breaker short-circuits)", calls.Load())
	}
}

func TestExecuteFailedResultAudited(t *testing.T) {
	sink := &audit.MemorySink{}
	r := New(WithAuditSink(sink))
	r.Register(Tool{
		Name:           "checker",
		Classification: ClassInternal,
		Handler: func(context.Context, map[string]any, types.InvocationContext) (Result, error) {
			return Failure("document not found"), nil
		},
	})

	res := r.Execute(context.Background(), "checker", nil, authedCtx())
	if res.Success || res.Error != "document not found" {
		t.Fatalf("result = %+v, want business failure passthrough", res)
	}

	failed := sink.ByAction(audit.ActionToolFailed)
	if len(failed) != 1 {
		t.Fatalf("failure audit events = %d, want 1", len(failed))
	}
	if failed[0].Severity != audit.SeverityMedium {
		t.Errorf("failure severity = %s, want medium", failed[0].Severity)
	}
}

func TestDocsExposeSchemaNotHandler(t *testing.T) {
	r := New()
	r.Register(Tool{
		Name:           "document_search",
		Description:    "Semantic search over stored compliance documents.",
		Classification: ClassInternal,
		Parameters: []Parameter{
			{Name: "query", Type: TypeString, Required: true, Description: "Search text."},
			{Name: "limit", Type: TypeNumber, Default: 10},
		},
		RateLimit: &RateLimit{MaxCalls: 30, WindowMs: 60_000},
		Handler:   okHandler(nil),
	})

	doc, ok := r.Describe("document_search")
	if !ok {
		t.Fatal("Describe returned no doc")
	}
	if doc.Name != "document_search" || len(doc.Parameters) != 2 {
		t.Errorf("doc = %+v, want full schema", doc)
	}
	if doc.RateLimit == nil || doc.RateLimit.MaxCalls != 30 {
		t.Error("doc missing rate limit")
	}

	list := r.List()
	if len(list) != 1 || list[0].Name != "document_search" {
		t.Errorf("List() = %+v, want the registered tool", list)
	}
}

func TestDefinitionsSkipUnknownNames(t *testing.T) {
	r := New()
	r.Register(Tool{
		Name:           "document_search",
		Classification: ClassInternal,
		Parameters:     []Parameter{{Name: "query", Type: TypeString, Required: true}},
		Handler:        okHandler(nil),
	})

	defs := r.Definitions([]string{"document_search", "retired_tool"})
	if len(defs) != 1 {
		t.Fatalf("Definitions() returned %d schemas, want 1", len(defs))
	}
	schema := defs[0].Parameters
	if schema["type"] != "object" {
		t.Errorf("schema type = %v, want object", schema["type"])
	}
	req, _ := schema["required"].([]string)
	if len(req) != 1 || req[0] != "query" {
		t.Errorf("schema required = %v, want [query]", schema["required"])
	}
}
