package builtin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/attestia/attestia/internal/classify"
	"github.com/attestia/attestia/internal/tool"
	"github.com/attestia/attestia/pkg/types"
)

func TestRegisterAllSkipsToolsWithoutDeps(t *testing.T) {
	reg := tool.New()
	names, err := RegisterAll(reg, Deps{})
	if err != nil {
		t.Fatalf("RegisterAll() = %v", err)
	}
	// Only compliance_checklist has no external dependencies.
	if len(names) != 1 || names[0] != "compliance_checklist" {
		t.Errorf("registered = %v, want [compliance_checklist]", names)
	}
}

func TestRegulationFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Article 5: personal data shall be processed lawfully."))
	}))
	defer srv.Close()

	fetch := RegulationFetch(srv.Client(), map[string]string{"gdpr": srv.URL})
	res, err := fetch.Handler(context.Background(), map[string]any{"framework": "gdpr"}, types.InvocationContext{})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !res.Success {
		t.Fatalf("result = %+v, want success", res)
	}
	data := res.Data.(map[string]any)
	if !strings.Contains(data["text"].(string), "Article 5") {
		t.Errorf("text = %q, want fetched body", data["text"])
	}
	if data["source"] != srv.URL {
		t.Errorf("source = %v, want %s", data["source"], srv.URL)
	}
}

func TestRegulationFetchUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	fetch := RegulationFetch(srv.Client(), map[string]string{"gdpr": srv.URL})
	_, err := fetch.Handler(context.Background(), map[string]any{"framework": "gdpr"}, types.InvocationContext{})
	if err == nil {
		t.Fatal("expected error for 503 upstream, got nil")
	}
}

func TestComplianceChecklistWithoutDocument(t *testing.T) {
	cl := ComplianceChecklist(classify.NewKeywordClassifier())
	res, err := cl.Handler(context.Background(), map[string]any{"framework": "soc2"}, types.InvocationContext{})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	data := res.Data.(map[string]any)
	items := data["items"].([]ChecklistItem)
	if len(items) == 0 {
		t.Fatal("no checklist items returned")
	}
	for _, item := range items {
		if item.Covered != nil {
			t.Errorf("item %s has coverage mark without a document", item.ID)
		}
	}
}

func TestComplianceChecklistCoverage(t *testing.T) {
	cl := ComplianceChecklist(classify.NewKeywordClassifier())
	doc := "Our policy documents the lawful basis for processing and names a Data Protection Officer."
	res, err := cl.Handler(context.Background(), map[string]any{
		"framework":    "gdpr",
		"documentText": doc,
	}, types.InvocationContext{})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}

	data := res.Data.(map[string]any)
	covered := data["coveredCount"].(int)
	if covered < 2 {
		t.Errorf("coveredCount = %d, want at least 2 (lawful basis + DPO)", covered)
	}
	if covered >= data["totalCount"].(int) {
		t.Errorf("coveredCount = %d of %d, want partial coverage", covered, data["totalCount"])
	}
	if _, ok := data["classification"].(classify.Result); !ok {
		t.Error("result missing document classification")
	}
}

func TestDocumentSearchLimitClamping(t *testing.T) {
	if got := intParam(map[string]any{"limit": 5.0}, "limit", 10); got != 5 {
		t.Errorf("intParam(float) = %d, want 5", got)
	}
	if got := intParam(map[string]any{}, "limit", 10); got != 10 {
		t.Errorf("intParam(absent) = %d, want fallback 10", got)
	}
}

func TestExcerpt(t *testing.T) {
	long := strings.Repeat("a", 600)
	if got := excerpt(long, 500); !strings.HasSuffix(got, "…") || len(got) > 510 {
		t.Errorf("excerpt did not truncate: len=%d", len(got))
	}
	if got := excerpt("short", 500); got != "short" {
		t.Errorf("excerpt(short) = %q", got)
	}
}
