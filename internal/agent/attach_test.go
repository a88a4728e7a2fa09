package agent

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/attestia/attestia/pkg/types"
)

func TestRenderAttachmentsInlinesText(t *testing.T) {
	rendered, inlined := renderAttachments([]types.Attachment{
		{Name: "policy.md", Type: "text/markdown", Content: "# Data Policy"},
		{Name: "records.json", Type: "application/json", Content: `{"count":3}`},
	})

	if inlined != 2 {
		t.Fatalf("inlined = %d, want 2", inlined)
	}
	if !strings.Contains(rendered, "# Data Policy") || !strings.Contains(rendered, `{"count":3}`) {
		t.Errorf("rendered %q missing attachment content", rendered)
	}
}

func TestRenderAttachmentsReferencesBinary(t *testing.T) {
	rendered, inlined := renderAttachments([]types.Attachment{
		{Name: "scan.pdf", Type: "application/pdf", Data: "JVBERi0..."},
	})

	if inlined != 0 {
		t.Fatalf("inlined = %d, want 0 for binary attachment", inlined)
	}
	if !strings.Contains(rendered, "scan.pdf") {
		t.Errorf("rendered %q does not reference the attachment by name", rendered)
	}
	if strings.Contains(rendered, "JVBERi0") {
		t.Error("binary payload leaked into the prompt")
	}
}

func TestRenderAttachmentsTruncatesLongItems(t *testing.T) {
	long := strings.Repeat("x", maxAttachmentChars+500)
	rendered, inlined := renderAttachments([]types.Attachment{
		{Name: "big.txt", Type: "text/plain", Content: long},
	})

	if inlined != 1 {
		t.Fatalf("inlined = %d, want 1", inlined)
	}
	if strings.Count(rendered, "x") != maxAttachmentChars {
		t.Errorf("rendered %d x's, want %d", strings.Count(rendered, "x"), maxAttachmentChars)
	}
}

func TestRenderAttachmentsTruncatesOnRuneBoundary(t *testing.T) {
	// Fill to one byte short of the cap, then add multi-byte runes so the
	// cut lands mid-rune.
	long := strings.Repeat("x", maxAttachmentChars-1) + strings.Repeat("é", 10)
	rendered, inlined := renderAttachments([]types.Attachment{
		{Name: "utf8.txt", Type: "text/plain", Content: long},
	})

	if inlined != 1 {
		t.Fatalf("inlined = %d, want 1", inlined)
	}
	if !utf8.ValidString(rendered) {
		t.Errorf("rendered prompt contains invalid UTF-8: %q", rendered[len(rendered)-40:])
	}
}

func TestRenderAttachmentsTotalBudget(t *testing.T) {
	// Five attachments close to the per-item cap exceed the total budget;
	// the later ones are referenced, not inlined.
	item := strings.Repeat("y", maxAttachmentChars-1)
	var atts []types.Attachment
	for i := 0; i < 5; i++ {
		atts = append(atts, types.Attachment{Name: "doc", Type: "text/plain", Content: item})
	}

	rendered, inlined := renderAttachments(atts)
	if inlined != 4 {
		t.Fatalf("inlined = %d, want 4 within the %d-char budget", inlined, maxTotalChars)
	}
	if !strings.Contains(rendered, "attachment budget exhausted") {
		t.Error("overflow attachment not referenced by name")
	}
}

func TestRenderAttachmentsConsidersAtMostTen(t *testing.T) {
	var atts []types.Attachment
	for i := 0; i < 12; i++ {
		atts = append(atts, types.Attachment{Type: "text/plain", Content: "c"})
	}

	_, inlined := renderAttachments(atts)
	if inlined != maxAttachments {
		t.Errorf("inlined = %d, want %d", inlined, maxAttachments)
	}
}

func TestAssemblePromptWithoutAttachments(t *testing.T) {
	prompt, inlined := assemblePrompt("plain question", nil)
	if prompt != "plain question" || inlined != 0 {
		t.Errorf("assemblePrompt = (%q, %d), want unchanged prompt", prompt, inlined)
	}
}
