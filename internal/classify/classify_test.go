package classify

import (
	"context"
	"slices"
	"testing"
)

func TestKeywordClassifier(t *testing.T) {
	c := &KeywordClassifier{}
	ctx := context.Background()

	tests := []struct {
		name      string
		text      string
		wantLabel string
		wantTags  []string
	}{
		{
			name:      "neutral",
			text:      "The policy requires annual review of access controls.",
			wantLabel: "neutral",
		},
		{
			name:      "single category",
			text:      "Customer provided a Credit Card ending 4242.",
			wantLabel: "sensitive",
			wantTags:  []string{"financial"},
		},
		{
			name:      "multiple categories",
			text:      "Includes date of birth and IBAN details.",
			wantLabel: "restricted",
			wantTags:  []string{"financial", "pii"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Classify(ctx, tt.text)
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if got.Label != tt.wantLabel {
				t.Errorf("label = %q, want %q", got.Label, tt.wantLabel)
			}
			slices.Sort(got.Tags)
			if !slices.Equal(got.Tags, tt.wantTags) {
				t.Errorf("tags = %v, want %v", got.Tags, tt.wantTags)
			}
		})
	}
}

func TestKeywordClassifier_CustomCategories(t *testing.T) {
	c := &KeywordClassifier{Categories: map[string][]string{
		"internal": {"project zeus"},
	}}
	got, err := c.Classify(context.Background(), "Status of Project Zeus is green.")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.Label != "sensitive" {
		t.Errorf("label = %q, want sensitive", got.Label)
	}
}
