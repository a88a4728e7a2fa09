// Package classify provides the output-classification collaborator applied
// to agent responses before they leave the engine.
//
// The default implementation is a cheap keyword heuristic: it labels model
// output so callers can route or flag it, without blocking the response
// path on a remote moderation API.
package classify

import (
	"context"
	"strings"
)

// Result is a content-safety label attached to response metadata.
type Result struct {
	// Label is the coarse classification ("neutral", "sensitive",
	// "restricted").
	Label string

	// Score is the classifier's confidence in the label (0.0–1.0).
	Score float64

	// Tags lists the matched categories, when any.
	Tags []string
}

// Classifier labels a piece of model output.
//
// Implementations must be safe for concurrent use.
type Classifier interface {
	Classify(ctx context.Context, text string) (Result, error)
}

// Compile-time interface check.
var _ Classifier = (*KeywordClassifier)(nil)

// KeywordClassifier labels text by scanning for category keyword lists.
// The zero value uses the built-in compliance-oriented categories.
type KeywordClassifier struct {
	// Categories maps a tag to the lowercase keywords that trigger it.
	// Nil means the built-in defaults.
	Categories map[string][]string
}

// NewKeywordClassifier returns a KeywordClassifier using the built-in
// compliance-oriented categories.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// defaultCategories covers the content classes the compliance product
// cares about surfacing to reviewers.
var defaultCategories = map[string][]string{
	"pii":       {"social security", "passport number", "date of birth"},
	"financial": {"credit card", "iban", "account number"},
	"legal":     {"attorney-client", "privileged", "litigation hold"},
}

// Classify implements [Classifier]. It never returns an error; the error
// return exists for remote implementations of the interface.
func (c *KeywordClassifier) Classify(_ context.Context, text string) (Result, error) {
	categories := c.Categories
	if categories == nil {
		categories = defaultCategories
	}

	lower := strings.ToLower(text)
	var tags []string
	matches := 0
	for tag, words := range categories {
		for _, w := range words {
			if strings.Contains(lower, w) {
				tags = append(tags, tag)
				matches++
				break
			}
		}
	}

	switch {
	case matches == 0:
		return Result{Label: "neutral", Score: 0.9}, nil
	case matches == 1:
		return Result{Label: "sensitive", Score: 0.7, Tags: tags}, nil
	default:
		return Result{Label: "restricted", Score: 0.8, Tags: tags}, nil
	}
}
