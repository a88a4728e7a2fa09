// Package builtin provides the tools Attestia ships with: semantic search
// over stored compliance documents, caller profile lookup, regulation text
// retrieval and checklist generation.
//
// Each tool is a constructor returning a [tool.Tool]; RegisterAll wires the
// full set into a registry given the shared dependencies.
package builtin

import (
	"fmt"
	"net/http"

	"github.com/attestia/attestia/internal/classify"
	"github.com/attestia/attestia/internal/tool"
)

// Deps carries the shared dependencies of the built-in tools. Nil fields
// disable the tools that need them.
type Deps struct {
	// Documents backs document_search and compliance_checklist citations.
	Documents *DocumentStore

	// Embedder turns query text into vectors for semantic search. When nil,
	// document_search falls back to keyword matching.
	Embedder Embedder

	// Profiles backs profile_lookup.
	Profiles *ProfileStore

	// HTTPClient is used by regulation_fetch. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	// RegulationSources maps framework identifiers to the URLs their
	// canonical texts are fetched from.
	RegulationSources map[string]string

	// Classifier tags document text in compliance_checklist. Defaults to
	// the keyword classifier.
	Classifier classify.Classifier
}

// RegisterAll registers every built-in tool whose dependencies are
// available. It returns the names that were registered.
func RegisterAll(reg *tool.Registry, deps Deps) ([]string, error) {
	if deps.HTTPClient == nil {
		deps.HTTPClient = http.DefaultClient
	}
	if deps.Classifier == nil {
		deps.Classifier = classify.NewKeywordClassifier()
	}

	var registered []string
	add := func(t tool.Tool) error {
		if err := reg.Register(t); err != nil {
			return fmt.Errorf("builtin: %w", err)
		}
		registered = append(registered, t.Name)
		return nil
	}

	if deps.Documents != nil {
		if err := add(DocumentSearch(deps.Documents, deps.Embedder)); err != nil {
			return nil, err
		}
	}
	if deps.Profiles != nil {
		if err := add(ProfileLookup(deps.Profiles)); err != nil {
			return nil, err
		}
	}
	if len(deps.RegulationSources) > 0 {
		if err := add(RegulationFetch(deps.HTTPClient, deps.RegulationSources)); err != nil {
			return nil, err
		}
	}
	if err := add(ComplianceChecklist(deps.Classifier)); err != nil {
		return nil, err
	}
	return registered, nil
}
