package builtin

import (
	"context"
	"fmt"

	"github.com/attestia/attestia/internal/tool"
	"github.com/attestia/attestia/pkg/types"
)

const defaultSearchLimit = 10

// DocumentSearch builds the document_search tool. With an embedder it runs
// semantic search over pgvector embeddings; without one it degrades to
// keyword matching.
func DocumentSearch(store *DocumentStore, embedder Embedder) tool.Tool {
	return tool.Tool{
		Name:           "document_search",
		Description:    "Search the organisation's stored compliance documents and return the most relevant matches.",
		Classification: tool.ClassInternal,
		Parameters: []tool.Parameter{
			{Name: "query", Type: tool.TypeString, Required: true, Description: "Natural-language search text."},
			{Name: "limit", Type: tool.TypeNumber, Description: "Maximum number of results.", Default: defaultSearchLimit},
		},
		Returns:   "List of documents with id, title, content excerpt and relevance score.",
		RateLimit: &tool.RateLimit{MaxCalls: 30, WindowMs: 60_000},
		Handler: func(ctx context.Context, params map[string]any, inv types.InvocationContext) (tool.Result, error) {
			query := params["query"].(string)
			limit := intParam(params, "limit", defaultSearchLimit)
			if limit <= 0 || limit > 50 {
				limit = defaultSearchLimit
			}

			var (
				docs []Document
				err  error
				mode string
			)
			if embedder != nil {
				var vec []float32
				vec, err = embedder.Embed(ctx, query)
				if err != nil {
					return tool.Result{}, fmt.Errorf("embed query: %w", err)
				}
				docs, err = store.SearchSemantic(ctx, vec, inv.Actor.OrganizationID, limit)
				mode = "semantic"
			} else {
				docs, err = store.SearchKeyword(ctx, query, inv.Actor.OrganizationID, limit)
				mode = "keyword"
			}
			if err != nil {
				return tool.Result{}, err
			}

			for i := range docs {
				docs[i].Content = excerpt(docs[i].Content, 500)
			}
			return tool.Result{
				Success:  true,
				Data:     map[string]any{"documents": docs, "count": len(docs)},
				Metadata: map[string]any{"searchMode": mode},
			}, nil
		},
	}
}

// intParam reads a number parameter that may arrive as float64 (JSON) or an
// integer (programmatic callers).
func intParam(params map[string]any, name string, fallback int) int {
	switch v := params[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return fallback
	}
}

func excerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
