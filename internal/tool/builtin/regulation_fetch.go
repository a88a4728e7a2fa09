package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/attestia/attestia/internal/tool"
	"github.com/attestia/attestia/pkg/types"
)

// maxRegulationBytes caps the body read from a regulation source so a
// misbehaving upstream cannot balloon a tool result.
const maxRegulationBytes = 1 << 20

// RegulationFetch builds the regulation_fetch tool. It retrieves canonical
// regulation text from configured upstream sources and is classified
// external, so the registry runs it under a circuit breaker.
func RegulationFetch(client *http.Client, sources map[string]string) tool.Tool {
	frameworks := make([]string, 0, len(sources))
	for k := range sources {
		frameworks = append(frameworks, k)
	}
	sort.Strings(frameworks)

	return tool.Tool{
		Name:           "regulation_fetch",
		Description:    "Fetch the canonical text of a regulatory framework from its upstream source.",
		Classification: tool.ClassExternal,
		Parameters: []tool.Parameter{
			{Name: "framework", Type: tool.TypeString, Required: true, Enum: frameworks, Description: "Framework identifier."},
		},
		Returns:   "The regulation text and the source URL it was fetched from.",
		RateLimit: &tool.RateLimit{MaxCalls: 10, WindowMs: 60_000},
		Handler: func(ctx context.Context, params map[string]any, inv types.InvocationContext) (tool.Result, error) {
			framework := params["framework"].(string)
			url, ok := sources[framework]
			if !ok {
				return tool.Failure(fmt.Sprintf("no source configured for framework %s", framework)), nil
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return tool.Result{}, fmt.Errorf("build request: %w", err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return tool.Result{}, fmt.Errorf("fetch %s: %w", framework, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return tool.Result{}, fmt.Errorf("fetch %s: upstream returned %d", framework, resp.StatusCode)
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxRegulationBytes))
			if err != nil {
				return tool.Result{}, fmt.Errorf("read %s body: %w", framework, err)
			}

			return tool.Result{
				Success: true,
				Data: map[string]any{
					"framework": framework,
					"source":    url,
					"text":      string(body),
				},
			}, nil
		},
	}
}
