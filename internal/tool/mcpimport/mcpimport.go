// Package mcpimport connects to external MCP servers and imports their tool
// catalogues into the Attestia tool registry.
//
// Imported tools are classified external, so the registry runs them under
// circuit breakers like any other third-party call.
package mcpimport

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/attestia/attestia/internal/tool"
	"github.com/attestia/attestia/pkg/types"
)

// Transport selects how to reach an MCP server.
type Transport string

const (
	TransportStdio          Transport = "stdio"
	TransportStreamableHTTP Transport = "streamable-http"
)

// ServerConfig describes one MCP server to import tools from.
type ServerConfig struct {
	// Name is a local label; imported tool names are prefixed with it
	// ("name.tool") so catalogues from different servers cannot collide.
	Name string `yaml:"name"`

	// Transport is stdio or streamable-http.
	Transport Transport `yaml:"transport"`

	// Command is the executable plus arguments for stdio servers.
	Command string `yaml:"command,omitempty"`

	// URL is the endpoint for streamable-http servers.
	URL string `yaml:"url,omitempty"`

	// Env holds extra environment variables for stdio servers.
	Env map[string]string `yaml:"env,omitempty"`

	// RateLimit, when set, is applied to every tool imported from this
	// server.
	RateLimit *tool.RateLimit `yaml:"rateLimit,omitempty"`
}

// Importer manages MCP server sessions and the tools imported from them.
type Importer struct {
	client *mcpsdk.Client

	mu       sync.Mutex
	sessions map[string]*mcpsdk.ClientSession
}

// NewImporter creates an importer. The single SDK client manages all server
// sessions.
func NewImporter() *Importer {
	return &Importer{
		client: mcpsdk.NewClient(
			&mcpsdk.Implementation{Name: "attestia", Version: "1.0.0"},
			nil,
		),
		sessions: make(map[string]*mcpsdk.ClientSession),
	}
}

// Import connects to the configured server, lists its tools and registers
// each one on reg. It returns the registered tool names.
func (im *Importer) Import(ctx context.Context, reg *tool.Registry, cfg ServerConfig) ([]string, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("mcpimport: server config requires a name")
	}

	var transport mcpsdk.Transport
	switch cfg.Transport {
	case TransportStdio:
		parts := strings.Fields(cfg.Command)
		if len(parts) == 0 {
			return nil, fmt.Errorf("mcpimport: stdio server %q requires a command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}
	case TransportStreamableHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("mcpimport: streamable-http server %q requires a URL", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	default:
		return nil, fmt.Errorf("mcpimport: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	session, err := im.client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcpimport: connect to %q: %w", cfg.Name, err)
	}

	var discovered []mcpsdk.Tool
	for t, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return nil, fmt.Errorf("mcpimport: list tools of %q: %w", cfg.Name, err)
		}
		discovered = append(discovered, *t)
	}

	im.mu.Lock()
	if old, ok := im.sessions[cfg.Name]; ok {
		_ = old.Close()
	}
	im.sessions[cfg.Name] = session
	im.mu.Unlock()

	var names []string
	for _, mcpTool := range discovered {
		t := im.buildTool(cfg, session, mcpTool)
		if err := reg.Register(t); err != nil {
			return names, fmt.Errorf("mcpimport: register %s: %w", t.Name, err)
		}
		names = append(names, t.Name)
	}
	return names, nil
}

// Close shuts down all server sessions.
func (im *Importer) Close() error {
	im.mu.Lock()
	defer im.mu.Unlock()

	var firstErr error
	for name, session := range im.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("mcpimport: close %q: %w", name, err)
		}
		delete(im.sessions, name)
	}
	return firstErr
}

// buildTool converts an SDK tool into a registry tool whose handler calls
// back into the server session.
func (im *Importer) buildTool(cfg ServerConfig, session *mcpsdk.ClientSession, mcpTool mcpsdk.Tool) tool.Tool {
	name := cfg.Name + "." + mcpTool.Name
	return tool.Tool{
		Name:           name,
		Description:    mcpTool.Description,
		Classification: tool.ClassExternal,
		Parameters:     parametersFromSchema(schemaToMap(mcpTool.InputSchema)),
		RateLimit:      cfg.RateLimit,
		Handler: func(ctx context.Context, params map[string]any, _ types.InvocationContext) (tool.Result, error) {
			result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
				Name:      mcpTool.Name,
				Arguments: params,
			})
			if err != nil {
				return tool.Result{}, fmt.Errorf("call %s: %w", name, err)
			}

			var sb strings.Builder
			for _, c := range result.Content {
				if tc, ok := c.(*mcpsdk.TextContent); ok {
					sb.WriteString(tc.Text)
				}
			}
			if result.IsError {
				return tool.Failure(sb.String()), nil
			}
			return tool.Result{Success: true, Data: sb.String()}, nil
		},
	}
}

// parametersFromSchema reconstructs parameter declarations from a JSON
// Schema's top-level properties. Unknown or nested types map onto object so
// validation stays permissive for shapes the schema language can express
// but the declaration model cannot.
func parametersFromSchema(schema map[string]any) []tool.Parameter {
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		return nil
	}
	required := map[string]bool{}
	if reqList, ok := schema["required"].([]any); ok {
		for _, r := range reqList {
			if s, ok := r.(string); ok {
				required[s] = true
			}
		}
	}

	params := make([]tool.Parameter, 0, len(props))
	for name, raw := range props {
		prop, _ := raw.(map[string]any)
		p := tool.Parameter{Name: name, Type: tool.TypeObject, Required: required[name]}
		if prop != nil {
			switch prop["type"] {
			case "string":
				p.Type = tool.TypeString
			case "number", "integer":
				p.Type = tool.TypeNumber
			case "boolean":
				p.Type = tool.TypeBoolean
			case "array":
				p.Type = tool.TypeArray
			}
			if desc, ok := prop["description"].(string); ok {
				p.Description = desc
			}
			if enumList, ok := prop["enum"].([]any); ok {
				for _, e := range enumList {
					if s, ok := e.(string); ok {
						p.Enum = append(p.Enum, s)
					}
				}
			}
			p.Default = prop["default"]
		}
		params = append(params, p)
	}
	return params
}

// schemaToMap normalises whatever schema representation the SDK hands back
// into a plain map.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}
