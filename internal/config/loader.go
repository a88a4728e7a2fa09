package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/attestia/attestia/internal/tool/mcpimport"
	"gopkg.in/yaml.v3"
)

// ValidProviderFamilies lists the provider families the service knows how to
// construct. Used by [Validate] to reject unknown families early instead of
// failing at the first model call.
var ValidProviderFamilies = []string{
	"openai", "anthropic", "llamacpp", "gemini", "groq", "deepseek", "mistral", "ollama",
}

// Load reads the YAML configuration file at path, expands ${ENV_VAR}
// references, and returns a validated [Config].
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	expanded := os.Expand(string(raw), os.Getenv)
	cfg, err := LoadFromReader(bytes.NewReader([]byte(expanded)))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Unknown fields are rejected so typos surface at startup. Useful in tests
// where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.logLevel %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.HealthCheckTimeout < 0 {
		errs = append(errs, errors.New("server.healthCheckTimeout must not be negative"))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both certFile and keyFile"))
		}
	}

	// Providers
	providerNames := make(map[string]int, len(cfg.Providers))
	for i, p := range cfg.Providers {
		prefix := fmt.Sprintf("providers[%d]", i)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := providerNames[p.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of providers[%d]", prefix, p.Name, prev))
			}
			providerNames[p.Name] = i
		}
		if p.Family == "" {
			errs = append(errs, fmt.Errorf("%s.family is required", prefix))
		} else if !slices.Contains(ValidProviderFamilies, p.Family) {
			errs = append(errs, fmt.Errorf("%s.family %q is unknown; valid values: %v", prefix, p.Family, ValidProviderFamilies))
		}
	}
	for i, p := range cfg.Providers {
		prefix := fmt.Sprintf("providers[%d]", i)
		for _, fb := range p.Fallbacks {
			if fb == p.Name {
				errs = append(errs, fmt.Errorf("%s.fallbacks must not reference the provider itself", prefix))
				continue
			}
			if _, ok := providerNames[fb]; !ok {
				errs = append(errs, fmt.Errorf("%s.fallbacks entry %q does not match any configured provider", prefix, fb))
			}
		}
	}

	// Agents
	agentIDs := make(map[string]int, len(cfg.Agents))
	for i, a := range cfg.Agents {
		prefix := fmt.Sprintf("agents[%d]", i)
		if err := a.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", prefix, err))
			continue
		}
		if prev, ok := agentIDs[a.ID]; ok {
			errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of agents[%d]", prefix, a.ID, prev))
		}
		agentIDs[a.ID] = i
		if _, ok := providerNames[a.Provider]; !ok {
			errs = append(errs, fmt.Errorf("%s.provider %q does not match any configured provider", prefix, a.Provider))
		}
		if a.Temperature < 0 || a.Temperature > 2 {
			errs = append(errs, fmt.Errorf("%s.temperature %.2f is out of range [0, 2]", prefix, a.Temperature))
		}
		if a.MaxTokens < 0 {
			errs = append(errs, fmt.Errorf("%s.maxTokens must not be negative", prefix))
		}
	}
	if len(cfg.Agents) == 0 {
		slog.Warn("no agents configured; agent turn requests will all fail")
	}

	// Database
	if cfg.Database.PostgresDSN == "" {
		slog.Warn("database.postgresDsn is empty; audit events will not be persisted and document search is unavailable")
	}
	if cfg.Database.EmbeddingDimensions < 0 {
		errs = append(errs, errors.New("database.embeddingDimensions must not be negative"))
	}

	// Budget
	if cfg.Budget.DailyTokenCap < 0 {
		errs = append(errs, errors.New("budget.dailyTokenCap must not be negative"))
	}

	// Tools
	if cfg.Tools.RateLimitSweepInterval < 0 {
		errs = append(errs, errors.New("tools.rateLimitSweepIntervalSeconds must not be negative"))
	}

	// Auth
	for i, tok := range cfg.Auth.Tokens {
		prefix := fmt.Sprintf("auth.tokens[%d]", i)
		if tok.Token == "" {
			errs = append(errs, fmt.Errorf("%s.token is required", prefix))
		}
		if tok.UserID == "" {
			errs = append(errs, fmt.Errorf("%s.userId is required", prefix))
		}
	}

	// MCP servers
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		switch srv.Transport {
		case mcpimport.TransportStdio:
			if srv.Command == "" {
				errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
			}
		case mcpimport.TransportStreamableHTTP:
			if srv.URL == "" {
				errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
			}
		default:
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
	}

	return errors.Join(errs...)
}
