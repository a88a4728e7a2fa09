// Command attestia is the main entry point for the Attestia agent gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/attestia/attestia/internal/agent"
	"github.com/attestia/attestia/internal/audit"
	"github.com/attestia/attestia/internal/budget"
	"github.com/attestia/attestia/internal/classify"
	"github.com/attestia/attestia/internal/config"
	"github.com/attestia/attestia/internal/gateway"
	"github.com/attestia/attestia/internal/health"
	"github.com/attestia/attestia/internal/observe"
	"github.com/attestia/attestia/internal/resilience"
	"github.com/attestia/attestia/internal/tool"
	"github.com/attestia/attestia/internal/tool/builtin"
	"github.com/attestia/attestia/internal/tool/mcpimport"
	"github.com/attestia/attestia/pkg/provider/llm"
	"github.com/attestia/attestia/pkg/provider/llm/anyllm"
	openaiprovider "github.com/attestia/attestia/pkg/provider/llm/openai"
	"github.com/attestia/attestia/pkg/types"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sweeper cadence for in-memory state that would otherwise grow unbounded.
const (
	historySweepInterval  = 10 * time.Minute
	historyMaxIdle        = time.Hour
	defaultRateLimitSweep = 5 * time.Minute
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "attestia: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "attestia: %v\n", err)
		}
		return 1
	}

	// Logger. The level var is shared with the config watcher so log level
	// changes apply without restart.
	levelVar := &slog.LevelVar{}
	levelVar.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	slog.Info("attestia starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry providers (Prometheus-backed metrics, tracing).
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "attestia",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// Database (optional). Without it the service runs with in-memory audit
	// and without the document-backed tools.
	var pool *pgxpool.Pool
	if cfg.Database.PostgresDSN != "" {
		pool, err = pgxpool.New(ctx, cfg.Database.PostgresDSN)
		if err != nil {
			slog.Error("failed to create database pool", "err", err)
			return 1
		}
		defer pool.Close()
	}

	// Audit sink: Postgres when available, the process log otherwise.
	var sink audit.Sink
	if pool != nil {
		pgSink := audit.NewPostgresSink(pool)
		if err := pgSink.Migrate(ctx); err != nil {
			slog.Error("failed to migrate audit schema", "err", err)
			return 1
		}
		sink = pgSink
	} else {
		sink = audit.NewSlogSink(logger)
	}

	// Tool registry with breakers for external tools.
	breakers := resilience.NewBreakerSet(resilience.Config{})
	registry := tool.New(
		tool.WithAuditSink(sink),
		tool.WithBreakerSet(breakers),
		tool.WithLogger(logger),
		tool.WithDevelopmentMode(cfg.Server.DevelopmentMode),
	)

	if err := registerBuiltinTools(ctx, registry, cfg, pool); err != nil {
		slog.Error("failed to register builtin tools", "err", err)
		return 1
	}

	// MCP tool import.
	importer := mcpimport.NewImporter()
	defer func() {
		if err := importer.Close(); err != nil {
			slog.Warn("mcp importer close error", "err", err)
		}
	}()
	for _, srv := range cfg.MCP.Servers {
		names, err := importer.Import(ctx, registry, srv)
		if err != nil {
			slog.Error("failed to import MCP server", "server", srv.Name, "err", err)
			return 1
		}
		slog.Info("mcp tools imported", "server", srv.Name, "count", len(names))
	}

	// Agent roster.
	roster, err := buildRoster(cfg)
	if err != nil {
		slog.Error("failed to build agent roster", "err", err)
		return 1
	}

	// Engine.
	engineOpts := []agent.EngineOption{
		agent.WithClassifier(classify.NewKeywordClassifier()),
		agent.WithAuditSink(sink),
		agent.WithLogger(logger),
	}
	if cfg.Budget.DailyTokenCap > 0 {
		engineOpts = append(engineOpts, agent.WithBudget(budget.NewMemoryLedger(int(cfg.Budget.DailyTokenCap))))
	}
	engine := agent.NewEngine(roster, registry, engineOpts...)

	// Gateway.
	healthHandler := health.New(
		health.DatabaseChecker(pool),
		health.AgentsChecker(func() int { return len(roster.List()) }),
		health.ToolsChecker(func() int { return len(registry.List()) }),
	)
	if cfg.Server.HealthCheckTimeout > 0 {
		healthHandler.SetCheckTimeout(time.Duration(cfg.Server.HealthCheckTimeout) * time.Second)
	}
	gw := gateway.New(registry, engine, buildAuthenticator(cfg),
		gateway.WithAuditSink(sink),
		gateway.WithHealth(healthHandler),
		gateway.WithLogger(logger),
		gateway.WithDevelopmentMode(cfg.Server.DevelopmentMode),
	)

	printStartupSummary(cfg, registry, roster)

	// Config watcher: log level and agent-definition changes. Structural
	// changes (providers, server, database) need a restart.
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			levelVar.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.BudgetChanged {
			slog.Warn("budget.dailyTokenCap changed; restart to apply", "new", d.NewDailyCap)
		}
		for _, ad := range d.AgentChanges {
			slog.Warn("agent definition changed; restart to apply",
				"agent", ad.ID, "added", ad.Added, "removed", ad.Removed)
		}
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	// HTTP server + background sweepers.
	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if cfg.Server.TLS != nil {
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		ticker := time.NewTicker(historySweepInterval)
		defer ticker.Stop()
		lastCount := 0
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if removed := engine.History().Sweep(historyMaxIdle); removed > 0 {
					slog.Debug("swept idle conversations", "removed", removed)
				}
				count := engine.History().Len()
				observe.DefaultMetrics().ActiveConversations.Add(gctx, int64(count-lastCount))
				lastCount = count
			}
		}
	})

	g.Go(func() error {
		interval := defaultRateLimitSweep
		if cfg.Tools.RateLimitSweepInterval > 0 {
			interval = time.Duration(cfg.Tools.RateLimitSweepInterval) * time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				registry.SweepRateLimits()
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	slog.Info("server ready", "addr", addr)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// version is stamped at build time via -ldflags.
var version = "dev"

// ─── Provider wiring ─────────────────────────────────────────────────────────

// registerProviderFamilies wires the supported provider families into reg.
//
// The "openai" family uses the dedicated backend; every other family goes
// through the any-llm multiplexer.
func registerProviderFamilies(reg *config.Registry) {
	reg.RegisterProvider("openai", func(entry config.ProviderConfig) (llm.Provider, error) {
		var opts []openaiprovider.Option
		if entry.BaseURL != "" {
			opts = append(opts, openaiprovider.WithBaseURL(entry.BaseURL))
		}
		return openaiprovider.New(entry.APIKey, entry.Model, opts...)
	})

	for _, family := range []string{"anthropic", "llamacpp", "gemini", "groq", "deepseek", "mistral"} {
		reg.RegisterProvider(family, func(entry config.ProviderConfig) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(family, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API
	// key.
	reg.RegisterProvider("ollama", func(entry config.ProviderConfig) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})
}

// buildRoster instantiates one provider per config entry and registers every
// agent with its provider.
func buildRoster(cfg *config.Config) (*agent.Roster, error) {
	reg := config.NewRegistry()
	registerProviderFamilies(reg)

	providers := make(map[string]llm.Provider, len(cfg.Providers))
	for _, entry := range cfg.Providers {
		p, err := reg.CreateProvider(entry)
		if err != nil {
			return nil, err
		}
		providers[entry.Name] = p
		slog.Info("provider created", "name", entry.Name, "family", entry.Family, "model", entry.Model)
	}

	// Wrap providers that declare fallbacks. Done after the first pass so a
	// fallback may reference a provider defined later in the file.
	for _, entry := range cfg.Providers {
		if len(entry.Fallbacks) == 0 {
			continue
		}
		fb := resilience.NewLLMFallback(providers[entry.Name], entry.Name, resilience.FallbackConfig{})
		for _, name := range entry.Fallbacks {
			backup, ok := providers[name]
			if !ok {
				return nil, fmt.Errorf("provider %q fallback %q is not configured", entry.Name, name)
			}
			fb.AddFallback(name, backup)
		}
		providers[entry.Name] = fb
		slog.Info("provider failover enabled", "name", entry.Name, "fallbacks", entry.Fallbacks)
	}

	families := make(map[string]string, len(cfg.Providers))
	for _, entry := range cfg.Providers {
		families[entry.Name] = entry.Family
	}

	roster := agent.NewRoster()
	for _, def := range cfg.Agents {
		p, ok := providers[def.Provider]
		if !ok {
			return nil, fmt.Errorf("agent %q references unknown provider %q", def.ID, def.Provider)
		}
		def.Family = families[def.Provider]
		if err := roster.Register(def, p); err != nil {
			return nil, err
		}
		slog.Info("agent registered", "agent", def.ID, "provider", def.Provider, "tools", len(def.Tools))
	}
	return roster, nil
}

// registerBuiltinTools wires the built-in compliance tools. Tools whose
// dependencies are unavailable (no database, no regulation sources) are
// skipped by RegisterAll.
func registerBuiltinTools(ctx context.Context, registry *tool.Registry, cfg *config.Config, pool *pgxpool.Pool) error {
	deps := builtin.Deps{
		RegulationSources: cfg.Tools.RegulationSources,
	}
	if pool != nil {
		docs := builtin.NewDocumentStore(pool)
		if err := docs.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate document store: %w", err)
		}
		profiles := builtin.NewProfileStore(pool)
		if err := profiles.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate profile store: %w", err)
		}
		deps.Documents = docs
		deps.Profiles = profiles
	}

	names, err := builtin.RegisterAll(registry, deps)
	if err != nil {
		return err
	}
	slog.Info("builtin tools registered", "tools", names)
	return nil
}

// buildAuthenticator assembles the gateway identity chain from config.
func buildAuthenticator(cfg *config.Config) gateway.Authenticator {
	tokens := make(map[string]types.Actor, len(cfg.Auth.Tokens))
	for _, t := range cfg.Auth.Tokens {
		tokens[t.Token] = types.Actor{UserID: t.UserID, OrganizationID: t.OrganizationID}
	}

	chain := gateway.Chain{gateway.NewTokenAuthenticator(tokens)}
	if cfg.Auth.TrustProxyHeaders {
		chain = append(chain, &gateway.HeaderAuthenticator{})
	}
	return chain
}

// ─── Startup summary ─────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, registry *tool.Registry, roster *agent.Roster) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Attestia — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	fmt.Printf("║  Providers       : %-19d ║\n", len(cfg.Providers))
	fmt.Printf("║  Agents          : %-19d ║\n", len(roster.List()))
	fmt.Printf("║  Tools           : %-19d ║\n", len(registry.List()))
	fmt.Printf("║  MCP servers     : %-19d ║\n", len(cfg.MCP.Servers))
	if cfg.Database.PostgresDSN != "" {
		fmt.Printf("║  Database        : %-19s ║\n", "connected")
	} else {
		fmt.Printf("║  Database        : %-19s ║\n", "(in-memory)")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

// ─── Logger ──────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
