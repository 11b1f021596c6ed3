// Mnemo is a conversational agent with persistent semantic memory.
//
// It exposes a small HTTP chat API backed by a reasoning loop that can
// call local memory tools and remote MCP tool servers. Configuration is
// loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	mnemo serve              Start the API server
//	mnemo ask <question>     Ask a single question (for testing)
//	mnemo version            Print version and build information
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mnemo-agent/mnemo/internal/agent"
	"github.com/mnemo-agent/mnemo/internal/api"
	"github.com/mnemo-agent/mnemo/internal/buildinfo"
	"github.com/mnemo-agent/mnemo/internal/checkpoint"
	"github.com/mnemo-agent/mnemo/internal/config"
	"github.com/mnemo-agent/mnemo/internal/embeddings"
	"github.com/mnemo-agent/mnemo/internal/events"
	"github.com/mnemo-agent/mnemo/internal/llm"
	"github.com/mnemo-agent/mnemo/internal/mcp"
	"github.com/mnemo-agent/mnemo/internal/memory"
	"github.com/mnemo-agent/mnemo/internal/mqtt"
	"github.com/mnemo-agent/mnemo/internal/tools"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main constructs the OS-level environment and delegates to [run] so
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the mnemo command. Arguments are
// parsed by hand: the flag package relies on package-level globals,
// which makes it impossible to call run() concurrently from tests, and
// the argument surface is small enough that manual parsing is clearer
// than bringing in a CLI framework.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: mnemo ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "version":
		return runVersion(stdout)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func runVersion(w io.Writer) error {
	fmt.Fprintln(w, buildinfo.String())
	info := buildinfo.Info()
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Mnemo - Conversational Agent with Persistent Memory")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: mnemo [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  ask          Ask a single question (for testing)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	return nil
}

// runAsk boots a minimal agent (in-memory thread store, no API server,
// no MQTT) and processes a single question, printing the answer to
// stdout. Useful for smoke tests without starting the server.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	logger := newLogger(stdout, slog.LevelWarn)
	question := strings.Join(args, " ")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, err := openMemoryStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	registry := tools.NewRegistry()
	if err := tools.RegisterMemoryTools(registry, store, cfg.Memory.SearchLimit); err != nil {
		return err
	}

	manager := mcp.NewManager(logger)
	defer manager.Close()
	if err := manager.Connect(ctx, cfg.ToolServer); err != nil {
		return err
	}
	if err := mcp.BridgeTools(manager, registry); err != nil {
		return err
	}

	reasoner, err := buildReasoner(cfg, logger)
	if err != nil {
		return err
	}

	loop := agent.New(agent.Config{
		Logger:        logger,
		Reasoner:      reasoner,
		Registry:      registry,
		Threads:       checkpoint.NewMemStore(),
		MaxIterations: cfg.Agent.MaxIterations,
		ToolTimeout:   cfg.Agent.ToolTimeout(),
		SystemPrompt:  systemPrompt(cfg),
		UserID:        cfg.UserID,
	})

	askCtx, cancel := context.WithTimeout(ctx, cfg.Agent.RequestTimeout())
	defer cancel()

	resp, err := loop.Run(askCtx, agent.Request{Message: question, ThreadID: "cli"})
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Fprintln(stdout, resp.Content)
	return nil
}

// runServe is the primary operating mode: load config, open stores,
// connect tool servers, start the API server, and block until a
// shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting Mnemo", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Reconfigure the logger now that the desired level is known.
	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = newLogger(stdout, level)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"user_id", cfg.UserID,
		"memory_backend", cfg.Memory.Backend,
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	// --- Semantic memory ---
	store, err := openMemoryStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	// --- Conversation threads ---
	threadsPath := cfg.DataDir + "/threads.db"
	threads, err := checkpoint.NewSQLiteStore(threadsPath)
	if err != nil {
		return fmt.Errorf("open thread database %s: %w", threadsPath, err)
	}
	defer threads.Close()
	logger.Info("thread database opened", "path", threadsPath)

	// --- Tool catalog ---
	registry := tools.NewRegistry()
	if err := tools.RegisterMemoryTools(registry, store, cfg.Memory.SearchLimit); err != nil {
		return fmt.Errorf("register memory tools: %w", err)
	}

	// --- Remote tool servers ---
	// Unreachable servers degrade rather than abort startup; the agent
	// serves with whatever tools it could discover.
	manager := mcp.NewManager(logger)
	defer manager.Close()
	if err := manager.Connect(ctx, cfg.ToolServer); err != nil {
		return fmt.Errorf("connect tool servers: %w", err)
	}
	if degraded := manager.Degraded(); len(degraded) > 0 {
		logger.Warn("serving degraded", "unavailable_servers", degraded)
	}
	if err := mcp.BridgeTools(manager, registry); err != nil {
		return fmt.Errorf("bridge remote tools: %w", err)
	}
	logger.Info("tool catalog ready", "tools", registry.Len())

	// --- Reasoning ---
	reasoner, err := buildReasoner(cfg, logger)
	if err != nil {
		return err
	}

	bus := events.New()
	loop := agent.New(agent.Config{
		Logger:        logger,
		Reasoner:      reasoner,
		Registry:      registry,
		Threads:       threads,
		Bus:           bus,
		MaxIterations: cfg.Agent.MaxIterations,
		ToolTimeout:   cfg.Agent.ToolTimeout(),
		SystemPrompt:  systemPrompt(cfg),
		UserID:        cfg.UserID,
	})

	// --- Optional MQTT event mirror ---
	if cfg.MQTT.Broker != "" {
		publisher := mqtt.New(cfg.MQTT, bus, logger)
		go func() {
			if err := publisher.Start(ctx); err != nil {
				logger.Warn("mqtt mirror stopped", "error", err)
			}
		}()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := publisher.Stop(stopCtx); err != nil {
				logger.Debug("mqtt disconnect", "error", err)
			}
		}()
	}

	// --- API server ---
	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, loop, threads, bus, cfg.Agent.RequestTimeout(), logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()
	server.SetReady()
	logger.Info("Mnemo ready")

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown incomplete", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// openMemoryStore builds the configured semantic memory backend. The
// sqlite backend needs an embedding client and probes the model once
// to learn its vector dimension.
func openMemoryStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (memory.Store, error) {
	if cfg.Memory.Backend == "remote" {
		logger.Info("using remote memory service", "url", cfg.Memory.RemoteURL)
		return memory.NewRemoteStore(cfg.Memory.RemoteURL), nil
	}

	embedBase := cfg.Embeddings.BaseURL
	if embedBase == "" {
		embedBase = cfg.Ollama.URL
	}
	embedder := embeddings.New(embeddings.Config{
		BaseURL: embedBase,
		Model:   cfg.Embeddings.Model,
	})

	probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	dim, err := embedder.Probe(probeCtx)
	if err != nil {
		return nil, fmt.Errorf("probe embedding model %s: %w", embedder.Model(), err)
	}
	logger.Info("embedding model ready", "model", embedder.Model(), "dimension", dim)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	dbPath := cfg.DataDir + "/memory.db"
	store, err := memory.NewSQLiteStore(dbPath, embedder, dim)
	if err != nil {
		return nil, fmt.Errorf("open memory database %s: %w", dbPath, err)
	}
	logger.Info("memory database opened", "path", dbPath)
	return store, nil
}

// buildReasoner assembles the LLM provider chain: the OpenAI-compatible
// gateway when configured, with Ollama as fallback (or as the sole
// provider when no gateway is set).
func buildReasoner(cfg *config.Config, logger *slog.Logger) (agent.Reasoner, error) {
	var providers []llm.Client
	if cfg.Gateway.BaseURL != "" {
		providers = append(providers, llm.NewOpenAIClient(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, cfg.Gateway.Model, logger))
	}
	if cfg.Ollama.URL != "" {
		providers = append(providers, llm.NewOllamaClient(cfg.Ollama.URL, cfg.Ollama.Model, logger))
	}

	client, err := llm.NewFailoverClient(logger, providers...)
	if err != nil {
		return nil, err
	}
	logger.Info("reasoning providers configured", "primary", providers[0].Name(), "providers", len(providers))

	return agent.NewGateway(client, logger, cfg.Agent.StepTimeout(), cfg.Agent.ReasoningRetries), nil
}

func systemPrompt(cfg *config.Config) string {
	if cfg.SystemPrompt != "" {
		return cfg.SystemPrompt
	}
	return agent.DefaultSystemPrompt
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig locates and parses the YAML configuration file.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
