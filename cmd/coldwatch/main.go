// Coldwatch is a conversational monitoring agent for a cold-storage
// facility. It answers questions about sensor data, suggests and
// generates visualizations, and serves everything over an HTTP API
// with Server-Sent Event streams.
//
// Usage:
//
//	coldwatch serve            Start the API server
//	coldwatch seed             Populate the readings database with demo history
//	coldwatch ask <question>   Ask a single question (for testing)
//	coldwatch version          Print version and build information
//	coldwatch -o json version  Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coldwatch/coldwatch/internal/agent"
	"github.com/coldwatch/coldwatch/internal/api"
	"github.com/coldwatch/coldwatch/internal/buildinfo"
	"github.com/coldwatch/coldwatch/internal/config"
	"github.com/coldwatch/coldwatch/internal/events"
	"github.com/coldwatch/coldwatch/internal/facility"
	"github.com/coldwatch/coldwatch/internal/llm"
	"github.com/coldwatch/coldwatch/internal/mqtt"
	"github.com/coldwatch/coldwatch/internal/session"
	"github.com/coldwatch/coldwatch/internal/tools"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the coldwatch command. All OS-level
// dependencies are injected as parameters; run returns nil on clean
// shutdown and a non-nil error for any failure.
//
// Arguments are parsed by hand. The flag package relies on
// package-level globals (flag.CommandLine), which makes it impossible
// to call run() concurrently from tests; our argument surface is small
// enough that manual parsing is clearer than a CLI framework.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
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

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, stderr, configPath)
	case "seed":
		return runSeed(ctx, stdout, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: coldwatch ask <question>")
		}
		return runAsk(ctx, stdout, stderr, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	// Print fields in a stable order for human readability.
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Coldwatch - Cold Storage Facility Agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: coldwatch [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  seed         Populate the readings database with demo history")
	fmt.Fprintln(w, "  ask          Ask a single question (for testing)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/coldwatch/config.yaml, /etc/coldwatch/config.yaml")
	return nil
}

// runSeed handles "coldwatch seed". It opens (or creates) the readings
// database and writes 48 hours of deterministic demo history, including
// the Cold Room B warming incident in the final hours.
func runSeed(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")

	cfg := loadConfigOrDefault(configPath, logger)

	store, err := facility.NewSQLiteStore(cfg.Data.DBPath)
	if err != nil {
		return fmt.Errorf("open readings database %s: %w", cfg.Data.DBPath, err)
	}
	defer store.Close()

	count, err := facility.Seed(ctx, store, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	fmt.Fprintf(stdout, "Seeded %d readings into %s\n", count, cfg.Data.DBPath)
	return nil
}

// runAsk handles "coldwatch ask <question>". It boots a minimal agent
// over the configured database (seeding it first when empty) and runs
// a single question, printing streamed events as they arrive. Useful
// for smoke tests and debugging without starting the server.
func runAsk(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string, args []string) error {
	logger := newLogger(stderr, slog.LevelWarn, "text")

	question := strings.Join(args, " ")

	cfg := loadConfigOrDefault(configPath, logger)

	store, err := facility.NewSQLiteStore(cfg.Data.DBPath)
	if err != nil {
		return fmt.Errorf("open readings database %s: %w", cfg.Data.DBPath, err)
	}
	defer store.Close()

	if err := seedIfEmpty(ctx, store, logger); err != nil {
		return err
	}

	// In-memory sessions with no archive — nothing to persist for a
	// one-shot question.
	ag := agent.New(agent.Options{
		Logger:            logger,
		LLM:               createLLMClient(cfg, logger),
		Registry:          tools.NewRegistry(store, logger),
		Sessions:          session.NewStore(nil),
		Facility:          store,
		ChatModel:         cfg.Models.ChatModel,
		VizModel:          cfg.Models.VizModel,
		CodegenModel:      cfg.Models.CodegenModel,
		MaxIterations:     cfg.Agent.MaxIterationsOrDefault(),
		HistoryWindow:     cfg.Agent.HistoryWindowOrDefault(),
		CompletionTimeout: cfg.Agent.CompletionTimeout(),
		ToolTimeout:       cfg.Agent.ToolTimeout(),
		UseDataClock:      cfg.Data.UseDataClock,
	})

	res, err := ag.Handle(ctx, "cli", question)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	if res.Static != "" {
		fmt.Fprintln(stdout, res.Static)
		return nil
	}

	for ev := range res.Events {
		switch ev.Type {
		case agent.EventToolUse:
			if ev.Status == agent.ToolRunning {
				fmt.Fprintf(stderr, "  [%s] %s\n", ev.Tool, ev.Message)
			}
		case agent.EventText:
			fmt.Fprintln(stdout, ev.Content)
		case agent.EventError:
			fmt.Fprintln(stderr, "error: "+ev.Message)
		}
	}
	return nil
}

// runServe handles "coldwatch serve". It is the primary operating mode:
// loads config, opens the database, seeds demo data when the database
// is empty, wires the agent, starts the API server and the optional
// MQTT ingest, and blocks until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting Coldwatch", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	// Reconfigure the logger now that the desired level is known.
	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = newLogger(stdout, level, "text")
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"provider", cfg.Models.Provider,
		"chat_model", cfg.Models.ChatModel,
	)

	// --- Readings store ---
	// One SQLite database holds sensor readings and the session archive.
	store, err := facility.NewSQLiteStore(cfg.Data.DBPath)
	if err != nil {
		return fmt.Errorf("open readings database %s: %w", cfg.Data.DBPath, err)
	}
	defer store.Close()
	logger.Info("readings database opened", "path", cfg.Data.DBPath)

	if err := seedIfEmpty(ctx, store, logger); err != nil {
		return err
	}

	// --- Session store ---
	// In-memory sessions journaled write-behind to the shared database.
	archive, err := session.NewArchive(store.DB(), logger)
	if err != nil {
		return fmt.Errorf("open session archive: %w", err)
	}
	sessions := session.NewStore(archive)

	// --- Completion client ---
	llmClient := createLLMClient(cfg, logger)
	{
		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		if err := llmClient.Ping(pingCtx); err != nil {
			logger.Warn("completion provider unreachable at startup", "error", err)
		}
		pingCancel()
	}

	// --- Agent ---
	bus := events.New()
	ag := agent.New(agent.Options{
		Logger:            logger,
		LLM:               llmClient,
		Registry:          tools.NewRegistry(store, logger),
		Sessions:          sessions,
		Facility:          store,
		Bus:               bus,
		ChatModel:         cfg.Models.ChatModel,
		VizModel:          cfg.Models.VizModel,
		CodegenModel:      cfg.Models.CodegenModel,
		MaxIterations:     cfg.Agent.MaxIterationsOrDefault(),
		HistoryWindow:     cfg.Agent.HistoryWindowOrDefault(),
		CompletionTimeout: cfg.Agent.CompletionTimeout(),
		ToolTimeout:       cfg.Agent.ToolTimeout(),
		UseDataClock:      cfg.Data.UseDataClock,
	})

	// --- API server ---
	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, ag, logger)
	server.SetTranscripts(archive)
	server.SetBus(bus)

	// --- Signal handling and graceful shutdown ---
	// NotifyContext wraps the parent context so that SIGINT/SIGTERM
	// cancellation flows through the same ctx used by all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- MQTT ingest ---
	// Optional live readings feed. Runs alongside the server; failures
	// reconnect in the background without affecting request handling.
	var ingest *mqtt.Ingest
	if cfg.MQTT.Enabled && cfg.MQTT.Broker != "" {
		ingest = mqtt.New(cfg.MQTT, store, bus, logger)
		go func() {
			if err := ingest.Start(ctx); err != nil {
				logger.Error("mqtt ingest failed", "error", err)
			}
		}()
		logger.Info("mqtt ingest enabled", "broker", cfg.MQTT.Broker, "prefix", cfg.MQTT.TopicPrefix)
	} else {
		logger.Info("mqtt ingest disabled (not configured)")
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if ingest != nil {
			if err := ingest.Stop(shutdownCtx); err != nil {
				logger.Error("mqtt shutdown failed", "error", err)
			}
		}
		_ = server.Shutdown(shutdownCtx)
	}()

	// Start the API server. This blocks until the server is shut down
	// (via context cancellation or fatal error).
	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("Coldwatch stopped")
	return nil
}

// seedIfEmpty populates the demo dataset when the database has no
// readings yet, so a fresh checkout answers questions immediately.
func seedIfEmpty(ctx context.Context, store *facility.SQLiteStore, logger *slog.Logger) error {
	latest, err := store.LatestTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("check readings: %w", err)
	}
	if !latest.IsZero() {
		return nil
	}

	logger.Info("empty readings database, seeding demo history")
	count, err := facility.Seed(ctx, store, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	logger.Info("demo history seeded", "readings", count)
	return nil
}

// loadConfigOrDefault loads the config file when one can be found and
// falls back to built-in defaults otherwise. Used by subcommands that
// work fine without a config file (seed, ask).
func loadConfigOrDefault(explicit string, logger *slog.Logger) *config.Config {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		logger.Warn("no config file found, using defaults")
		return config.Default()
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config load failed, using defaults", "path", cfgPath, "error", err)
		return config.Default()
	}
	return cfg
}

// createLLMClient builds the completion client for the configured
// provider. Anthropic is the default; Ollama serves local deployments.
func createLLMClient(cfg *config.Config, logger *slog.Logger) llm.Client {
	switch cfg.Models.Provider {
	case "ollama":
		logger.Info("completion provider: ollama", "url", cfg.Models.OllamaURL)
		return llm.NewOllamaClient(cfg.Models.OllamaURL, logger)
	default:
		if cfg.Anthropic.APIKey == "" {
			logger.Warn("anthropic api_key not set; set anthropic.api_key or ANTHROPIC_API_KEY via ${ANTHROPIC_API_KEY} expansion")
		}
		logger.Info("completion provider: anthropic")
		return llm.NewAnthropicClient(cfg.Anthropic.APIKey, logger)
	}
}

// newLogger creates a structured logger that writes to w at the given
// level and format. Format must be "text" or "json"; any other value
// defaults to text.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
