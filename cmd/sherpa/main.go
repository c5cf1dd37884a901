// Sherpa is an LLM agent orchestration service.
//
// It exposes an HTTP API for a step-protocol agent loop, checkpointed
// chat memory with global user profiles, keyword intent routing, and
// the trip planning workflows. Configuration is loaded from a single
// YAML file discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	sherpa serve             Start the API server
//	sherpa ask <question>    Ask a single question (for testing)
//	sherpa version           Print version and build information
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/nugget/sherpa-ai-agent/internal/agent"
	"github.com/nugget/sherpa-ai-agent/internal/api"
	"github.com/nugget/sherpa-ai-agent/internal/buildinfo"
	"github.com/nugget/sherpa-ai-agent/internal/chat"
	"github.com/nugget/sherpa-ai-agent/internal/checkpoint"
	"github.com/nugget/sherpa-ai-agent/internal/config"
	"github.com/nugget/sherpa-ai-agent/internal/fetch"
	"github.com/nugget/sherpa-ai-agent/internal/llm"
	"github.com/nugget/sherpa-ai-agent/internal/memory"
	"github.com/nugget/sherpa-ai-agent/internal/profile"
	"github.com/nugget/sherpa-ai-agent/internal/router"
	"github.com/nugget/sherpa-ai-agent/internal/search"
	"github.com/nugget/sherpa-ai-agent/internal/tools"
	"github.com/nugget/sherpa-ai-agent/internal/trip"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main constructs the OS-level environment and delegates to [run] so the
// full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the sherpa command. Arguments are
// parsed by hand; the flag package relies on package-level globals
// which interfere with calling run() concurrently from tests.
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
			return fmt.Errorf("usage: sherpa ask <question>")
		}
		return runAsk(ctx, stdout, configPath, strings.Join(cmdArgs, " "))
	case "version":
		fmt.Fprintf(stdout, "sherpa %s (%s, built %s)\n", buildinfo.Version, buildinfo.GitCommit, buildinfo.BuildTime)
		return nil
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprint(w, `Sherpa - LLM agent orchestration service

Usage:
  sherpa [flags] <command>

Commands:
  serve             Start the API server
  ask <question>    Ask a single question (for testing)
  version           Print version information

Flags:
  -config <path>    Path to config file
`)
	return nil
}

// newLogger builds a text slog logger at the given level, rendering the
// custom trace level by name.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig resolves and parses the config file. An explicit path must
// exist; otherwise [config.FindConfig] searches the default locations.
// When nothing is found the built-in defaults are used.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		return config.Default(), "(defaults)", nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, "", fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

// newSearchManager wires the configured search providers. Registration
// order is the fallback order.
func newSearchManager(cfg *config.Config) *search.Manager {
	mgr := search.NewManager(cfg.Search.Primary)
	if cfg.Search.SearXNG.URL != "" {
		mgr.Register(search.NewSearXNG(cfg.Search.SearXNG.URL))
	}
	if cfg.Search.Brave.APIKey != "" {
		mgr.Register(search.NewBrave(cfg.Search.Brave.APIKey))
	}
	if cfg.Search.DuckDuckGo.Enabled {
		mgr.Register(search.NewDuckDuckGo())
	}
	return mgr
}

// openDB opens a SQLite database under the data directory with WAL mode
// and a busy timeout, so the checkpointer, profiles, and workflow runs
// can share it safely.
func openDB(dataDir, name string) (*sql.DB, error) {
	path := filepath.Join(dataDir, name)
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	return db, nil
}

// runServe handles the "sherpa serve" subcommand. It is the primary
// operating mode: loads config, opens the database, builds the agent
// loop, chat service, and trip planners, starts the API server, and
// blocks until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting Sherpa", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure logger now that the desired level is known.
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
		"model", cfg.Models.Default,
		"ollama_url", cfg.Models.OllamaURL,
	)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	// All persistent state (chat checkpoints, user profiles, workflow
	// runs) shares one SQLite database. A failed open degrades to
	// in-memory stores rather than refusing to start.
	var (
		checkpointBackend checkpoint.Backend
		profileBackend    profile.Backend
		runBackend        trip.RunBackend
	)
	db, err := openDB(cfg.DataDir, "sherpa.db")
	if err != nil {
		logger.Warn("database unavailable, state will not persist", "error", err)
	} else {
		defer db.Close()
		if checkpointBackend, err = checkpoint.NewSQLStore(db); err != nil {
			logger.Warn("checkpoint store init failed", "error", err)
			checkpointBackend = nil
		}
		if profileBackend, err = profile.NewSQLStore(db); err != nil {
			logger.Warn("profile store init failed", "error", err)
			profileBackend = nil
		}
		if runBackend, err = trip.NewSQLRuns(db); err != nil {
			logger.Warn("workflow run store init failed", "error", err)
			runBackend = nil
		}
		logger.Info("database opened", "path", filepath.Join(cfg.DataDir, "sherpa.db"))
	}

	checkpoints := checkpoint.NewCheckpointer(checkpointBackend, cfg.Memory.MaxTurns, logger)
	profiles := profile.NewManager(profileBackend, logger)
	runs := trip.NewRunStore(runBackend, logger)

	llmClient := llm.NewOllamaClient(cfg.Models.OllamaURL)
	if err := llmClient.Ping(ctx); err != nil {
		logger.Warn("Ollama unreachable at startup", "url", cfg.Models.OllamaURL, "error", err)
	}

	searchMgr := newSearchManager(cfg)
	if !searchMgr.Configured() {
		logger.Warn("no search providers configured, web search unavailable")
	}

	weather := tools.NewWeather()
	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry, searchMgr, fetch.New(), weather)
	logger.Info("tools registered", "tools", registry.Names())

	sessions := memory.NewStore(cfg.Memory.MaxTurns)
	loop := agent.NewLoop(logger, llmClient, cfg.Models.Default, sessions, registry, cfg.Agent.MaxSteps)
	chatSvc := chat.NewService(logger, llmClient, cfg.Models.Default, checkpoints, profiles)
	solo := trip.NewSoloPlanner(logger, llmClient, cfg.Models.Default, searchMgr, runs)
	travel := trip.NewTravelPlanner(logger, llmClient, cfg.Models.Default, searchMgr, runs)
	classifier := router.NewClassifier(logger, checkpoints)
	dispatcher := router.NewDispatcher(logger, classifier, loop, chatSvc, solo, travel, weather, checkpoints)

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, logger)
	server.SetAgent(loop, sessions)
	server.SetChat(chatSvc, checkpoints, profiles)
	server.SetSmartChat(dispatcher, classifier)
	server.SetPlanners(solo, travel)
	server.SetHealthProbes(llmClient, checkpointBackend != nil)

	// SIGINT/SIGTERM cancels the context and triggers graceful shutdown.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", "error", err)
	}
	return nil
}

// runAsk handles the "sherpa ask" subcommand: one agent run against the
// configured model, answer printed to stdout.
func runAsk(ctx context.Context, stdout io.Writer, configPath, question string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Logs go to stderr so stdout carries only the answer.
	logger := newLogger(os.Stderr, slog.LevelWarn)

	llmClient := llm.NewOllamaClient(cfg.Models.OllamaURL)
	searchMgr := newSearchManager(cfg)
	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry, searchMgr, fetch.New(), tools.NewWeather())

	loop := agent.NewLoop(logger, llmClient, cfg.Models.Default, memory.NewStore(cfg.Memory.MaxTurns), registry, cfg.Agent.MaxSteps)
	result, err := loop.Run(ctx, question, agent.DefaultSessionID, nil)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, result.Answer)
	return nil
}
