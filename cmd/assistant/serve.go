package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/durable-agents/assistant/chat"
	"github.com/durable-agents/assistant/config"
	"github.com/durable-agents/assistant/durable"
	"github.com/durable-agents/assistant/engine"
	"github.com/durable-agents/assistant/gateway"
	"github.com/durable-agents/assistant/observability"
	"github.com/durable-agents/assistant/step"
	"github.com/durable-agents/assistant/tools"
	"github.com/durable-agents/assistant/toolset"
)

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var (
		configFile = fs.String("config", "", "Path to config JSON file (optional)")
		addr       = fs.String("addr", "", "Listen address (overrides config)")
		provider   = fs.String("provider", "", "Model provider: openai or gemini (overrides config)")
		model      = fs.String("model", "", "Model name (overrides config)")
		storeName  = fs.String("store", "", "Journal store: sqlite or memory (overrides config)")
		dbPath     = fs.String("db", "", "SQLite journal path (overrides config)")
		verbose    = fs.Bool("verbose", false, "Enable verbose logging to stderr")
	)
	fs.Parse(args)

	// A missing .env file is fine; secrets may come from the environment.
	_ = godotenv.Load()

	cfg := config.DefaultConfig()
	if *configFile != "" {
		loaded, err := config.LoadConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = *loaded
	}
	if *addr != "" {
		cfg.Gateway.Addr = *addr
	}
	if *provider != "" {
		cfg.Provider.Name = *provider
	}
	if *model != "" {
		cfg.Provider.Model = *model
	}
	if *storeName != "" {
		cfg.Durability.Store = *storeName
	}
	if *dbPath != "" {
		cfg.Durability.Path = *dbPath
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := serve(cfg, logger); err != nil {
		log.Fatalf("Serve failed: %v", err)
	}
}

func serve(cfg config.Config, logger *slog.Logger) error {
	secrets, err := config.LoadSecrets()
	if err != nil {
		return err
	}
	stepper, err := buildStepper(cfg, secrets)
	if err != nil {
		return err
	}

	registry := tools.NewRegistry()
	if err := toolset.RegisterAll(registry, toolset.Config{}); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}
	toolDefs := registry.List()

	durable.RegisterStore(config.StoreSQLite, func() (durable.Store, error) {
		return durable.NewSQLiteStore(cfg.Durability.Path)
	})
	store, err := durable.OpenStore(cfg.Durability.Store)
	if err != nil {
		return fmt.Errorf("open journal store: %w", err)
	}

	retry := durable.DefaultRetryPolicy()
	if cfg.Durability.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.Durability.MaxAttempts
	}
	opts := []durable.RuntimeOption{
		durable.WithLogger(logger),
		durable.WithRetryPolicy(retry),
	}
	if cfg.Durability.ActivityTimeoutSeconds > 0 {
		opts = append(opts, durable.WithActivityTimeout(time.Duration(cfg.Durability.ActivityTimeoutSeconds)*time.Second))
	}
	rt := durable.NewRuntime(store, opts...)

	if err := rt.RegisterActivity(engine.ActivityStep, engine.StepActivity(stepper)); err != nil {
		return err
	}
	if err := rt.RegisterActivity(engine.ActivityTool, engine.ToolActivity(registry)); err != nil {
		return err
	}

	observer := observability.NewSlogObserver(logger)
	newWorkflow := func(sessionID string) durable.WorkflowFunc {
		return chat.NewSession(chat.Config{
			SystemNote: cfg.SystemNote,
			Engine:     cfg.EngineSettings(),
			Observer:   observer,
		}, toolDefs).Workflow()
	}

	// Sessions interrupted by a previous shutdown resume before the
	// gateway starts accepting calls.
	if err := rt.Recover(newWorkflow); err != nil {
		return fmt.Errorf("recover sessions: %w", err)
	}

	g := gateway.New(rt, func(sessionID string) error {
		return rt.StartSession(sessionID, newWorkflow(sessionID))
	}, logger)

	server := &http.Server{
		Addr:    cfg.Gateway.Addr,
		Handler: g.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", cfg.Gateway.Addr, "store", cfg.Durability.Store)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("gateway shutdown", "error", err)
	}
	if err := rt.Shutdown(shutdownCtx); err != nil {
		logger.Warn("runtime shutdown", "error", err)
	}
	if closer, ok := store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Warn("store close", "error", err)
		}
	}
	return nil
}

func buildStepper(cfg config.Config, secrets *config.Secrets) (step.Stepper, error) {
	apiKey, err := secrets.ForProvider(cfg.Provider.Name)
	if err != nil {
		return nil, err
	}

	markers := cfg.Engine.FinalMarkers
	switch cfg.Provider.Name {
	case config.ProviderOpenAI:
		return step.NewOpenAIStepper(nil, cfg.Provider.BaseURL, apiKey, cfg.Provider.Model, markers), nil
	case config.ProviderGemini:
		return step.NewGeminiStepper(context.Background(), apiKey, cfg.Provider.BaseURL, cfg.Provider.Model, markers)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider.Name)
	}
}
