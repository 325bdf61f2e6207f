// SecureScan - Fraud risk scoring for single transactions.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/securescan/internal/api"
	"github.com/opensource-finance/securescan/internal/bus"
	"github.com/opensource-finance/securescan/internal/cache"
	"github.com/opensource-finance/securescan/internal/config"
	"github.com/opensource-finance/securescan/internal/domain"
	"github.com/opensource-finance/securescan/internal/model"
	"github.com/opensource-finance/securescan/internal/repository"
	"github.com/opensource-finance/securescan/internal/rules"
	"github.com/opensource-finance/securescan/internal/scoring"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := config.Load(os.Getenv("SECURESCAN_CONFIG"))
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Logging)

	slog.Info("starting securescan",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"model_source", cfg.Model.Source,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"threshold", cfg.Scoring.Threshold,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	if repo != nil {
		defer repo.Close()
	}
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	if cacheImpl != nil {
		defer cacheImpl.Close()
	}
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	if busImpl != nil {
		defer busImpl.Close()
	}
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// The model is loaded once, here. A failure is logged by the loader and
	// scoring continues on the fallback rules.
	src, err := model.NewSource(cfg.Model, repo)
	if err != nil {
		slog.Error("failed to configure model source", "error", err)
		os.Exit(1)
	}
	loader := model.NewLoader(src)
	_, _ = loader.Load(ctx)

	ruleEngine, err := rules.NewEngine(cfg)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}

	engine, err := scoring.NewEngine(cfg, loader, ruleEngine)
	if err != nil {
		slog.Error("failed to initialize scoring engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	if repo != nil {
		loadStoredRules(ctx, repo, engine)
	}
	slog.Info("rule engine initialized",
		"floor_rules", len(engine.Rules(domain.RuleKindFloor)),
		"fallback_rules", len(engine.Rules(domain.RuleKindFallback)),
	)

	srv := api.NewServer(cfg, repo, cacheImpl, busImpl, engine, Version)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("securescan is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, engine.ModelStatus(ctx), Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("securescan shutdown complete")
}

// setupLogger installs the default slog logger. SECURESCAN_DEBUG=true forces
// debug level.
func setupLogger(cfg domain.LoggingConfig) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if os.Getenv("SECURESCAN_DEBUG") == "true" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// loadStoredRules replaces the built-in rule sets with stored ones. A failure
// keeps the built-in sets.
func loadStoredRules(ctx context.Context, repo domain.Repository, engine *scoring.Engine) {
	floors, fallbacks, err := engine.LoadStoredRules(ctx, repo)
	if err != nil {
		slog.Warn("failed to load stored rules, using built-in rules", "error", err)
		return
	}
	if floors == 0 && fallbacks == 0 {
		slog.Info("no stored rules, using built-in rules")
		return
	}
	slog.Info("stored rules loaded", "floor_rules", floors, "fallback_rules", fallbacks)
}

func printBanner(cfg *domain.Config, status model.Status, version string) {
	modelLine := "unavailable (fallback rules)"
	if status.Available {
		modelLine = fmt.Sprintf("%s %s %v", status.Name, status.Version, status.Capabilities)
	}

	fmt.Println()
	fmt.Println("  +-------------------------------------------+")
	fmt.Println("  |               SECURESCAN                  |")
	fmt.Println("  |      Fraud risk scoring engine            |")
	fmt.Println("  +-------------------------------------------+")
	fmt.Println()
	fmt.Printf("  Version:   %s\n", version)
	fmt.Printf("  Model:     %s\n", modelLine)
	fmt.Printf("  Threshold: %.2f\n", cfg.Scoring.Threshold)
	fmt.Printf("  Server:    http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST   /evaluate               - Score a transaction")
	fmt.Println("    GET    /examples               - List example transactions")
	fmt.Println("    POST   /examples/{n}/evaluate  - Score the n-th example")
	fmt.Println("    GET    /rules                  - List active rules")
	fmt.Println("    POST   /rules                  - Store a rule")
	fmt.Println("    DELETE /rules/{kind}/{id}      - Disable a stored rule")
	fmt.Println("    POST   /rules/reload           - Hot-reload stored rules")
	fmt.Println("    GET    /model                  - Model status")
	fmt.Println("    POST   /models                 - Store a model artifact")
	fmt.Println("    GET    /health                 - Health check")
	fmt.Println()
}
