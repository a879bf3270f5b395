// Kestrel - Quantified cyber risk in 60 seconds.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/assess"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/policy"
	"github.com/opensource-finance/kestrel/internal/portfolio"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/simulation"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Simulation Engine
	engine := simulation.NewEngine(Version)
	slog.Info("simulation engine initialized",
		"default_run_count", cfg.Simulation.RunCount,
		"default_percentile", cfg.Simulation.Percentile,
	)

	// Initialize Tolerance Policy Engine
	policyEngine, err := policy.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize policy engine", "error", err)
		os.Exit(1)
	}
	defer policyEngine.Close()

	// Load policies from database (no hardcoded defaults - configure via API)
	if err := loadPoliciesFromDatabase(ctx, repo, policyEngine); err != nil {
		slog.Error("failed to load policies", "error", err)
		os.Exit(1)
	}
	slog.Info("policy engine initialized", "policies_count", policyEngine.PoliciesCount())

	// Initialize Assessment Processor
	processor := assess.NewProcessor()
	slog.Info("assessment processor initialized")

	// Initialize Portfolio Service
	portfolioSvc := portfolio.NewService(repo, cacheImpl, engine)
	slog.Info("portfolio service initialized")

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, cacheImpl, engine, policyEngine, processor, cfg.Cache.OutcomeTTL)

		// Get tenant IDs to process (from environment or default)
		tenantIDs := []string{}
		if envTenants := os.Getenv("KESTREL_TENANTS"); envTenants != "" {
			tenantIDs = strings.Split(envTenants, ",")
		}

		workerCfg := worker.Config{
			TenantIDs:   tenantIDs,
			WorkerCount: 5,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, api.Dependencies{
		Repo:         repo,
		Cache:        cacheImpl,
		Bus:          busImpl,
		Engine:       engine,
		PolicyEngine: policyEngine,
		Processor:    processor,
		Portfolio:    portfolioSvc,
		Version:      Version,
		OutcomeTTL:   cfg.Cache.OutcomeTTL,
		Defaults:     cfg.Simulation,
	})

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// GlobalTenantID is used for policies that apply to all tenants.
const GlobalTenantID = "*"

// loadPoliciesFromDatabase loads tolerance policies from the database into
// the engine. All policies must be configured via POST /policies API - no
// hardcoded defaults.
func loadPoliciesFromDatabase(ctx context.Context, repo domain.Repository, engine *policy.Engine) error {
	dbPolicies, err := repo.ListPolicies(ctx, GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list policies from database", "error", err)
		return nil // Start with empty policies - they can be added via API
	}

	if len(dbPolicies) > 0 {
		slog.Info("loading policies from database", "count", len(dbPolicies))
		return engine.LoadPolicies(dbPolicies)
	}

	slog.Info("no policies in database - configure via POST /policies API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 KESTREL                  ║")
	fmt.Println("  ║      Cyber Risk Quantification Engine     ║")
	fmt.Println("  ║       Hover over every loss event.        ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /simulate               - Run a Monte Carlo simulation")
	fmt.Println("    GET  /runs/{id}              - Get run summary by ID")
	fmt.Println("    GET  /runs/{id}/exceedance   - Get loss exceedance curve")
	fmt.Println("    GET  /runs/{id}/sample       - Get raw annual loss samples")
	fmt.Println("    GET  /scenarios              - List all scenarios")
	fmt.Println("    POST /scenarios              - Create a new scenario")
	fmt.Println("    POST /scenarios/{id}/run     - Queue an async simulation")
	fmt.Println("    GET  /policies               - List tolerance policies")
	fmt.Println("    POST /policies               - Create a tolerance policy")
	fmt.Println("    POST /policies/reload        - Hot-reload policies from database")
	fmt.Println("    POST /portfolio/simulate     - Aggregate across scenarios")
	fmt.Println("    GET  /health                 - Health check")
	fmt.Println()
}
