package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market-engine/src/config"
	"market-engine/src/logger"
	"market-engine/src/scheduler"
	"market-engine/src/server"

	"github.com/joho/godotenv"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	envPath := flag.String("env", ".env", "optional .env file with secrets")
	refreshOnStart := flag.Bool("refresh-on-start", false, "run one refresh before serving")
	flag.Parse()

	// Secrets from .env; a missing file is fine
	if err := godotenv.Load(*envPath); err != nil && !os.IsNotExist(err) {
		fmt.Printf("Error loading %s: %v\n", *envPath, err)
		os.Exit(1)
	}

	// Load config from YAML file
	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(cfg.LogLevel, cfg.Name)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Shared stores
	client, err := setupRedis(ctx, cfg, appLogger.Named("Redis"))
	if err != nil {
		appLogger.Critical("Failed to connect redis: %v", err)
	}
	defer client.Close()

	store, err := setupDatabase(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Critical("Failed to init db: %v", err)
	}
	defer store.Close()

	// 2. Provider and calendar
	provider, err := setupProvider(cfg, appLogger)
	if err != nil {
		appLogger.Critical("Failed to init provider: %v", err)
	}
	cal, err := setupCalendar(cfg, appLogger)
	if err != nil {
		appLogger.Critical("Failed to init calendar: %v", err)
	}

	// 3. Gateway
	gw := setupGateway(cfg, client, store, provider, cal, appLogger)
	appLogger.Info("Gateway ready: provider=%s scope=%s limits=%d/min %d/day",
		provider.Name(), provider.Scope(), cfg.RateLimit.PerMinute, cfg.RateLimit.PerDay)

	// 4. Refresher
	refresher := scheduler.NewRefresher(ctx, cfg.MConfig, gw, store, appLogger.Named("Refresher"))
	if err := refresher.RegisterAll(); err != nil {
		appLogger.Critical("Failed to register jobs: %v", err)
	}
	if *refreshOnStart {
		report, err := refresher.RunNow(ctx)
		if err != nil {
			appLogger.Warning("Initial refresh failed: %v", err)
		} else {
			appLogger.Info("Initial refresh: refreshed=%d stale=%d failed=%d skipped=%d",
				report.Refreshed, report.Stale, report.Failed, report.Skipped)
		}
	}
	refresher.Start()

	// 5. HTTP
	srv := server.NewAPIServer(cfg.MConfig, gw, cal, appLogger.Named("APIServer"))
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			appLogger.Error("Server failed: %v", err)
		}
	case <-quit:
		appLogger.Info("Shutting down...")
	}

	cancel()
	refresher.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		appLogger.Error("Server shutdown: %v", err)
	}
}
