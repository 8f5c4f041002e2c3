package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"hot-rank/internal/core"
	"hot-rank/internal/features/hot"
	"hot-rank/internal/features/monitor"
	"hot-rank/internal/server"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	config, err := core.LoadConfig()
	if err != nil {
		core.NewLogger().Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := core.NewLoggerWithLevel(os.Stdout, config.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := core.NewRegistry(logger)

	hotFeature, err := hot.NewFeature(ctx, logger, hot.NewConfig(config))
	if err != nil {
		logger.Error("Failed to create hot feature", "error", err)
		os.Exit(1)
	}
	if err := registry.Register(hotFeature); err != nil {
		logger.Error("Failed to register hot feature", "error", err)
		os.Exit(1)
	}

	if config.IsFeatureEnabled("monitor") {
		monitorFeature, err := monitor.NewFeature(ctx, logger, monitor.NewConfig(config), hotFeature.FeedService())
		if err != nil {
			logger.Error("Failed to create monitor feature", "error", err)
			os.Exit(1)
		}
		if err := registry.Register(monitorFeature); err != nil {
			logger.Error("Failed to register monitor feature", "error", err)
			os.Exit(1)
		}
	}

	srv := server.New(config, logger, registry)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", "error", err)
		os.Exit(1)
	}
}
