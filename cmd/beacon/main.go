package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/beacon-agent/internal/config"
	"github.com/tjfontaine/beacon-agent/internal/dashboard"
	"github.com/tjfontaine/beacon-agent/internal/telemetry"
	"github.com/tjfontaine/beacon-agent/pkg/beacon"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Initialize OpenTelemetry
	shutdownTracer, err := telemetry.InitTracer("beacon-agent", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	agent, err := beacon.Init(
		beacon.WithConfig(cfg),
		beacon.WithLogger(logger),
	)
	if err != nil {
		log.Fatalf("Failed to create agent: %v", err)
	}

	logger.Info("agent started",
		slog.String("environment", cfg.Environment),
		slog.Float64("sample_rate", cfg.SampleRate),
		slog.Bool("endpoint_configured", cfg.Endpoint != ""),
	)

	srv := dashboard.New(agent, cfg.Dashboard.Port, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("dashboard server failed", slog.String("error", err.Error()))
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received, stopping agent...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := agent.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("agent shutdown complete")
}
