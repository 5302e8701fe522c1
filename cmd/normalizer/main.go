package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/polyglot-normalizer/internal/pkg/config"
	"github.com/tjfontaine/polyglot-normalizer/internal/telemetry"
	"github.com/tjfontaine/polyglot-normalizer/pkg/normalizer"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize OpenTelemetry
	tp, shutdownTracer, err := telemetry.InitTracer(telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	n, err := normalizer.New(
		normalizer.WithConfig(cfg),
		normalizer.WithLogger(logger),
		normalizer.WithTracerProvider(tp),
	)
	if err != nil {
		log.Fatalf("Failed to create normalizer: %v", err)
	}

	if err := n.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start normalizer: %v", err)
	}

	// Wait for shutdown signal or server failure
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, stopping normalizer...")
	case err := <-n.Done():
		if err != nil {
			logger.Error("server failed", slog.String("error", err.Error()))
			exitCode = 1
		}
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := n.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		exitCode = 1
	}

	if exitCode != 0 {
		shutdownCancel()
		os.Exit(exitCode)
	}
}
