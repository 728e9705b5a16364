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

	"github.com/ponderlabs/ponder/internal/api"
	"github.com/ponderlabs/ponder/internal/config"
	"github.com/ponderlabs/ponder/internal/patch"
	"github.com/ponderlabs/ponder/internal/server"
	"github.com/ponderlabs/ponder/internal/session"
	sqlitestore "github.com/ponderlabs/ponder/internal/storage/sqlite"
	"github.com/ponderlabs/ponder/internal/telemetry"
	"github.com/ponderlabs/ponder/internal/tokens"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	shutdown, err := telemetry.InitTracer("ponder", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	estimator := tokens.NewEstimator()

	patches := patch.Load(cfg.Patches.Dir, logger)
	engine := patch.NewEngine(patches, patch.NewDetector(patch.WithLogger(logger)), estimator, logger)

	handlerOpts := []api.HandlerOption{
		api.WithEstimator(estimator),
	}
	if cfg.Storage.Path != "" {
		store, err := sqlitestore.New(cfg.Storage.Path)
		if err != nil {
			log.Fatalf("Failed to open storage: %v", err)
		}
		defer store.Close()
		handlerOpts = append(handlerOpts, api.WithStore(store))
		logger.Info("conversation persistence enabled", slog.String("path", cfg.Storage.Path))
	}

	handler := api.NewChatHandler(logger, session.NewManager(), engine, api.ProviderDefaults{
		APIKey:  cfg.Provider.APIKey,
		BaseURL: cfg.Provider.BaseURL,
		Model:   cfg.Provider.Model,
	}, handlerOpts...)

	srv := server.New(cfg.Server.Port, logger)
	handler.Routes(srv.Router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
