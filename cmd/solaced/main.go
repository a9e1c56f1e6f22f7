package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	solaceroot "github.com/set-night/solace"
	"github.com/set-night/solace/internal/config"
	"github.com/set-night/solace/internal/handler"
	"github.com/set-night/solace/internal/middleware"
	"github.com/set-night/solace/internal/repository"
	"github.com/set-night/solace/internal/service"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Run migrations
	migrationsFS, err := fs.Sub(solaceroot.MigrationsFS, "migrations")
	if err != nil {
		slog.Error("failed to load embedded migrations", "error", err)
		os.Exit(1)
	}
	if err := repository.RunMigrations(cfg.DatabaseURL, migrationsFS); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Open the local offline queue
	queueRepo, err := repository.OpenQueueDB(ctx, cfg.QueuePath)
	if err != nil {
		slog.Error("failed to open queue database", "error", err)
		os.Exit(1)
	}
	defer queueRepo.Close()

	// Initialize services
	store := repository.NewPostgresStore(pool)
	limits := service.Limits{Guest: cfg.GuestDailyLimit, Free: cfg.FreeDailyLimit}
	queue := service.NewOfflineQueue(queueRepo, store)
	entitlements := service.NewEntitlementsService(store, limits)
	completion := service.NewOpenAICompletion(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.Model)

	orchestrator := service.NewOrchestrator(service.OrchestratorDeps{
		Auth:         middleware.Gateway{},
		Store:        store,
		Completion:   completion,
		Entitlements: entitlements,
		Queue:        queue,
		Escalations:  store,
		Limits:       limits,
	})

	// Start the queue drain loop
	go queue.Run(ctx)

	// Initialize HTTP server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	h := handler.New(handler.Deps{
		Cfg:          cfg,
		Orchestrator: orchestrator,
		Queue:        queue,
	})
	h.Register(e)

	go func() {
		slog.Info("starting server", "addr", cfg.Addr())
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown server", "error", err)
	}
	slog.Info("server stopped gracefully")
}
