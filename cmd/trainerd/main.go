// Package main is the entrypoint for the trainqueue daemon: one process
// running the HTTP API and the single training worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/seriesclust/trainqueue/internal/api"
	"github.com/seriesclust/trainqueue/internal/api/handler"
	mw "github.com/seriesclust/trainqueue/internal/api/middleware"
	"github.com/seriesclust/trainqueue/internal/api/response"
	"github.com/seriesclust/trainqueue/internal/artifact"
	"github.com/seriesclust/trainqueue/internal/cache"
	"github.com/seriesclust/trainqueue/internal/config"
	"github.com/seriesclust/trainqueue/internal/extract"
	"github.com/seriesclust/trainqueue/internal/store"
	"github.com/seriesclust/trainqueue/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		slog.Error("trainerd failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "poll_interval", cfg.Worker.PollInterval)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 3. Connect the gateway (self-healing) and a pool for the extract query
	gateway, err := store.NewResilient(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer gateway.Close()

	extractPool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect extract pool: %w", err)
	}
	defer extractPool.Close()
	slog.Info("database connected")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Artifact manager and worker
	artifacts, err := artifact.NewManager(cfg.Worker.ModelsDir, gateway, logger)
	if err != nil {
		return fmt.Errorf("create artifact manager: %w", err)
	}

	w := worker.New(
		gateway,
		extract.NewPostgresExtractor(extractPool),
		artifacts,
		redisCache,
		worker.Config{
			PollInterval:  cfg.Worker.PollInterval,
			KMin:          cfg.Worker.KMin,
			KMax:          cfg.Worker.KMax,
			ZeroThreshold: cfg.Worker.ZeroThreshold,
			MaxArtifacts:  cfg.Worker.MaxArtifacts,
		},
		logger,
	)

	workerErr := make(chan error, 1)
	go func() {
		workerErr <- w.Run(ctx)
	}()

	// 6. Build router with dependencies
	deps := api.Dependencies{
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RequestsPerMin),

		HealthHandler:   healthHandler(gateway, redisCache),
		SubmitHandler:   handler.NewSubmitHandler(gateway),
		StatusHandler:   handler.NewStatusHandler(gateway),
		LookupHandler:   handler.NewLookupHandler(gateway),
		ArtifactHandler: handler.NewArtifactHandler(gateway, artifacts),
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal, server error, or worker exit
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case err := <-workerErr:
		if err != nil {
			return fmt.Errorf("worker error: %w", err)
		}
		slog.Info("worker exited")
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// healthHandler checks database and cache connectivity.
func healthHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
