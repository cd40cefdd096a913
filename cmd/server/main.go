// Package main is the entrypoint for the Workstream API server.
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

	"github.com/workstreamd/workstream/internal/api"
	"github.com/workstreamd/workstream/internal/api/handler"
	"github.com/workstreamd/workstream/internal/api/response"
	"github.com/workstreamd/workstream/internal/cache"
	"github.com/workstreamd/workstream/internal/config"
	"github.com/workstreamd/workstream/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "lease_timeout", cfg.Lease.Timeout.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

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

	// 5. Create store
	pgStore := store.NewPostgresStore(pool)

	// 6. Background sweep: reset leases abandoned past the timeout so their
	// requests become claimable again.
	go runLockSweep(ctx, pgStore, cfg.Lease)

	// 7. Build router with dependencies
	deps := api.Dependencies{
		HealthHandler: healthHandler(pgStore, redisCache),

		CreateRequest:        handler.NewCreateRequestHandler(pgStore),
		GetRequest:           handler.NewGetRequestHandler(pgStore),
		GetRequestByWorkload: handler.NewGetRequestByWorkloadHandler(pgStore),
		UpdateRequest:        handler.NewUpdateRequestHandler(pgStore),
		ExtendRequest:        handler.NewExtendRequestHandler(pgStore),
		CancelRequest:        handler.NewCancelRequestHandler(pgStore),
		DeleteRequest:        handler.NewDeleteRequestHandler(pgStore),
		ClaimRequests:        handler.NewClaimRequestsHandler(pgStore, cfg.Catalog.ClaimBulkSize),
		CommitTransforms:     handler.NewCommitTransformsHandler(pgStore),

		AddContents:  handler.NewAddContentsHandler(pgStore, cfg.Catalog),
		GetContentID: handler.NewGetContentIDHandler(pgStore),
		GetContent:   handler.NewGetContentHandler(pgStore),
		ListContents: handler.NewListContentsHandler(pgStore),
		ContentStats: handler.NewContentStatsHandler(pgStore, redisCache, cfg.Catalog),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
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

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// runLockSweep periodically reclaims leases older than the lease timeout.
func runLockSweep(ctx context.Context, s store.Store, cfg config.LeaseConfig) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reclaimed, err := s.ReclaimExpiredLocks(ctx, cfg.Timeout)
			if err != nil {
				slog.Error("lock sweep failed", "error", err)
				continue
			}
			if reclaimed > 0 {
				slog.Info("reclaimed expired locks", "count", reclaimed)
			}
		}
	}
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
