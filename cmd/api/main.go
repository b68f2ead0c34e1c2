// Package main is the entry point for the CopyForge API server.
//
// It loads configuration, connects the PostgreSQL pool, wires the billing
// domain (plan registry, usage meter, feature gate, entitlement facade),
// the external provider clients, and the HTTP handlers onto the core
// chassis, then serves until SIGINT/SIGTERM.
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

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"copyforge/internal/api/handlers"
	"copyforge/internal/billing"
	"copyforge/internal/config"
	"copyforge/internal/core"
	"copyforge/internal/db"
	"copyforge/internal/external"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so main can cleanly exit on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("copyforge API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	pool, err := newPool(cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	// Repositories and the lifecycle store.
	userRepo := db.NewUserRepo(pool)
	usageRepo := db.NewUsageRepo(pool)
	subRepo := db.NewSubscriptionRepo(pool)
	lifecycle := db.NewLifecycleStore(pool, pool, logger)

	// Billing domain.
	planRegistry := billing.NewStaticPlanRegistry()
	meter := billing.NewMeter(userRepo, usageRepo, planRegistry, nil, logger)
	gate := billing.NewFeatureGate()
	entitlements := billing.NewEntitlements(meter, gate, userRepo, nil, logger)

	// External providers.
	verifier := external.NewStripeVerifier(cfg.Billing.StripeWebhookSecret)
	payments := external.NewStripeClient(cfg.Billing, logger)
	generator := external.NewGeneratorClient(cfg.Generator, logger)
	documents := external.NewDocumentClient(cfg.Documents, logger)

	// HTTP chassis and handlers.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.DB = pool

	webhookHandler := handlers.NewStripeWebhookHandler(
		verifier, lifecycle, cfg.Billing.PriceToPlan(), logger)
	generationsHandler := handlers.NewGenerationsHandler(
		entitlements, generator, usageRepo, nil, logger)
	documentsHandler := handlers.NewDocumentsHandler(
		entitlements, documents, usageRepo, planRegistry, nil, logger)
	entitlementsHandler := handlers.NewEntitlementsHandler(entitlements, logger)
	billingHandler := handlers.NewBillingHandler(
		payments, subRepo, planRegistry, cfg.Server.AppBaseURL, logger)

	srv.RootRouteRegistrars = append(srv.RootRouteRegistrars, webhookHandler.RegisterRoutes)
	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(srv.RateLimit(srv.Policies.Generation))
				generationsHandler.RegisterRoutes(r)
			})
		},
		func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(srv.RateLimit(srv.Policies.DocumentCreate))
				documentsHandler.RegisterRoutes(r)
			})
		},
		entitlementsHandler.RegisterRoutes,
		billingHandler.RegisterRoutes,
	)

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// newPool builds the pgx connection pool from database configuration.
func newPool(cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// runHTTPServer serves until a shutdown signal or listener error, then
// drains with a 10-second deadline.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates the process-wide structured JSON logger.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler)
}
