// Package core provides the API chassis for the CopyForge entitlement
// engine: a chi router with the cross-cutting middleware chain (recovery,
// request correlation, logging, traffic policing, identity) applied before
// requests reach domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"copyforge/internal/config"
	"copyforge/internal/ratelimit"
)

// Pinger reports backing-store health. Satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouteRegistrar mounts a group of domain handler routes onto the router.
// The indirection keeps core free of handler imports.
type RouteRegistrar func(r chi.Router)

// Server bundles the chassis dependencies. Domain handlers are mounted via
// registrars supplied by the entry point.
type Server struct {
	Config   *config.Config
	Logger   *slog.Logger
	Limiter  *ratelimit.Limiter
	Policies ratelimit.Policies
	DB       Pinger

	// V1RouteRegistrars are invoked under the /v1 route group.
	V1RouteRegistrars []RouteRegistrar
	// RootRouteRegistrars are invoked at the router root, outside /v1.
	// The webhook endpoint lives here.
	RootRouteRegistrars []RouteRegistrar

	router *chi.Mux
}

// NewServer validates critical dependencies and prepares the router. Routes
// are mounted separately via MountRoutes so tests can customize registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		Config:   cfg,
		Logger:   logger,
		Limiter:  ratelimit.NewLimiter(nil),
		Policies: ratelimit.NewPolicies(cfg.RateLimit),
		router:   chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler for http.ListenAndServe.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for tests and route mounting.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown releases server-held resources. The HTTP listener itself is owned
// and drained by the entry point.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	if closer, ok := s.DB.(interface{ Close() }); ok {
		closer.Close()
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
