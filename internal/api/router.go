// Package api provides the HTTP operations API of the worker: health,
// readiness, run history and run triggers.
package api

import (
	"context"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/veloclimat/veloclimat/internal/api/handler"
	"github.com/veloclimat/veloclimat/internal/api/middleware"
	"github.com/veloclimat/veloclimat/internal/auth"
)

// Runner is what the API needs from the pipeline runner.
type Runner interface {
	handler.RunStarter
	handler.RunnerStatus
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	// Context bounds the runs started through the API.
	Context context.Context

	Version string
	Logger  zerolog.Logger

	Runner  Runner
	History handler.RunHistory
	Store   handler.Pinger
	Tokens  middleware.TokenValidator
}

// NewRouter creates a chi router with every route configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing)
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)

	ops := handler.NewOpsHandler(cfg.Version, cfg.Store, cfg.Runner)
	runs := handler.NewRunsHandler(ctx, cfg.Runner, cfg.History)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", ops.HealthCheck)
			r.Get("/ready", ops.ReadinessCheck)
			r.With(middleware.RequireScope(cfg.Tokens, auth.ScopeRunsRead)).Get("/status", ops.SystemStatus)
		})

		r.Route("/runs", func(r chi.Router) {
			r.With(
				middleware.RateLimitByIP(middleware.ReadRateLimit),
				middleware.RequireScope(cfg.Tokens, auth.ScopeRunsRead),
			).Group(func(r chi.Router) {
				r.Get("/", runs.ListRuns)
				r.Get("/{runId}", runs.GetRun)
			})
			r.With(
				middleware.RequireScope(cfg.Tokens, auth.ScopeRunsTrigger),
				middleware.RateLimitByOperator(middleware.TriggerRateLimit),
			).Post("/", runs.TriggerRun)
		})
	})

	return r
}
