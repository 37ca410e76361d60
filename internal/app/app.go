// Package app wires the configured store, sinks and runner together for the
// binaries.
package app

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/veloclimat/veloclimat/internal/config"
	"github.com/veloclimat/veloclimat/internal/database"
	"github.com/veloclimat/veloclimat/internal/ledger"
	"github.com/veloclimat/veloclimat/internal/pipeline"
	"github.com/veloclimat/veloclimat/internal/sink"
	"github.com/veloclimat/veloclimat/internal/store"
	"github.com/veloclimat/veloclimat/internal/telemetry"
)

// App holds the long-lived dependencies of a process.
type App struct {
	Pool   *pgxpool.Pool
	Runner *pipeline.Runner
	Ledger *ledger.Ledger

	closers []func() error
	logger  zerolog.Logger
}

// New connects to the database and to every enabled sink, then creates the
// runner. On error, whatever was opened is closed again.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (_ *App, err error) {
	a := &App{logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	pool, err := database.Connect(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	a.Pool = pool
	a.closers = append(a.closers, func() error { pool.Close(); return nil })
	logger.Info().
		Str("host", cfg.Database.Host).
		Int("port", cfg.Database.Port).
		Str("database", cfg.Database.Database).
		Msg("database connected")

	l, err := ledger.Open(cfg.Ledger.Path, cfg.Ledger.Retain)
	if err != nil {
		return nil, err
	}
	a.Ledger = l
	a.closers = append(a.closers, l.Close)
	publishers := []pipeline.Publisher{l}

	if cfg.Sinks.NATS.Enabled() {
		events, err := sink.ConnectNATS(cfg.Sinks.NATS, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, events.Close)
		publishers = append(publishers, events)
	}

	if cfg.Sinks.ClickHouse.Enabled() {
		exporter, err := sink.OpenClickHouse(ctx, cfg.Sinks.ClickHouse, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, exporter.Close)
		publishers = append(publishers, exporter)
	}

	metrics, err := telemetry.NewPipelineMetrics()
	if err != nil {
		return nil, err
	}

	runner, err := pipeline.NewRunner(pipeline.RunnerConfig{
		Config:     cfg.Pipeline(),
		Repository: store.NewPostgresRepository(pool, cfg.Tables, logger),
		Publishers: publishers,
		Metrics:    metrics,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	a.Runner = runner

	return a, nil
}

// Close releases every dependency in reverse order of opening.
func (a *App) Close() {
	var errList []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errList = append(errList, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errList...); err != nil {
		a.logger.Error().Err(err).Msg("failed to close dependencies")
	}
}
