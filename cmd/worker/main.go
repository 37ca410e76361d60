// Package main provides the entrypoint for the veloclimat worker: the
// operations API, the run schedule and the Pub/Sub run requests.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/veloclimat/veloclimat/internal/api"
	"github.com/veloclimat/veloclimat/internal/app"
	"github.com/veloclimat/veloclimat/internal/auth"
	"github.com/veloclimat/veloclimat/internal/config"
	"github.com/veloclimat/veloclimat/internal/telemetry"
	"github.com/veloclimat/veloclimat/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "veloclimat-worker"

	configPath := flag.String("config", "veloclimat.yaml", "path to the configuration file")
	flag.Parse()

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting veloclimat worker")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryCfg := cfg.Telemetry
	telemetryCfg.ServiceName = serviceName
	telemetryCfg.ServiceVersion = Version
	tp, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryCfg.Enabled {
		log.Info().
			Str("otlp_endpoint", telemetryCfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}
	defer a.Close()

	tokens, err := auth.NewTokenService(cfg.Auth)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize token service")
		os.Exit(1)
	}

	router := api.NewRouter(api.RouterConfig{
		Context: ctx,
		Version: Version,
		Logger:  log,
		Runner:  a.Runner,
		History: a.Ledger,
		Store:   a.Pool,
		Tokens:  tokens,
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Worker.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	scheduler := worker.NewScheduler(cfg.Worker, a.Runner, log)
	if err := scheduler.Start(ctx); err != nil {
		log.Error().Err(err).Msg("failed to start schedule")
		stop()
	}
	defer scheduler.Stop()

	if cfg.Worker.PubSub.Enabled() {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.Worker.PubSub.ProjectID,
			SubscriptionName: cfg.Worker.PubSub.Subscription,
			Runner:           a.Runner,
			RunTimeout:       cfg.Worker.RunTimeout,
			Logger:           log,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to create pubsub handler")
			stop()
		} else {
			defer func() { _ = handler.Close() }()
			go func() {
				if err := handler.Start(ctx); err != nil && ctx.Err() == nil {
					log.Error().Err(err).Msg("pubsub handler stopped")
				}
			}()
		}
	}

	<-ctx.Done()

	log.Info().Msg("shutting down worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
