// Package main provides the entrypoint for the privacy desk worker, which
// expires unconfirmed requests on a schedule or when triggered over Pub/Sub.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/privacydesk/internal/app"
	"github.com/breatheroute/privacydesk/internal/config"
	"github.com/breatheroute/privacydesk/internal/requests"
	"github.com/breatheroute/privacydesk/internal/telemetry"
	"github.com/breatheroute/privacydesk/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "privacydesk-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	config.LoadDotEnv()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.Storage == config.StorageMemory {
		log.Fatal().Msg("the worker needs shared storage, set STORAGE_BACKEND=postgres")
	}

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting privacy desk worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.AppEnv,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	requestMetrics, err := requests.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize request metrics")
	}

	storage, err := app.OpenStorage(ctx, cfg.Storage, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	defer storage.Close()

	desk := app.New(app.Options{
		Backends:            storage.Backends,
		Logger:              log,
		TokenTTL:            cfg.Requests.TokenTTL,
		MetaPrefix:          cfg.Requests.MetaPrefix,
		Namespace:           cfg.Requests.Namespace,
		DispatchBatchSize:   cfg.Worker.BatchSize,
		DispatchConcurrency: cfg.Worker.Concurrency,
		Metrics:             requestMetrics,
	})

	sweeper := worker.NewSweepJob(worker.SweepConfig{
		Runner:   desk.Dispatcher,
		Logger:   log.With().Str("component", "sweeper").Logger(),
		Interval: cfg.Worker.SweepInterval,
	})

	// Pub/Sub triggers replace the ticker when a subscription is configured.
	if cfg.Worker.PubSubProject != "" {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.Worker.PubSubProject,
			SubscriptionName: cfg.Worker.PubSubSubscription,
			Jobs:             worker.NewJobHandler(sweeper, desk.Health, log),
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer func() {
			if err := handler.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close pubsub client")
			}
		}()
		go func() {
			if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	} else {
		go func() {
			if err := sweeper.Start(ctx); err != nil {
				log.Error().Err(err).Msg("sweeper stopped")
			}
		}()
	}

	// Cloud Run requires the worker to answer health checks.
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if err := storage.Ping(r.Context()); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		stats := sweeper.Stats()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":       status,
			"version":      Version,
			"sweeps":       stats.Runs,
			"last_sweep":   stats.LastRunAt,
			"last_error":   stats.LastError,
			"hooks_run":    stats.Succeeded,
			"hooks_failed": stats.Failed,
		})
	})

	server := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
