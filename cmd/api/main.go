// Package main provides the entrypoint for the privacy desk API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/privacydesk/internal/api"
	"github.com/breatheroute/privacydesk/internal/api/handler"
	"github.com/breatheroute/privacydesk/internal/api/middleware"
	"github.com/breatheroute/privacydesk/internal/app"
	"github.com/breatheroute/privacydesk/internal/auth"
	"github.com/breatheroute/privacydesk/internal/config"
	"github.com/breatheroute/privacydesk/internal/notify"
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
	const serviceName = "privacydesk-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	if config.LoadDotEnv() {
		log.Debug().Msg("loaded .env file")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if !cfg.IsProduction() {
		log = log.Level(zerolog.DebugLevel)
	} else {
		log = log.Level(zerolog.InfoLevel)
	}

	log.Info().
		Str("build_time", BuildTime).
		Str("env", cfg.AppEnv).
		Str("storage", cfg.Storage).
		Msg("starting privacy desk API")

	ctx := context.Background()

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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize http metrics")
	}
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

	var notifier notify.Notifier
	if cfg.SMTP.Host != "" {
		notifier = notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			From:     cfg.SMTP.From,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			BaseURL:  cfg.PublicBaseURL,
		})
		log.Info().Str("smtp_host", cfg.SMTP.Host).Msg("confirmation mail enabled")
	} else {
		notifier = notify.NewLogNotifier(log, cfg.PublicBaseURL)
		log.Warn().Msg("SMTP not configured - confirmation links are only logged")
	}

	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: cfg.JWT.SigningKey,
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
	})

	router := api.NewRouter(api.RouterConfig{
		Version:        Version,
		BuildTime:      BuildTime,
		Logger:         log,
		ServiceName:    serviceName,
		Metrics:        httpMetrics,
		RequestService: desk.Requests,
		UserService:    desk.Users,
		FlagService:    desk.Flags,
		Notifier:       notifier,
		JWTService:     jwtService,
		Health:         desk.Health,
		Probes:         map[string]handler.ReadinessProbe{"database": storage.Ping},
		TokenTTL:       cfg.Requests.TokenTTL,
		AllowedOrigins: cfg.AllowedOrigins,
		RequireTLS:     cfg.IsProduction(),
	})

	runCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	// Memory state is private to this process, so nothing else can sweep it.
	if cfg.Storage == config.StorageMemory {
		sweeper := worker.NewSweepJob(worker.SweepConfig{
			Runner:   desk.Dispatcher,
			Logger:   log.With().Str("component", "sweeper").Logger(),
			Interval: cfg.Worker.SweepInterval,
		})
		go func() {
			if err := sweeper.Start(runCtx); err != nil {
				log.Error().Err(err).Msg("sweeper stopped")
			}
		}()
	}

	server := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	stopWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}
