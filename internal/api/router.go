// Package api provides the HTTP API for the privacy desk.
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/breatheroute/privacydesk/internal/api/handler"
	"github.com/breatheroute/privacydesk/internal/api/middleware"
	"github.com/breatheroute/privacydesk/internal/auth"
	"github.com/breatheroute/privacydesk/internal/featureflags"
	"github.com/breatheroute/privacydesk/internal/notify"
	"github.com/breatheroute/privacydesk/internal/requests"
	"github.com/breatheroute/privacydesk/internal/resilience"
	"github.com/breatheroute/privacydesk/internal/user"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	RequestService *requests.Service
	UserService    *user.Service
	FlagService    *featureflags.Service
	Notifier       notify.Notifier
	JWTService     *auth.JWTService
	Health         *resilience.Registry
	Probes         map[string]handler.ReadinessProbe

	// TokenTTL is reported to requesters as the confirmation deadline.
	TokenTTL time.Duration
	// AllowedOrigins may call the public intake endpoints from a browser.
	AllowedOrigins []string
	// RequireTLS rejects requests forwarded over plain HTTP.
	RequireTLS bool
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "privacydesk-api"
	}

	// Order matters: request ID first so every later layer can log it.
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Health:    cfg.Health,
		Flags:     cfg.FlagService,
		Probes:    cfg.Probes,
	})
	requestsHandler := handler.NewRequestsHandler(handler.RequestsConfig{
		Service:  cfg.RequestService,
		Flags:    cfg.FlagService,
		Notifier: cfg.Notifier,
		Logger:   cfg.Logger,
		TTL:      cfg.TokenTTL,
	})
	usersHandler := handler.NewUsersHandler(cfg.UserService, cfg.Logger)
	flagsHandler := handler.NewFeatureFlagsHandler(cfg.FlagService, cfg.Logger)

	adminAuth := middleware.AdminAuth(cfg.JWTService)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(adminAuth).Get("/status", opsHandler.SystemStatus)
		})

		// Public intake, called from the privacy form.
		r.Route("/gdpr/requests", func(r chi.Router) {
			r.Use(middleware.PublicCORS(cfg.AllowedOrigins))
			r.Use(middleware.RequireJSON)
			r.With(middleware.RateLimitByIP(middleware.IntakeRateLimit)).
				Post("/", requestsHandler.CreateRequest)
			r.With(middleware.RateLimitByIP(middleware.ConfirmRateLimit)).
				Post("/{token}/confirm", requestsHandler.ConfirmRequest)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(adminAuth)
			r.Use(middleware.RateLimitByAdmin(middleware.AdminRateLimit))
			r.Use(middleware.RequireJSON)

			r.Route("/gdpr", func(r chi.Router) {
				r.Get("/requests", requestsHandler.ListRequests)
				r.Get("/requests/{key}", requestsHandler.GetRequest)
				r.Delete("/requests/{key}", requestsHandler.DeleteRequest)
				r.Get("/subjects/{subjectId}/content", requestsHandler.SubjectContent)
			})

			r.Route("/users", func(r chi.Router) {
				r.Post("/", usersHandler.CreateUser)
				r.Get("/{userId}", usersHandler.GetUser)
				r.Delete("/{userId}", usersHandler.DeleteUser)
			})

			r.Route("/feature-flags", func(r chi.Router) {
				r.Get("/", flagsHandler.ListFeatureFlags)
				r.Put("/", flagsHandler.UpdateFeatureFlags)
				r.Post("/invalidate", flagsHandler.InvalidateCache)
				r.Delete("/{key}", flagsHandler.ResetFeatureFlag)
				r.Get("/{key}/history", flagsHandler.FeatureFlagHistory)
			})
		})
	})

	return r
}
