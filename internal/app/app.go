// Package app assembles the request lifecycle from its storage backends. The
// API and worker processes build the same graph so that hooks scheduled by
// one are understood by the other.
package app

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/breatheroute/privacydesk/internal/content"
	"github.com/breatheroute/privacydesk/internal/featureflags"
	"github.com/breatheroute/privacydesk/internal/requests"
	"github.com/breatheroute/privacydesk/internal/resilience"
	"github.com/breatheroute/privacydesk/internal/scheduler"
	"github.com/breatheroute/privacydesk/internal/settings"
	"github.com/breatheroute/privacydesk/internal/user"
)

// Backends are the storage implementations behind the services.
type Backends struct {
	Settings  settings.Repository
	Scheduler scheduler.Store
	Users     user.Repository
	Flags     featureflags.Repository
	Content   content.Counter
}

// MemoryBackends returns process-local storage. State is lost on exit and
// is not shared between processes.
func MemoryBackends() Backends {
	return Backends{
		Settings:  settings.NewInMemoryRepository(),
		Scheduler: scheduler.NewInMemoryStore(),
		Users:     user.NewInMemoryRepository(),
		Flags:     featureflags.NewInMemoryRepository(),
		Content:   content.NewInMemoryCounter(),
	}
}

// PostgresBackends returns storage backed by pool.
func PostgresBackends(pool *pgxpool.Pool) Backends {
	return Backends{
		Settings:  settings.NewPostgresRepository(pool),
		Scheduler: scheduler.NewPostgresStore(pool),
		Users:     user.NewPostgresRepository(pool),
		Flags:     featureflags.NewPostgresRepository(pool),
		Content:   content.NewPostgresCounter(pool),
	}
}

// Options configure New.
type Options struct {
	Backends Backends
	Logger   zerolog.Logger

	// TokenTTL is the confirmation window. Default: requests.TokenTTL.
	TokenTTL time.Duration
	// MetaPrefix prefixes pending token metadata keys.
	MetaPrefix string
	// Namespace is the settings namespace of the request collection.
	Namespace string

	// DispatchBatchSize and DispatchConcurrency tune scheduled hook runs.
	DispatchBatchSize   int
	DispatchConcurrency int

	// Metrics records lifecycle counters. Optional.
	Metrics *requests.Metrics
	// Extension adds an eligibility signal. Optional.
	Extension content.ExtensionFunc
	// Now overrides the clock in tests.
	Now func() time.Time
}

// App is the assembled service graph.
type App struct {
	Backends   Backends
	Health     *resilience.Registry
	Directory  *user.Directory
	Users      *user.Service
	Flags      *featureflags.Service
	Checker    *content.Checker
	Registry   *requests.Registry
	Requests   *requests.Service
	Dispatcher *scheduler.Dispatcher
}

// New wires the services and registers the expiry hooks on the dispatcher.
func New(opts Options) *App {
	health := resilience.NewRegistry()
	b := opts.Backends

	directory := user.NewDirectory(user.DirectoryConfig{
		Repository: b.Users,
		Health:     health,
	})
	flags := featureflags.NewService(featureflags.ServiceConfig{
		Repository: b.Flags,
		Logger:     opts.Logger.With().Str("component", "featureflags").Logger(),
	})
	checker := content.NewChecker(content.CheckerConfig{
		Directory: directory,
		Counter:   b.Content,
		Extension: opts.Extension,
		Health:    health,
	})
	registry := requests.NewRegistry(requests.RegistryConfig{
		MetaStore: directory,
		Scheduler: b.Scheduler,
		Prefix:    opts.MetaPrefix,
		Now:       opts.Now,
	})
	store := requests.NewBlobStore(requests.BlobStoreConfig{
		Repository: b.Settings,
		Namespace:  opts.Namespace,
	})
	service := requests.NewService(requests.ServiceConfig{
		Store:       store,
		Registry:    registry,
		Scheduler:   b.Scheduler,
		Directory:   directory,
		Eligibility: checker,
		Policy:      flags,
		Metrics:     opts.Metrics,
		Logger:      opts.Logger.With().Str("component", "requests").Logger(),
		TTL:         opts.TokenTTL,
		Now:         opts.Now,
	})

	dispatcher := scheduler.NewDispatcher(scheduler.DispatcherConfig{
		Store:       b.Scheduler,
		Logger:      opts.Logger.With().Str("component", "scheduler").Logger(),
		BatchSize:   opts.DispatchBatchSize,
		Concurrency: opts.DispatchConcurrency,
	})
	service.RegisterHooks(dispatcher)

	return &App{
		Backends:   b,
		Health:     health,
		Directory:  directory,
		Users:      user.NewService(b.Users),
		Flags:      flags,
		Checker:    checker,
		Registry:   registry,
		Requests:   service,
		Dispatcher: dispatcher,
	}
}
