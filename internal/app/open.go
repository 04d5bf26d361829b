package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/breatheroute/privacydesk/internal/config"
	"github.com/breatheroute/privacydesk/internal/database"
)

// Storage is an opened set of backends and the pool behind them, if any.
type Storage struct {
	Backends Backends
	Pool     *pgxpool.Pool
}

// Ping reports whether the database is reachable. Memory storage is always
// reachable.
func (s *Storage) Ping(ctx context.Context) error {
	if s.Pool == nil {
		return nil
	}
	return s.Pool.Ping(ctx)
}

// Close releases the pool.
func (s *Storage) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// OpenStorage connects the configured backend and applies the schema.
func OpenStorage(ctx context.Context, backend string, log zerolog.Logger) (*Storage, error) {
	if backend == config.StorageMemory {
		log.Warn().Msg("using in-memory storage, state is lost on restart")
		return &Storage{Backends: MemoryBackends()}, nil
	}

	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	log.Info().Str("database", dbConfig.Redacted()).Msg("database connected")

	return &Storage{Backends: PostgresBackends(pool), Pool: pool}, nil
}
