package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
// Values live in the settings table, one row per namespace.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL settings repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Get returns the stored value for a namespace.
func (r *PostgresRepository) Get(ctx context.Context, namespace string) ([]byte, error) {
	query := `SELECT value FROM settings WHERE namespace = $1`

	var value []byte
	err := r.pool.QueryRow(ctx, query, namespace).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

// Put replaces the stored value for a namespace.
func (r *PostgresRepository) Put(ctx context.Context, namespace string, value []byte) error {
	query := `
		INSERT INTO settings (namespace, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (namespace) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query, namespace, value, time.Now())
	return err
}

// Update performs an atomic read-modify-write of a namespace.
// The row is created if missing and then locked with SELECT ... FOR UPDATE
// for the lifetime of the transaction, serializing concurrent updaters.
func (r *PostgresRepository) Update(ctx context.Context, namespace string, fn Mutator) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin settings transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback error is not critical

	ensure := `
		INSERT INTO settings (namespace, value, updated_at)
		VALUES ($1, NULL, $2)
		ON CONFLICT (namespace) DO NOTHING
	`
	if _, err := tx.Exec(ctx, ensure, namespace, time.Now()); err != nil {
		return fmt.Errorf("ensure settings row: %w", err)
	}

	var current []byte
	lock := `SELECT value FROM settings WHERE namespace = $1 FOR UPDATE`
	if err := tx.QueryRow(ctx, lock, namespace).Scan(&current); err != nil {
		return fmt.Errorf("lock settings row: %w", err)
	}

	next, write, err := fn(current)
	if err != nil {
		return err
	}
	if !write {
		return tx.Commit(ctx)
	}

	update := `UPDATE settings SET value = $2, updated_at = $3 WHERE namespace = $1`
	if _, err := tx.Exec(ctx, update, namespace, next, time.Now()); err != nil {
		return fmt.Errorf("write settings row: %w", err)
	}
	return tx.Commit(ctx)
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
