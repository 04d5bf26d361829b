package featureflags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores flags in feature_flags and their change log in
// feature_flag_changes.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL feature flags repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func scanFlag(row pgx.Row) (*Flag, error) {
	var (
		f   Flag
		raw []byte
	)
	if err := row.Scan(&f.Key, &raw, &f.UpdatedBy, &f.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &f.Value); err != nil {
		return nil, fmt.Errorf("decoding flag %s: %w", f.Key, err)
	}
	return &f, nil
}

// Get returns the stored value of key.
func (r *PostgresRepository) Get(ctx context.Context, key string) (*Flag, error) {
	f, err := scanFlag(r.pool.QueryRow(ctx,
		`SELECT key, value, updated_by, updated_at FROM feature_flags WHERE key = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFlagNotFound
	}
	return f, err
}

// List returns every stored value.
func (r *PostgresRepository) List(ctx context.Context) (map[string]*Flag, error) {
	rows, err := r.pool.Query(ctx, `SELECT key, value, updated_by, updated_at FROM feature_flags`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*Flag)
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, err
		}
		out[f.Key] = f
	}
	return out, rows.Err()
}

// Apply writes values and log rows in one transaction.
func (r *PostgresRepository) Apply(ctx context.Context, changes []Change) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	for _, c := range changes {
		var raw []byte
		if c.IsReset() {
			if _, err := tx.Exec(ctx, `DELETE FROM feature_flags WHERE key = $1`, c.Key); err != nil {
				return fmt.Errorf("resetting %s: %w", c.Key, err)
			}
		} else {
			if raw, err = json.Marshal(c.Value); err != nil {
				return fmt.Errorf("encoding %s: %w", c.Key, err)
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO feature_flags (key, value, updated_by, updated_at)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (key) DO UPDATE
				SET value = EXCLUDED.value, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`,
				c.Key, raw, c.Actor, c.At); err != nil {
				return fmt.Errorf("storing %s: %w", c.Key, err)
			}
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO feature_flag_changes (key, value, actor, reason, changed_at)
			VALUES ($1, $2, $3, $4, $5)`,
			c.Key, raw, c.Actor, c.Reason, c.At); err != nil {
			return fmt.Errorf("logging change to %s: %w", c.Key, err)
		}
	}

	return tx.Commit(ctx)
}

// History returns up to limit changes to key, newest first. A limit of zero
// or less returns the whole log.
func (r *PostgresRepository) History(ctx context.Context, key string, limit int) ([]Change, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := r.pool.Query(ctx, `
		SELECT key, value, actor, reason, changed_at
		FROM feature_flag_changes
		WHERE key = $1
		ORDER BY changed_at DESC, id DESC
		LIMIT $2`, key, lim)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Change
	for rows.Next() {
		var (
			c   Change
			raw []byte
		)
		if err := rows.Scan(&c.Key, &raw, &c.Actor, &c.Reason, &c.At); err != nil {
			return nil, err
		}
		if raw != nil {
			if err := json.Unmarshal(raw, &c.Value); err != nil {
				return nil, fmt.Errorf("decoding change to %s: %w", c.Key, err)
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

var _ Repository = (*PostgresRepository)(nil)
