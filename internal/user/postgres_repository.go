package user

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQL error codes.
const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL user repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const selectUser = `
	SELECT user_id, email, display_name, created_at, updated_at
	FROM users
`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// FindByID retrieves a user by ID.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, selectUser+`WHERE user_id = $1`, id))
}

// FindByEmail retrieves a user by email.
func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, selectUser+`WHERE email = $1`, NormalizeEmail(email)))
}

// Create creates a new user.
func (r *PostgresRepository) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (user_id, email, display_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		NormalizeEmail(user.Email),
		user.DisplayName,
		user.CreatedAt,
		user.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrUserExists
	}
	return err
}

// Delete deletes a user. Metadata rows cascade.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM users WHERE user_id = $1`, id)
	return err
}

// GetMeta returns a metadata value.
func (r *PostgresRepository) GetMeta(ctx context.Context, userID, key string) (string, bool, error) {
	var value string
	err := r.pool.QueryRow(ctx,
		`SELECT meta_value FROM user_meta WHERE user_id = $1 AND meta_key = $2`,
		userID, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

// SetMeta stores a metadata value.
func (r *PostgresRepository) SetMeta(ctx context.Context, userID, key, value string) error {
	query := `
		INSERT INTO user_meta (user_id, meta_key, meta_value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, meta_key) DO UPDATE SET
			meta_value = EXCLUDED.meta_value,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query, userID, key, value)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return ErrUserNotFound
	}
	return err
}

// DeleteMeta removes a metadata value.
func (r *PostgresRepository) DeleteMeta(ctx context.Context, userID, key string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM user_meta WHERE user_id = $1 AND meta_key = $2`,
		userID, key,
	)
	return err
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
