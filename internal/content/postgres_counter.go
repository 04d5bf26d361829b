package content

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresCounter is a PostgreSQL implementation of Counter.
type PostgresCounter struct {
	pool *pgxpool.Pool
}

// NewPostgresCounter creates a new PostgreSQL content counter.
func NewPostgresCounter(pool *pgxpool.Pool) *PostgresCounter {
	return &PostgresCounter{pool: pool}
}

// PublicContentTypes lists public content types by name.
func (c *PostgresCounter) PublicContentTypes(ctx context.Context) ([]string, error) {
	rows, err := c.pool.Query(ctx, `SELECT name FROM content_types WHERE public ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// CountAuthored counts published items.
func (c *PostgresCounter) CountAuthored(ctx context.Context, userID, contentType string) (int, error) {
	query := `
		SELECT COUNT(*) FROM content_items
		WHERE author_id = $1 AND content_type = $2 AND status = $3
	`
	var n int
	err := c.pool.QueryRow(ctx, query, userID, contentType, StatusPublished).Scan(&n)
	return n, err
}

// CountFeedback counts feedback by contact address.
func (c *PostgresCounter) CountFeedback(ctx context.Context, email string, includeUnapproved bool) (int, error) {
	query := `
		SELECT COUNT(*) FROM feedback
		WHERE lower(author_email) = lower($1)
		  AND (status = $2 OR ($3 AND status = $4))
	`
	var n int
	err := c.pool.QueryRow(ctx, query, email, FeedbackApproved, includeUnapproved, FeedbackPending).Scan(&n)
	return n, err
}

// Ensure PostgresCounter implements Counter interface.
var _ Counter = (*PostgresCounter)(nil)
