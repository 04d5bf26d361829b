package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a PostgreSQL implementation of Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL event store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// timestamptz keeps microseconds; normalize so a scheduled event and the
// value later read back compare equal.
func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Schedule registers an event.
func (s *PostgresStore) Schedule(ctx context.Context, ev Event) error {
	query := `
		INSERT INTO scheduled_events (hook, args_key, args, run_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (hook, args_key, run_at) DO NOTHING
	`

	argsJSON, err := json.Marshal(ev.Args)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, query, ev.Hook, ev.Args.Key(), argsJSON, normalize(ev.At))
	return err
}

// Cancel removes an event.
func (s *PostgresStore) Cancel(ctx context.Context, ev Event) error {
	query := `DELETE FROM scheduled_events WHERE hook = $1 AND args_key = $2 AND run_at = $3`
	_, err := s.pool.Exec(ctx, query, ev.Hook, ev.Args.Key(), normalize(ev.At))
	return err
}

// Next returns the earliest pending event for the hook and args.
func (s *PostgresStore) Next(ctx context.Context, hook string, args Args) (Event, bool, error) {
	query := `
		SELECT hook, args, run_at
		FROM scheduled_events
		WHERE hook = $1 AND args_key = $2
		ORDER BY run_at
		LIMIT 1
	`

	ev, err := scanEvent(s.pool.QueryRow(ctx, query, hook, args.Key()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Event{}, false, nil
		}
		return Event{}, false, err
	}
	return ev, true, nil
}

// ClaimDue removes and returns up to limit events due at or before now.
// Rows locked by a concurrent claimer are skipped rather than waited on.
func (s *PostgresStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Event, error) {
	query := `
		DELETE FROM scheduled_events
		WHERE id IN (
			SELECT id FROM scheduled_events
			WHERE run_at <= $1
			ORDER BY run_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING hook, args, run_at
	`

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, query, normalize(now), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// RETURNING does not preserve the subquery order
	sortEvents(events)
	return events, nil
}

func scanEvent(row pgx.Row) (Event, error) {
	var (
		ev       Event
		argsJSON []byte
	)
	if err := row.Scan(&ev.Hook, &argsJSON, &ev.At); err != nil {
		return Event{}, err
	}
	if len(argsJSON) > 0 {
		if err := json.Unmarshal(argsJSON, &ev.Args); err != nil {
			return Event{}, err
		}
	}
	return ev, nil
}

// Ensure PostgresStore implements Store interface.
var _ Store = (*PostgresStore)(nil)
