package scheduler

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// InMemoryStore is an in-memory implementation of Store.
// This is intended for MVP/testing. Production should use a database-backed implementation.
type InMemoryStore struct {
	mu     sync.Mutex
	events map[string]Event
}

// NewInMemoryStore creates a new in-memory event store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		events: make(map[string]Event),
	}
}

func eventKey(ev Event) string {
	return ev.Hook + "|" + ev.Args.Key() + "|" + strconv.FormatInt(ev.At.UnixNano(), 10)
}

// Schedule registers an event.
func (s *InMemoryStore) Schedule(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev.Args = ev.Args.Clone()
	s.events[eventKey(ev)] = ev
	return nil
}

// Cancel removes an event.
func (s *InMemoryStore) Cancel(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.events, eventKey(ev))
	return nil
}

// Next returns the earliest pending event for the hook and args.
func (s *InMemoryStore) Next(_ context.Context, hook string, args Args) (Event, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	argsKey := args.Key()
	var (
		next  Event
		found bool
	)
	for _, ev := range s.events {
		if ev.Hook != hook || ev.Args.Key() != argsKey {
			continue
		}
		if !found || ev.At.Before(next.At) {
			next = ev
			found = true
		}
	}
	if found {
		next.Args = next.Args.Clone()
	}
	return next, found, nil
}

// ClaimDue removes and returns up to limit events due at or before now.
func (s *InMemoryStore) ClaimDue(_ context.Context, now time.Time, limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []Event
	for _, ev := range s.events {
		if !ev.At.After(now) {
			due = append(due, ev)
		}
	}
	sortEvents(due)
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	for _, ev := range due {
		delete(s.events, eventKey(ev))
	}
	return due, nil
}

// Len returns the number of pending events.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Ensure InMemoryStore implements Store interface.
var _ Store = (*InMemoryStore)(nil)
