// Package scheduler provides single-shot deferred callbacks ("run hook H with
// args A at time T") that survive process restarts.
//
// Events carry no handle. A scheduled event is found again by replaying its
// hook name and arguments, since the process that schedules an event is
// usually not the one that cancels or fires it.
package scheduler

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"time"
)

// ErrNoHandler is returned when an event fires for a hook with no registered handler.
var ErrNoHandler = errors.New("no handler registered for hook")

// Args are the arguments passed to a hook when its event fires.
type Args map[string]string

// Key returns a canonical encoding of the arguments. Two Args with the same
// entries always produce the same key regardless of insertion order.
func (a Args) Key() string {
	values := make(url.Values, len(a))
	for k, v := range a {
		values.Set(k, v)
	}
	return values.Encode()
}

// Names returns the sorted argument names without their values.
func (a Args) Names() []string {
	names := make([]string, 0, len(a))
	for k := range a {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Clone returns a copy of the arguments.
func (a Args) Clone() Args {
	if a == nil {
		return nil
	}
	out := make(Args, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Event is a single scheduled invocation of a hook.
type Event struct {
	At   time.Time
	Hook string
	Args Args
}

// Store defines the interface for scheduled event persistence.
type Store interface {
	// Schedule registers an event. Scheduling an identical event twice is a no-op.
	Schedule(ctx context.Context, ev Event) error

	// Cancel removes an event. Cancelling an absent or already fired event is a no-op.
	Cancel(ctx context.Context, ev Event) error

	// Next returns the earliest pending event for the hook and args.
	Next(ctx context.Context, hook string, args Args) (Event, bool, error)

	// ClaimDue removes and returns up to limit events due at or before now,
	// earliest first. A claimed event is never returned to another caller.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Event, error)
}

// Unschedule cancels the pending event for hook and args, if any.
// It reports whether an event was found.
func Unschedule(ctx context.Context, store Store, hook string, args Args) (bool, error) {
	ev, ok, err := store.Next(ctx, hook, args)
	if err != nil || !ok {
		return false, err
	}
	if err := store.Cancel(ctx, ev); err != nil {
		return false, err
	}
	return true, nil
}

func sortEvents(events []Event) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].At.Before(events[j].At)
	})
}
