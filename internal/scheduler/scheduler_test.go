package scheduler_test

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/privacydesk/internal/scheduler"
)

func TestArgs_KeyIsOrderIndependent(t *testing.T) {
	a := scheduler.Args{"user_id": "usr_1", "meta_key": "gdpr_access_key"}
	b := scheduler.Args{"meta_key": "gdpr_access_key", "user_id": "usr_1"}

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), scheduler.Args{"user_id": "usr_2"}.Key())
}

func TestInMemoryStore_NextFindsByArgs(t *testing.T) {
	store := scheduler.NewInMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	args := scheduler.Args{"user_id": "usr_1"}
	require.NoError(t, store.Schedule(ctx, scheduler.Event{At: base.Add(2 * time.Hour), Hook: "h", Args: args}))
	require.NoError(t, store.Schedule(ctx, scheduler.Event{At: base.Add(time.Hour), Hook: "h", Args: args}))
	require.NoError(t, store.Schedule(ctx, scheduler.Event{At: base, Hook: "other", Args: args}))

	ev, ok, err := store.Next(ctx, "h", scheduler.Args{"user_id": "usr_1"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, base.Add(time.Hour), ev.At)

	_, ok, err = store.Next(ctx, "h", scheduler.Args{"user_id": "usr_2"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInMemoryStore_CancelIsIdempotent(t *testing.T) {
	store := scheduler.NewInMemoryStore()
	ctx := context.Background()
	ev := scheduler.Event{At: time.Now(), Hook: "h", Args: scheduler.Args{"k": "v"}}

	require.NoError(t, store.Cancel(ctx, ev))
	require.NoError(t, store.Schedule(ctx, ev))
	require.NoError(t, store.Cancel(ctx, ev))
	require.NoError(t, store.Cancel(ctx, ev))
	assert.Equal(t, 0, store.Len())
}

func TestUnschedule(t *testing.T) {
	store := scheduler.NewInMemoryStore()
	ctx := context.Background()
	args := scheduler.Args{"k": "v"}

	found, err := scheduler.Unschedule(ctx, store, "h", args)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Schedule(ctx, scheduler.Event{At: time.Now(), Hook: "h", Args: args}))
	found, err = scheduler.Unschedule(ctx, store, "h", args)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 0, store.Len())
}

func TestInMemoryStore_ClaimDue(t *testing.T) {
	store := scheduler.NewInMemoryStore()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Schedule(ctx, scheduler.Event{At: now.Add(-time.Minute), Hook: "a"}))
	require.NoError(t, store.Schedule(ctx, scheduler.Event{At: now.Add(-time.Hour), Hook: "b"}))
	require.NoError(t, store.Schedule(ctx, scheduler.Event{At: now.Add(time.Hour), Hook: "c"}))

	due, err := store.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "b", due[0].Hook)
	assert.Equal(t, "a", due[1].Hook)

	// Claimed events are gone
	due, err = store.ClaimDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
	assert.Equal(t, 1, store.Len())
}

func TestDispatcher_RunDue(t *testing.T) {
	store := scheduler.NewInMemoryStore()
	ctx := context.Background()
	now := time.Now()

	d := scheduler.NewDispatcher(scheduler.DispatcherConfig{
		Store:     store,
		Logger:    zerolog.Nop(),
		BatchSize: 2,
	})

	var ran atomic.Int64
	d.Handle("ok", func(_ context.Context, args scheduler.Args) error {
		assert.Equal(t, "v", args["k"])
		ran.Add(1)
		return nil
	})
	d.Handle("fail", func(_ context.Context, _ scheduler.Args) error {
		return errors.New("hook failed")
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Schedule(ctx, scheduler.Event{
			At:   now.Add(-time.Duration(i+1) * time.Second),
			Hook: "ok",
			Args: scheduler.Args{"k": "v"},
		}))
	}
	require.NoError(t, store.Schedule(ctx, scheduler.Event{At: now.Add(-time.Second), Hook: "fail"}))
	require.NoError(t, store.Schedule(ctx, scheduler.Event{At: now.Add(-time.Second), Hook: "unknown"}))
	require.NoError(t, store.Schedule(ctx, scheduler.Event{At: now.Add(time.Hour), Hook: "ok"}))

	result, err := d.RunDue(ctx, now)
	require.NoError(t, err)

	assert.Equal(t, 7, result.Claimed)
	assert.Equal(t, 5, result.Succeeded)
	assert.Equal(t, 2, result.Failed)
	assert.Len(t, result.Errors, 2)
	assert.Equal(t, int64(5), ran.Load())
	assert.Equal(t, 1, store.Len())
}

func TestDispatcher_DispatchUnknownHook(t *testing.T) {
	d := scheduler.NewDispatcher(scheduler.DispatcherConfig{
		Store:  scheduler.NewInMemoryStore(),
		Logger: zerolog.Nop(),
	})

	err := d.Dispatch(context.Background(), scheduler.Event{Hook: "missing"})
	assert.ErrorIs(t, err, scheduler.ErrNoHandler)
}

func TestDispatcher_Hooks(t *testing.T) {
	d := scheduler.NewDispatcher(scheduler.DispatcherConfig{
		Store:  scheduler.NewInMemoryStore(),
		Logger: zerolog.Nop(),
	})
	d.Handle("a", func(context.Context, scheduler.Args) error { return nil })
	d.Handle("b", func(context.Context, scheduler.Args) error { return nil })

	assert.ElementsMatch(t, []string{"a", "b"}, d.Hooks())
}

func TestDispatcher_FailureLogOmitsArgValues(t *testing.T) {
	store := scheduler.NewInMemoryStore()
	ctx := context.Background()
	now := time.Now()

	var buf bytes.Buffer
	d := scheduler.NewDispatcher(scheduler.DispatcherConfig{
		Store:  store,
		Logger: zerolog.New(&buf),
	})
	d.Handle("fail", func(context.Context, scheduler.Args) error {
		return errors.New("hook failed")
	})

	secret := "tok_3f9a1c7e5b2d"
	require.NoError(t, store.Schedule(ctx, scheduler.Event{
		At:   now.Add(-time.Second),
		Hook: "fail",
		Args: scheduler.Args{"key": secret, "user_id": "usr_1"},
	}))

	result, err := d.RunDue(ctx, now)
	require.NoError(t, err)
	require.Equal(t, 1, result.Failed)

	out := buf.String()
	assert.Contains(t, out, "scheduled event failed")
	assert.Contains(t, out, `"args":["key","user_id"]`)
	assert.NotContains(t, out, secret)
	assert.NotContains(t, out, "usr_1")
}
