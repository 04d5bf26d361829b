package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/privacydesk/internal/resilience"
)

var errAbsent = errors.New("absent")

func newTestExecutor(name string) *resilience.Executor {
	return resilience.NewExecutor(resilience.ExecutorConfig{
		Name:            name,
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Permanent: func(err error) bool {
			return errors.Is(err, errAbsent)
		},
	})
}

func TestExecutor_Success(t *testing.T) {
	ex := newTestExecutor("ok")

	calls := 0
	err := ex.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, gobreaker.StateClosed, ex.State())
}

func TestExecutor_RetriesTransientErrors(t *testing.T) {
	ex := newTestExecutor("retry")

	calls := 0
	err := ex.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecutor_PermanentErrorNotRetried(t *testing.T) {
	ex := newTestExecutor("permanent")

	calls := 0
	err := ex.Do(context.Background(), func(context.Context) error {
		calls++
		return errAbsent
	})

	assert.ErrorIs(t, err, errAbsent)
	assert.Equal(t, 1, calls)
	assert.Equal(t, uint32(0), ex.Counts().TotalFailures)
}

func TestExecutor_OpensCircuit(t *testing.T) {
	ex := resilience.NewExecutor(resilience.ExecutorConfig{
		Name:            "flaky",
		MaxRetries:      1,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		Breaker:         resilience.BreakerConfig{OpenFor: time.Minute},
	})

	failing := func(context.Context) error { return errors.New("down") }
	for i := 0; i < 5; i++ {
		_ = ex.Do(context.Background(), failing)
	}

	assert.Equal(t, gobreaker.StateOpen, ex.State())

	calls := 0
	err := ex.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 0, calls)
}

func TestExecutor_OpensOnFailureRatio(t *testing.T) {
	ex := resilience.NewExecutor(resilience.ExecutorConfig{
		Name:            "intermittent",
		MaxRetries:      1,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		Breaker:         resilience.BreakerConfig{OpenFor: time.Minute},
	})

	// Every other call fails, so failures are never consecutive.
	calls := 0
	flapping := func(context.Context) error {
		calls++
		if calls%2 == 1 {
			return errors.New("reset by peer")
		}
		return nil
	}

	for i := 0; i < 5; i++ {
		require.NoError(t, ex.Do(context.Background(), flapping))
	}
	assert.Equal(t, gobreaker.StateClosed, ex.State())

	_ = ex.Do(context.Background(), flapping)
	assert.Equal(t, gobreaker.StateOpen, ex.State())
}

func TestRegistry_RecordAndHealth(t *testing.T) {
	reg := resilience.NewRegistry()
	reg.Register(newTestExecutor("directory"))
	reg.Register(newTestExecutor("content"))

	reg.Record("directory", nil)
	reg.Record("content", errors.New("timeout"))
	reg.Record("unknown", nil)

	dir := reg.GetHealth("directory")
	require.NotNil(t, dir)
	assert.True(t, dir.IsHealthy())
	assert.NotNil(t, dir.LastSuccessAt)
	assert.Nil(t, dir.LastFailureAt)

	content := reg.GetHealth("content")
	require.NotNil(t, content)
	assert.Equal(t, "timeout", content.LastError)

	all := reg.GetAllHealth()
	require.Len(t, all, 2)
	assert.Equal(t, "content", all[0].Name)
	assert.Equal(t, "directory", all[1].Name)

	assert.Nil(t, reg.GetHealth("unknown"))
}
