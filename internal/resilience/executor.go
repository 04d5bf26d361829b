package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ExecutorConfig holds configuration for an Executor.
type ExecutorConfig struct {
	// Name identifies the guarded collaborator.
	Name string

	// MaxRetries is the maximum number of retry attempts after the first call.
	// Default: 2
	MaxRetries uint64

	// InitialInterval is the initial retry backoff interval.
	// Default: 50ms
	InitialInterval time.Duration

	// MaxInterval is the maximum retry backoff interval.
	// Default: 1 second
	MaxInterval time.Duration

	// Permanent reports errors that are answers rather than faults. They are
	// returned immediately, never retried and never trip the breaker.
	Permanent func(err error) bool

	// Breaker tunes the circuit breaker.
	Breaker BreakerConfig
}

// Executor runs operations through a circuit breaker with exponential backoff retries.
type Executor struct {
	name           string
	circuitBreaker *gobreaker.CircuitBreaker[struct{}]
	config         ExecutorConfig
}

// NewExecutor creates a new Executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 50 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = time.Second
	}
	if cfg.Permanent == nil {
		cfg.Permanent = func(error) bool { return false }
	}

	permanent := cfg.Permanent
	breaker := newBreaker(cfg.Name, cfg.Breaker, func(err error) bool {
		return err == nil || permanent(err)
	})

	return &Executor{
		name:           cfg.Name,
		circuitBreaker: breaker,
		config:         cfg,
	}
}

// Name returns the name of the guarded collaborator.
func (e *Executor) Name() string {
	return e.name
}

// Do executes op with circuit breaker protection and retry logic.
// Returns ErrCircuitOpen without calling op if the circuit breaker is open.
func (e *Executor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.config.InitialInterval
	bo.MaxInterval = e.config.MaxInterval
	bo.MaxElapsedTime = 0 // Unlimited, we control retries via WithMaxRetries

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, e.config.MaxRetries), ctx)

	operation := func() error {
		_, err := e.circuitBreaker.Execute(func() (struct{}, error) {
			return struct{}{}, op(ctx)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(ErrCircuitOpen)
		}
		if e.config.Permanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(operation, policy)
}

// State returns the current state of the circuit breaker.
func (e *Executor) State() gobreaker.State {
	return e.circuitBreaker.State()
}

// Counts returns the current counts of the circuit breaker.
func (e *Executor) Counts() gobreaker.Counts {
	return e.circuitBreaker.Counts()
}
