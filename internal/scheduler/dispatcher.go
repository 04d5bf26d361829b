package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// HandlerFunc runs a hook when one of its events fires.
type HandlerFunc func(ctx context.Context, args Args) error

// DispatcherConfig holds configuration for the dispatcher.
type DispatcherConfig struct {
	Store  Store
	Logger zerolog.Logger

	// BatchSize is the maximum number of events claimed per round.
	// Default: 100
	BatchSize int

	// Concurrency is the number of events run in parallel.
	// Default: 3
	Concurrency int

	// Timeout bounds a single hook invocation.
	// Default: 30 seconds
	Timeout time.Duration
}

// Dispatcher claims due events from a Store and runs their handlers.
type Dispatcher struct {
	store       Store
	logger      zerolog.Logger
	batchSize   int
	concurrency int
	timeout     time.Duration

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// RunResult summarizes one RunDue pass.
type RunResult struct {
	Claimed   int
	Succeeded int
	Failed    int
	Errors    []EventError
	Duration  time.Duration
}

// EventError records a failed hook invocation.
type EventError struct {
	Event Event
	Error string
}

// NewDispatcher creates a new dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Dispatcher{
		store:       cfg.Store,
		logger:      cfg.Logger,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		timeout:     cfg.Timeout,
		handlers:    make(map[string]HandlerFunc),
	}
}

// Handle registers the handler for a hook, replacing any previous one.
func (d *Dispatcher) Handle(hook string, fn HandlerFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[hook] = fn
}

// Hooks returns the names of all registered hooks.
func (d *Dispatcher) Hooks() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	hooks := make([]string, 0, len(d.handlers))
	for hook := range d.handlers {
		hooks = append(hooks, hook)
	}
	return hooks
}

// Dispatch runs the handler for a single event.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	d.mu.RLock()
	fn, ok := d.handlers[ev.Hook]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, ev.Hook)
	}

	hookCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	return fn(hookCtx, ev.Args.Clone())
}

// RunDue claims every event due at or before now and runs it.
// Claimed events are not retried; a failing hook is logged and counted.
func (d *Dispatcher) RunDue(ctx context.Context, now time.Time) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{}

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		events, err := d.store.ClaimDue(ctx, now, d.batchSize)
		if err != nil {
			return result, fmt.Errorf("claiming due events: %w", err)
		}
		if len(events) == 0 {
			break
		}

		d.runBatch(ctx, events, result)

		if len(events) < d.batchSize {
			break
		}
	}

	result.Duration = time.Since(start)
	if result.Claimed > 0 {
		d.logger.Info().
			Int("claimed", result.Claimed).
			Int("succeeded", result.Succeeded).
			Int("failed", result.Failed).
			Dur("duration", result.Duration).
			Msg("scheduled events dispatched")
	}
	return result, nil
}

func (d *Dispatcher) runBatch(ctx context.Context, events []Event, result *RunResult) {
	eventsChan := make(chan Event, len(events))
	errorsChan := make(chan *EventError, len(events))

	var wg sync.WaitGroup
	for i := 0; i < d.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range eventsChan {
				if err := d.Dispatch(ctx, ev); err != nil {
					errorsChan <- &EventError{Event: ev, Error: err.Error()}
					continue
				}
				errorsChan <- nil
			}
		}()
	}

	for _, ev := range events {
		eventsChan <- ev
	}
	close(eventsChan)

	go func() {
		wg.Wait()
		close(errorsChan)
	}()

	for evErr := range errorsChan {
		result.Claimed++
		if evErr == nil {
			result.Succeeded++
			continue
		}
		result.Failed++
		result.Errors = append(result.Errors, *evErr)
		d.logger.Error().
			Str("hook", evErr.Event.Hook).
			Strs("args", evErr.Event.Args.Names()).
			Time("run_at", evErr.Event.At).
			Str("error", evErr.Error).
			Msg("scheduled event failed")
	}
}
