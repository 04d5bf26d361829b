// Package worker runs scheduled request lifecycle events in the background.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/breatheroute/privacydesk/internal/scheduler"
)

const meterName = "github.com/breatheroute/privacydesk/internal/worker"

// DefaultSweepInterval is how often due events are claimed.
const DefaultSweepInterval = time.Minute

// Runner claims and runs due events. *scheduler.Dispatcher implements it.
type Runner interface {
	RunDue(ctx context.Context, now time.Time) (*scheduler.RunResult, error)
}

// SweepConfig holds configuration for a SweepJob.
type SweepConfig struct {
	Runner   Runner
	Logger   zerolog.Logger
	Interval time.Duration
	Now      func() time.Time
}

// SweepStats summarizes the sweeps run so far.
type SweepStats struct {
	Runs                int64
	Succeeded           int64
	Failed              int64
	LastRunAt           time.Time
	LastDuration        time.Duration
	LastError           string
	ConsecutiveFailures int
}

// SweepJob periodically dispatches due token and request cleanups.
type SweepJob struct {
	runner   Runner
	logger   zerolog.Logger
	interval time.Duration
	now      func() time.Time

	runs   metric.Int64Counter
	events metric.Int64Counter

	mu    sync.RWMutex
	stats SweepStats
}

// NewSweepJob creates a new sweep job.
func NewSweepJob(cfg SweepConfig) *SweepJob {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	j := &SweepJob{
		runner:   cfg.Runner,
		logger:   cfg.Logger,
		interval: cfg.Interval,
		now:      cfg.Now,
	}

	meter := otel.Meter(meterName)
	var err error
	if j.runs, err = meter.Int64Counter("gdpr.sweep.runs",
		metric.WithDescription("Sweeps of due scheduled events"),
		metric.WithUnit("{run}"),
	); err != nil {
		cfg.Logger.Warn().Err(err).Msg("sweep run counter unavailable")
	}
	if j.events, err = meter.Int64Counter("gdpr.sweep.events",
		metric.WithDescription("Scheduled events dispatched by outcome"),
		metric.WithUnit("{event}"),
	); err != nil {
		cfg.Logger.Warn().Err(err).Msg("sweep event counter unavailable")
	}
	return j
}

// Run performs one sweep. Failed hooks are counted but do not fail the
// sweep; only an unreadable schedule does.
func (j *SweepJob) Run(ctx context.Context) (*scheduler.RunResult, error) {
	started := j.now()
	result, err := j.runner.RunDue(ctx, started)
	if result == nil {
		result = &scheduler.RunResult{}
	}

	j.record(ctx, started, result, err)

	for _, e := range result.Errors {
		j.logger.Warn().
			Str("hook", e.Event.Hook).
			Time("run_at", e.Event.At).
			Str("error", e.Error).
			Msg("scheduled hook failed")
	}
	if err != nil {
		j.logger.Error().Err(err).Msg("sweep failed")
	}
	return result, err
}

func (j *SweepJob) record(ctx context.Context, started time.Time, result *scheduler.RunResult, err error) {
	j.mu.Lock()
	j.stats.Runs++
	j.stats.Succeeded += int64(result.Succeeded)
	j.stats.Failed += int64(result.Failed)
	j.stats.LastRunAt = started
	j.stats.LastDuration = result.Duration
	if err != nil {
		j.stats.LastError = err.Error()
		j.stats.ConsecutiveFailures++
	} else {
		j.stats.LastError = ""
		j.stats.ConsecutiveFailures = 0
	}
	j.mu.Unlock()

	if j.runs != nil {
		j.runs.Add(ctx, 1, metric.WithAttributes(attribute.Bool("error", err != nil)))
	}
	if j.events != nil {
		if result.Succeeded > 0 {
			j.events.Add(ctx, int64(result.Succeeded), metric.WithAttributes(attribute.String("outcome", "succeeded")))
		}
		if result.Failed > 0 {
			j.events.Add(ctx, int64(result.Failed), metric.WithAttributes(attribute.String("outcome", "failed")))
		}
	}
}

// Stats returns a snapshot of the sweep counters.
func (j *SweepJob) Stats() SweepStats {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.stats
}

// Start sweeps immediately and then on every interval until ctx is done.
func (j *SweepJob) Start(ctx context.Context) error {
	j.logger.Info().Dur("interval", j.interval).Msg("starting sweep loop")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		if _, err := j.Run(ctx); errors.Is(err, context.Canceled) {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
