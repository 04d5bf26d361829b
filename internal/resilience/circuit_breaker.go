// Package resilience guards calls to external collaborators (user directory,
// content queries) with circuit breakers and bounded retries.
package resilience

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig tunes the breaker in front of one collaborator. Zero fields
// take the defaults noted below.
type BreakerConfig struct {
	// ConsecutiveFailures opens the breaker outright. Default: 5.
	ConsecutiveFailures uint32

	// MinRequests and FailureRatio open the breaker on a sustained error
	// rate within Window. Defaults: 10 and 0.5.
	MinRequests  uint32
	FailureRatio float64

	// Window clears closed-state counts periodically. Default: 1 minute.
	Window time.Duration

	// OpenFor is how long calls are rejected before a probe. Default: 30s.
	OpenFor time.Duration

	// Probes is the number of trial calls let through half-open. Default: 1.
	Probes uint32

	// OnStateChange observes transitions.
	OnStateChange func(name string, from, to gobreaker.State)
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.ConsecutiveFailures == 0 {
		c.ConsecutiveFailures = 5
	}
	if c.MinRequests == 0 {
		c.MinRequests = 10
	}
	if c.FailureRatio <= 0 || c.FailureRatio > 1 {
		c.FailureRatio = 0.5
	}
	if c.Window == 0 {
		c.Window = time.Minute
	}
	if c.OpenFor == 0 {
		c.OpenFor = 30 * time.Second
	}
	if c.Probes == 0 {
		c.Probes = 1
	}
	return c
}

// shouldTrip reports whether counts justify opening the breaker.
func (c BreakerConfig) shouldTrip(counts gobreaker.Counts) bool {
	if counts.ConsecutiveFailures >= c.ConsecutiveFailures {
		return true
	}
	if counts.Requests < c.MinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= c.FailureRatio
}

// newBreaker builds the breaker for name. isSuccessful decides which errors
// count against the collaborator.
func newBreaker(name string, cfg BreakerConfig, isSuccessful func(error) bool) *gobreaker.CircuitBreaker[struct{}] {
	cfg = cfg.withDefaults()
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:          name,
		MaxRequests:   cfg.Probes,
		Interval:      cfg.Window,
		Timeout:       cfg.OpenFor,
		ReadyToTrip:   cfg.shouldTrip,
		IsSuccessful:  isSuccessful,
		OnStateChange: cfg.OnStateChange,
	})
}
