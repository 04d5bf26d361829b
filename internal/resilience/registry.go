package resilience

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// DependencyHealth represents the health status of a guarded collaborator.
type DependencyHealth struct {
	// Name is the collaborator identifier.
	Name string

	// CircuitState is the current circuit breaker state.
	CircuitState gobreaker.State

	// Counts contains circuit breaker statistics.
	Counts gobreaker.Counts

	// LastSuccessAt is the timestamp of the last successful call.
	LastSuccessAt *time.Time

	// LastFailureAt is the timestamp of the last failed call.
	LastFailureAt *time.Time

	// LastError is the most recent error message, if any.
	LastError string
}

// IsHealthy returns true if the collaborator is considered healthy.
func (h *DependencyHealth) IsHealthy() bool {
	return h.CircuitState == gobreaker.StateClosed
}

// IsDegraded returns true if the collaborator is in a degraded state (half-open).
func (h *DependencyHealth) IsDegraded() bool {
	return h.CircuitState == gobreaker.StateHalfOpen
}

// Registry tracks executors and the outcome of their latest calls.
type Registry struct {
	mu           sync.RWMutex
	dependencies map[string]*registeredDependency
}

type registeredDependency struct {
	executor      *Executor
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// NewRegistry creates a new dependency registry.
func NewRegistry() *Registry {
	return &Registry{
		dependencies: make(map[string]*registeredDependency),
	}
}

// Register adds an executor to the registry under its name.
func (r *Registry) Register(executor *Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dependencies[executor.Name()] = &registeredDependency{
		executor: executor,
	}
}

// Record stores the outcome of a call for the named dependency.
func (r *Registry) Record(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.dependencies[name]
	if !ok {
		return
	}
	now := time.Now()
	if err == nil {
		d.lastSuccessAt = &now
		return
	}
	d.lastFailureAt = &now
	d.lastError = err.Error()
}

// GetHealth returns the health status of a specific dependency.
func (r *Registry) GetHealth(name string) *DependencyHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.dependencies[name]
	if !ok {
		return nil
	}
	return d.health(name)
}

// GetAllHealth returns the health status of all dependencies, sorted by name.
func (r *Registry) GetAllHealth() []*DependencyHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	health := make([]*DependencyHealth, 0, len(r.dependencies))
	for name, d := range r.dependencies {
		health = append(health, d.health(name))
	}
	sort.Slice(health, func(i, j int) bool {
		return health[i].Name < health[j].Name
	})
	return health
}

func (d *registeredDependency) health(name string) *DependencyHealth {
	return &DependencyHealth{
		Name:          name,
		CircuitState:  d.executor.State(),
		Counts:        d.executor.Counts(),
		LastSuccessAt: d.lastSuccessAt,
		LastFailureAt: d.lastFailureAt,
		LastError:     d.lastError,
	}
}
