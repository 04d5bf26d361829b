package featureflags

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrFlagNotFound is returned when a flag has no stored value.
var ErrFlagNotFound = errors.New("feature flag not found")

// Change is one audited write to a flag. A nil Value resets the flag to its
// default.
type Change struct {
	Key    string      `json:"key"`
	Value  interface{} `json:"value"`
	Actor  string      `json:"actor"`
	Reason string      `json:"reason,omitempty"`
	At     time.Time   `json:"at"`
}

// IsReset reports whether the change removes the stored value.
func (c Change) IsReset() bool {
	return c.Value == nil
}

// Repository stores flag values together with the change log that produced
// them. Apply writes values and log entries as one unit.
type Repository interface {
	// Get returns the stored value of key or ErrFlagNotFound.
	Get(ctx context.Context, key string) (*Flag, error)

	// List returns every stored value keyed by flag.
	List(ctx context.Context) (map[string]*Flag, error)

	// Apply stores or resets each flag and appends the changes to its log.
	Apply(ctx context.Context, changes []Change) error

	// History returns up to limit changes to key, newest first.
	History(ctx context.Context, key string, limit int) ([]Change, error)
}

// InMemoryRepository keeps flags and their log in process memory.
type InMemoryRepository struct {
	mu    sync.RWMutex
	flags map[string]*Flag
	log   []Change
}

// NewInMemoryRepository creates a new, empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{flags: make(map[string]*Flag)}
}

// Get returns the stored value of key.
func (r *InMemoryRepository) Get(_ context.Context, key string) (*Flag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	flag, ok := r.flags[key]
	if !ok {
		return nil, ErrFlagNotFound
	}
	return flag.clone(), nil
}

// List returns copies of every stored value.
func (r *InMemoryRepository) List(_ context.Context) (map[string]*Flag, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*Flag, len(r.flags))
	for k, v := range r.flags {
		out[k] = v.clone()
	}
	return out, nil
}

// Apply writes changes in order.
func (r *InMemoryRepository) Apply(_ context.Context, changes []Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range changes {
		if c.IsReset() {
			delete(r.flags, c.Key)
		} else {
			r.flags[c.Key] = &Flag{Key: c.Key, Value: c.Value, UpdatedBy: c.Actor, UpdatedAt: c.At}
		}
		r.log = append(r.log, c)
	}
	return nil
}

// History returns the newest changes to key first.
func (r *InMemoryRepository) History(_ context.Context, key string, limit int) ([]Change, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Change
	for i := len(r.log) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if r.log[i].Key == key {
			out = append(out, r.log[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	return out, nil
}

var _ Repository = (*InMemoryRepository)(nil)
