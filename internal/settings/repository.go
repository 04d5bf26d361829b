// Package settings provides namespaced blob storage with whole-value semantics.
//
// Each namespace holds a single opaque value. Callers that need to change a
// value based on its current contents use Update, which runs the read and the
// write as one serialized unit so concurrent writers cannot lose updates.
package settings

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when a namespace has no stored value.
var ErrNotFound = errors.New("setting not found")

// Mutator receives the current value of a namespace (nil if unset) and
// returns the value to store. Returning write=false leaves the stored value
// untouched. A non-nil error aborts the update without writing.
type Mutator func(current []byte) (next []byte, write bool, err error)

// Repository defines the interface for blob persistence.
type Repository interface {
	// Get returns the stored value for a namespace.
	Get(ctx context.Context, namespace string) ([]byte, error)

	// Put replaces the stored value for a namespace.
	Put(ctx context.Context, namespace string, value []byte) error

	// Update performs an atomic read-modify-write of a namespace.
	Update(ctx context.Context, namespace string, fn Mutator) error
}

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for MVP/testing. Production should use a database-backed implementation.
type InMemoryRepository struct {
	mu     sync.Mutex
	values map[string][]byte
}

// NewInMemoryRepository creates a new in-memory settings repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		values: make(map[string][]byte),
	}
}

// Get returns the stored value for a namespace.
func (r *InMemoryRepository) Get(_ context.Context, namespace string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	value, ok := r.values[namespace]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBytes(value), nil
}

// Put replaces the stored value for a namespace.
func (r *InMemoryRepository) Put(_ context.Context, namespace string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.values[namespace] = cloneBytes(value)
	return nil
}

// Update performs an atomic read-modify-write of a namespace.
// The mutator runs while the repository lock is held.
func (r *InMemoryRepository) Update(ctx context.Context, namespace string, fn Mutator) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	next, write, err := fn(cloneBytes(r.values[namespace]))
	if err != nil {
		return err
	}
	if write {
		r.values[namespace] = cloneBytes(next)
	}
	return nil
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
