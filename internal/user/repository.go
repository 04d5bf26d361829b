package user

import (
	"context"
	"errors"
	"sync"
)

// Repository errors.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

// Repository defines the interface for account and metadata persistence.
type Repository interface {
	// FindByID retrieves a user by ID.
	FindByID(ctx context.Context, id string) (*User, error)

	// FindByEmail retrieves a user by normalized email.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// Create creates a new user. Returns ErrUserExists on a duplicate ID or email.
	Create(ctx context.Context, user *User) error

	// Delete deletes a user and all associated metadata.
	Delete(ctx context.Context, id string) error

	// GetMeta returns the metadata value stored under key, if any.
	GetMeta(ctx context.Context, userID, key string) (string, bool, error)

	// SetMeta stores value under key, replacing any previous value.
	SetMeta(ctx context.Context, userID, key, value string) error

	// DeleteMeta removes key. Removing an absent key is not an error.
	DeleteMeta(ctx context.Context, userID, key string) error
}

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for local runs and testing.
type InMemoryRepository struct {
	mu      sync.RWMutex
	users   map[string]*User
	byEmail map[string]string
	meta    map[string]map[string]string
}

// NewInMemoryRepository creates a new in-memory user repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		users:   make(map[string]*User),
		byEmail: make(map[string]string),
		meta:    make(map[string]map[string]string),
	}
}

// FindByID retrieves a user by ID.
func (r *InMemoryRepository) FindByID(_ context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	userCopy := *u
	return &userCopy, nil
}

// FindByEmail retrieves a user by email.
func (r *InMemoryRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	r.mu.RLock()
	id, ok := r.byEmail[NormalizeEmail(email)]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrUserNotFound
	}
	return r.FindByID(ctx, id)
}

// Create creates a new user.
func (r *InMemoryRepository) Create(_ context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := NormalizeEmail(user.Email)
	if _, ok := r.users[user.ID]; ok {
		return ErrUserExists
	}
	if _, ok := r.byEmail[email]; ok {
		return ErrUserExists
	}

	userCopy := *user
	userCopy.Email = email
	r.users[user.ID] = &userCopy
	r.byEmail[email] = user.ID
	return nil
}

// Delete deletes a user and its metadata.
func (r *InMemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.users[id]; ok {
		delete(r.byEmail, u.Email)
	}
	delete(r.users, id)
	delete(r.meta, id)
	return nil
}

// GetMeta returns a metadata value.
func (r *InMemoryRepository) GetMeta(_ context.Context, userID, key string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	value, ok := r.meta[userID][key]
	return value, ok, nil
}

// SetMeta stores a metadata value.
func (r *InMemoryRepository) SetMeta(_ context.Context, userID, key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[userID]; !ok {
		return ErrUserNotFound
	}
	if r.meta[userID] == nil {
		r.meta[userID] = make(map[string]string)
	}
	r.meta[userID][key] = value
	return nil
}

// DeleteMeta removes a metadata value.
func (r *InMemoryRepository) DeleteMeta(_ context.Context, userID, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.meta[userID], key)
	return nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
