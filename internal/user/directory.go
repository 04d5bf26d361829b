package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/breatheroute/privacydesk/internal/requests"
	"github.com/breatheroute/privacydesk/internal/resilience"
)

// DirectoryDependency is the health registry name of the directory.
const DirectoryDependency = "user_directory"

// DirectoryConfig holds configuration for a Directory.
type DirectoryConfig struct {
	Repository Repository

	// Health receives the outcome of each call. Optional.
	Health *resilience.Registry

	// Executor overrides the default circuit breaker and retry policy.
	Executor *resilience.ExecutorConfig
}

// Directory exposes the repository to the request lifecycle. Calls run
// through a circuit breaker; "not found" answers never trip it.
type Directory struct {
	repo     Repository
	executor *resilience.Executor
	health   *resilience.Registry
}

// NewDirectory creates a new Directory.
func NewDirectory(cfg DirectoryConfig) *Directory {
	execCfg := resilience.ExecutorConfig{Name: DirectoryDependency}
	if cfg.Executor != nil {
		execCfg = *cfg.Executor
		execCfg.Name = DirectoryDependency
	}
	execCfg.Permanent = func(err error) bool {
		return errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrUserExists)
	}

	executor := resilience.NewExecutor(execCfg)
	if cfg.Health != nil {
		cfg.Health.Register(executor)
	}

	return &Directory{
		repo:     cfg.Repository,
		executor: executor,
		health:   cfg.Health,
	}
}

// FindByEmail resolves an email to a subject.
func (d *Directory) FindByEmail(ctx context.Context, email string) (*requests.Subject, error) {
	return d.find(ctx, func(ctx context.Context) (*User, error) {
		return d.repo.FindByEmail(ctx, email)
	})
}

// FindByID resolves an account ID to a subject.
func (d *Directory) FindByID(ctx context.Context, id string) (*requests.Subject, error) {
	return d.find(ctx, func(ctx context.Context) (*User, error) {
		return d.repo.FindByID(ctx, id)
	})
}

// GetMeta implements requests.MetaStore.
func (d *Directory) GetMeta(ctx context.Context, subjectID, key string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := d.run(ctx, func(ctx context.Context) error {
		var err error
		value, ok, err = d.repo.GetMeta(ctx, subjectID, key)
		return err
	})
	return value, ok, err
}

// SetMeta implements requests.MetaStore.
func (d *Directory) SetMeta(ctx context.Context, subjectID, key, value string) error {
	return d.run(ctx, func(ctx context.Context) error {
		return d.repo.SetMeta(ctx, subjectID, key, value)
	})
}

// DeleteMeta implements requests.MetaStore.
func (d *Directory) DeleteMeta(ctx context.Context, subjectID, key string) error {
	return d.run(ctx, func(ctx context.Context) error {
		return d.repo.DeleteMeta(ctx, subjectID, key)
	})
}

func (d *Directory) find(ctx context.Context, lookup func(ctx context.Context) (*User, error)) (*requests.Subject, error) {
	var u *User
	err := d.run(ctx, func(ctx context.Context) error {
		var err error
		u, err = lookup(ctx)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, requests.ErrSubjectNotFound
		}
		return nil, err
	}
	return &requests.Subject{ID: u.ID, Email: u.Email}, nil
}

func (d *Directory) run(ctx context.Context, op func(ctx context.Context) error) error {
	err := d.executor.Do(ctx, op)
	if d.health != nil {
		if errors.Is(err, ErrUserNotFound) {
			d.health.Record(DirectoryDependency, nil)
		} else {
			d.health.Record(DirectoryDependency, err)
		}
	}
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("%w: %w", requests.ErrDirectoryUnavailable, err)
	}
	return err
}

// Ensure Directory implements the lifecycle collaborator interfaces.
var (
	_ requests.Directory = (*Directory)(nil)
	_ requests.MetaStore = (*Directory)(nil)
)
