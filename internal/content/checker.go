package content

import (
	"context"
	"errors"
	"fmt"

	"github.com/breatheroute/privacydesk/internal/requests"
	"github.com/breatheroute/privacydesk/internal/resilience"
)

// StoreDependency is the health registry name of the content store.
const StoreDependency = "content_store"

// CheckerConfig holds configuration for a Checker.
type CheckerConfig struct {
	Directory requests.Directory
	Counter   Counter

	// Extension is consulted after the built-in checks. Optional.
	Extension ExtensionFunc

	// Health receives the outcome of counter calls. Optional.
	Health *resilience.Registry
}

// Checker implements requests.Eligibility.
type Checker struct {
	directory requests.Directory
	counter   Counter
	extension ExtensionFunc
	executor  *resilience.Executor
	health    *resilience.Registry
}

// NewChecker creates a new Checker.
func NewChecker(cfg CheckerConfig) *Checker {
	executor := resilience.NewExecutor(resilience.ExecutorConfig{Name: StoreDependency})
	if cfg.Health != nil {
		cfg.Health.Register(executor)
	}
	return &Checker{
		directory: cfg.Directory,
		counter:   cfg.Counter,
		extension: cfg.Extension,
		executor:  executor,
		health:    cfg.Health,
	}
}

// SubjectHasContent reports whether the account authored public content or
// left feedback, approved or not. Checks stop at the first positive signal:
// content types first, then feedback, then the extension. An unknown
// account has no content.
func (c *Checker) SubjectHasContent(ctx context.Context, subjectID string) (bool, error) {
	subject, err := c.directory.FindByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, requests.ErrSubjectNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("resolving subject: %w", err)
	}

	var types []string
	if err := c.run(ctx, func(ctx context.Context) error {
		var err error
		types, err = c.counter.PublicContentTypes(ctx)
		return err
	}); err != nil {
		return false, fmt.Errorf("listing content types: %w", err)
	}

	for _, contentType := range types {
		var n int
		if err := c.run(ctx, func(ctx context.Context) error {
			var err error
			n, err = c.counter.CountAuthored(ctx, subject.ID, contentType)
			return err
		}); err != nil {
			return false, fmt.Errorf("counting %s items: %w", contentType, err)
		}
		if n > 0 {
			return true, nil
		}
	}

	if subject.Email != "" {
		var n int
		if err := c.run(ctx, func(ctx context.Context) error {
			var err error
			n, err = c.counter.CountFeedback(ctx, subject.Email, true)
			return err
		}); err != nil {
			return false, fmt.Errorf("counting feedback: %w", err)
		}
		if n > 0 {
			return true, nil
		}
	}

	if c.extension != nil {
		return c.extension(ctx, *subject)
	}
	return false, nil
}

func (c *Checker) run(ctx context.Context, op func(ctx context.Context) error) error {
	err := c.executor.Do(ctx, op)
	if c.health != nil {
		c.health.Record(StoreDependency, err)
	}
	return err
}

// Ensure Checker implements requests.Eligibility.
var _ requests.Eligibility = (*Checker)(nil)
