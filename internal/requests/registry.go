package requests

import (
	"context"
	"fmt"
	"time"

	"github.com/breatheroute/privacydesk/internal/scheduler"
)

// DefaultMetaPrefix prefixes account metadata keys holding pending tokens.
const DefaultMetaPrefix = "gdpr"

// RegistryConfig holds configuration for a Registry.
type RegistryConfig struct {
	// MetaStore holds tokens as account metadata.
	MetaStore MetaStore

	// Scheduler holds token expiry events.
	Scheduler scheduler.Store

	// Prefix is the metadata key prefix. Default: DefaultMetaPrefix.
	Prefix string

	// Now returns the current time. Default: time.Now.
	Now func() time.Time
}

// Registry tracks the single pending confirmation token per account and
// request type, and the scheduled event that expires it.
type Registry struct {
	meta     MetaStore
	schedule scheduler.Store
	prefix   string
	now      func() time.Time
}

// NewRegistry creates a new token registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultMetaPrefix
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Registry{
		meta:     cfg.MetaStore,
		schedule: cfg.Scheduler,
		prefix:   cfg.Prefix,
		now:      cfg.Now,
	}
}

// MetaKey returns the metadata key holding the token for t.
func (r *Registry) MetaKey(t RequestType) string {
	return r.prefix + "_" + string(t) + "_key"
}

// Register stores token as the pending token for (subjectID, t) and
// schedules its expiry after ttl. Any earlier token for the pair is
// overwritten and its expiry cancelled first.
func (r *Registry) Register(ctx context.Context, subjectID string, t RequestType, token string, ttl time.Duration) error {
	metaKey := r.MetaKey(t)
	args := tokenArgs(subjectID, metaKey)

	if err := r.unscheduleAll(ctx, args); err != nil {
		return fmt.Errorf("cancel previous token expiry: %w", err)
	}
	if err := r.meta.SetMeta(ctx, subjectID, metaKey, token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}

	ev := scheduler.Event{
		At:   r.now().Add(ttl),
		Hook: HookCleanToken,
		Args: args,
	}
	if err := r.schedule.Schedule(ctx, ev); err != nil {
		return fmt.Errorf("schedule token expiry: %w", err)
	}
	return nil
}

// Resolve returns the pending token for (subjectID, t), if any.
func (r *Registry) Resolve(ctx context.Context, subjectID string, t RequestType) (string, bool, error) {
	token, ok, err := r.meta.GetMeta(ctx, subjectID, r.MetaKey(t))
	if err != nil {
		return "", false, fmt.Errorf("read token: %w", err)
	}
	return token, ok, nil
}

// Clear removes the pending token for (subjectID, t) and cancels its
// expiry. Clearing an absent token is a no-op.
func (r *Registry) Clear(ctx context.Context, subjectID string, t RequestType) error {
	metaKey := r.MetaKey(t)
	if err := r.meta.DeleteMeta(ctx, subjectID, metaKey); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	if err := r.unscheduleAll(ctx, tokenArgs(subjectID, metaKey)); err != nil {
		return fmt.Errorf("cancel token expiry: %w", err)
	}
	return nil
}

// ExpireToken is the HookCleanToken callback. It deletes the metadata entry
// whether or not it still refers to a pending request.
func (r *Registry) ExpireToken(ctx context.Context, subjectID, metaKey string) error {
	if err := r.meta.DeleteMeta(ctx, subjectID, metaKey); err != nil {
		return fmt.Errorf("expire token: %w", err)
	}
	return nil
}

func (r *Registry) unscheduleAll(ctx context.Context, args scheduler.Args) error {
	for {
		found, err := scheduler.Unschedule(ctx, r.schedule, HookCleanToken, args)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
	}
}

func tokenArgs(subjectID, metaKey string) scheduler.Args {
	return scheduler.Args{ArgUserID: subjectID, ArgMetaKey: metaKey}
}

func requestArgs(key string) scheduler.Args {
	return scheduler.Args{ArgKey: key}
}
