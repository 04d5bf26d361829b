package featureflags

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Update errors.
var (
	ErrUnknownFlag      = errors.New("unknown feature flag")
	ErrInvalidFlagValue = errors.New("invalid feature flag value")
)

// ServiceConfig holds configuration for the feature flag service.
type ServiceConfig struct {
	Repository   Repository
	Logger       zerolog.Logger
	CacheTTL     time.Duration // How long to cache flags in memory
	DefaultFlags map[string]*Flag
}

// Service provides feature flag evaluation with caching and fallback.
type Service struct {
	repo         Repository
	logger       zerolog.Logger
	cacheTTL     time.Duration
	defaultFlags map[string]*Flag
	now          func() time.Time

	mu          sync.RWMutex
	cache       map[string]*Flag
	cacheExpiry time.Time
}

// NewService creates a new feature flag service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Second
	}

	defaultFlags := cfg.DefaultFlags
	if defaultFlags == nil {
		defaultFlags = DefaultFlags()
	}

	return &Service{
		repo:         cfg.Repository,
		logger:       cfg.Logger,
		cacheTTL:     cacheTTL,
		defaultFlags: defaultFlags,
		now:          time.Now,
		cache:        make(map[string]*Flag),
	}
}

// GetFlag retrieves a feature flag by key.
// Uses the cached value if fresh, then the repository, then the default.
func (s *Service) GetFlag(ctx context.Context, key string) *Flag {
	if flag := s.getCached(key); flag != nil {
		return flag
	}

	flag, err := s.repo.Get(ctx, key)
	if err == nil {
		s.setCached(key, flag)
		return flag
	}

	if !errors.Is(err, ErrFlagNotFound) {
		s.logger.Warn().Err(err).Str("flag", key).Msg("failed to get feature flag from repository")
	}

	if defaultFlag, ok := s.defaultFlags[key]; ok {
		return defaultFlag.clone()
	}
	return nil
}

// ListFlags returns every known flag with stored values merged over
// defaults, sorted by key.
func (s *Service) ListFlags(ctx context.Context) []*Flag {
	merged := make(map[string]*Flag, len(s.defaultFlags))
	for k, v := range s.defaultFlags {
		merged[k] = v.clone()
	}

	flags, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to get feature flags from repository, using defaults")
	} else {
		for k, v := range flags {
			merged[k] = v
		}
		s.mu.Lock()
		s.cache = flags
		s.cacheExpiry = s.now().Add(s.cacheTTL)
		s.mu.Unlock()
	}

	list := make([]*Flag, 0, len(merged))
	for _, flag := range merged {
		list = append(list, flag)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })
	return list
}

// Update applies a batch of flag changes and records them with actor and
// reason. Every key must be a known flag and every value a boolean;
// otherwise nothing is written.
func (s *Service) Update(ctx context.Context, req *FlagUpdateRequest, actor string) ([]*Flag, error) {
	now := s.now().UTC()
	changes := make([]Change, 0, len(req.Updates))
	for _, u := range req.Updates {
		if _, ok := s.defaultFlags[u.Key]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFlag, u.Key)
		}
		if _, ok := u.Value.(bool); !ok {
			return nil, fmt.Errorf("%w: %s must be a boolean", ErrInvalidFlagValue, u.Key)
		}
		changes = append(changes, Change{Key: u.Key, Value: u.Value, Actor: actor, Reason: req.Reason, At: now})
	}

	if err := s.repo.Apply(ctx, changes); err != nil {
		return nil, err
	}

	flags := make([]*Flag, 0, len(changes))
	s.mu.Lock()
	for _, c := range changes {
		flag := &Flag{Key: c.Key, Value: c.Value, UpdatedBy: c.Actor, UpdatedAt: c.At}
		s.cache[c.Key] = flag.clone()
		flags = append(flags, flag)
	}
	s.mu.Unlock()

	for _, c := range changes {
		s.logger.Info().
			Str("flag", c.Key).
			Interface("value", c.Value).
			Str("actor", actor).
			Str("reason", req.Reason).
			Msg("feature flag updated")
	}
	return flags, nil
}

// Reset removes the stored value of a flag so its default applies again.
// The reset is recorded in the flag's history.
func (s *Service) Reset(ctx context.Context, key, actor string) error {
	if _, ok := s.defaultFlags[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFlag, key)
	}
	change := Change{Key: key, Actor: actor, Reason: "reset to default", At: s.now().UTC()}
	if err := s.repo.Apply(ctx, []Change{change}); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()

	s.logger.Info().Str("flag", key).Str("actor", actor).Msg("feature flag reset")
	return nil
}

// History returns the most recent changes to a known flag, newest first.
func (s *Service) History(ctx context.Context, key string, limit int) ([]Change, error) {
	if _, ok := s.defaultFlags[key]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFlag, key)
	}
	return s.repo.History(ctx, key, limit)
}

// InvalidateCache clears the cached flags, forcing a refresh on next access.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*Flag)
	s.cacheExpiry = time.Time{}
}

// IsEnabled returns true if the flag with the given key is enabled.
func (s *Service) IsEnabled(ctx context.Context, key string) bool {
	if s == nil {
		return false
	}
	return s.GetFlag(ctx, key).BoolValue(false)
}

// getCached retrieves a flag from cache if valid.
func (s *Service) getCached(key string) *Flag {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.now().After(s.cacheExpiry) {
		return nil
	}
	flag, ok := s.cache[key]
	if !ok {
		return nil
	}
	return flag.clone()
}

// setCached stores a flag in the cache.
func (s *Service) setCached(key string, flag *Flag) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache[key] = flag.clone()
	if s.cacheExpiry.Before(s.now()) {
		s.cacheExpiry = s.now().Add(s.cacheTTL)
	}
}

// Convenience methods for well-known flags.

// DeleteClearsToken reports whether deleting an unconfirmed request revokes
// its pending token.
func (s *Service) DeleteClearsToken(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagDeleteClearsToken)
}

// IntakePaused reports whether new requests are refused.
func (s *Service) IntakePaused(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagIntakePaused)
}

// NotificationsDisabled reports whether confirmation links are withheld.
func (s *Service) NotificationsDisabled(ctx context.Context) bool {
	return s.IsEnabled(ctx, FlagNotificationsDisabled)
}
