package requests

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/privacydesk/internal/scheduler"
)

// ServiceConfig holds configuration for the request service.
type ServiceConfig struct {
	Store     Store
	Registry  *Registry
	Scheduler scheduler.Store

	// Directory resolves requesters to accounts. Optional: without it no
	// request gets a pending token or expiry.
	Directory Directory

	// Eligibility answers content-ownership checks. Optional.
	Eligibility Eligibility

	// Policy supplies runtime switches. Default: StaticPolicy{}.
	Policy Policy

	// Metrics records lifecycle counters. Optional.
	Metrics *Metrics

	Logger zerolog.Logger

	// TTL is the confirmation window. Default: TokenTTL.
	TTL time.Duration

	// Now returns the current time. Default: time.Now.
	Now func() time.Time
}

// Service runs the request lifecycle: create, confirm, expire and delete.
type Service struct {
	store       Store
	registry    *Registry
	schedule    scheduler.Store
	directory   Directory
	eligibility Eligibility
	policy      Policy
	metrics     *Metrics
	logger      zerolog.Logger
	ttl         time.Duration
	now         func() time.Time
}

// NewService creates a new request service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Policy == nil {
		cfg.Policy = StaticPolicy{}
	}
	if cfg.TTL <= 0 {
		cfg.TTL = TokenTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Service{
		store:       cfg.Store,
		registry:    cfg.Registry,
		schedule:    cfg.Scheduler,
		directory:   cfg.Directory,
		eligibility: cfg.Eligibility,
		policy:      cfg.Policy,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		ttl:         cfg.TTL,
		now:         cfg.Now,
	}
}

// Create records a new unconfirmed request and returns its confirmation
// token. Only an invalid type or a store failure fails the call; directory
// and scheduling problems leave the request without an expiry and are logged.
func (s *Service) Create(ctx context.Context, email string, t RequestType, data string) (string, error) {
	if !t.Valid() {
		s.metrics.recordRejected(ctx)
		return "", ErrInvalidRequestType
	}

	record := Record{
		Email:     SanitizeEmail(email),
		Type:      t,
		CreatedAt: s.now().UTC(),
		Data:      SanitizeText(data),
	}

	key, err := s.store.Insert(ctx, record)
	if err != nil {
		return "", err
	}

	if subject := s.resolveByEmail(ctx, record.Email); subject != nil {
		s.armExpiry(ctx, subject.ID, t, key, record.CreatedAt)
	} else {
		s.logger.Info().
			Str("request", keyHint(key)).
			Str("type", string(t)).
			Msg("request has no matching account, no expiry scheduled")
	}

	s.metrics.recordCreated(ctx, t)
	s.logger.Info().
		Str("request", keyHint(key)).
		Str("type", string(t)).
		Msg("privacy request created")

	return key, nil
}

// armExpiry registers the pending token and schedules the request's own
// cleanup at the same deadline.
func (s *Service) armExpiry(ctx context.Context, subjectID string, t RequestType, key string, createdAt time.Time) {
	if s.registry != nil {
		prior, hadPrior, err := s.registry.Resolve(ctx, subjectID, t)
		if err != nil {
			s.logger.Warn().Err(err).
				Str("user_id", subjectID).
				Msg("failed to read pending token")
			hadPrior = false
		}
		if err := s.registry.Register(ctx, subjectID, t, key, s.ttl); err != nil {
			s.logger.Error().Err(err).
				Str("user_id", subjectID).
				Str("type", string(t)).
				Msg("failed to register pending token")
		} else if hadPrior && prior != key {
			s.markSuperseded(ctx, prior)
		}
	}

	if s.schedule == nil {
		return
	}
	ev := scheduler.Event{
		At:   createdAt.Add(s.ttl),
		Hook: HookCleanRequest,
		Args: requestArgs(key),
	}
	if err := s.schedule.Schedule(ctx, ev); err != nil {
		s.logger.Error().Err(err).
			Str("request", keyHint(key)).
			Msg("failed to schedule request cleanup")
	}
}

// Confirm marks the request identified by token as confirmed. Confirming an
// already confirmed request succeeds without change. A token replaced by a
// newer request of the same type returns ErrTokenSuperseded, also after the
// newer request has been confirmed.
func (s *Service) Confirm(ctx context.Context, token string) error {
	record, err := s.store.Get(ctx, token)
	if err != nil {
		return err
	}
	if record.Superseded && !record.Confirmed {
		return ErrTokenSuperseded
	}

	var (
		subject *Subject
		current string
		pending bool
	)
	if subject = s.resolveByEmail(ctx, record.Email); subject != nil && s.registry != nil {
		current, pending, err = s.registry.Resolve(ctx, subject.ID, record.Type)
		if err != nil {
			s.logger.Warn().Err(err).
				Str("user_id", subject.ID).
				Msg("failed to read pending token")
			pending = false
		}
	}

	if !record.Confirmed && pending && current != token {
		return ErrTokenSuperseded
	}

	wasConfirmed := false
	err = s.store.Update(ctx, token, func(r *Record) error {
		wasConfirmed = r.Confirmed
		r.Confirmed = true
		return nil
	})
	if err != nil {
		return err
	}

	if !wasConfirmed {
		s.metrics.recordConfirmed(ctx, record.Type)
		s.logger.Info().
			Str("request", keyHint(token)).
			Str("type", string(record.Type)).
			Msg("privacy request confirmed")
	}

	if pending && current == token {
		if err := s.registry.Clear(ctx, subject.ID, record.Type); err != nil {
			s.logger.Error().Err(err).
				Str("user_id", subject.ID).
				Str("type", string(record.Type)).
				Msg("failed to clear pending token")
		}
	}
	s.cancelCleanup(ctx, token)

	return nil
}

// CleanupUnconfirmed removes the request at key if it is still unconfirmed.
// It reports false for confirmed or absent requests.
func (s *Service) CleanupUnconfirmed(ctx context.Context, key string) (bool, error) {
	removed, err := s.store.RemoveIf(ctx, key, func(r Record) bool {
		return !r.Confirmed
	})
	if err != nil {
		return false, err
	}
	if removed {
		s.metrics.recordExpired(ctx)
		s.logger.Info().
			Str("request", keyHint(key)).
			Msg("unconfirmed privacy request expired")
	}
	return removed, nil
}

// Delete removes the request at key regardless of its state. Pending tokens
// are left to expire on their own unless the policy says otherwise.
func (s *Service) Delete(ctx context.Context, key string) (bool, error) {
	var removedRecord Record
	removed, err := s.store.RemoveIf(ctx, key, func(r Record) bool {
		removedRecord = r
		return true
	})
	if err != nil || !removed {
		return false, err
	}

	s.metrics.recordDeleted(ctx, removedRecord.Type)
	s.logger.Info().
		Str("request", keyHint(key)).
		Str("type", string(removedRecord.Type)).
		Bool("confirmed", removedRecord.Confirmed).
		Msg("privacy request deleted")

	if !removedRecord.Confirmed && s.policy.DeleteClearsToken(ctx) {
		s.revokeToken(ctx, removedRecord)
	}
	return true, nil
}

// revokeToken clears the pending token of a deleted request if it is still
// the current one for its account and type.
func (s *Service) revokeToken(ctx context.Context, record Record) {
	s.cancelCleanup(ctx, record.Key)

	subject := s.resolveByEmail(ctx, record.Email)
	if subject == nil || s.registry == nil {
		return
	}
	current, ok, err := s.registry.Resolve(ctx, subject.ID, record.Type)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", subject.ID).Msg("failed to read pending token")
		return
	}
	if !ok || current != record.Key {
		return
	}
	if err := s.registry.Clear(ctx, subject.ID, record.Type); err != nil {
		s.logger.Error().Err(err).Str("user_id", subject.ID).Msg("failed to clear pending token")
	}
}

// Get returns the request at key.
func (s *Service) Get(ctx context.Context, key string) (*Record, error) {
	return s.store.Get(ctx, key)
}

// List returns all requests.
func (s *Service) List(ctx context.Context) ([]Record, error) {
	return s.store.List(ctx)
}

// SubjectHasContent reports whether the account owns content that a
// deletion request would affect.
func (s *Service) SubjectHasContent(ctx context.Context, subjectID string) (bool, error) {
	if s.eligibility == nil {
		return false, nil
	}
	return s.eligibility.SubjectHasContent(ctx, subjectID)
}

// RegisterHooks installs the expiry callbacks on d.
func (s *Service) RegisterHooks(d *scheduler.Dispatcher) {
	d.Handle(HookCleanToken, func(ctx context.Context, args scheduler.Args) error {
		userID, metaKey := args[ArgUserID], args[ArgMetaKey]
		if userID == "" || metaKey == "" {
			return fmt.Errorf("%s: missing %s or %s", HookCleanToken, ArgUserID, ArgMetaKey)
		}
		if s.registry == nil {
			return nil
		}
		return s.registry.ExpireToken(ctx, userID, metaKey)
	})

	d.Handle(HookCleanRequest, func(ctx context.Context, args scheduler.Args) error {
		key := args[ArgKey]
		if key == "" {
			return fmt.Errorf("%s: missing %s", HookCleanRequest, ArgKey)
		}
		_, err := s.CleanupUnconfirmed(ctx, key)
		return err
	})
}

// markSuperseded flags the unconfirmed request at key so its token stays
// invalid after the registry entry that replaced it is cleared.
func (s *Service) markSuperseded(ctx context.Context, key string) {
	err := s.store.Update(ctx, key, func(r *Record) error {
		if !r.Confirmed {
			r.Superseded = true
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Error().Err(err).
			Str("request", keyHint(key)).
			Msg("failed to mark request superseded")
	}
}

func (s *Service) cancelCleanup(ctx context.Context, key string) {
	if s.schedule == nil {
		return
	}
	if _, err := scheduler.Unschedule(ctx, s.schedule, HookCleanRequest, requestArgs(key)); err != nil {
		s.logger.Warn().Err(err).
			Str("request", keyHint(key)).
			Msg("failed to cancel request cleanup")
	}
}

// resolveByEmail returns the account for email, or nil if there is none or
// the directory cannot be reached.
func (s *Service) resolveByEmail(ctx context.Context, email string) *Subject {
	if s.directory == nil || email == "" {
		return nil
	}
	subject, err := s.directory.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrSubjectNotFound) {
			return nil
		}
		if !errors.Is(err, ErrDirectoryUnavailable) {
			err = fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
		}
		s.logger.Warn().Err(err).Msg("continuing without account bookkeeping")
		return nil
	}
	return subject
}

// keyHint shortens a request key for logs. Keys are confirmation secrets.
func keyHint(key string) string {
	if len(key) <= 4 {
		return key
	}
	return key[:4] + "…"
}
