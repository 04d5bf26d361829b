package requests

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/breatheroute/privacydesk/internal/settings"
)

// DefaultNamespace is the settings namespace holding the request collection.
const DefaultNamespace = "gdpr_requests"

// maxKeyAttempts bounds key regeneration on collision.
const maxKeyAttempts = 5

var errKeyExhausted = errors.New("could not generate a unique request key")

// Store persists request records keyed by request key.
type Store interface {
	// Insert stores r under a freshly generated key and returns the key.
	Insert(ctx context.Context, r Record) (string, error)

	// Get returns the record stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (*Record, error)

	// Remove deletes key. It reports false if key was absent.
	Remove(ctx context.Context, key string) (bool, error)

	// Update applies fn to the record under key, or returns ErrNotFound.
	// An error from fn aborts the update.
	Update(ctx context.Context, key string, fn func(*Record) error) error

	// RemoveIf deletes key only if match accepts its current record.
	RemoveIf(ctx context.Context, key string, match func(Record) bool) (bool, error)

	// List returns all records ordered by creation time, then key.
	List(ctx context.Context) ([]Record, error)
}

// BlobStoreConfig holds configuration for a BlobStore.
type BlobStoreConfig struct {
	// Repository persists the collection blob.
	Repository settings.Repository

	// Namespace is the settings namespace. Default: DefaultNamespace.
	Namespace string

	// KeyGenerator produces new keys. Default: GenerateKey.
	KeyGenerator KeyGenerator
}

// BlobStore keeps the whole request collection as one JSON object in a
// settings namespace. Every mutation is a single serialized read-modify-write.
type BlobStore struct {
	repo      settings.Repository
	namespace string
	newKey    KeyGenerator
}

// NewBlobStore creates a new BlobStore.
func NewBlobStore(cfg BlobStoreConfig) *BlobStore {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.KeyGenerator == nil {
		cfg.KeyGenerator = GenerateKey
	}
	return &BlobStore{
		repo:      cfg.Repository,
		namespace: cfg.Namespace,
		newKey:    cfg.KeyGenerator,
	}
}

// Insert stores a record under a new unique key.
func (s *BlobStore) Insert(ctx context.Context, r Record) (string, error) {
	var key string
	err := s.mutate(ctx, func(records map[string]Record) (bool, error) {
		for attempt := 0; attempt < maxKeyAttempts; attempt++ {
			candidate, err := s.newKey()
			if err != nil {
				return false, fmt.Errorf("generate request key: %w", err)
			}
			if _, taken := records[candidate]; taken {
				continue
			}
			key = candidate
			r.Key = candidate
			records[candidate] = r
			return true, nil
		}
		return false, errKeyExhausted
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// Get returns a record by key.
func (s *BlobStore) Get(ctx context.Context, key string) (*Record, error) {
	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	r, ok := records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

// Remove deletes a record.
func (s *BlobStore) Remove(ctx context.Context, key string) (bool, error) {
	return s.RemoveIf(ctx, key, func(Record) bool { return true })
}

// Update mutates a record in place.
func (s *BlobStore) Update(ctx context.Context, key string, fn func(*Record) error) error {
	return s.mutate(ctx, func(records map[string]Record) (bool, error) {
		r, ok := records[key]
		if !ok {
			return false, ErrNotFound
		}
		if err := fn(&r); err != nil {
			return false, err
		}
		r.Key = key
		records[key] = r
		return true, nil
	})
}

// RemoveIf deletes a record when match accepts it.
func (s *BlobStore) RemoveIf(ctx context.Context, key string, match func(Record) bool) (bool, error) {
	var removed bool
	err := s.mutate(ctx, func(records map[string]Record) (bool, error) {
		r, ok := records[key]
		if !ok || !match(r) {
			return false, nil
		}
		delete(records, key)
		removed = true
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// List returns every record.
func (s *BlobStore) List(ctx context.Context) ([]Record, error) {
	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	list := make([]Record, 0, len(records))
	for _, r := range records {
		list = append(list, r)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].Key < list[j].Key
	})
	return list, nil
}

func (s *BlobStore) load(ctx context.Context) (map[string]Record, error) {
	blob, err := s.repo.Get(ctx, s.namespace)
	if err != nil {
		if errors.Is(err, settings.ErrNotFound) {
			return map[string]Record{}, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	records, err := decodeRecords(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return records, nil
}

// mutate runs fn against the decoded collection inside one settings update.
// Errors returned by fn pass through unchanged; storage errors are wrapped in
// ErrPersistence.
func (s *BlobStore) mutate(ctx context.Context, fn func(records map[string]Record) (bool, error)) error {
	var opErr error
	err := s.repo.Update(ctx, s.namespace, func(current []byte) ([]byte, bool, error) {
		records, err := decodeRecords(current)
		if err != nil {
			return nil, false, err
		}
		write, err := fn(records)
		if err != nil {
			opErr = err
			return nil, false, err
		}
		if !write {
			return nil, false, nil
		}
		next, err := json.Marshal(records)
		if err != nil {
			return nil, false, err
		}
		return next, true, nil
	})
	if err != nil {
		if opErr != nil && errors.Is(err, opErr) {
			return opErr
		}
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

func decodeRecords(blob []byte) (map[string]Record, error) {
	records := make(map[string]Record)
	if len(blob) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(blob, &records); err != nil {
		return nil, fmt.Errorf("decode request collection: %w", err)
	}
	for key, r := range records {
		r.Key = key
		records[key] = r
	}
	return records, nil
}

// Ensure BlobStore implements Store interface.
var _ Store = (*BlobStore)(nil)
