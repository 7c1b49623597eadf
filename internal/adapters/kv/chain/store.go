// Package chain composes two KVStores into one durable tier: reads and
// writes try the primary first and fall back to the secondary. The cache
// layer above treats any remaining failure as non-fatal, so the chain only
// has to be best-effort too.
package chain

import (
	"context"
	"errors"
	"fmt"

	filestore "github.com/mvetter/stewardflow/internal/adapters/kv/file"
	sqlitestore "github.com/mvetter/stewardflow/internal/adapters/kv/sqlite"
	"github.com/mvetter/stewardflow/internal/domain"
	"github.com/mvetter/stewardflow/internal/ports"
)

type Store struct {
	primary  ports.KVStore
	fallback ports.KVStore
}

var _ ports.KVStore = (*Store)(nil)

var (
	errNilPrimaryStore  = errors.New("primary kv store is nil")
	errNilFallbackStore = errors.New("fallback kv store is nil")
)

func NewStore(primary ports.KVStore, fallback ports.KVStore) (*Store, error) {
	if primary == nil {
		return nil, errNilPrimaryStore
	}
	if fallback == nil {
		return nil, errNilFallbackStore
	}
	return &Store{primary: primary, fallback: fallback}, nil
}

// NewSQLiteFirstWithFileFallback opens the SQLite tier at dbPath and chains
// a plain-file tier under fileRoot behind it. When the database cannot be
// opened at all (locked, corrupt, read-only volume) the file tier serves
// alone.
func NewSQLiteFirstWithFileFallback(dbPath, fileRoot string) (ports.KVStore, error) {
	fallback := filestore.NewStore(fileRoot)

	primary, err := sqlitestore.Open(dbPath)
	if err != nil {
		return fallback, fmt.Errorf("open sqlite kv tier, serving file tier alone: %w", err)
	}

	return &Store{primary: primary, fallback: fallback}, nil
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	err := s.primary.Put(ctx, key, value)
	if err == nil {
		return nil
	}
	if shouldSkipFallback(err) {
		return err
	}

	fallbackErr := s.fallback.Put(ctx, key, value)
	if fallbackErr == nil {
		return nil
	}
	return fmt.Errorf("primary put failed: %w; fallback put failed: %w", err, fallbackErr)
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	value, err := s.primary.Get(ctx, key)
	if err == nil {
		return value, nil
	}
	if shouldSkipFallback(err) {
		return "", err
	}

	fallbackValue, fallbackErr := s.fallback.Get(ctx, key)
	if fallbackErr == nil {
		return fallbackValue, nil
	}
	if errors.Is(err, domain.ErrKeyNotFound) && errors.Is(fallbackErr, domain.ErrKeyNotFound) {
		return "", fmt.Errorf("key %q: %w", key, domain.ErrKeyNotFound)
	}
	return "", fmt.Errorf("primary get failed: %w; fallback get failed: %w", err, fallbackErr)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.primary.Delete(ctx, key)
	if shouldSkipFallback(err) {
		return err
	}

	fallbackErr := s.fallback.Delete(ctx, key)
	if err == nil && fallbackErr == nil {
		return nil
	}
	if err != nil && fallbackErr != nil {
		return fmt.Errorf("primary delete failed: %w; fallback delete failed: %w", err, fallbackErr)
	}
	if err != nil {
		return err
	}
	return fallbackErr
}

// Keys returns the union of both tiers' keys; a key written to the
// fallback during a primary outage still shows up.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	primaryKeys, err := s.primary.Keys(ctx)
	if err != nil && shouldSkipFallback(err) {
		return nil, err
	}

	fallbackKeys, fallbackErr := s.fallback.Keys(ctx)
	if err != nil && fallbackErr != nil {
		return nil, fmt.Errorf("primary keys failed: %w; fallback keys failed: %w", err, fallbackErr)
	}

	seen := map[string]struct{}{}
	var keys []string
	for _, list := range [][]string{primaryKeys, fallbackKeys} {
		for _, key := range list {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func shouldSkipFallback(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
