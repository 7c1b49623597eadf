// Package file is a plain-file KVStore used as the fallback durable tier
// when the SQLite store cannot be opened. One file per key under a private
// root; filenames are the hex encoding of the key so arbitrary cache keys
// never touch path semantics.
package file

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mvetter/stewardflow/internal/domain"
	"github.com/mvetter/stewardflow/internal/ports"
)

const (
	storeDirMode  = 0o700
	entryFileMode = 0o600
	entrySuffix   = ".kv"
)

// DefaultMaxEntries matches the SQLite tier's budget.
const DefaultMaxEntries = 512

type Store struct {
	root       string
	maxEntries int
	mu         sync.RWMutex
}

var _ ports.KVStore = (*Store)(nil)

type Option func(*Store)

func WithMaxEntries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

func NewStore(root string, opts ...Option) *Store {
	s := &Store{root: filepath.Clean(root), maxEntries: DefaultMaxEntries}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.pathForKey(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.root, storeDirMode); err != nil {
		return fmt.Errorf("create kv directory: %w", err)
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		count, err := s.countLocked()
		if err != nil {
			return err
		}
		if count >= s.maxEntries {
			return fmt.Errorf("%d entries at limit %d: %w", count, s.maxEntries, domain.ErrQuotaExceeded)
		}
	}

	if err := os.WriteFile(path, []byte(value), entryFileMode); err != nil {
		return fmt.Errorf("write kv entry %q: %w", key, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path, err := s.pathForKey(key)
	if err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("key %q: %w", key, domain.ErrKeyNotFound)
		}
		return "", fmt.Errorf("read kv entry %q: %w", key, err)
	}
	return string(data), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.pathForKey(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete kv entry %q: %w", key, err)
	}
	return nil
}

func (s *Store) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list kv directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, entrySuffix) {
			continue
		}
		decoded, err := hex.DecodeString(strings.TrimSuffix(name, entrySuffix))
		if err != nil {
			continue
		}
		keys = append(keys, string(decoded))
	}
	return keys, nil
}

func (s *Store) countLocked() (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("list kv directory: %w", err)
	}

	count := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), entrySuffix) {
			count++
		}
	}
	return count, nil
}

func (s *Store) pathForKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("kv key is empty")
	}
	return filepath.Join(s.root, hex.EncodeToString([]byte(key))+entrySuffix), nil
}
