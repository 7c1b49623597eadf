// Package cache implements the two-tier response cache: a volatile
// in-process tier backed by a map and an optional durable tier behind
// ports.KVStore. The memory tier is authoritative within a process
// lifetime; the durable tier only exists to survive restarts. Entries are
// promoted from the durable tier into memory on first read so a cold read
// pays the durable cost exactly once.
//
// The cache is an optimization, never a correctness dependency: durable
// writes that fail (quota, serialization) are logged and swallowed, and a
// key degrades to memory-only caching.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mvetter/stewardflow/internal/domain"
	"github.com/mvetter/stewardflow/internal/ports"
)

// envelope is the serialized form of one cache entry in the durable tier.
// The data payload is kept raw; its shape is the producer's business.
type envelope struct {
	Data      json.RawMessage `json:"data"`
	WrittenAt time.Time       `json:"written_at"`
	TTLMillis int64           `json:"ttl_ms"`
}

func (e envelope) fresh(now time.Time) bool {
	return now.Sub(e.WrittenAt) < time.Duration(e.TTLMillis)*time.Millisecond
}

func (e envelope) age(now time.Time) time.Duration {
	return now.Sub(e.WrittenAt)
}

// KeyStatus is one key's diagnostic entry as reported by Store.Status.
type KeyStatus struct {
	Key   string
	Valid bool
	Age   time.Duration
}

// Observer is notified with the affected key after every Set or Clear.
// ClearAll notifies once with an empty key.
type Observer func(key string)

// Store is an explicitly constructed cache instance owned by the
// composition root. Tests create isolated instances; there is no package
// level shared state.
type Store struct {
	mu        sync.RWMutex
	mem       map[string]envelope
	durable   ports.KVStore // nil disables the durable tier
	clock     ports.Clock
	logger    *slog.Logger
	observers map[int]Observer
	nextObsID int
}

type Option func(*Store)

// WithDurable attaches the durable tier. Without it the store is
// memory-only.
func WithDurable(kv ports.KVStore) Option {
	return func(s *Store) { s.durable = kv }
}

func WithClock(clock ports.Clock) Option {
	return func(s *Store) { s.clock = clock }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		mem:       map[string]envelope{},
		clock:     ports.SystemClock{},
		logger:    slog.Default(),
		observers: map[int]Observer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set writes the entry to the memory tier synchronously and to the durable
// tier best-effort. A durable failure is logged and swallowed; Set itself
// never fails over it. Serialization failure of data is the only error
// returned, since a value that cannot be marshalled cannot be cached at
// all.
func (s *Store) Set(ctx context.Context, key string, data any, ttl time.Duration) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal cache entry %q: %w", key, err)
	}

	env := envelope{
		Data:      raw,
		WrittenAt: s.clock.Now(),
		TTLMillis: ttl.Milliseconds(),
	}

	s.mu.Lock()
	s.mem[key] = env
	s.mu.Unlock()

	if s.durable != nil {
		serialized, err := json.Marshal(env)
		if err != nil {
			s.logger.Warn("cache store: serialize envelope", "key", key, "error", err)
		} else if err := s.durable.Put(ctx, key, string(serialized)); err != nil {
			s.logger.Warn("cache store: durable write", "key", key, "error", err)
		}
	}

	s.notify(key)
	return nil
}

// Get checks the memory tier first; a fresh hit returns without touching
// the durable tier. On a memory miss (or stale entry, which is evicted) the
// durable tier is consulted; a fresh durable entry is promoted into memory.
// Stale entries are evicted from whichever tier observed them.
func (s *Store) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	now := s.clock.Now()

	s.mu.Lock()
	if env, ok := s.mem[key]; ok {
		if env.fresh(now) {
			s.mu.Unlock()
			return env.Data, true
		}
		delete(s.mem, key)
	}
	s.mu.Unlock()

	if s.durable == nil {
		return nil, false
	}

	serialized, err := s.durable.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrKeyNotFound) {
			s.logger.Warn("cache store: durable read", "key", key, "error", err)
		}
		return nil, false
	}

	var env envelope
	if err := json.Unmarshal([]byte(serialized), &env); err != nil {
		s.logger.Warn("cache store: corrupt durable entry", "key", key, "error", err)
		s.evictDurable(ctx, key)
		return nil, false
	}

	if !env.fresh(now) {
		s.evictDurable(ctx, key)
		return nil, false
	}

	s.mu.Lock()
	s.mem[key] = env
	s.mu.Unlock()

	return env.Data, true
}

// GetInto is Get plus JSON decoding into out.
func (s *Store) GetInto(ctx context.Context, key string, out any) bool {
	raw, ok := s.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		s.logger.Warn("cache store: decode cached entry", "key", key, "error", err)
		return false
	}
	return true
}

// Clear removes the key from both tiers unconditionally.
func (s *Store) Clear(ctx context.Context, key string) {
	s.mu.Lock()
	delete(s.mem, key)
	s.mu.Unlock()

	s.evictDurable(ctx, key)
	s.notify(key)
}

// ClearAll removes every key from both tiers unconditionally.
func (s *Store) ClearAll(ctx context.Context) {
	s.mu.Lock()
	s.mem = map[string]envelope{}
	s.mu.Unlock()

	if s.durable != nil {
		keys, err := s.durable.Keys(ctx)
		if err != nil {
			s.logger.Warn("cache store: list durable keys", "error", err)
		}
		for _, key := range keys {
			s.evictDurable(ctx, key)
		}
	}

	s.notify("")
}

// Status reports, for every known key across both tiers, whether the entry
// is still valid and how old it is, checking tiers in the same precedence
// order as Get but without promoting or evicting anything.
func (s *Store) Status(ctx context.Context) []KeyStatus {
	now := s.clock.Now()
	seen := map[string]KeyStatus{}

	s.mu.RLock()
	for key, env := range s.mem {
		seen[key] = KeyStatus{Key: key, Valid: env.fresh(now), Age: env.age(now)}
	}
	s.mu.RUnlock()

	if s.durable != nil {
		keys, err := s.durable.Keys(ctx)
		if err != nil {
			s.logger.Warn("cache store: list durable keys", "error", err)
		}
		for _, key := range keys {
			if _, ok := seen[key]; ok {
				continue
			}
			serialized, err := s.durable.Get(ctx, key)
			if err != nil {
				continue
			}
			var env envelope
			if err := json.Unmarshal([]byte(serialized), &env); err != nil {
				seen[key] = KeyStatus{Key: key, Valid: false}
				continue
			}
			seen[key] = KeyStatus{Key: key, Valid: env.fresh(now), Age: env.age(now)}
		}
	}

	out := make([]KeyStatus, 0, len(seen))
	for _, st := range seen {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Notify registers an observer and returns its disposer. The disposer is
// idempotent.
func (s *Store) Notify(fn Observer) func() {
	s.mu.Lock()
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) notify(key string) {
	s.mu.RLock()
	observers := make([]Observer, 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.RUnlock()

	for _, fn := range observers {
		fn(key)
	}
}

func (s *Store) evictDurable(ctx context.Context, key string) {
	if s.durable == nil {
		return
	}
	if err := s.durable.Delete(ctx, key); err != nil {
		s.logger.Warn("cache store: durable delete", "key", key, "error", err)
	}
}
