package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Fetch returns the cached value for key when fresh, otherwise invokes
// producer, caches the result, and returns it. Producer failures propagate
// to the caller: a failure is never cached and never papered over with a
// stale entry.
func Fetch[T any](ctx context.Context, store *Store, key string, ttl time.Duration, forceRefresh bool, producer func(context.Context) (T, error)) (T, error) {
	var zero T

	if !forceRefresh {
		if raw, ok := store.Get(ctx, key); ok {
			var cached T
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
			// Undecodable entries are as good as absent; fall through to the
			// producer.
			store.Clear(ctx, key)
		}
	}

	fresh, err := producer(ctx)
	if err != nil {
		return zero, fmt.Errorf("produce %q: %w", key, err)
	}

	if err := store.Set(ctx, key, fresh, ttl); err != nil {
		store.logger.Warn("cached fetch: store result", "key", key, "error", err)
	}

	return fresh, nil
}

// PrefetchEntry names one key worth warming ahead of need.
type PrefetchEntry struct {
	Key      string
	TTL      time.Duration
	Producer func(context.Context) (any, error)
}

// Prefetch warms every entry whose key currently misses the cache. The
// producers run concurrently and each failure is isolated to its own entry:
// prefetch is best-effort and never reports an error to the caller.
func Prefetch(ctx context.Context, store *Store, entries []PrefetchEntry) {
	var wg sync.WaitGroup
	for _, entry := range entries {
		if _, ok := store.Get(ctx, entry.Key); ok {
			continue
		}

		wg.Add(1)
		go func(entry PrefetchEntry) {
			defer wg.Done()
			if _, err := Fetch(ctx, store, entry.Key, entry.TTL, false, entry.Producer); err != nil {
				store.logger.Warn("prefetch", "key", entry.Key, "error", err)
			}
		}(entry)
	}
	wg.Wait()
}
