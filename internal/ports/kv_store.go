package ports

import "context"

// KVStore is a string-keyed, string-valued durable store with a bounded
// capacity. Put may fail with domain.ErrQuotaExceeded; callers that use the
// store as a cache tier must treat that as non-fatal. Get returns
// domain.ErrKeyNotFound for missing keys.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}
