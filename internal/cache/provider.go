package cache

import (
	"context"
	"errors"
	"time"
)

// Provider defines the key/value and capped-list operations used to publish
// simulation results.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	// Push prepends value to the list at key and keeps at most limit entries.
	Push(ctx context.Context, key string, value []byte, limit int) error
	// Range returns up to limit entries from the head of the list at key.
	Range(ctx context.Context, key string, limit int) ([][]byte, error)
	Close() error
}

// ErrCacheMiss signals that a cache key was not found.
var ErrCacheMiss = errors.New("cache miss")

// NoopProvider implements Provider but never stores data.
type NoopProvider struct{}

// Get always returns ErrCacheMiss.
func (NoopProvider) Get(context.Context, string) ([]byte, error) {
	return nil, ErrCacheMiss
}

// Set discards the value and returns nil.
func (NoopProvider) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

// Del is a no-op for the noop cache.
func (NoopProvider) Del(context.Context, string) error { return nil }

// Push discards the value.
func (NoopProvider) Push(context.Context, string, []byte, int) error { return nil }

// Range always returns an empty list.
func (NoopProvider) Range(context.Context, string, int) ([][]byte, error) { return nil, nil }

// Close is a no-op.
func (NoopProvider) Close() error { return nil }
