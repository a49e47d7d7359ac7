package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryProvider is an in-process Provider with per-key expiry. It backs
// local runs without a Valkey server and the package tests.
type MemoryProvider struct {
	mu    sync.RWMutex
	data  map[string]memoryItem
	lists map[string][][]byte
	now   func() time.Time
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		data:  make(map[string]memoryItem),
		lists: make(map[string][][]byte),
		now:   time.Now,
	}
}

// Get retrieves a value if present and not expired.
func (m *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	it, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrCacheMiss
	}
	if !it.expiresAt.IsZero() && m.now().After(it.expiresAt) {
		m.mu.Lock()
		delete(m.data, key)
		m.mu.Unlock()
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), it.value...), nil
}

// Set stores a copy of value with an optional TTL.
func (m *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var expires time.Time
	if ttl > 0 {
		expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = memoryItem{value: append([]byte(nil), value...), expiresAt: expires}
	return nil
}

// Del removes a key or list.
func (m *MemoryProvider) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	delete(m.lists, key)
	return nil
}

// Push prepends value and trims the list to limit entries when limit > 0.
func (m *MemoryProvider) Push(_ context.Context, key string, value []byte, limit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := append([][]byte{append([]byte(nil), value...)}, m.lists[key]...)
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	m.lists[key] = list
	return nil
}

// Range returns up to limit entries from the head of the list; limit <= 0 returns all.
func (m *MemoryProvider) Range(_ context.Context, key string, limit int) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.lists[key]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	out := make([][]byte, 0, len(list))
	for _, v := range list {
		out = append(out, append([]byte(nil), v...))
	}
	return out, nil
}

// Close is a no-op.
func (m *MemoryProvider) Close() error { return nil }
