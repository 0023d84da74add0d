package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

const memoryCleanupInterval = time.Minute

// MemoryStore is a process-local KV on go-cache. It stands in for redis in
// tests and single-instance deployments; state is lost on restart.
type MemoryStore struct {
	mu    sync.Mutex
	cache *cache.Cache
}

// NewMemoryStore builds an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cache: cache.New(cache.NoExpiration, memoryCleanupInterval)}
}

func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return cache.NoExpiration
	}
	return ttl
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.cache.Get(key)
	if !ok {
		return "", Nil
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprint(v), nil
	}
	return s, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	m.cache.Set(key, stringify(value), expiration(ttl))
	return nil
}

func (m *MemoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if err := m.cache.Add(key, stringify(value), expiration(ttl)); err != nil {
		return false, nil
	}
	return true, nil
}

func (m *MemoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		m.cache.Delete(key)
	}
	return nil
}

func (m *MemoryStore) DelIfValue(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.cache.Get(key)
	if !ok || stringify(current) != value {
		return false, nil
	}
	m.cache.Delete(key)
	return true, nil
}

// FixedWindowAllow counts hits per scope; the window starts at the first hit.
func (m *MemoryStore) FixedWindowAllow(_ context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := RateLimitKey(scope)
	if err := m.cache.Add(key, int64(1), expiration(window)); err == nil {
		return 1 <= limit, 1, nil
	}
	count, err := m.cache.IncrementInt64(key, 1)
	if err != nil {
		// expired between Add and Increment
		m.cache.Set(key, int64(1), expiration(window))
		count = 1
	}
	return count <= limit, count, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error {
	m.cache.Flush()
	return nil
}
