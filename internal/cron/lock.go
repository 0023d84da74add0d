package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/angelmondragon/commercepilot-backend/pkg/redis"
)

const defaultLockTTL = 30 * time.Minute

// Lock coordinates exclusive runs across instances.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
}

// RedisLock is a lease on a single KV key holding a random owner token. It
// guards the cron cycle and startup plan seeding. An owner that outlives the
// TTL loses the lease and its Release becomes a no-op.
type RedisLock struct {
	kv  lockStore
	key string
	ttl time.Duration

	mu    sync.Mutex
	token string
}

// NewRedisLock builds a lock stored under cp:lock:<name>.
func NewRedisLock(kv lockStore, name string, ttl time.Duration) (*RedisLock, error) {
	if kv == nil {
		return nil, errors.New("kv client required for lock")
	}
	if name == "" {
		return nil, errors.New("lock name is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{kv: kv, key: redisclient.LockKey(name), ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.token != "" {
		return false, nil
	}
	token := uuid.NewString()
	won, err := l.kv.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if won {
		l.token = token
	}
	return won, nil
}

func (l *RedisLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""
	if _, err := l.kv.DelIfValue(ctx, l.key, token); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
