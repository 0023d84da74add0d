package cron

import (
	"context"
	"testing"
	"time"

	redisclient "github.com/angelmondragon/commercepilot-backend/pkg/redis"
)

func TestRedisLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	kv := redisclient.NewMemoryStore()

	first, err := NewRedisLock(kv, "cron", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	second, err := NewRedisLock(kv, "cron", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}

	ok, err := first.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	ok, err = second.Acquire(ctx)
	if err != nil || ok {
		t.Fatalf("second acquire should fail: ok=%v err=%v", ok, err)
	}

	// releasing a lock this instance never held leaves the owner's key alone
	if err := second.Release(ctx); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if v, err := kv.Get(ctx, redisclient.LockKey("cron")); err != nil || v == "" {
		t.Fatalf("owner key should survive: v=%q err=%v", v, err)
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("first release: %v", err)
	}
	ok, err = second.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestRedisLockReleaseAfterTakeover(t *testing.T) {
	ctx := context.Background()
	kv := redisclient.NewMemoryStore()
	lock, err := NewRedisLock(kv, "seed-plans", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	if ok, err := lock.Acquire(ctx); err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}

	key := redisclient.LockKey("seed-plans")
	if err := kv.Set(ctx, key, "someone-else", time.Minute); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if v, _ := kv.Get(ctx, key); v != "someone-else" {
		t.Fatalf("foreign owner must not be deleted, got %q", v)
	}
}

func TestNewRedisLockValidation(t *testing.T) {
	if _, err := NewRedisLock(nil, "x", time.Second); err == nil {
		t.Fatalf("expected client error")
	}
	if _, err := NewRedisLock(redisclient.NewMemoryStore(), "", time.Second); err == nil {
		t.Fatalf("expected name error")
	}
}

func TestRedisLockIsNotReentrant(t *testing.T) {
	ctx := context.Background()
	lock, err := NewRedisLock(redisclient.NewMemoryStore(), "cron", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatalf("expected first acquire")
	}
	if ok, _ := lock.Acquire(ctx); ok {
		t.Fatalf("a held lock must not be acquired twice")
	}
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := lock.Acquire(ctx); !ok {
		t.Fatalf("expected acquire after release")
	}
}
