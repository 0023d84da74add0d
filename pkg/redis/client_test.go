package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/commercepilot-backend/pkg/config"
)

// fakeRedis interprets the two scripts the client sends.
type fakeRedis struct {
	data    map[string]string
	counts  map[string]int64
	expires map[string]int64
	evals   int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, counts: map[string]int64{}, expires: map[string]int64{}}
}

func (f *fakeRedis) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakeRedis) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	f.evals++
	key := keys[0]
	switch script {
	case fixedWindowScript:
		f.counts[key]++
		if f.counts[key] == 1 {
			f.expires[key] = args[0].(int64)
		}
		return redis.NewCmdResult(f.counts[key], nil)
	case delIfValueScript:
		if f.data[key] == args[0] {
			delete(f.data, key)
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	}
	return redis.NewCmdResult(nil, errors.New("unknown script"))
}

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	client := &Client{cmd: fake}
	scope := "login:email:abc"

	for i, want := range []bool{true, true, false} {
		allowed, count, err := client.FixedWindowAllow(ctx, scope, 2, 90*time.Second)
		require.NoError(t, err)
		require.Equal(t, want, allowed, "hit %d", i+1)
		require.Equal(t, int64(i+1), count)
	}
	require.Equal(t, int64(90000), fake.expires[RateLimitKey(scope)])

	_, _, err := client.FixedWindowAllow(ctx, scope, 2, 0)
	require.Error(t, err)
}

func TestDelIfValue(t *testing.T) {
	ctx := context.Background()
	client := &Client{cmd: newFakeRedis()}
	key := LockKey("cron")

	ok, err := client.SetNX(ctx, key, "owner-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = client.DelIfValue(ctx, key, "owner-b")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = client.DelIfValue(ctx, key, "owner-a")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = client.Get(ctx, key)
	require.ErrorIs(t, err, Nil)
}

func TestSessionRecordRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := &Client{cmd: newFakeRedis()}
	key := SessionKey("abc")

	require.NoError(t, client.Set(ctx, key, `{"account_id":"1"}`, time.Hour))
	got, err := client.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, `{"account_id":"1"}`, got)
	require.NoError(t, client.Del(ctx, key))
	_, err = client.Get(ctx, key)
	require.True(t, errors.Is(err, Nil))
}

func TestDisconnectedClient(t *testing.T) {
	client := &Client{}
	require.Error(t, client.Ping(context.Background()))
	_, err := client.DelIfValue(context.Background(), "k", "v")
	require.Error(t, err)
	require.NoError(t, client.Close())
}

func TestKeyBuilders(t *testing.T) {
	require.Equal(t, "cp:session:abc", SessionKey("abc"))
	require.Equal(t, "cp:rate_limit:register:email:a@x.com", RateLimitKey("register:email:a@x.com"))
	require.Equal(t, "cp:lock:seed-plans", LockKey(" seed-plans "))
	require.Equal(t, "cp:session", SessionKey(""))
}

func TestClientOptions(t *testing.T) {
	_, err := clientOptions(config.RedisConfig{})
	require.Error(t, err)

	opts, err := clientOptions(config.RedisConfig{URL: "redis://:secret@cache:6380/2", DB: 5, PoolSize: 7})
	require.NoError(t, err)
	require.Equal(t, "cache:6380", opts.Addr)
	require.Equal(t, "secret", opts.Password)
	require.Equal(t, 2, opts.DB, "db from the url wins")
	require.Equal(t, 7, opts.PoolSize)

	opts, err = clientOptions(config.RedisConfig{Address: "localhost:6379", DB: 3, DialTimeout: time.Second})
	require.NoError(t, err)
	require.Equal(t, "localhost:6379", opts.Addr)
	require.Equal(t, 3, opts.DB)
	require.Equal(t, time.Second, opts.DialTimeout)
}
