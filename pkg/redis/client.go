// Package redis holds the key/value layer behind sessions, rate limits and
// locks: a go-redis client for shared deployments and a go-cache MemoryStore
// for single processes and tests.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/commercepilot-backend/pkg/config"
	"github.com/angelmondragon/commercepilot-backend/pkg/logger"
)

// Nil is returned by Get when a key does not exist, for both backends.
var Nil = redis.Nil

var errClosed = errors.New("redis: client not connected")

// KV is the key/value surface shared by sessions, rate limits and locks.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	// DelIfValue deletes key only while it still holds value.
	DelIfValue(ctx context.Context, key, value string) (bool, error)
	// FixedWindowAllow counts a hit against scope and reports whether the
	// count is still within limit for the current window.
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ KV = (*Client)(nil)
	_ KV = (*MemoryStore)(nil)
)

// INCR and the first PEXPIRE run as one step so a counter never outlives
// its window.
const fixedWindowScript = `
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return n`

const delIfValueScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0`

// commands is the slice of go-redis the client uses.
type commands interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// Client is the redis-backed KV.
type Client struct {
	cmd  commands
	conn *redis.Client
}

// Open returns a redis-backed KV when redis is configured and a process-local
// MemoryStore otherwise.
func Open(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (KV, error) {
	if cfg.Enabled() {
		return Dial(ctx, cfg, logg)
	}
	if logg != nil {
		logg.Warn(ctx, "redis not configured; sessions and rate limits are process-local")
	}
	return NewMemoryStore(), nil
}

// Dial connects to redis and fails fast when the server does not answer.
func Dial(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}
	conn := redis.NewClient(opts)
	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"addr": opts.Addr, "db": opts.DB}), "redis connected")
	}
	return &Client{cmd: conn, conn: conn}, nil
}

// clientOptions prefers REDIS_URL; explicit pool and timeout settings only
// fill what the URL left unset.
func clientOptions(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	case cfg.Address != "":
		opts = &redis.Options{Addr: cfg.Address, Password: cfg.Password}
	default:
		return nil, errors.New("redis url or address is required")
	}

	fillInt(&opts.DB, cfg.DB)
	fillInt(&opts.PoolSize, cfg.PoolSize)
	fillInt(&opts.MinIdleConns, cfg.MinIdleConns)
	fillDuration(&opts.DialTimeout, cfg.DialTimeout)
	fillDuration(&opts.ReadTimeout, cfg.ReadTimeout)
	fillDuration(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func fillInt(dst *int, v int) {
	if *dst == 0 {
		*dst = v
	}
}

func fillDuration(dst *time.Duration, v time.Duration) {
	if *dst == 0 {
		*dst = v
	}
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c.cmd == nil {
		return "", errClosed
	}
	return c.cmd.Get(ctx, key).Result()
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c.cmd == nil {
		return errClosed
	}
	return c.cmd.Set(ctx, key, value, ttl).Err()
}

func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c.cmd == nil {
		return false, errClosed
	}
	return c.cmd.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c.cmd == nil {
		return errClosed
	}
	return c.cmd.Del(ctx, keys...).Err()
}

func (c *Client) DelIfValue(ctx context.Context, key, value string) (bool, error) {
	if c.cmd == nil {
		return false, errClosed
	}
	n, err := c.cmd.Eval(ctx, delIfValueScript, []string{key}, value).Int64()
	if err != nil {
		return false, fmt.Errorf("compare and delete %s: %w", key, err)
	}
	return n == 1, nil
}

func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	if c.cmd == nil {
		return false, 0, errClosed
	}
	if window <= 0 {
		return false, 0, fmt.Errorf("rate limit window must be positive")
	}
	n, err := c.cmd.Eval(ctx, fixedWindowScript, []string{RateLimitKey(scope)}, window.Milliseconds()).Int64()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit %s: %w", scope, err)
	}
	return n <= limit, n, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if c.cmd == nil {
		return errClosed
	}
	return c.cmd.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
