package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/invoice-review/pkg/config"
	"github.com/angelmondragon/invoice-review/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	keyNamespace  = "ir"
	queuePrefix   = "recon:queue"
	sessionPrefix = "session"
	lockPrefix    = "lock"
	scanBatchSize = 200
)

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Expire(context.Context, string, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
	Scan(context.Context, uint64, string, int64) *redis.ScanCmd
	Eval(context.Context, string, []string, ...any) *redis.Cmd
}

var errNotInitialized = errors.New("redis client not initialized")

// Client namespaces every key under "ir" and hides the go-redis command
// types behind plain Go returns.
type Client struct {
	store cmdable
	raw   *redis.Client
}

// Pinger exposes the health-check surface.
type Pinger interface {
	Ping(context.Context) error
}

// New connects with the configured pool and timeouts and pings once.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	logg.Info(logg.WithFields(ctx, map[string]any{"addr": opts.Addr, "db": opts.DB}), "redis connection established")
	return &Client{store: raw, raw: raw}, nil
}

// optionsFromConfig parses the URL, then lets explicit settings fill what
// the URL left unset.
func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	if opts.Password == "" {
		opts.Password = cfg.Password
	}
	if opts.DB == 0 {
		opts.DB = cfg.DB
	}
	overrideInt(&opts.PoolSize, cfg.PoolSize)
	overrideInt(&opts.MinIdleConns, cfg.MinIdleConns)
	overrideDuration(&opts.DialTimeout, cfg.DialTimeout)
	overrideDuration(&opts.ReadTimeout, cfg.ReadTimeout)
	overrideDuration(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func overrideInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func overrideDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

func (c *Client) cmd() (cmdable, error) {
	if c == nil || c.store == nil {
		return nil, errNotInitialized
	}
	return c.store, nil
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	store, err := c.cmd()
	if err != nil {
		return err
	}
	return store.Set(ctx, key, value, ttl).Err()
}

// Get returns redis.Nil for a missing key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	store, err := c.cmd()
	if err != nil {
		return "", err
	}
	return store.Get(ctx, key).Result()
}

func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	store, err := c.cmd()
	if err != nil {
		return false, err
	}
	return store.SetNX(ctx, key, value, ttl).Result()
}

// Expire slides the TTL of an existing key. Missing keys are not an error.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	store, err := c.cmd()
	if err != nil {
		return err
	}
	return store.Expire(ctx, key, ttl).Err()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	store, err := c.cmd()
	if err != nil || len(keys) == 0 {
		return err
	}
	return store.Del(ctx, keys...).Err()
}

// DelPattern scans for keys matching a glob and deletes them page by page.
// It returns how many were deleted before any error.
func (c *Client) DelPattern(ctx context.Context, pattern string) (int, error) {
	store, err := c.cmd()
	if err != nil {
		return 0, err
	}
	deleted := 0
	var cursor uint64
	for {
		keys, next, err := store.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return deleted, fmt.Errorf("scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := store.Del(ctx, keys...).Err(); err != nil {
				return deleted, fmt.Errorf("delete %s: %w", pattern, err)
			}
			deleted += len(keys)
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}

// QueueKey returns the cache key for a reconciliation queue filter.
func (c *Client) QueueKey(status string) string {
	return c.buildKey(queuePrefix, status)
}

// QueuePattern matches every cached reconciliation queue.
func (c *Client) QueuePattern() string {
	return c.buildKey(queuePrefix, "*")
}

// SessionKey returns the key holding a reviewer session state.
func (c *Client) SessionKey(sessionID string) string {
	return c.buildKey(sessionPrefix, sessionID)
}

// LockKey returns a namespaced key for short-lived exclusive locks.
func (c *Client) LockKey(scope, id string) string {
	return c.buildKey(lockPrefix, scope, id)
}

func (c *Client) Ping(ctx context.Context) error {
	store, err := c.cmd()
	if err != nil {
		return err
	}
	return store.Ping(ctx).Err()
}

// Close is a no-op for clients built around a test double.
func (c *Client) Close() error {
	if c == nil || c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

// buildKey joins the namespace and the non-blank parts with ":".
func (c *Client) buildKey(parts ...string) string {
	key := keyNamespace
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			key += ":" + part
		}
	}
	return key
}
