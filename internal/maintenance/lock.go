package maintenance

import (
	"context"
	"errors"
	"time"

	redisclient "github.com/angelmondragon/invoice-review/pkg/redis"
)

// Slightly under the default interval so a crashed holder frees the next cycle.
const defaultLockTTL = 55 * time.Minute

// Lock guards a maintenance cycle so only one instance runs it.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseOwned(ctx context.Context, key, owner string) (bool, error)
	LockKey(scope, id string) string
}

// RedisLock holds at most one lease per environment.
type RedisLock struct {
	client lockStore
	key    string
	ttl    time.Duration
	held   *redisclient.Lease
}

func NewRedisLock(client lockStore, env string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if env == "" {
		env = "local"
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, key: client.LockKey("maintenance", env), ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	lease, err := redisclient.AcquireLease(ctx, l.client, l.key, l.ttl)
	if err != nil {
		return false, err
	}
	if lease == nil {
		return false, nil
	}
	l.held = lease
	return true, nil
}

func (l *RedisLock) Release(ctx context.Context) error {
	lease := l.held
	l.held = nil
	return lease.Release(ctx)
}
