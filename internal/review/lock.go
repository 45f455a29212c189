package review

import (
	"context"
	"errors"
	"time"

	redisclient "github.com/angelmondragon/invoice-review/pkg/redis"
)

const defaultLockTTL = 30 * time.Second

// Locker hands out per-invoice submission leases.
type Locker interface {
	Acquire(ctx context.Context, invoiceID string) (Lease, bool, error)
}

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseOwned(ctx context.Context, key, owner string) (bool, error)
	LockKey(scope, id string) string
}

// RedisLocker serializes submissions per invoice across API instances.
type RedisLocker struct {
	client lockStore
	ttl    time.Duration
}

func NewRedisLocker(client lockStore, ttl time.Duration) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{client: client, ttl: ttl}, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, invoiceID string) (Lease, bool, error) {
	if invoiceID == "" {
		return nil, false, errors.New("invoice id is required")
	}
	lease, err := redisclient.AcquireLease(ctx, l.client, l.client.LockKey("review", invoiceID), l.ttl)
	if err != nil || lease == nil {
		return nil, false, err
	}
	return lease, true, nil
}
