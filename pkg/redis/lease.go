package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const releaseOwnedScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// ReleaseOwned deletes key only while it still holds owner, in one round trip.
// It reports whether the key was removed.
func (c *Client) ReleaseOwned(ctx context.Context, key, owner string) (bool, error) {
	store, err := c.cmd()
	if err != nil {
		return false, err
	}
	n, err := store.Eval(ctx, releaseOwnedScript, []string{key}, owner).Int64()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseOwned(ctx context.Context, key, owner string) (bool, error)
}

// Lease is a SETNX lock tagged with a random owner token.
type Lease struct {
	store leaseStore
	key   string
	owner string
}

// AcquireLease claims key for ttl. A nil lease with a nil error means
// someone else holds it.
func AcquireLease(ctx context.Context, store leaseStore, key string, ttl time.Duration) (*Lease, error) {
	if store == nil {
		return nil, errors.New("lease store required")
	}
	owner := uuid.NewString()
	ok, err := store.SetNX(ctx, key, owner, ttl)
	if err != nil {
		return nil, fmt.Errorf("setnx %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}
	return &Lease{store: store, key: key, owner: owner}, nil
}

// Key returns the locked key.
func (l *Lease) Key() string {
	if l == nil {
		return ""
	}
	return l.key
}

// Release gives the key back. A lease that already expired and was taken by
// another owner is left alone.
func (l *Lease) Release(ctx context.Context) error {
	if l == nil || l.owner == "" {
		return nil
	}
	if _, err := l.store.ReleaseOwned(ctx, l.key, l.owner); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	l.owner = ""
	return nil
}
