package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxMutateAttempts = 10

// ErrContended means key kept changing underneath Mutate on every attempt.
var ErrContended = errors.New("redis key contended")

// Mutate is an optimistic read-modify-write of one string key. fn sees the
// current value (found is false when the key is absent) and returns the
// replacement, written with ttl only if nobody touched key in between.
// fn runs again on conflict, so it must not have side effects. An error from
// fn aborts without writing and is returned as is.
func (c *Client) Mutate(ctx context.Context, key string, ttl time.Duration, fn func(current string, found bool) (string, error)) error {
	if c == nil || c.raw == nil {
		return errNotInitialized
	}
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		found := err == nil
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		next, err := fn(current, found)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, ttl)
			return nil
		})
		return err
	}
	for attempt := 0; attempt < maxMutateAttempts; attempt++ {
		err := c.raw.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s: %w", key, ErrContended)
}
