package reviewsession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/invoice-review/pkg/config"
	redisclient "github.com/angelmondragon/invoice-review/pkg/redis"
	redislib "github.com/redis/go-redis/v9"
)

var ErrSessionRequired = errors.New("session id is required")

type stateStore interface {
	Get(ctx context.Context, key string) (string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Mutate(ctx context.Context, key string, ttl time.Duration, fn func(current string, found bool) (string, error)) error
}

type stateKeyer interface {
	SessionKey(sessionID string) string
}

// Store persists State in Redis under the session id with a sliding TTL.
type Store struct {
	kv    stateStore
	keyer stateKeyer
	ttl   time.Duration
	now   func() time.Time
}

// NewStore constructs a session store backed by Redis.
func NewStore(client *redisclient.Client, cfg config.ReviewConfig) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	return &Store{
		kv:    client,
		keyer: client,
		ttl:   cfg.SessionTTL,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// Load returns the stored state, or a fresh one when the session has none.
// Reading extends the session's lifetime.
func (s *Store) Load(ctx context.Context, sessionID string) (*State, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionRequired
	}
	key := s.keyer.SessionKey(sessionID)
	raw, err := s.kv.Get(ctx, key)
	if errors.Is(err, redislib.Nil) {
		return New(sessionID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session state: %w", err)
	}
	if err := s.kv.Expire(ctx, key, s.ttl); err != nil {
		return nil, fmt.Errorf("extend session state: %w", err)
	}
	return decodeState(sessionID, raw), nil
}

// Update applies fn to the current state and writes it back atomically, so
// requests of one session touching different fields never undo each other.
// fn may run more than once under contention and should only change the
// fields its caller owns. Nothing is written when fn fails.
func (s *Store) Update(ctx context.Context, sessionID string, fn func(*State) error) (*State, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionRequired
	}
	var updated *State
	err := s.kv.Mutate(ctx, s.keyer.SessionKey(sessionID), s.ttl, func(current string, found bool) (string, error) {
		state := New(sessionID)
		if found {
			state = decodeState(sessionID, current)
		}
		if err := fn(state); err != nil {
			return "", err
		}
		state.UpdatedAt = s.now()
		payload, err := json.Marshal(state)
		if err != nil {
			return "", fmt.Errorf("encode session state: %w", err)
		}
		updated = state
		return string(payload), nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// decodeState starts unreadable state over as a fresh session.
func decodeState(sessionID, raw string) *State {
	var state State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return New(sessionID)
	}
	state.SessionID = sessionID
	return &state
}
