package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/loomline/erp-backend/pkg/instance"
)

const defaultLockTTL = 2 * time.Hour

// ErrLockLost is returned by Extend once another worker owns the key.
var ErrLockLost = errors.New("cron lock no longer held")

// Lock coordinates exclusive cron runs across worker instances.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Extend(ctx context.Context) error
	Release(ctx context.Context) error
}

// ownedStore is satisfied by *redis.Client from pkg/redis.
type ownedStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ExtendOwned(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseOwned(ctx context.Context, key, owner string) (bool, error)
}

// RedisLock holds a single key whose value is a per-acquisition token. The
// token prefix is the instance id so a stuck key points at its worker.
type RedisLock struct {
	store ownedStore
	key   string
	ttl   time.Duration
	token string
}

// NewRedisLock builds a lock on key. A non-positive ttl means two hours.
func NewRedisLock(store ownedStore, key string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("lock store required")
	case key == "":
		return nil, errors.New("lock key required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

// Held reports whether this value currently believes it owns the key.
func (l *RedisLock) Held() bool { return l.token != "" }

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	if l.Held() {
		return true, nil
	}
	token := fmt.Sprintf("%s:%s", instance.ID(), uuid.NewString())
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Extend resets the TTL between jobs so a long cycle keeps its claim.
func (l *RedisLock) Extend(ctx context.Context) error {
	if !l.Held() {
		return ErrLockLost
	}
	ok, err := l.store.ExtendOwned(ctx, l.key, l.token, l.ttl)
	if err != nil {
		return fmt.Errorf("extend %s: %w", l.key, err)
	}
	if !ok {
		l.token = ""
		return ErrLockLost
	}
	return nil
}

// Release drops the key if the token still matches. Releasing a lock that
// expired or was never taken is a no-op.
func (l *RedisLock) Release(ctx context.Context) error {
	if !l.Held() {
		return nil
	}
	token := l.token
	l.token = ""
	if _, err := l.store.ReleaseOwned(ctx, l.key, token); err != nil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
