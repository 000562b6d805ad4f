package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/learnbill-backend/pkg/instance"
)

// defaultLockTTL outlives a renewal pass over a large agency set so a slow
// cycle is not joined by a second worker.
const defaultLockTTL = 30 * time.Minute

// Lock keeps one cron worker per environment running the billing jobs.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// holderLock is implemented by locks that can report who holds them.
type holderLock interface {
	Holder(ctx context.Context) (string, error)
}

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock is a SETNX lease under lb:lock:cron:<env>. The stored value is
// "<worker id>/<token>" so an operator can tell which worker holds a stuck
// lease before it expires.
type RedisLock struct {
	client redisStore
	key    string
	ttl    time.Duration
	worker string
	owner  string
}

// NewRedisLock constructs a Redis-backed lock owned by this worker instance.
func NewRedisLock(client redisStore, key string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for cron lock")
	}
	if key == "" {
		return nil, errors.New("cron lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, key: key, ttl: ttl, worker: instance.GetID()}, nil
}

// Acquire takes the lease for one cycle. A fresh token per cycle keeps a
// release from a previous cycle from freeing a lease taken since.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	owner := l.worker + "/" + uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire cron lock %s: %w", l.key, err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

// Holder returns the stored owner value, or "" when the lease is free.
func (l *RedisLock) Holder(ctx context.Context) (string, error) {
	value, err := l.client.Get(ctx, l.key)
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read cron lock owner: %w", err)
	}
	return value, nil
}

// Release frees the lease only while this worker still owns it; an expired
// lease taken over by another worker is left alone.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	value, err := l.Holder(ctx)
	if err != nil {
		return err
	}
	if value != l.owner {
		l.owner = ""
		return nil
	}
	if err := l.client.Del(ctx, l.key); err != nil {
		return fmt.Errorf("release cron lock %s: %w", l.key, err)
	}
	l.owner = ""
	return nil
}
