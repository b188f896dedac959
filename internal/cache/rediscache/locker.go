package rediscache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Locker раздаёт краткоживущие lease-локи через SET NX. Используется
// вотчером, чтобы две проверки одного мониторинга не шли одновременно.
type Locker struct {
	c *redis.Client
}

func NewLocker(addr string) *Locker {
	return &Locker{
		c: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

// Acquire пытается взять лок; false — лок уже занят другим проходом.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.c.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis setnx")
	}
	return ok, nil
}

func (l *Locker) Release(ctx context.Context, key string) error {
	if err := l.c.Del(ctx, key).Err(); err != nil {
		return errors.Wrap(err, "redis release")
	}
	return nil
}
