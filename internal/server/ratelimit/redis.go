package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter shares counters between server instances. The window starts
// with the first attempt: INCR and EXPIRE NX run in one MULTI block.
type RedisLimiter struct {
	client redis.Cmdable
	prefix string
	rate   int
	period time.Duration
}

func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return client, client.Ping(ctx).Err()
}

func NewRedisLimiter(client redis.Cmdable, prefix string, rate int, period time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, rate: rate, period: period}
}

func (l *RedisLimiter) key(k string) string {
	return l.prefix + ":" + k
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l.rate <= 0 {
		return true, nil
	}

	k := l.key(key)
	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.ExpireNX(ctx, k, l.period)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis rate limit: %w", err)
	}
	return incr.Val() <= int64(l.rate), nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("redis rate limit reset: %w", err)
	}
	return nil
}
