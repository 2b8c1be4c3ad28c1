package etl

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultAttemptTTL = 24 * time.Hour

// AttemptCounter tracks how many times a message has failed to persist.
type AttemptCounter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Clear(ctx context.Context, key string) error
}

// RedisAttempts keeps failure counts in Redis so every consumer replica sees the same tally.
type RedisAttempts struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ AttemptCounter = (*RedisAttempts)(nil)

func NewRedisAttempts(client *redis.Client, ttl time.Duration) *RedisAttempts {
	if ttl <= 0 {
		ttl = defaultAttemptTTL
	}
	return &RedisAttempts{client: client, prefix: "etl:attempts:", ttl: ttl}
}

func (a *RedisAttempts) Incr(ctx context.Context, key string) (int64, error) {
	pipe := a.client.TxPipeline()
	incr := pipe.Incr(ctx, a.prefix+key)
	pipe.Expire(ctx, a.prefix+key, a.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (a *RedisAttempts) Clear(ctx context.Context, key string) error {
	return a.client.Del(ctx, a.prefix+key).Err()
}
