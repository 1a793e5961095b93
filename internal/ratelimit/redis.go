package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "dreamlog:budget"

// RedisCounter shares fixed-window counts between server replicas.
type RedisCounter struct {
	rdb *redis.Client
}

func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

// NewRedisCounterFromURL parses a redis:// URL and pings the server.
func NewRedisCounterFromURL(ctx context.Context, url string) (*RedisCounter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedisCounter(rdb), nil
}

// Incr counts one call in the current window. The increment, the expiry for a
// fresh window and the TTL read go out in one MULTI/EXEC round trip.
func (r *RedisCounter) Incr(ctx context.Context, capability Capability, key string, window time.Duration) (int64, time.Duration, error) {
	redisKey := fmt.Sprintf("%s:%s:%s", redisKeyPrefix, capability, key)

	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.ExpireNX(ctx, redisKey, window)
		ttl = pipe.PTTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count %s call: %w", capability, err)
	}

	count, remaining := incr.Val(), ttl.Val()
	if remaining <= 0 {
		remaining = window
	}
	return count, remaining, nil
}

func (r *RedisCounter) Close() error {
	return r.rdb.Close()
}
