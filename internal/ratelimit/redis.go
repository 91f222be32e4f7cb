package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisConfig describes the Redis connection.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// RedisLimiter keeps each user's sliding log in a Redis sorted set so every
// replica shares it.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter connects to Redis and returns a limiter.
func NewRedisLimiter(cfg RedisConfig, limit int, window time.Duration) (*RedisLimiter, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisLimiterWithClient(client, cfg.Prefix, limit, window), nil
}

// NewRedisLimiterWithClient wraps an existing client.
func NewRedisLimiterWithClient(client *redis.Client, prefix string, limit int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "edith:ratelimit"
	}
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		limit:  int64(limit),
		window: window,
		now:    time.Now,
	}
}

// Close closes the client.
func (r *RedisLimiter) Close() error {
	return r.client.Close()
}

// Check implements Limiter.
func (r *RedisLimiter) Check(ctx context.Context, userID string) (Status, error) {
	key := r.key(userID)
	now := r.now()
	floor := "(" + score(now.Add(-r.window))
	var count *redis.IntCmd
	var oldest *redis.ZSliceCmd
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.ZCount(ctx, key, floor, "+inf")
		oldest = pipe.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{Min: floor, Max: "+inf", Count: 1})
		return nil
	})
	if err != nil {
		return Status{}, fmt.Errorf("rate limit check: %w", err)
	}
	n := count.Val()
	return Status{
		Allowed: n < r.limit,
		Count:   n,
		Limit:   r.limit,
		ResetAt: r.resetAt(oldest.Val(), now),
	}, nil
}

// Increment implements Limiter. Pruning, the new entry and the expiry go out
// in one MULTI so concurrent replicas see a consistent log.
func (r *RedisLimiter) Increment(ctx context.Context, userID string) (Status, error) {
	key := r.key(userID)
	now := r.now()
	var count *redis.IntCmd
	var oldest *redis.ZSliceCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "-inf", score(now.Add(-r.window)))
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMicro()), Member: uuid.NewString()})
		count = pipe.ZCard(ctx, key)
		oldest = pipe.ZRangeWithScores(ctx, key, 0, 0)
		pipe.PExpire(ctx, key, r.window)
		return nil
	})
	if err != nil {
		return Status{}, fmt.Errorf("rate limit increment: %w", err)
	}
	n := count.Val()
	return Status{
		Allowed: n <= r.limit,
		Count:   n,
		Limit:   r.limit,
		ResetAt: r.resetAt(oldest.Val(), now),
	}, nil
}

func (r *RedisLimiter) key(userID string) string {
	return r.prefix + ":" + userID
}

func (r *RedisLimiter) resetAt(oldest []redis.Z, now time.Time) time.Time {
	if len(oldest) == 0 {
		return now.Add(r.window)
	}
	return time.UnixMicro(int64(oldest[0].Score)).Add(r.window)
}

// score encodes t as a sorted-set score in microseconds.
func score(t time.Time) string {
	return strconv.FormatInt(t.UnixMicro(), 10)
}
