package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a fixed window limiter shared by every replica through Redis.
type RedisRateLimiter struct {
	client   redis.Cmdable
	requests int64
	window   time.Duration
	prefix   string
	logger   *slog.Logger
	now      func() time.Time
}

// NewRedisRateLimiter allows up to requests calls per key in each window.
func NewRedisRateLimiter(client redis.Cmdable, requests int, window time.Duration, logger *slog.Logger) *RedisRateLimiter {
	if requests <= 0 {
		requests = 1
	}
	if window < time.Second {
		window = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRateLimiter{
		client:   client,
		requests: int64(requests),
		window:   window,
		prefix:   "linkup:ratelimit:",
		logger:   logger,
		now:      time.Now,
	}
}

// Allow counts the call against the current window. Redis failures let the call through.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) bool {
	if key == "" {
		key = "unknown"
	}
	bucket := l.now().Unix() / int64(l.window/time.Second)
	redisKey := fmt.Sprintf("%s%s:%d", l.prefix, key, bucket)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("rate limiter unavailable", "error", err)
		return true
	}

	return incr.Val() <= l.requests
}

// Ping checks the shared Redis is reachable.
func (l *RedisRateLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
