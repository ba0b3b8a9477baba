// Package cache provides best-effort response memoization backed by Redis.
// The cache is never a source of truth: when Redis is unreachable at startup
// the service runs with caching disabled instead of failing.
package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache is a transient key/value store with per-entry expiry. Get reports a
// miss with ok=false; Set is fire-and-forget.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Close() error
}

type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
}

// New connects to Redis at the given URL. If the connection cannot be
// established the returned Cache is a no-op and the service degrades to
// uncached operation.
func New(ctx context.Context, redisURL string, logger *zap.Logger) Cache {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, caching disabled", zap.Error(err))
		return Noop{}
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis connection failed, caching disabled", zap.Error(err))
		_ = client.Close()
		return Noop{}
	}

	logger.Info("redis connected")
	return &RedisCache{client: client, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	value, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		c.logger.Error("cache get failed", zap.Error(err), zap.String("key", key))
		return "", false
	}
	return value, true
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Error("cache set failed", zap.Error(err), zap.String("key", key))
	}
}

func (c *RedisCache) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Error("cache delete failed", zap.Error(err), zap.String("key", key))
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Noop satisfies Cache when no backing store is available: every Get misses
// and every Set is silently dropped.
type Noop struct{}

func (Noop) Get(context.Context, string) (string, bool)         { return "", false }
func (Noop) Set(context.Context, string, string, time.Duration) {}
func (Noop) Delete(context.Context, string)                     {}
func (Noop) Close() error                                       { return nil }
