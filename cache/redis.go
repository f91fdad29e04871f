package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/meshguard/observe"
)

// RedisConfig configures the shared Redis cache.
type RedisConfig struct {
	// Client is the Redis client to use. Required.
	Client *redis.Client

	// KeyPrefix namespaces all keys.
	// Default: "meshguard:fallback:"
	KeyPrefix string

	// Logger receives backend failures, which otherwise surface only
	// as misses. Default: discard
	Logger observe.Logger
}

// RedisCache shares fallback payloads across instances, so any client
// of a failing service can serve the stale value, not just the one
// that cached it.
type RedisCache struct {
	config RedisConfig
}

// NewRedisCache creates a Redis-backed cache.
func NewRedisCache(config RedisConfig) (*RedisCache, error) {
	if config.Client == nil {
		return nil, ErrNilClient
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "meshguard:fallback:"
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}
	return &RedisCache{config: config}, nil
}

// Get retrieves a value. Backend errors are logged and read as misses,
// so a Redis outage degrades the chain rather than failing it.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	value, err := c.config.Client.Get(ctx, c.config.KeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.config.Logger.Warn(ctx, "fallback cache read failed",
				observe.Field{Key: "key", Value: key},
				observe.Field{Key: "error", Value: err.Error()},
			)
		}
		return nil, false
	}
	return value, true
}

// Set stores a value for the given TTL. TTL<=0 means no caching.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := c.config.Client.Set(ctx, c.config.KeyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: store value: %w", err)
	}
	return nil
}

// Delete removes a value. Idempotent, no error on miss.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.config.Client.Del(ctx, c.config.KeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("cache: delete value: %w", err)
	}
	return nil
}

var _ Cache = (*RedisCache)(nil)
