package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// LookupCache is a Redis-backed string cache for directory lookups.
type LookupCache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewLookupCache creates a new LookupCache.
func NewLookupCache(client *redis.Client, logger *slog.Logger) *LookupCache {
	return &LookupCache{
		client: client,
		logger: logger.With("component", "redis_lookup_cache"),
	}
}

// Get returns the cached value, or "" on a miss.
func (c *LookupCache) Get(ctx context.Context, key string) (string, error) {
	value, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return value, err
}

// Set stores a value with an expiry.
func (c *LookupCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}
