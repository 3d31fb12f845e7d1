// Package cache provides a shared Redis client for BugSpotter: the
// refresh-token allowlist (internal/auth) and the queue runtime's Redis
// connection (internal/queue), plus generic JSON get/set helpers. Rate
// limiting does not use it; internal/middleware keeps its buckets in
// memory.
//
// Connection pooling, retry, and timeout settings below are chosen for a
// single-instance self-hosted deployment: 25 max connections, 5 min idle,
// 3 retries with 8-512ms exponential backoff.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps a redis.Client. A nil underlying client means caching is
// disabled; every method degrades to a no-op (reads report not-found,
// writes silently succeed) so callers don't need to branch on IsEnabled
// except where the result matters, like SetNX-based locks.
type Cache struct {
	client *redis.Client
}

// Config holds cache/Redis connection configuration.
type Config struct {
	URL     string
	Enabled bool
}

// NewCache creates a new Redis-backed cache client from a redis:// URL.
func NewCache(cfg Config) (*Cache, error) {
	if !cfg.Enabled {
		return &Cache{client: nil}, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("cache: invalid redis url: %w", err)
	}
	opts.PoolSize = 25
	opts.MinIdleConns = 5
	opts.ConnMaxLifetime = 5 * time.Minute
	opts.ConnMaxIdleTime = 1 * time.Minute
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.MaxRetries = 3
	opts.MinRetryBackoff = 8 * time.Millisecond
	opts.MaxRetryBackoff = 512 * time.Millisecond

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: ping redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Client exposes the underlying redis.Client for packages (the queue
// runtime) that need Redis primitives cache doesn't wrap.
func (c *Cache) Client() *redis.Client { return c.client }

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// IsEnabled returns whether caching is enabled.
func (c *Cache) IsEnabled() bool { return c.client != nil }

// Get retrieves a value from cache and unmarshals it into target.
func (c *Cache) Get(ctx context.Context, key string, target interface{}) error {
	if !c.IsEnabled() {
		return fmt.Errorf("cache: not enabled")
	}
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return fmt.Errorf("cache: key not found: %s", key)
	}
	if err != nil {
		return fmt.Errorf("cache: get %s: %w", key, err)
	}
	return json.Unmarshal([]byte(val), target)
}

// Set stores a value in cache with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.IsEnabled() {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal value: %w", err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Delete removes one or more keys from cache.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if !c.IsEnabled() {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}

// Exists checks if a key exists in cache.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	if !c.IsEnabled() {
		return false, nil
	}
	count, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("cache: exists %s: %w", key, err)
	}
	return count > 0, nil
}

// SetNX sets a key only if it doesn't exist.
func (c *Cache) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	if !c.IsEnabled() {
		return false, fmt.Errorf("cache: not enabled")
	}
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("cache: marshal value: %w", err)
	}
	return c.client.SetNX(ctx, key, data, ttl).Result()
}

// Expire sets a TTL on an existing key.
func (c *Cache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if !c.IsEnabled() {
		return nil
	}
	return c.client.Expire(ctx, key, ttl).Err()
}

// Increment atomically increments a counter.
func (c *Cache) Increment(ctx context.Context, key string) (int64, error) {
	if !c.IsEnabled() {
		return 0, fmt.Errorf("cache: not enabled")
	}
	return c.client.Incr(ctx, key).Result()
}

// SetAdd adds a member to a Redis set and refreshes the set's TTL,
// backing the refresh-token allowlist (one set per user, one member per
// live refresh token hash).
func (c *Cache) SetAdd(ctx context.Context, key, member string, ttl time.Duration) error {
	if !c.IsEnabled() {
		return nil
	}
	pipe := c.client.TxPipeline()
	pipe.SAdd(ctx, key, member)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// SetIsMember reports whether member is present in the set at key.
func (c *Cache) SetIsMember(ctx context.Context, key, member string) (bool, error) {
	if !c.IsEnabled() {
		return false, nil
	}
	return c.client.SIsMember(ctx, key, member).Result()
}

// SetRemove removes a member from a set (single-token revocation).
func (c *Cache) SetRemove(ctx context.Context, key, member string) error {
	if !c.IsEnabled() {
		return nil
	}
	return c.client.SRem(ctx, key, member).Err()
}

// GetStats returns pool statistics for the health/observability endpoints.
func (c *Cache) GetStats(ctx context.Context) (map[string]string, error) {
	if !c.IsEnabled() {
		return map[string]string{"enabled": "false"}, nil
	}
	poolStats := c.client.PoolStats()
	return map[string]string{
		"enabled":     "true",
		"hits":        fmt.Sprintf("%d", poolStats.Hits),
		"misses":      fmt.Sprintf("%d", poolStats.Misses),
		"total_conns": fmt.Sprintf("%d", poolStats.TotalConns),
		"idle_conns":  fmt.Sprintf("%d", poolStats.IdleConns),
	}, nil
}
