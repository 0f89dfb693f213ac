// Package cache provides the Redis-backed TTL read cache for opportunity
// listings. Invalidation bumps a namespace version instead of scanning for
// keys, so concurrent builds never race a partial delete.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const versionKey = "pulse:opportunities:version"

// Cache wraps a Redis client with JSON serialization and versioned keys.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a cache with the given TTL for list entries.
func New(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

// NewFromURL connects to Redis and returns a cache, verifying the
// connection with a short ping.
func NewFromURL(redisURL string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return New(client, ttl), nil
}

// Client exposes the underlying Redis client for components that share the
// connection (rate limiter, distributed locks).
func (c *Cache) Client() *redis.Client { return c.client }

// ListKey builds a deterministic cache key from opportunity filter
// parameters, scoped to the current invalidation version.
func (c *Cache) ListKey(ctx context.Context, filters map[string]string) (string, error) {
	ver, err := c.client.Get(ctx, versionKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("read cache version: %w", err)
	}

	keys := make([]string, 0, len(filters))
	for k, v := range filters {
		if v != "" {
			keys = append(keys, k+"="+v)
		}
	}
	sort.Strings(keys)
	return fmt.Sprintf("pulse:opportunities:v%d:%s", ver, strings.Join(keys, "&")), nil
}

// Get loads a cached JSON value into dest. The boolean reports a hit.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		// A corrupt entry behaves like a miss; the caller refills it.
		return false, nil
	}
	return true, nil
}

// Set stores val as JSON under key for the cache TTL.
func (c *Cache) Set(ctx context.Context, key string, val interface{}) error {
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// InvalidateOpportunities drops every cached opportunity listing by
// bumping the namespace version. Old entries age out via TTL.
func (c *Cache) InvalidateOpportunities(ctx context.Context) error {
	if err := c.client.Incr(ctx, versionKey).Err(); err != nil {
		return fmt.Errorf("bump cache version: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (c *Cache) Close() error { return c.client.Close() }
