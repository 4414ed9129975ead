// Package cache is a read-through cache for balances backed by Redis.
// A nil *Cache is valid and caches nothing.
package cache

import (
	"context"       // Context for Redis operations
	"encoding/json" // JSON encoding/decoding
	"errors"        // Error matching
	"time"          // Time durations

	"github.com/redis/go-redis/v9" // Redis client
)

// Cache wraps a Redis client with a fixed entry lifetime
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New returns a Cache over rdb. A nil client yields a nil Cache.
func New(rdb *redis.Client, ttl time.Duration) *Cache {
	if rdb == nil {
		return nil
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

// BalanceKey is the cache key holding a user's balance
func BalanceKey(user string) string {
	return "balance:user:" + user
}

// Get retrieves a value and unmarshals it into dest
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if c == nil {
		return false, nil
	}
	val, err := c.rdb.Get(ctx, key).Result() // Get value from Redis
	if errors.Is(err, redis.Nil) {
		return false, nil // Key does not exist
	} else if err != nil {
		return false, err // Other Redis error
	}
	return true, json.Unmarshal([]byte(val), dest) // Unmarshal JSON into dest
}

// Set stores value under key for the cache lifetime
func (c *Cache) Set(ctx context.Context, key string, value any) error {
	if c == nil {
		return nil
	}
	b, err := json.Marshal(value) // Marshal value to JSON
	if err != nil {
		return err // Return error if marshaling fails
	}
	return c.rdb.Set(ctx, key, b, c.ttl).Err() // Set value in Redis with TTL
}

// Delete removes keys
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if c == nil || len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err() // Delete keys from Redis
}

// InvalidateBalances drops the cached balances of users
func (c *Cache) InvalidateBalances(ctx context.Context, users ...string) error {
	keys := make([]string, 0, len(users))
	for _, u := range users {
		keys = append(keys, BalanceKey(u))
	}
	return c.Delete(ctx, keys...)
}

// Ping checks the connection
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

// Close releases the client
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}
