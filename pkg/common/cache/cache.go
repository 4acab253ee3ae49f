// Package cache stores JSON documents in Redis with a fixed TTL, next to
// plain counters used to version them.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key is absent.
var ErrMiss = errors.New("cache miss")

type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) key(name string) string {
	if c.prefix == "" {
		return name
	}
	return fmt.Sprintf("%s:%s", c.prefix, name)
}

func (c *RedisCache) Get(ctx context.Context, name string, dest interface{}) error {
	data, err := c.client.Get(ctx, c.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("decoding cached %s: %w", name, err)
	}
	return nil
}

func (c *RedisCache) Set(ctx context.Context, name string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s for cache: %w", name, err)
	}
	return c.client.Set(ctx, c.key(name), data, c.ttl).Err()
}

// Version reads the counter stored under name. An absent counter is 0.
func (c *RedisCache) Version(ctx context.Context, name string) (int64, error) {
	v, err := c.client.Get(ctx, c.key(name)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// Bump increments the counter stored under name. Counters never expire.
func (c *RedisCache) Bump(ctx context.Context, name string) (int64, error) {
	return c.client.Incr(ctx, c.key(name)).Result()
}
