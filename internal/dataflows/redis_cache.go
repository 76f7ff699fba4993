package dataflows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares cached provider responses between runs and hosts.
type RedisCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisCache(addr string, ttl time.Duration) *RedisCache {
	return &RedisCache{
		rdb:    redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
		prefix: "schwabai:md:",
	}
}

// Ping checks connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (c *RedisCache) Get(ctx context.Context, source, method string, params any, result any) bool {
	data, err := c.rdb.Get(ctx, c.prefix+cacheKey(source, method, params)).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, result) == nil
}

func (c *RedisCache) Set(ctx context.Context, source, method string, params any, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.prefix+cacheKey(source, method, params), payload, c.ttl).Err()
}

// Delete removes one cached entry. A missing key is not an error.
func (c *RedisCache) Delete(ctx context.Context, source, method string, params any) error {
	err := c.rdb.Del(ctx, c.prefix+cacheKey(source, method, params)).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
