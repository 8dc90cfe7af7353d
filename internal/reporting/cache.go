package reporting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "shopledger:reports:version"

// Cache stores report results in Redis under a global version so a single
// Bump invalidates every cached report.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// Bump invalidates every cached report.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

func (c *Cache) buildKey(ctx context.Context, parts ...string) (string, error) {
	joined := "shopledger:reports:" + strings.Join(parts, ":")
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d", joined, ver), nil
}

// fetch loads a cached report or computes and stores it. Redis failures fall
// back to the loader.
func fetch[T any](ctx context.Context, c *Cache, load func(context.Context) (T, error), parts ...string) (T, error) {
	if c == nil || c.client == nil {
		return load(ctx)
	}
	key, err := c.buildKey(ctx, parts...)
	if err != nil {
		return load(ctx)
	}
	var cached T
	if payload, err := c.client.Get(ctx, key).Bytes(); err == nil && json.Unmarshal(payload, &cached) == nil {
		return cached, nil
	}
	value, err := load(ctx)
	if err != nil {
		return value, err
	}
	if raw, err := json.Marshal(value); err == nil {
		_ = c.client.Set(ctx, key, raw, c.ttl).Err()
	}
	return value, nil
}
