package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Open creates a Redis client for addr and pings it.
func Open(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping: %w", err)
	}

	return client, nil
}

// Lock is a best-effort SETNX lock used to keep scheduled sweeps single-flight across workers.
type Lock struct {
	client *redis.Client
}

// NewLock wraps a Redis client.
func NewLock(client *redis.Client) *Lock {
	return &Lock{client: client}
}

// Acquire reports whether key was claimed for ttl. A nil Lock always acquires.
func (l *Lock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if l == nil || l.client == nil {
		return true, nil
	}
	ok, err := l.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("platform/cache: acquire %s: %w", key, err)
	}
	return ok, nil
}

// Release drops key.
func (l *Lock) Release(ctx context.Context, key string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if err := l.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("platform/cache: release %s: %w", key, err)
	}
	return nil
}
