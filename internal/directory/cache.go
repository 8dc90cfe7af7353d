package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores directory lookups in Redis as JSON.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func supplierKey(id int64) string { return fmt.Sprintf("shopledger:directory:supplier:%d", id) }
func productKey(id int64) string  { return fmt.Sprintf("shopledger:directory:product:%d", id) }

// get reports a hit with ok=true; Redis failures degrade to a miss.
func (c *Cache) get(ctx context.Context, key string, dest any) bool {
	if c == nil || c.client == nil {
		return false
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(payload, dest) == nil
}

func (c *Cache) set(ctx context.Context, key string, value any) error {
	if c == nil || c.client == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Invalidate drops cached entries for a supplier and/or product id.
func (c *Cache) Invalidate(ctx context.Context, supplierID, productID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	var keys []string
	if supplierID > 0 {
		keys = append(keys, supplierKey(supplierID))
	}
	if productID > 0 {
		keys = append(keys, productKey(productID))
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}
