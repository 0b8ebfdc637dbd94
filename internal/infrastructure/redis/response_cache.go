package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/charge-gateway/internal/application/charge"
	"github.com/redis/go-redis/v9"
)

// ResponseCache is a read-through accelerator for completed idempotent
// responses. Postgres remains the source of truth; a miss here always falls
// back to the idempotency store, so the TTL has no correctness role.
type ResponseCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResponseCache creates a new ResponseCache.
func NewResponseCache(client *redis.Client, ttl time.Duration) *ResponseCache {
	return &ResponseCache{client: client, ttl: ttl}
}

func cacheKey(scope, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", scope, key)
}

// Get returns the cached response for (scope, key), or nil on a miss.
func (c *ResponseCache) Get(ctx context.Context, scope, key string) (*charge.CachedResponse, error) {
	raw, err := c.client.Get(ctx, cacheKey(scope, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached response: %w", err)
	}

	var resp charge.CachedResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal cached response: %w", err)
	}
	return &resp, nil
}

// Put stores the response for (scope, key) with the configured TTL.
func (c *ResponseCache) Put(ctx context.Context, scope, key string, resp charge.CachedResponse) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal cached response: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(scope, key), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached response: %w", err)
	}
	return nil
}
