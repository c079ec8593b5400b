package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"lawn-route-service/internal/ports"
)

// RedisRouteCache stores optimization results keyed by depot+points so repeat
// planning of the same stop set skips the external directions call.
type RedisRouteCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRouteCache wraps an existing client. ttl <= 0 means entries never
// expire; route geography changes rarely, so a day is a reasonable default.
func NewRedisRouteCache(client *redis.Client, ttl time.Duration) *RedisRouteCache {
	return &RedisRouteCache{client: client, ttl: ttl}
}

func (c *RedisRouteCache) Get(ctx context.Context, key string) (ports.CachedPlan, bool, error) {
	if c.client == nil {
		return ports.CachedPlan{}, false, errors.New("route cache: client is nil")
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ports.CachedPlan{}, false, nil
	}
	if err != nil {
		return ports.CachedPlan{}, false, fmt.Errorf("route cache get: %w", err)
	}

	var plan ports.CachedPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return ports.CachedPlan{}, false, fmt.Errorf("route cache decode: %w", err)
	}
	return plan, true, nil
}

func (c *RedisRouteCache) Put(ctx context.Context, key string, plan ports.CachedPlan) error {
	if c.client == nil {
		return errors.New("route cache: client is nil")
	}

	raw, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("route cache encode: %w", err)
	}

	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("route cache set: %w", err)
	}
	return nil
}
