package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"smartcampus/internal/pkg/interval"

	"github.com/redis/go-redis/v9"
)

var ErrMiss = errors.New("cache miss")

// AvailabilityCache stores rendered availability answers per resource and interval.
// Every write to a resource bumps its generation, so older entries are never read again
// and expire after ttl.
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(addr, password string, db int, ttl time.Duration) *AvailabilityCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &AvailabilityCache{client: client, ttl: ttl}
}

func (c *AvailabilityCache) Ping(ctx context.Context) error {
	const op = "cache.AvailabilityCache.Ping"

	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func generationKey(resourceID int64) string {
	return fmt.Sprintf("availability:gen:%d", resourceID)
}

func entryKey(resourceID, gen int64, iv interval.Interval) string {
	return fmt.Sprintf("availability:%d:%d:%d:%d", resourceID, gen, iv.Start.Unix(), iv.End.Unix())
}

func (c *AvailabilityCache) generation(ctx context.Context, resourceID int64) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(resourceID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Get decodes a cached value into dst or returns ErrMiss.
func (c *AvailabilityCache) Get(ctx context.Context, resourceID int64, iv interval.Interval, dst any) error {
	const op = "cache.AvailabilityCache.Get"

	gen, err := c.generation(ctx, resourceID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	data, err := c.client.Get(ctx, entryKey(resourceID, gen, iv)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c *AvailabilityCache) Set(ctx context.Context, resourceID int64, iv interval.Interval, v any) error {
	const op = "cache.AvailabilityCache.Set"

	gen, err := c.generation(ctx, resourceID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := c.client.Set(ctx, entryKey(resourceID, gen, iv), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Invalidate retires every cached entry of the resource.
func (c *AvailabilityCache) Invalidate(ctx context.Context, resourceID int64) error {
	const op = "cache.AvailabilityCache.Invalidate"

	if err := c.client.Incr(ctx, generationKey(resourceID)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (c *AvailabilityCache) Close() error {
	const op = "cache.AvailabilityCache.Close"

	if err := c.client.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
