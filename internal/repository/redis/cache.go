package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"link-tracker/internal/domain"
	"link-tracker/internal/metrics"

	"github.com/redis/go-redis/v9"
)

// Cache keeps redirect metadata in Redis (cache-aside).
// Only the immutable part of a record is cached; hits are always read from the store.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache creates a new Redis cache
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{
		client: client,
		ttl:    ttl,
	}
}

func cacheKey(slug string) string {
	return fmt.Sprintf("redirect:%s", slug)
}

// Get returns the cached redirect, or (nil, nil) on a miss
func (c *Cache) Get(ctx context.Context, slug string) (*domain.Redirect, error) {
	start := time.Now()
	defer func() {
		metrics.CacheOperationDuration.WithLabelValues("get").Observe(time.Since(start).Seconds())
	}()

	data, err := c.client.Get(ctx, cacheKey(slug)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.RecordCacheMiss()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	metrics.RecordCacheHit()

	var r domain.Redirect
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached redirect: %w", err)
	}
	// The slug is not part of the JSON form
	r.Slug = slug
	return &r, nil
}

// Set stores the redirect without its hits
func (c *Cache) Set(ctx context.Context, r *domain.Redirect) error {
	start := time.Now()
	defer func() {
		metrics.CacheOperationDuration.WithLabelValues("set").Observe(time.Since(start).Seconds())
	}()

	data, err := json.Marshal(r.WithoutHits())
	if err != nil {
		return fmt.Errorf("failed to marshal redirect: %w", err)
	}

	if err := c.client.Set(ctx, cacheKey(r.Slug), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// InitRedis creates a Redis client from a redis:// URL and checks the connection
func InitRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}

	opts.PoolSize = 10
	opts.MinIdleConns = 2
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}
