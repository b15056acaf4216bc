// Package ratelimit throttles POST /convert per client address.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter is satisfied by both the Redis and the in-memory implementation
type Limiter interface {
	// Allow reports whether key may proceed, how many requests remain in the
	// current window and when the window resets.
	Allow(ctx context.Context, key string) (bool, int, time.Time, error)
	MaxRequests() int
}

// allowScript is a fixed-window counter: the first request in a window sets
// the key with an expiry, later ones increment it until max_requests.
var allowScript = redis.NewScript(`
	local key = KEYS[1]
	local max_requests = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local current_time = tonumber(ARGV[3])

	local current = redis.call('GET', key)
	if current == false then
		redis.call('SET', key, 1, 'EX', window)
		return {1, max_requests - 1, current_time + window}
	end

	current = tonumber(current)
	local ttl = redis.call('TTL', key)
	if current < max_requests then
		redis.call('INCR', key)
		return {1, max_requests - current - 1, current_time + ttl}
	end
	return {0, 0, current_time + ttl}
`)

// RedisLimiter shares its counters across every server using the same Redis
type RedisLimiter struct {
	client      *redis.Client
	maxRequests int
	window      time.Duration
}

// NewRedisLimiter allows maxRequests per window for each key
func NewRedisLimiter(client *redis.Client, maxRequests int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client:      client,
		maxRequests: maxRequests,
		window:      window,
	}
}

func redisKey(key string) string {
	return fmt.Sprintf("ratelimit:convert:%s", key)
}

// Allow checks if a request should be allowed
func (rl *RedisLimiter) Allow(ctx context.Context, key string) (bool, int, time.Time, error) {
	now := time.Now()
	result, err := allowScript.Run(
		ctx,
		rl.client,
		[]string{redisKey(key)},
		rl.maxRequests,
		int(rl.window.Seconds()),
		now.Unix(),
	).Int64Slice()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(result) != 3 {
		return false, 0, time.Time{}, fmt.Errorf("unexpected rate limit result: %v", result)
	}

	return result[0] == 1, int(result[1]), time.Unix(result[2], 0), nil
}

// Reset clears the counter for a key
func (rl *RedisLimiter) Reset(ctx context.Context, key string) error {
	return rl.client.Del(ctx, redisKey(key)).Err()
}

// MaxRequests returns the maximum number of requests allowed per window
func (rl *RedisLimiter) MaxRequests() int {
	return rl.maxRequests
}
