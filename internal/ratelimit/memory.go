package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter keeps one token bucket per key in process memory.
// Used when no Redis is configured.
type MemoryLimiter struct {
	mu          sync.Mutex
	entries     map[string]*limiterEntry
	limit       rate.Limit
	maxRequests int
	idleTTL     time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
}

// NewMemoryLimiter refills maxRequests tokens per window with a burst of maxRequests
func NewMemoryLimiter(maxRequests int, window time.Duration) *MemoryLimiter {
	rl := &MemoryLimiter{
		entries:     make(map[string]*limiterEntry),
		limit:       rate.Limit(float64(maxRequests) / window.Seconds()),
		maxRequests: maxRequests,
		idleTTL:     3 * window,
		stop:        make(chan struct{}),
	}
	go rl.cleanup(window)
	return rl
}

func (rl *MemoryLimiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.evictIdle(time.Now())
		}
	}
}

func (rl *MemoryLimiter) evictIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, entry := range rl.entries {
		if now.Sub(entry.lastSeen) > rl.idleTTL {
			delete(rl.entries, key)
		}
	}
}

func (rl *MemoryLimiter) limiterFor(key string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.maxRequests)}
		rl.entries[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// Allow consumes one token for key
func (rl *MemoryLimiter) Allow(_ context.Context, key string) (bool, int, time.Time, error) {
	now := time.Now()
	l := rl.limiterFor(key, now)

	allowed := l.AllowN(now, 1)
	tokens := l.TokensAt(now)
	remaining := int(math.Max(0, math.Floor(tokens)))

	// Time until the bucket is full again
	missing := float64(rl.maxRequests) - tokens
	reset := now
	if missing > 0 && rl.limit > 0 {
		reset = now.Add(time.Duration(missing / float64(rl.limit) * float64(time.Second)))
	}
	return allowed, remaining, reset, nil
}

// MaxRequests returns the bucket size
func (rl *MemoryLimiter) MaxRequests() int {
	return rl.maxRequests
}

// Close stops the background cleanup
func (rl *MemoryLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}
