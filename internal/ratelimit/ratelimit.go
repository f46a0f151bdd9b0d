// Package ratelimit enforces the per-source-address query budget described
// in SPEC_FULL.md §5 for search-class endpoints. A Redis-backed fixed-window
// counter is used when REDIS_URL is configured so the limit holds across
// replicas; otherwise an in-process counter keeps the service usable
// standalone.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Limiter reports whether a request from key may proceed under the
// configured per-minute budget.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// New builds a Limiter. When redisURL is empty, an in-process limiter is
// returned; otherwise requests are counted in Redis so the limit is shared
// across every instance of the service.
func New(redisURL string, perMinute int) (Limiter, error) {
	if perMinute <= 0 {
		return noopLimiter{}, nil
	}
	if redisURL == "" {
		return newMemoryLimiter(perMinute), nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &redisLimiter{client: client, perMinute: perMinute}, nil
}

type noopLimiter struct{}

func (noopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

// redisLimiter implements a fixed one-minute window counter keyed by source
// address: INCR the window's key, setting a minute TTL on the first hit.
type redisLimiter struct {
	client    *redis.Client
	perMinute int
}

func (l *redisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	windowKey := fmt.Sprintf("ratelimit:%s:%d", key, time.Now().Unix()/60)
	n, err := l.client.Incr(ctx, windowKey).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit incr: %w", err)
	}
	if n == 1 {
		l.client.Expire(ctx, windowKey, time.Minute)
	}
	return n <= int64(l.perMinute), nil
}

// Close releases the underlying Redis client.
func (l *redisLimiter) Close() error { return l.client.Close() }

// memoryLimiter is a fixed one-minute window counter held in process memory.
type memoryLimiter struct {
	perMinute int

	mu     sync.Mutex
	window int64
	counts map[string]int
}

func newMemoryLimiter(perMinute int) *memoryLimiter {
	return &memoryLimiter{perMinute: perMinute, counts: make(map[string]int)}
}

func (l *memoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := time.Now().Unix() / 60
	if w != l.window {
		l.window = w
		l.counts = make(map[string]int)
	}
	l.counts[key]++
	return l.counts[key] <= l.perMinute, nil
}
