package utils

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is an injected counter capability. Single-instance deployments
// use the in-memory implementation, multi-instance ones the Redis-backed one.
type RateLimiter interface {
	Allow(ctx context.Context, key string) bool
}

// evictEvery bounds how many Allow calls pass between full sweeps of stale keys.
const evictEvery = 1024

type MemoryRateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time
	calls  int
}

func NewMemoryRateLimiter(limit int, window time.Duration) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		limit:  limit,
		window: window,
		hits:   map[string][]time.Time{},
	}
}

func (l *MemoryRateLimiter) Allow(_ context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)

	l.calls++
	if l.calls >= evictEvery {
		l.calls = 0
		l.evictStale(cutoff)
	}

	kept := l.hits[key][:0]
	for _, t := range l.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(l.hits, key)
	} else {
		l.hits[key] = kept
	}

	if len(kept) >= l.limit {
		return false
	}
	l.hits[key] = append(kept, now)
	return true
}

// evictStale drops keys whose every hit left the window, so one-off clients do
// not pin map entries forever. Caller holds the mutex.
func (l *MemoryRateLimiter) evictStale(cutoff time.Time) {
	for key, hits := range l.hits {
		live := false
		for _, t := range hits {
			if t.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(l.hits, key)
		}
	}
}

type RedisRateLimiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
}

func NewRedisRateLimiter(rdb *redis.Client, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{rdb: rdb, limit: limit, window: window}
}

// Allow counts requests per fixed window; Redis being unreachable fails open.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) bool {
	redisKey := fmt.Sprintf("ratelimit:%s", key)
	count, err := l.rdb.Incr(ctx, redisKey).Result()
	if err != nil {
		log.Printf("[RATELIMIT] redis unavailable, allowing request: %v", err)
		return true
	}
	if count == 1 {
		_ = l.rdb.Expire(ctx, redisKey, l.window).Err()
	}
	return count <= int64(l.limit)
}

func RateLimitMiddleware(limiter RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.Request.Context(), c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}
