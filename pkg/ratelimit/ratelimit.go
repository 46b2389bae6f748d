package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket implements the token bucket algorithm for rate limiting
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64   // Maximum number of tokens
	tokens     float64   // Current number of tokens
	refillRate float64   // Tokens added per second
	lastRefill time.Time // Last refill timestamp
	lastUsed   time.Time
}

// NewTokenBucket creates a new token bucket
func NewTokenBucket(capacity int64, refillRate float64) *TokenBucket {
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: refillRate,
		lastRefill: time.Now(),
		lastUsed:   time.Now(),
	}
}

// Allow checks if a request is allowed and consumes a token if so
func (tb *TokenBucket) Allow() bool {
	return tb.AllowN(1)
}

// AllowN checks if n requests are allowed and consumes n tokens if so
func (tb *TokenBucket) AllowN(n int64) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	tb.refill(now)
	tb.lastUsed = now

	if tb.tokens >= float64(n) {
		tb.tokens -= float64(n)
		return true
	}

	return false
}

// refill 경과 시간만큼 토큰 보충 (소수점 단위로 누적)
func (tb *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}

	tb.tokens += elapsed * tb.refillRate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now
}

func (tb *TokenBucket) idle(now time.Time, after time.Duration) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(now)
	return tb.tokens >= tb.capacity && now.Sub(tb.lastUsed) > after
}

// RateLimiter manages rate limits for multiple keys (connection IDs, IP addresses)
type RateLimiter struct {
	mu              sync.RWMutex
	buckets         map[string]*TokenBucket
	capacity        int64
	refillRate      float64
	cleanupInterval time.Duration
	lastCleanup     time.Time
	stop            chan struct{}
	stopOnce        sync.Once
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(capacity int64, refillRate float64) *RateLimiter {
	return newRateLimiter(capacity, refillRate, 10*time.Minute)
}

// newRateLimiter cleanupInterval 은 정리 고루틴 시작 전에 고정된다
func newRateLimiter(capacity int64, refillRate float64, cleanupInterval time.Duration) *RateLimiter {
	rl := &RateLimiter{
		buckets:         make(map[string]*TokenBucket),
		capacity:        capacity,
		refillRate:      refillRate,
		cleanupInterval: cleanupInterval,
		lastCleanup:     time.Now(),
		stop:            make(chan struct{}),
	}

	// Start background cleanup
	go rl.cleanupLoop()

	return rl
}

// Allow checks if a request from the given key is allowed
func (rl *RateLimiter) Allow(key string) bool {
	return rl.AllowN(key, 1)
}

// AllowN checks if n requests from the given key are allowed
func (rl *RateLimiter) AllowN(key string, n int64) bool {
	bucket := rl.getBucket(key)
	return bucket.AllowN(n)
}

// getBucket gets or creates a token bucket for the given key
func (rl *RateLimiter) getBucket(key string) *TokenBucket {
	rl.mu.RLock()
	bucket, exists := rl.buckets[key]
	rl.mu.RUnlock()

	if exists {
		return bucket
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check after acquiring write lock
	bucket, exists = rl.buckets[key]
	if exists {
		return bucket
	}

	bucket = NewTokenBucket(rl.capacity, rl.refillRate)
	rl.buckets[key] = bucket
	return bucket
}

// cleanupLoop periodically removes inactive buckets to prevent memory leaks
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stop:
			return
		}
	}
}

// cleanup removes buckets that are full and have not been used for a while
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, bucket := range rl.buckets {
		if bucket.idle(now, rl.cleanupInterval) {
			delete(rl.buckets, key)
		}
	}

	rl.lastCleanup = now
}

// Reset resets the rate limit for a given key
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, key)
}

// Close 백그라운드 정리 고루틴 종료
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() {
		close(rl.stop)
	})
}

// GetStats returns statistics about the rate limiter
func (rl *RateLimiter) GetStats() map[string]interface{} {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	return map[string]interface{}{
		"active_buckets": len(rl.buckets),
		"capacity":       rl.capacity,
		"refill_rate":    rl.refillRate,
		"last_cleanup":   rl.lastCleanup,
	}
}
