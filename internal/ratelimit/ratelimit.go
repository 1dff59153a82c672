// Package ratelimit implements the per-principal token bucket rate
// limiter (spec §4.4). Buckets are stateless across restarts and live
// entirely in memory, keyed by the principal's token.
package ratelimit

import (
	"sync"
	"time"

	"github.com/zxkws/mcp-router/internal/apierr"
)

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillPerMs float64
	updatedAt  time.Time
}

// Store is the RWMutex-protected map of per-token buckets, grounded on
// the teacher's ratelimit.Store shape (lazy creation, updated on access).
type Store struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{buckets: make(map[string]*bucket), now: time.Now}
}

// Consume deducts one token from the bucket for key, lazily creating it
// with the given requests-per-minute capacity. rpm <= 0 means exempt:
// the call always succeeds and no bucket is created (P7).
func (s *Store) Consume(key string, rpm int) error {
	if rpm <= 0 {
		return nil
	}

	b := s.bucketFor(key, rpm)
	b.mu.Lock()
	defer b.mu.Unlock()

	now := s.now()
	elapsed := now.Sub(b.updatedAt)
	if elapsed > 0 {
		b.tokens += float64(elapsed.Milliseconds()) * b.refillPerMs
		if b.tokens > b.capacity {
			b.tokens = b.capacity
		}
		b.updatedAt = now
	}

	if b.tokens < 1 {
		deficit := 1 - b.tokens
		var retryAfter int
		if b.refillPerMs > 0 {
			retryAfter = int((deficit/b.refillPerMs)/1000) + 1
		} else {
			retryAfter = 60
		}
		return apierr.RateLimitedf(retryAfter)
	}

	b.tokens--
	return nil
}

func (s *Store) bucketFor(key string, rpm int) *bucket {
	s.mu.RLock()
	b, ok := s.buckets[key]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.buckets[key]; ok {
		return b
	}
	b = &bucket{
		tokens:      float64(rpm),
		capacity:    float64(rpm),
		refillPerMs: float64(rpm) / 60000.0,
		updatedAt:   s.now(),
	}
	s.buckets[key] = b
	return b
}
