// Package ratelimit keeps one token bucket per key.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter hands out tokens per key. Each key gets its own bucket filled at
// the configured rate, up to burst tokens.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

// New returns a limiter refilling perSecond tokens per second with the
// given burst. perSecond <= 0 disables limiting.
func New(perSecond float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		buckets: make(map[string]*rate.Limiter),
		limit:   rate.Limit(perSecond),
		burst:   burst,
	}
}

// Unlimited reports whether the limiter lets everything through.
func (l *Limiter) Unlimited() bool {
	return l == nil || l.limit <= 0
}

// Allow takes a token for key if one is available.
func (l *Limiter) Allow(key string) bool {
	if l.Unlimited() {
		return true
	}
	return l.bucket(key).Allow()
}

// Wait blocks until key has a token or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if l.Unlimited() {
		return nil
	}
	return l.bucket(key).Wait(ctx)
}

// Reset forgets the bucket for key, so it starts full again.
func (l *Limiter) Reset(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

func (l *Limiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[key] = b
	}
	return b
}
