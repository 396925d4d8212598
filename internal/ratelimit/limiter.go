// Package ratelimit throttles inbound requests with per-key token
// buckets. Exhaustion is a recoverable condition: callers answer with
// a retry hint instead of closing the connection.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter holds one token bucket per key (conn_id or remote IP).
// Buckets are created lazily and evicted after sitting idle.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    rate.Limit
	burst   int
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// New returns a Limiter allowing r events per second with the given
// burst capacity per key.
func New(r float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate.Limit(r),
		burst:   burst,
	}
}

// Allow reports whether one request for key may proceed now. When the
// bucket is exhausted it returns false and a suggested wait before
// retrying.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = time.Now()
	l.mu.Unlock()

	res := b.lim.Reserve()
	delay := res.Delay()
	if delay > 0 {
		res.Cancel()
		return false, delay
	}
	return true, 0
}

// Forget drops the bucket for key, releasing its state. Called when a
// connection closes.
func (l *Limiter) Forget(key string) {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
}

// PruneIdle evicts buckets not seen within maxIdle and returns how
// many were removed.
func (l *Limiter) PruneIdle(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for key, b := range l.buckets {
		if time.Since(b.lastSeen) > maxIdle {
			delete(l.buckets, key)
			n++
		}
	}
	return n
}
