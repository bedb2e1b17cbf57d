// Implements a thread-safe token bucket rate limiter keyed by client IP.

// Package ratelimit implements per-client token bucket rate limiting for
// HTTP handlers.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Result contains the outcome of a rate limit check.
type Result struct {
	Allowed    bool
	Limit      int           // requests per minute
	Remaining  int           // requests left in the current window
	ResetAt    time.Time     // when the bucket will be full again
	RetryAfter time.Duration // how long to wait before retrying (0 if allowed)
}

// Limiter manages one token bucket per key. A nil *Limiter allows every
// request, so callers with rate limiting disabled need no special casing.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    rate.Limit
	burst   int
	perMin  int
	stop    chan struct{}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewPerMinute creates a limiter allowing requestsPerMin tokens per minute
// per key, with burst capacity of a sixth of a minute's worth. Returns nil
// when requestsPerMin is zero, which means unlimited.
func NewPerMinute(requestsPerMin int) *Limiter {
	if requestsPerMin <= 0 {
		return nil
	}

	l := &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate.Limit(float64(requestsPerMin) / 60),
		burst:   max(requestsPerMin/6, 1),
		perMin:  requestsPerMin,
		stop:    make(chan struct{}),
	}

	go l.cleanupLoop()

	return l
}

// Allow checks whether a request with the given key is allowed.
func (l *Limiter) Allow(key string) Result {
	if l == nil {
		return Result{Allowed: true}
	}

	l.mu.Lock()
	b, exists := l.buckets[key]
	if !exists {
		b = &bucket{
			limiter: rate.NewLimiter(l.rate, l.burst),
		}
		l.buckets[key] = b
	}
	b.lastSeen = time.Now()
	l.mu.Unlock()

	now := time.Now()
	reservation := b.limiter.ReserveN(now, 1)

	allowed := reservation.OK() && reservation.Delay() == 0
	if !allowed && reservation.OK() {
		reservation.Cancel()
	}

	tokens := b.limiter.Tokens()
	remaining := max(int(tokens), 0)

	// Reset time is when the bucket refills completely.
	tokensNeeded := float64(l.burst) - tokens
	refillTime := time.Duration(tokensNeeded/float64(l.rate)) * time.Second
	resetAt := now.Add(refillTime)

	var retryAfter time.Duration
	if !allowed {
		retryAfter = max(time.Duration(1/float64(l.rate))*time.Second, time.Second)
	}

	return Result{
		Allowed:    allowed,
		Limit:      l.perMin,
		Remaining:  remaining,
		ResetAt:    resetAt,
		RetryAfter: retryAfter,
	}
}

// WriteHeaders sets the standard rate limit response headers from a check
// result, including Retry-After when the request was denied.
func WriteHeaders(w http.ResponseWriter, res Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
	if !res.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds())))
	}
}

// cleanupLoop removes stale buckets every 10 minutes.
func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stop:
			return
		}
	}
}

// cleanup removes buckets that are full and haven't been used recently.
func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	staleThreshold := time.Now().Add(-10 * time.Minute)
	for key, b := range l.buckets {
		if b.lastSeen.Before(staleThreshold) && b.limiter.Tokens() >= float64(l.burst) {
			delete(l.buckets, key)
		}
	}
}

// Close stops the cleanup goroutine. Safe to call on a nil Limiter.
func (l *Limiter) Close() {
	if l == nil {
		return
	}
	close(l.stop)
}
