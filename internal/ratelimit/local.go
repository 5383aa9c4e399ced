package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// staleAfter is how long an idle key keeps its bucket.
const staleAfter = 10 * time.Minute

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter is an in-memory per-key token bucket for single-instance
// deployments.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	config  Config
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// NewLocalLimiter creates a local limiter and starts background cleanup of
// idle buckets. cleanupInterval <= 0 uses 5 minutes.
func NewLocalLimiter(cfg Config, cleanupInterval time.Duration) *LocalLimiter {
	l := newLocalLimiter(cfg, time.Now)
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	go l.cleanupLoop(cleanupInterval)
	return l
}

// NewLocalLimiterWithClock creates a limiter driven by clock, without
// background cleanup. Used in tests.
func NewLocalLimiterWithClock(cfg Config, clock func() time.Time) *LocalLimiter {
	return newLocalLimiter(cfg, clock)
}

func newLocalLimiter(cfg Config, clock func() time.Time) *LocalLimiter {
	return &LocalLimiter{
		buckets: make(map[string]*bucket),
		config:  cfg,
		now:     clock,
		stop:    make(chan struct{}),
	}
}

// Allow takes one token from key's bucket.
func (l *LocalLimiter) Allow(_ context.Context, key string) (Result, error) {
	if !l.config.Enabled() {
		return unlimited, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(l.config.RequestsPerSecond), l.config.Burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)
	result := Result{
		Allowed:   allowed,
		Remaining: int(math.Max(0, tokens)),
		Limit:     l.config.Burst,
	}
	if !allowed {
		if l.config.RequestsPerSecond > 0 {
			result.ResetMs = int64(math.Ceil((1 - tokens) / l.config.RequestsPerSecond * 1000))
		}
		if result.ResetMs <= 0 {
			result.ResetMs = 1000
		}
	}
	return result, nil
}

// Len returns the number of tracked keys.
func (l *LocalLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Cleanup drops buckets idle for more than ten minutes.
func (l *LocalLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-staleAfter)
	for key, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

func (l *LocalLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.Cleanup()
		}
	}
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (l *LocalLimiter) Close() error {
	l.once.Do(func() { close(l.stop) })
	return nil
}
