// Package ratelimit throttles request bursts per user.
//
// Quotas cap how many recommendations a user gets per day; the limiter here
// caps how fast they arrive. LocalLimiter is an in-memory token bucket per key
// for single-instance deployments. RedisLimiter coordinates the same limits
// across replicas with a sliding window counter. Both satisfy Limiter, and
// PerTier picks the limiter matching the caller's subscription tier.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/verdance/verdance/platform/internal/domain"
)

// Result holds the outcome of a rate limit check.
type Result struct {
	Allowed   bool  // Whether the request is allowed.
	Remaining int   // Approximate requests remaining before the limit is hit.
	ResetMs   int64 // Milliseconds until a request would be allowed again (0 if allowed).
	Limit     int   // Maximum burst size / window capacity.
}

// Limiter abstracts rate limiting behind a simple interface.
type Limiter interface {
	// Allow checks whether a request identified by key (the user's quota key)
	// should be permitted.
	Allow(ctx context.Context, key string) (Result, error)

	// Close releases background resources.
	Close() error
}

// Config holds rate limiter configuration shared across implementations.
// A non-positive Burst disables limiting.
type Config struct {
	RequestsPerSecond float64       `yaml:"requests_per_second"` // Token refill rate.
	Burst             int           `yaml:"burst"`               // Maximum burst size (bucket capacity).
	Window            time.Duration `yaml:"window"`              // Sliding window size (Redis implementation).
}

// Enabled reports whether the config imposes any limit.
func (c Config) Enabled() bool {
	return c.Burst > 0
}

// WindowLimit is the number of requests a sliding window admits.
func (c Config) WindowLimit() int {
	window := c.Window
	if window <= 0 {
		window = time.Minute
	}
	n := int(c.RequestsPerSecond * window.Seconds())
	if n < c.Burst {
		n = c.Burst
	}
	return n
}

// DefaultConfig returns the default per-user limit (2 req/s, burst 10).
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond: 2,
		Burst:             10,
		Window:            time.Minute,
	}
}

// DefaultTierConfigs returns per-tier defaults. Premium callers are not throttled.
func DefaultTierConfigs() map[domain.SubscriptionTier]Config {
	return map[domain.SubscriptionTier]Config{
		domain.TierFree:       DefaultConfig(),
		domain.TierSubscriber: {RequestsPerSecond: 5, Burst: 20, Window: time.Minute},
		domain.TierPremium:    {},
	}
}

// unlimited is returned for disabled limits.
var unlimited = Result{Allowed: true, Remaining: -1, Limit: -1}

// PerTier routes checks to one limiter per subscription tier. Tiers without a
// limiter are not throttled.
type PerTier struct {
	limiters map[domain.SubscriptionTier]Limiter
}

// NewPerTier builds a limiter for each enabled tier config using build.
func NewPerTier(configs map[domain.SubscriptionTier]Config, build func(domain.SubscriptionTier, Config) Limiter) *PerTier {
	p := &PerTier{limiters: make(map[domain.SubscriptionTier]Limiter, len(configs))}
	for tier, cfg := range configs {
		if !cfg.Enabled() {
			continue
		}
		p.limiters[tier] = build(tier, cfg)
	}
	return p
}

// Allow checks key against the tier's limiter.
func (p *PerTier) Allow(ctx context.Context, tier domain.SubscriptionTier, key string) (Result, error) {
	if p == nil {
		return unlimited, nil
	}
	l, ok := p.limiters[tier]
	if !ok {
		return unlimited, nil
	}
	return l.Allow(ctx, key)
}

// Close closes every tier limiter.
func (p *PerTier) Close() error {
	if p == nil {
		return nil
	}
	var errs []error
	for _, l := range p.limiters {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
