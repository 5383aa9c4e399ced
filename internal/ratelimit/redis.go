package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis-specific configuration for the distributed limiter.
type RedisConfig struct {
	KeyPrefix string        // Key prefix for rate limit entries (default "verdance:rl:")
	Timeout   time.Duration // Per-check timeout (default 100ms)
}

// DefaultRedisConfig returns sensible defaults for Redis rate limiting.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		KeyPrefix: "verdance:rl:",
		Timeout:   100 * time.Millisecond,
	}
}

// RedisLimiter implements distributed rate limiting with a sliding window
// counter:
//  1. Key format: "{prefix}{key}:{window_start_unix_ms}"
//  2. INCR the key for the current window
//  3. GET the key for the previous window
//  4. Weighted count = prev_count * (1 - elapsed_fraction) + current_count
//  5. Compare against Config.WindowLimit()
//  6. Keys expire after 2 * Window
//
// The client is shared and owned by the caller; Close does not close it.
type RedisLimiter struct {
	rdb         goredis.UniversalClient
	config      Config
	redisConfig RedisConfig
	now         func() time.Time
}

// NewRedisLimiter creates a distributed rate limiter backed by Redis.
func NewRedisLimiter(rdb goredis.UniversalClient, cfg Config, redisCfg RedisConfig) *RedisLimiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if redisCfg.KeyPrefix == "" {
		redisCfg.KeyPrefix = DefaultRedisConfig().KeyPrefix
	}
	if redisCfg.Timeout <= 0 {
		redisCfg.Timeout = DefaultRedisConfig().Timeout
	}
	return &RedisLimiter{rdb: rdb, config: cfg, redisConfig: redisCfg, now: time.Now}
}

// WithClock overrides the limiter's clock, for tests.
func (r *RedisLimiter) WithClock(clock func() time.Time) *RedisLimiter {
	r.now = clock
	return r
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	if !r.config.Enabled() {
		return unlimited, nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.redisConfig.Timeout)
	defer cancel()

	now := r.now()
	window := r.config.Window
	windowStart := now.Truncate(window)
	prevStart := windowStart.Add(-window)
	curKey := fmt.Sprintf("%s%s:%d", r.redisConfig.KeyPrefix, key, windowStart.UnixMilli())
	prevKey := fmt.Sprintf("%s%s:%d", r.redisConfig.KeyPrefix, key, prevStart.UnixMilli())

	var incr *goredis.IntCmd
	var prev *goredis.StringCmd
	_, err := r.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.Incr(ctx, curKey)
		pipe.Expire(ctx, curKey, 2*window)
		prev = pipe.Get(ctx, prevKey)
		return nil
	})
	if err != nil && !errors.Is(err, goredis.Nil) {
		return Result{}, fmt.Errorf("rate limit %s: %w", key, err)
	}

	prevCount, err := prev.Int()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return Result{}, fmt.Errorf("rate limit %s: previous window: %w", key, err)
	}

	elapsed := float64(now.Sub(windowStart)) / float64(window)
	weighted := float64(prevCount)*(1-elapsed) + float64(incr.Val())
	limit := r.config.WindowLimit()

	result := Result{
		Allowed:   weighted <= float64(limit),
		Remaining: int(math.Max(0, float64(limit)-weighted)),
		Limit:     limit,
	}
	if !result.Allowed {
		result.ResetMs = windowStart.Add(window).Sub(now).Milliseconds()
		if result.ResetMs <= 0 {
			result.ResetMs = 1000
		}
	}
	return result, nil
}

func (r *RedisLimiter) Close() error {
	return nil
}
