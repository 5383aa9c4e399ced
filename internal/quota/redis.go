package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/verdance/verdance/platform/internal/domain"
)

// expiryGrace keeps a counter readable briefly after its period ended.
const expiryGrace = time.Hour

// RedisEnforcer keeps counters in Redis so every replica shares them.
// Keys embed the period, so rollover is a new key and old keys expire.
type RedisEnforcer struct {
	rdb    goredis.UniversalClient
	limits Limits
	prefix string
	now    func() time.Time
}

// RedisOptions configures a RedisEnforcer.
type RedisOptions struct {
	Limits Limits
	Prefix string // default "verdance:quota"
	Clock  func() time.Time
}

// NewRedisEnforcer wraps an existing client. The caller owns the client.
func NewRedisEnforcer(rdb goredis.UniversalClient, opts RedisOptions) *RedisEnforcer {
	limits := opts.Limits
	if limits == nil {
		limits = DefaultLimits()
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "verdance:quota"
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &RedisEnforcer{rdb: rdb, limits: limits, prefix: prefix, now: now}
}

func (r *RedisEnforcer) key(user domain.User, feature, periodKey string) string {
	return fmt.Sprintf("%s:%s:%s:%s", r.prefix, feature, user.QuotaKey(), periodKey)
}

// CheckQuota reads the counter without modifying it.
func (r *RedisEnforcer) CheckQuota(ctx context.Context, user domain.User, feature string) (Decision, error) {
	now := r.now()
	limit := r.limits.Lookup(user.Tier, feature)
	periodKey := limit.Period.Key(now)
	key := r.key(user, feature, periodKey)

	used, err := r.rdb.Get(ctx, key).Int()
	if errors.Is(err, goredis.Nil) {
		used, err = r.seed(ctx, user, feature, key, periodKey, limit.Period.End(now))
	}
	if err != nil {
		return Decision{}, fmt.Errorf("quota check %s: %w", feature, err)
	}
	return decide(limit, user.Tier, feature, used, periodKey), nil
}

// IncrementUsage atomically adds amount and refreshes the key's expiry.
func (r *RedisEnforcer) IncrementUsage(ctx context.Context, user domain.User, feature string, amount int) (Decision, error) {
	amount, err := normalizeAmount(amount)
	if err != nil {
		return Decision{}, err
	}
	now := r.now()
	limit := r.limits.Lookup(user.Tier, feature)
	periodKey := limit.Period.Key(now)
	key := r.key(user, feature, periodKey)
	ttl := limit.Period.End(now).Add(expiryGrace).Sub(now)

	var incr *goredis.IntCmd
	_, err = r.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.IncrBy(ctx, key, int64(amount))
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("quota increment %s: %w", feature, err)
	}
	return decide(limit, user.Tier, feature, int(incr.Val()), periodKey), nil
}

// seed initialises a missing counter from the user's persisted tracking.
// SETNX keeps a concurrent increment from being overwritten.
func (r *RedisEnforcer) seed(ctx context.Context, user domain.User, feature, key, periodKey string, periodEnd time.Time) (int, error) {
	snap, ok := user.RequestTracking[feature]
	if !ok || snap.PeriodKey != periodKey || snap.Count <= 0 {
		return 0, nil
	}
	ttl := periodEnd.Add(expiryGrace).Sub(r.now())
	if ttl <= 0 {
		ttl = expiryGrace
	}
	if err := r.rdb.SetNX(ctx, key, snap.Count, ttl).Err(); err != nil {
		return 0, err
	}
	used, err := r.rdb.Get(ctx, key).Int()
	if errors.Is(err, goredis.Nil) {
		return snap.Count, nil
	}
	return used, err
}
