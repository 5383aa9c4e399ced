// Package quota enforces per-user, per-feature usage limits tied to the
// caller's subscription tier.
//
// Enforcement is two-phase: CheckQuota gates the metered operation before any
// work is done, and IncrementUsage commits the usage only after the operation
// succeeded, so failed requests are never charged. Counters reset whenever the
// current period (day or month) differs from the period they were recorded in.
//
// Tracker keeps counters in process memory under a single lock. It gives no
// cross-process atomicity; multi-replica deployments use RedisEnforcer, which
// satisfies the same interface.
package quota

import (
	"context"
	"fmt"

	"github.com/verdance/verdance/platform/internal/domain"
)

// Metered features.
const (
	FeatureRecommendations = "recommendations"
	FeatureAIChat          = "ai_chat"
)

// Unlimited is the Remaining/Limit sentinel for features without a cap.
const Unlimited = -1

// Decision is the outcome of a quota check. A denied decision is a normal
// result, not an error.
type Decision struct {
	Allowed   bool
	Message   string
	Remaining int // Unlimited when the feature has no cap for the tier
	Limit     int
	Used      int
	PeriodKey string
}

// Status converts the decision into the response representation.
func (d Decision) Status(feature string) *domain.QuotaStatus {
	return &domain.QuotaStatus{
		Feature:   feature,
		Limit:     d.Limit,
		Remaining: d.Remaining,
		PeriodKey: d.PeriodKey,
	}
}

// Enforcer checks and commits usage. Implementations must be safe for
// concurrent use.
type Enforcer interface {
	// CheckQuota reports whether user may perform one more feature operation.
	// It never changes the recorded usage.
	CheckQuota(ctx context.Context, user domain.User, feature string) (Decision, error)

	// IncrementUsage records amount successful operations and returns the
	// decision as it stands afterwards. Callers check before incrementing.
	IncrementUsage(ctx context.Context, user domain.User, feature string, amount int) (Decision, error)
}

// NoopEnforcer allows everything. Used when quotas are disabled.
type NoopEnforcer struct{}

// NewNoopEnforcer creates a no-op enforcer.
func NewNoopEnforcer() *NoopEnforcer {
	return &NoopEnforcer{}
}

func (n *NoopEnforcer) CheckQuota(_ context.Context, _ domain.User, _ string) (Decision, error) {
	return unlimitedDecision(""), nil
}

func (n *NoopEnforcer) IncrementUsage(_ context.Context, _ domain.User, _ string, _ int) (Decision, error) {
	return unlimitedDecision(""), nil
}

func unlimitedDecision(periodKey string) Decision {
	return Decision{Allowed: true, Remaining: Unlimited, Limit: Unlimited, PeriodKey: periodKey}
}

// decide evaluates used against limit.
func decide(limit Limit, tier domain.SubscriptionTier, feature string, used int, periodKey string) Decision {
	if limit.Unlimited() {
		return Decision{Allowed: true, Remaining: Unlimited, Limit: Unlimited, Used: used, PeriodKey: periodKey}
	}
	remaining := limit.Max - used
	if remaining < 0 {
		remaining = 0
	}
	d := Decision{
		Allowed:   used < limit.Max,
		Remaining: remaining,
		Limit:     limit.Max,
		Used:      used,
		PeriodKey: periodKey,
	}
	if !d.Allowed {
		d.Message = fmt.Sprintf("%s limit of %d %s reached for the %s tier; upgrade your subscription for more",
			limit.Period.Adjective(), limit.Max, feature, tier)
	}
	return d
}

func normalizeAmount(amount int) (int, error) {
	if amount < 0 {
		return 0, fmt.Errorf("quota: negative usage amount %d", amount)
	}
	if amount == 0 {
		return 1, nil
	}
	return amount, nil
}
