package domain

// SubscriptionTier drives catalog visibility and quota limits.
// Tiers are totally ordered: free < subscriber < premium.
type SubscriptionTier string

const (
	TierFree       SubscriptionTier = "free"
	TierSubscriber SubscriptionTier = "subscriber"
	TierPremium    SubscriptionTier = "premium"
)

// Tiers lists all tiers in ascending order.
var Tiers = []SubscriptionTier{TierFree, TierSubscriber, TierPremium}

// ValidTier checks if a string is a canonical tier name.
func ValidTier(s string) bool {
	return indexOf(Tiers, SubscriptionTier(s)) >= 0
}

// TierFromStatus maps a user record's subscription_status onto a tier.
// Unknown or empty statuses default to free.
func TierFromStatus(status string) SubscriptionTier {
	switch Canonical(status) {
	case "premium", "pro", "premium_active":
		return TierPremium
	case "subscriber", "subscribed", "active", "basic", "trialing":
		return TierSubscriber
	default:
		return TierFree
	}
}

// Rank returns the tier's position in the ordering (free = 0).
func (t SubscriptionTier) Rank() int {
	if i := indexOf(Tiers, t); i >= 0 {
		return i
	}
	return 0
}

// AtLeast reports whether t is the same as or richer than other.
func (t SubscriptionTier) AtLeast(other SubscriptionTier) bool {
	return t.Rank() >= other.Rank()
}

// SeesPremiumContent reports whether items flagged is_premium_content are visible.
func (t SubscriptionTier) SeesPremiumContent() bool {
	return t.AtLeast(TierSubscriber)
}
