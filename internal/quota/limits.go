package quota

import (
	"fmt"
	"time"

	"github.com/verdance/verdance/platform/internal/domain"
)

// Period is the granularity at which a usage counter resets.
type Period string

const (
	Daily   Period = "daily"
	Monthly Period = "monthly"
)

// Key returns the period identifier containing t: "2006-01-02" for daily
// periods and "2006-01" for monthly ones. Keys are computed in UTC.
func (p Period) Key(t time.Time) string {
	t = t.UTC()
	if p == Daily {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01")
}

// End returns the first instant after the period containing t.
func (p Period) End(t time.Time) time.Time {
	t = t.UTC()
	if p == Daily {
		return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

// Adjective returns "Daily" or "Monthly" for user-facing messages.
func (p Period) Adjective() string {
	if p == Daily {
		return "Daily"
	}
	return "Monthly"
}

// Valid reports whether p is a known period.
func (p Period) Valid() bool {
	return p == Daily || p == Monthly
}

// Limit caps one feature for one tier. Max == Unlimited disables the cap.
type Limit struct {
	Max    int    `yaml:"max"`
	Period Period `yaml:"period"`
}

// Unlimited reports whether the limit has no cap.
func (l Limit) Unlimited() bool {
	return l.Max < 0
}

// Limits maps tier -> feature -> limit.
type Limits map[domain.SubscriptionTier]map[string]Limit

// DefaultLimits returns the built-in tier limits.
func DefaultLimits() Limits {
	return Limits{
		domain.TierFree: {
			FeatureRecommendations: {Max: 10, Period: Daily},
			FeatureAIChat:          {Max: 20, Period: Monthly},
		},
		domain.TierSubscriber: {
			FeatureRecommendations: {Max: 100, Period: Daily},
			FeatureAIChat:          {Max: 200, Period: Monthly},
		},
		domain.TierPremium: {
			FeatureRecommendations: {Max: Unlimited, Period: Daily},
			FeatureAIChat:          {Max: Unlimited, Period: Monthly},
		},
	}
}

// Lookup returns the limit for (tier, feature). Unknown tiers use the free
// tier's row. A feature absent from the row is unlimited.
func (l Limits) Lookup(tier domain.SubscriptionTier, feature string) Limit {
	row, ok := l[tier]
	if !ok {
		row = l[domain.TierFree]
	}
	limit, ok := row[feature]
	if !ok {
		return Limit{Max: Unlimited, Period: Monthly}
	}
	if !limit.Period.Valid() {
		limit.Period = Monthly
	}
	return limit
}

// Merge overlays other onto a copy of l, row by row.
func (l Limits) Merge(other Limits) Limits {
	out := make(Limits, len(l))
	for tier, row := range l {
		out[tier] = make(map[string]Limit, len(row))
		for f, lim := range row {
			out[tier][f] = lim
		}
	}
	for tier, row := range other {
		if out[tier] == nil {
			out[tier] = make(map[string]Limit, len(row))
		}
		for f, lim := range row {
			out[tier][f] = lim
		}
	}
	return out
}

// Validate rejects unknown tiers and periods.
func (l Limits) Validate() error {
	for tier, row := range l {
		if !domain.ValidTier(string(tier)) {
			return fmt.Errorf("unknown tier %q", tier)
		}
		for f, lim := range row {
			if !lim.Period.Valid() {
				return fmt.Errorf("tier %s feature %s: unknown period %q", tier, f, lim.Period)
			}
		}
	}
	return nil
}
