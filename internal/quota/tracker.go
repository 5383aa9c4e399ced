package quota

import (
	"context"
	"sync"
	"time"

	"github.com/verdance/verdance/platform/internal/domain"
)

// TrackerOptions configures a Tracker.
type TrackerOptions struct {
	// Limits is the tier limit table. Nil uses DefaultLimits().
	Limits Limits

	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

type recordKey struct {
	user    string
	feature string
}

type record struct {
	periodKey string
	count     int
}

// Tracker is the process-local Enforcer. All counters live behind one mutex.
type Tracker struct {
	mu      sync.Mutex
	limits  Limits
	now     func() time.Time
	records map[recordKey]*record
}

// NewTracker creates an in-memory tracker.
func NewTracker(opts TrackerOptions) *Tracker {
	limits := opts.Limits
	if limits == nil {
		limits = DefaultLimits()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		limits:  limits,
		now:     now,
		records: make(map[recordKey]*record),
	}
}

// CheckQuota reports whether the user may perform one more operation.
func (t *Tracker) CheckQuota(_ context.Context, user domain.User, feature string) (Decision, error) {
	limit := t.limits.Lookup(user.Tier, feature)
	periodKey := limit.Period.Key(t.now())

	t.mu.Lock()
	defer t.mu.Unlock()

	rec := t.recordLocked(user, feature, periodKey)
	return decide(limit, user.Tier, feature, rec.count, periodKey), nil
}

// IncrementUsage commits amount operations (zero counts as one).
func (t *Tracker) IncrementUsage(_ context.Context, user domain.User, feature string, amount int) (Decision, error) {
	amount, err := normalizeAmount(amount)
	if err != nil {
		return Decision{}, err
	}
	limit := t.limits.Lookup(user.Tier, feature)
	periodKey := limit.Period.Key(t.now())

	t.mu.Lock()
	defer t.mu.Unlock()

	rec := t.recordLocked(user, feature, periodKey)
	rec.count += amount
	return decide(limit, user.Tier, feature, rec.count, periodKey), nil
}

// Usage returns the stored counter for (user, feature) in the current period,
// suitable for writing back to the user record.
func (t *Tracker) Usage(user domain.User, feature string) domain.UsageSnapshot {
	limit := t.limits.Lookup(user.Tier, feature)
	periodKey := limit.Period.Key(t.now())

	t.mu.Lock()
	defer t.mu.Unlock()

	rec := t.recordLocked(user, feature, periodKey)
	return domain.UsageSnapshot{PeriodKey: rec.periodKey, Count: rec.count}
}

// Reset drops every counter.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = make(map[recordKey]*record)
}

// recordLocked returns the counter for (user, feature), creating it from the
// user's persisted tracking on first sight and rolling it over when the
// period changed.
// Caller must hold t.mu.
func (t *Tracker) recordLocked(user domain.User, feature, periodKey string) *record {
	key := recordKey{user: user.QuotaKey(), feature: feature}
	rec, ok := t.records[key]
	if !ok {
		rec = &record{periodKey: periodKey}
		if snap, found := user.RequestTracking[feature]; found && snap.PeriodKey == periodKey && snap.Count > 0 {
			rec.count = snap.Count
		}
		t.records[key] = rec
	}
	if rec.periodKey != periodKey {
		rec.periodKey = periodKey
		rec.count = 0
	}
	return rec
}
