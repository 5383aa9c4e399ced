// Package recommend is the recommendation orchestrator. One call to
// Service.Recommend validates the preferences, resolves the caller's tier,
// enforces rate limits and quota, runs the filter chain and ranker over the
// catalog snapshot, derives products, kits and a care schedule, and commits
// quota only when the request succeeded.
//
// Collaborators are injected through Deps so the whole pipeline runs in
// tests against a catalog.StaticSource with no I/O.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/verdance/verdance/platform/internal/cache"
	"github.com/verdance/verdance/platform/internal/care"
	"github.com/verdance/verdance/platform/internal/catalog"
	"github.com/verdance/verdance/platform/internal/domain"
	"github.com/verdance/verdance/platform/internal/filter"
	"github.com/verdance/verdance/platform/internal/logging"
	"github.com/verdance/verdance/platform/internal/metrics"
	"github.com/verdance/verdance/platform/internal/quota"
	"github.com/verdance/verdance/platform/internal/rank"
	"github.com/verdance/verdance/platform/internal/ratelimit"
)

// Cache names used as metric labels.
const (
	cacheUsers    = "users"
	cacheCatalogs = "catalog"
	cacheResults  = "results"
)

const catalogKey = "catalog"

// Config holds orchestrator settings.
type Config struct {
	UserTTL    time.Duration // per-user records
	CatalogTTL time.Duration // catalog snapshots
	ResultTTL  time.Duration // ranked result sets

	// CacheAllTiers enables result caching for subscriber and premium
	// callers. Free-tier results are always cacheable.
	CacheAllTiers bool

	MaxEntries int // per cache; zero uses the cache default

	// Default page sizes when a request leaves them unset.
	MaxResults  int
	MaxProducts int
	MaxKits     int

	// Feature is the quota feature charged per successful request.
	Feature string
}

// DefaultConfig returns the default orchestrator settings.
func DefaultConfig() Config {
	return Config{
		UserTTL:     60 * time.Second,
		CatalogTTL:  600 * time.Second,
		ResultTTL:   300 * time.Second,
		MaxEntries:  cache.DefaultMaxEntries,
		MaxResults:  10,
		MaxProducts: 5,
		MaxKits:     3,
		Feature:     quota.FeatureRecommendations,
	}
}

// Deps are the collaborators of a Service. Catalog is required; everything
// else has a working default.
type Deps struct {
	Catalog   catalog.Source
	Users     catalog.UserSource // nil treats every caller as anonymous
	Quota     quota.Enforcer     // nil disables quota
	RateLimit *ratelimit.PerTier // nil disables burst limiting
	Chain     *filter.Chain
	Ranker    *rank.Ranker
	Planner   *care.Planner
	Logger    *slog.Logger
	Clock     func() time.Time
}

// Request is one recommendation request.
type Request struct {
	Preferences domain.Preferences
	Email       string // empty for anonymous callers
	Fresh       bool   // bypass the result cache
}

// Service orchestrates recommendation requests. Safe for concurrent use.
type Service struct {
	cfg     Config
	source  catalog.Source
	users   catalog.UserSource
	quota   quota.Enforcer
	limiter *ratelimit.PerTier
	chain   *filter.Chain
	ranker  *rank.Ranker
	planner *care.Planner
	logger  *slog.Logger
	now     func() time.Time

	userCache    *cache.Cache[string, domain.User]
	catalogCache *cache.Cache[string, *catalog.Snapshot]
	resultCache  *cache.Cache[string, *ranked]
	loads        singleflight.Group
}

// New creates a Service.
func New(cfg Config, deps Deps) (*Service, error) {
	if deps.Catalog == nil {
		return nil, errors.New("recommend: catalog source is required")
	}
	def := DefaultConfig()
	if cfg.UserTTL <= 0 {
		cfg.UserTTL = def.UserTTL
	}
	if cfg.CatalogTTL <= 0 {
		cfg.CatalogTTL = def.CatalogTTL
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = def.ResultTTL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = def.MaxResults
	}
	if cfg.MaxProducts <= 0 {
		cfg.MaxProducts = def.MaxProducts
	}
	if cfg.MaxKits <= 0 {
		cfg.MaxKits = def.MaxKits
	}
	if cfg.Feature == "" {
		cfg.Feature = def.Feature
	}

	s := &Service{
		cfg:     cfg,
		source:  deps.Catalog,
		users:   deps.Users,
		quota:   deps.Quota,
		limiter: deps.RateLimit,
		chain:   deps.Chain,
		ranker:  deps.Ranker,
		planner: deps.Planner,
		logger:  deps.Logger,
		now:     deps.Clock,
	}
	if s.quota == nil {
		s.quota = quota.NewNoopEnforcer()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.chain == nil {
		s.chain = filter.NewChain(s.logger)
	}
	if s.ranker == nil {
		s.ranker = rank.New(nil)
	}
	if s.planner == nil {
		p, err := care.NewPlanner()
		if err != nil {
			return nil, fmt.Errorf("recommend: %w", err)
		}
		s.planner = p
	}
	if s.now == nil {
		s.now = time.Now
	}

	opts := func(ttl time.Duration) cache.Options {
		return cache.Options{DefaultTTL: ttl, MaxEntries: cfg.MaxEntries, Clock: s.now}
	}
	s.userCache = cache.New[string, domain.User](opts(cfg.UserTTL))
	s.catalogCache = cache.New[string, *catalog.Snapshot](opts(cfg.CatalogTTL))
	s.resultCache = cache.New[string, *ranked](opts(cfg.ResultTTL))
	return s, nil
}

// Recommend runs one request. It never returns nil and never panics: every
// failure is reported through Response.Error.
func (s *Service) Recommend(ctx context.Context, req Request) (resp *domain.Response) {
	start := time.Now()
	reqID := logging.NewRequestID()
	ctx = logging.ContextWithRequestID(ctx, reqID)

	resp = newResponse(reqID, domain.TierFree)
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "recommendation panicked",
				"panic", r, "stack", string(debug.Stack()))
			tier := resp.SubscriptionTier
			resp = newResponse(reqID, tier)
			fail(resp, &domain.Error{Code: domain.EUnknown, Op: "recommend", Message: fmt.Sprint(r)})
		}
		outcome := "ok"
		if resp.Failed() {
			outcome = string(resp.Error)
		}
		metrics.ObserveRecommendation(string(resp.SubscriptionTier), outcome, resp.Stats.CacheHit, time.Since(start))
		s.observeCaches()
	}()

	if err := req.Preferences.Validate(); err != nil {
		s.logger.InfoContext(ctx, "rejected invalid preferences", "error", err)
		fail(resp, err)
		return resp
	}

	user, err := s.lookupUser(ctx, req.Email)
	if err != nil {
		s.logger.ErrorContext(ctx, "user lookup failed", "error", err)
		fail(resp, err)
		return resp
	}
	tier := user.Tier
	resp.SubscriptionTier = tier
	ctx = logging.ContextWithTier(ctx, string(tier))

	if denied := s.throttle(ctx, user, resp); denied {
		return resp
	}

	decision, err := s.quota.CheckQuota(ctx, user, s.cfg.Feature)
	if err != nil {
		s.logger.ErrorContext(ctx, "quota check failed", "error", err)
		fail(resp, domain.DataError(err, "recommend.check_quota", "usage records are unavailable"))
		return resp
	}
	if !decision.Allowed {
		metrics.QuotaDeniedTotal.WithLabelValues(string(tier), s.cfg.Feature).Inc()
		s.logger.InfoContext(ctx, "quota exceeded", "feature", s.cfg.Feature, "limit", decision.Limit)
		resp.Error = domain.EQuotaExceeded
		resp.Message = decision.Message
		resp.Quota = decision.Status(s.cfg.Feature)
		return resp
	}

	prefs := req.Preferences
	page, pageWarnings := s.resolvePage(prefs)

	useCache := !req.Fresh && (tier == domain.TierFree || s.cfg.CacheAllTiers)
	var result *ranked
	if useCache {
		key := resultKey(tier, prefs)
		cached, hit := s.resultCache.Get(key)
		metrics.ObserveCacheLookup(cacheResults, hit)
		if hit {
			result = cached
			resp.Stats.CacheHit = true
		}
		defer func() {
			if !hit && result != nil && !resp.Failed() {
				s.resultCache.Set(key, result, s.cfg.ResultTTL)
			}
		}()
	}

	if result == nil {
		snap, err := s.loadCatalog(ctx)
		if err != nil {
			s.logger.ErrorContext(ctx, "catalog load failed", "error", err)
			fail(resp, err)
			return resp
		}
		result = s.compute(ctx, snap, prefs, tier)
	}

	s.fill(ctx, resp, result, prefs, page, pageWarnings)
	if resp.Failed() {
		return resp
	}

	committed, err := s.quota.IncrementUsage(ctx, user, s.cfg.Feature, 1)
	if err != nil {
		// The caller already has the result; an uncounted request is
		// preferable to failing it after the work is done.
		s.logger.ErrorContext(ctx, "quota commit failed", "error", err)
		committed = decision
	} else {
		metrics.QuotaCommittedTotal.WithLabelValues(string(tier), s.cfg.Feature).Inc()
	}
	resp.Quota = committed.Status(s.cfg.Feature)

	s.logger.InfoContext(ctx, "recommendation served",
		"matched", resp.Stats.MatchedPlants,
		"returned", resp.Stats.ReturnedPlants,
		"cache_hit", resp.Stats.CacheHit,
		"duration_ms", time.Since(start).Milliseconds())
	return resp
}

// throttle applies the per-tier burst limiter. Limiter backend failures are
// logged and the request proceeds.
func (s *Service) throttle(ctx context.Context, user domain.User, resp *domain.Response) bool {
	res, err := s.limiter.Allow(ctx, user.Tier, user.QuotaKey())
	if err != nil {
		s.logger.WarnContext(ctx, "rate limiter unavailable, allowing request", "error", err)
		return false
	}
	if res.Allowed {
		return false
	}
	metrics.RateLimitedTotal.WithLabelValues(string(user.Tier)).Inc()
	resp.Error = domain.EQuotaExceeded
	resp.Message = fmt.Sprintf("too many requests; retry in %s", time.Duration(res.ResetMs)*time.Millisecond)
	resp.RetryAfterMs = res.ResetMs
	return true
}

// lookupUser resolves the caller. Anonymous callers and unknown emails get
// the free tier; quota is still tracked under the email when one was given.
func (s *Service) lookupUser(ctx context.Context, email string) (domain.User, error) {
	key := domain.Canonical(email)
	if key == "" || s.users == nil {
		u := domain.AnonymousUser()
		u.Email = key
		return u, nil
	}
	if u, ok := s.userCache.Get(key); ok {
		metrics.ObserveCacheLookup(cacheUsers, true)
		return u, nil
	}
	metrics.ObserveCacheLookup(cacheUsers, false)

	u, err := s.users.GetUser(ctx, email)
	switch {
	case errors.Is(err, catalog.ErrUserNotFound):
		s.logger.InfoContext(ctx, "unknown user, using free tier")
		u = domain.User{Email: key, SubscriptionStatus: string(domain.TierFree), Tier: domain.TierFree}
	case err != nil:
		var derr *domain.Error
		if errors.As(err, &derr) {
			return domain.User{}, err
		}
		return domain.User{}, domain.DataError(err, "recommend.get_user", "user records are unavailable")
	default:
		u = catalog.ResolveTier(u)
	}
	s.userCache.Set(key, u, s.cfg.UserTTL)
	return u, nil
}

// loadCatalog returns the cached snapshot or loads one. Concurrent misses
// share a single load.
func (s *Service) loadCatalog(ctx context.Context) (*catalog.Snapshot, error) {
	if snap, ok := s.catalogCache.Get(catalogKey); ok {
		metrics.ObserveCacheLookup(cacheCatalogs, true)
		return snap, nil
	}
	metrics.ObserveCacheLookup(cacheCatalogs, false)

	v, err, shared := s.loads.Do(catalogKey, func() (any, error) {
		snap, err := s.source.LoadSnapshot(ctx)
		if err != nil {
			return nil, err
		}
		if len(snap.Warnings) > 0 {
			s.logger.WarnContext(ctx, "catalog loaded with normalization warnings",
				"warnings", len(snap.Warnings), "first", snap.Warnings[0])
		}
		s.catalogCache.Set(catalogKey, snap, s.cfg.CatalogTTL)
		return snap, nil
	})
	if err != nil {
		var derr *domain.Error
		if errors.As(err, &derr) {
			return nil, err
		}
		return nil, domain.DataError(err, "recommend.load_catalog", "catalog is unavailable")
	}
	if shared {
		s.logger.DebugContext(ctx, "catalog load shared with concurrent request")
	}
	return v.(*catalog.Snapshot), nil
}

// InvalidateCatalog drops the cached snapshot and every cached result so the
// next request reloads the catalog.
func (s *Service) InvalidateCatalog() {
	s.catalogCache.Clear()
	s.resultCache.Clear()
}

// CacheStats returns the counters of each internal cache.
func (s *Service) CacheStats() map[string]cache.Stats {
	return map[string]cache.Stats{
		cacheUsers:    s.userCache.Stats(),
		cacheCatalogs: s.catalogCache.Stats(),
		cacheResults:  s.resultCache.Stats(),
	}
}

// StartJanitors runs background cleanup for every cache until ctx is done.
func (s *Service) StartJanitors(ctx context.Context, interval time.Duration) {
	s.userCache.StartJanitor(ctx, interval)
	s.catalogCache.StartJanitor(ctx, interval)
	s.resultCache.StartJanitor(ctx, interval)
}

// QuotaStatus reports the caller's standing for feature without charging it.
func (s *Service) QuotaStatus(ctx context.Context, email, feature string) (domain.SubscriptionTier, quota.Decision, error) {
	user, err := s.lookupUser(ctx, email)
	if err != nil {
		return "", quota.Decision{}, err
	}
	if strings.TrimSpace(feature) == "" {
		feature = s.cfg.Feature
	}
	d, err := s.quota.CheckQuota(ctx, user, feature)
	if err != nil {
		return user.Tier, quota.Decision{}, fmt.Errorf("check %s quota: %w", feature, err)
	}
	return user.Tier, d, nil
}

func (s *Service) observeCaches() {
	for name, st := range s.CacheStats() {
		metrics.CacheEntries.WithLabelValues(name).Set(float64(st.Entries))
		metrics.CacheEvictionsTotal.WithLabelValues(name).Set(float64(st.Evictions))
	}
}

func newResponse(reqID string, tier domain.SubscriptionTier) *domain.Response {
	return &domain.Response{
		RequestID:        reqID,
		Plants:           []domain.ScoredItem{},
		Products:         []domain.ProductMatch{},
		Kits:             []domain.KitMatch{},
		CareSchedule:     domain.CareSchedule{},
		Stats:            domain.Stats{AppliedFilters: []string{}},
		SubscriptionTier: tier,
	}
}

// fail records err on resp with a caller-safe message.
func fail(resp *domain.Response, err error) {
	resp.Error = domain.ErrorCodeOf(err)
	resp.Message = domain.ErrorMessage(err)
}
