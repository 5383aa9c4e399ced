package recommend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/verdance/verdance/platform/internal/catalog"
	"github.com/verdance/verdance/platform/internal/domain"
	"github.com/verdance/verdance/platform/internal/filter"
	"github.com/verdance/verdance/platform/internal/metrics"
)

// maxPageSize caps every requested limit.
const maxPageSize = 100

// ranked is the cacheable part of a request: the full ranked plant list and
// the diagnostics that produced it. Products, kits and the care schedule
// depend on the page and the request time, so they are derived per request.
type ranked struct {
	snapshot    *catalog.Snapshot
	plants      []domain.ScoredItem
	visible     int
	applied     []string
	trace       []domain.StageCount
	warnings    []string
	suggestions []domain.Suggestion
}

// pageLimits is the resolved pagination of one request.
type pageLimits struct {
	offset, results, products, kits int
}

// resolvePage applies configured defaults to unset limits. Negative values
// fall back to the default and oversized ones are capped, both with a warning.
func (s *Service) resolvePage(prefs domain.Preferences) (pageLimits, []string) {
	var warnings []string
	limit := func(name string, v, def int) int {
		switch {
		case v == 0:
			return def
		case v < 0:
			warnings = append(warnings, fmt.Sprintf("limits: %s %d is negative, using %d", name, v, def))
			return def
		case v > maxPageSize:
			warnings = append(warnings, fmt.Sprintf("limits: %s %d exceeds %d", name, v, maxPageSize))
			return maxPageSize
		}
		return v
	}
	p := pageLimits{
		results:  limit("max_results", prefs.MaxResults, s.cfg.MaxResults),
		products: limit("max_products", prefs.MaxProducts, s.cfg.MaxProducts),
		kits:     limit("max_kits", prefs.MaxKits, s.cfg.MaxKits),
		offset:   prefs.Offset,
	}
	if p.offset < 0 {
		warnings = append(warnings, fmt.Sprintf("limits: offset %d is negative, using 0", p.offset))
		p.offset = 0
	}
	return p, warnings
}

// resultKey derives the result cache key from the tier and the preference
// fields that affect which plants are returned and in what order.
func resultKey(tier domain.SubscriptionTier, prefs domain.Preferences) string {
	data, err := json.Marshal(prefs.Key())
	if err != nil {
		// FilterKey holds only plain values; fall back to its printed form.
		data = []byte(fmt.Sprintf("%+v", prefs.Key()))
	}
	sum := sha256.Sum256(data)
	return string(tier) + ":" + hex.EncodeToString(sum[:])
}

// compute runs the filter chain and ranker over the snapshot.
func (s *Service) compute(ctx context.Context, snap *catalog.Snapshot, prefs domain.Preferences, tier domain.SubscriptionTier) *ranked {
	visible := visibleItems(snap.Plants, tier)
	run := s.chain.Run(ctx, snap.Plants, filter.Criteria{Tier: tier, Preferences: prefs})
	for _, w := range run.Warnings {
		stage, _, _ := strings.Cut(w, ":")
		metrics.FilterWarningsTotal.WithLabelValues(stage).Inc()
	}

	r := &ranked{
		snapshot: snap,
		visible:  len(visible),
		applied:  run.Applied,
		trace:    run.Trace,
		warnings: run.Warnings,
	}
	if len(run.Items) == 0 {
		r.plants = []domain.ScoredItem{}
		r.suggestions = suggest(visible, prefs, run.Applied)
		return r
	}

	plants, rankWarnings := s.ranker.Rank(run.Items, prefs, tier)
	r.plants = plants
	for _, w := range rankWarnings {
		r.warnings = append(r.warnings, "rank: "+w)
	}
	return r
}

// fill writes the ranked result, paginated and enriched, into resp.
func (s *Service) fill(ctx context.Context, resp *domain.Response, r *ranked, prefs domain.Preferences, page pageLimits, pageWarnings []string) {
	snap := r.snapshot
	resp.Stats = domain.Stats{
		TotalPlants:    len(snap.Plants),
		VisiblePlants:  r.visible,
		MatchedPlants:  len(r.plants),
		TotalProducts:  len(snap.Products),
		TotalKits:      len(snap.Kits),
		AppliedFilters: append([]string{}, r.applied...),
		Stages:         r.trace,
		Warnings:       append(append([]string(nil), r.warnings...), pageWarnings...),
		CacheHit:       resp.Stats.CacheHit,
	}

	if len(r.plants) == 0 {
		resp.Error = domain.ENoMatches
		resp.Message = "no plants match the given preferences; try relaxing one of the applied filters"
		resp.Suggestions = r.suggestions
		s.logger.InfoContext(ctx, "no matches", "applied", r.applied, "suggestions", len(r.suggestions))
		return
	}

	plants := paginate(r.plants, page.offset, page.results)
	resp.Plants = plants
	resp.Stats.ReturnedPlants = len(plants)

	tier := resp.SubscriptionTier
	resp.Products = matchProducts(snap, plants, prefs, tier, page.products)
	resp.Kits = matchKits(snap, r.plants, prefs, tier, page.kits)

	items := make([]domain.CatalogItem, len(plants))
	for i := range plants {
		items[i] = plants[i].CatalogItem
	}
	resp.CareSchedule = s.planner.Plan(items, s.now())
}

// paginate returns a copy of items[offset:offset+limit].
func paginate(items []domain.ScoredItem, offset, limit int) []domain.ScoredItem {
	if offset >= len(items) {
		return []domain.ScoredItem{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return append([]domain.ScoredItem(nil), items[offset:end]...)
}

func visibleItems(items []domain.CatalogItem, tier domain.SubscriptionTier) []domain.CatalogItem {
	if tier.SeesPremiumContent() {
		return items
	}
	out := make([]domain.CatalogItem, 0, len(items))
	for i := range items {
		if !items[i].IsPremiumContent {
			out = append(out, items[i])
		}
	}
	return out
}
