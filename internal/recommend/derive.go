package recommend

import (
	"math"
	"sort"

	"github.com/verdance/verdance/platform/internal/catalog"
	"github.com/verdance/verdance/platform/internal/domain"
)

// Product and kit scoring constants.
const (
	ratingWeight        = 0.7
	coverageWeight      = 0.3
	locationFallback    = 50.0
	kitPlantWeight      = 50.0
	kitLocationWeight   = 30.0
	kitExperienceWeight = 20.0
)

type productAgg struct {
	index     int // catalog order, for stable ties
	ratingSum int
	rows      int
	plants    []string
	bestScore int
	purpose   string
}

// matchProducts scores products against the returned plants using the
// plant_product relation:
//
//	score = 0.7 * avg(rating)*20 + 0.3 * coverage*100
//
// where coverage is the fraction of returned plants the product supports.
// When no relation row touches the returned plants, products compatible with
// the requested location score a flat 50.
func matchProducts(snap *catalog.Snapshot, plants []domain.ScoredItem, prefs domain.Preferences, tier domain.SubscriptionTier, limit int) []domain.ProductMatch {
	out := []domain.ProductMatch{}
	if len(plants) == 0 || limit <= 0 {
		return out
	}
	top := make(map[string]int, len(plants))
	for i, p := range plants {
		top[p.ID] = i
	}

	aggs := make(map[string]*productAgg)
	for _, rel := range snap.PlantProducts {
		if _, ok := top[rel.PlantID]; !ok {
			continue
		}
		product, ok := snap.Product(rel.ProductID)
		if !ok || !visibleTo(product, tier) {
			continue
		}
		a, ok := aggs[rel.ProductID]
		if !ok {
			a = &productAgg{index: productIndex(snap, rel.ProductID)}
			aggs[rel.ProductID] = a
		}
		a.ratingSum += rel.CompatibilityRating
		a.rows++
		if !contains(a.plants, rel.PlantID) {
			a.plants = append(a.plants, rel.PlantID)
		}
		if rel.CompatibilityRating > a.bestScore {
			a.bestScore = rel.CompatibilityRating
			a.purpose = rel.PrimaryPurpose
		}
	}

	if len(aggs) == 0 {
		for i := range snap.Products {
			p := &snap.Products[i]
			if visibleTo(p, tier) && p.HasLocation(prefs.Location) {
				out = append(out, domain.ProductMatch{CatalogItem: *p, CompatibilityScore: locationFallback})
			}
		}
		return truncate(out, limit)
	}

	type scored struct {
		match domain.ProductMatch
		index int
	}
	list := make([]scored, 0, len(aggs))
	for id, a := range aggs {
		product, _ := snap.Product(id)
		avg := float64(a.ratingSum) / float64(a.rows)
		coverage := float64(len(a.plants)) / float64(len(plants))
		sort.Slice(a.plants, func(i, j int) bool { return top[a.plants[i]] < top[a.plants[j]] })
		list = append(list, scored{
			index: a.index,
			match: domain.ProductMatch{
				CatalogItem:        *product,
				CompatibilityScore: round1(ratingWeight*avg*20 + coverageWeight*coverage*100),
				CompatiblePlants:   a.plants,
				PrimaryPurpose:     a.purpose,
			},
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].index < list[j].index })
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].match.CompatibilityScore > list[j].match.CompatibilityScore
	})
	for _, s := range list {
		out = append(out, s.match)
	}
	return truncate(out, limit)
}

// matchKits scores visible kits against the full ranked plant set:
//
//	relevance = 50 * fraction of kit plants ranked + 30 * location match + 20 * experience match
//
// Kits scoring zero are dropped.
func matchKits(snap *catalog.Snapshot, plants []domain.ScoredItem, prefs domain.Preferences, tier domain.SubscriptionTier, limit int) []domain.KitMatch {
	out := []domain.KitMatch{}
	if limit <= 0 {
		return out
	}
	rankedIDs := make(map[string]struct{}, len(plants))
	for _, p := range plants {
		rankedIDs[p.ID] = struct{}{}
	}
	want, wantOK := domain.ParseExperienceLevel(prefs.ExperienceLevel)

	for i := range snap.Kits {
		kit := &snap.Kits[i]
		if !visibleTo(kit, tier) {
			continue
		}
		var matched []string
		for _, id := range kit.PlantIDs {
			if _, ok := rankedIDs[id]; ok {
				matched = append(matched, id)
			}
		}
		score := 0.0
		if len(kit.PlantIDs) > 0 {
			score += kitPlantWeight * float64(len(matched)) / float64(len(kit.PlantIDs))
		}
		if kit.HasLocation(prefs.Location) {
			score += kitLocationWeight
		}
		if wantOK {
			if lvl, ok := domain.ItemExperience(kit); ok && lvl.Rank() <= want.Rank() {
				score += kitExperienceWeight
			}
		}
		if score == 0 {
			continue
		}
		out = append(out, domain.KitMatch{CatalogItem: *kit, RelevanceScore: round1(score), MatchedPlants: matched})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RelevanceScore > out[j].RelevanceScore })
	return truncate(out, limit)
}

func visibleTo(item *domain.CatalogItem, tier domain.SubscriptionTier) bool {
	return !item.IsPremiumContent || tier.SeesPremiumContent()
}

func productIndex(snap *catalog.Snapshot, id string) int {
	for i := range snap.Products {
		if snap.Products[i].ID == id {
			return i
		}
	}
	return len(snap.Products)
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func truncate[T any](xs []T, n int) []T {
	if len(xs) > n {
		return xs[:n]
	}
	return xs
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
