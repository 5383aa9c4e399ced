// Package rank orders filtered catalog items by how well they match the
// caller's preferences.
//
// Each declared preference is a factor with a weight. An item earns
// weight * credit per factor, where credit is in [0, 1]. The normalized score
// is the earned total as a percentage of the achievable total, rounded to one
// decimal. Ranking never adds or drops items, and ties keep input order, so
// identical inputs always produce identical output.
package rank

import (
	"fmt"
	"math"
	"sort"

	"github.com/verdance/verdance/platform/internal/domain"
	"github.com/verdance/verdance/platform/internal/filter"
)

// Default factor weights.
const (
	DefaultWeightLocation    = 3.0
	DefaultWeightLight       = 2.5
	DefaultWeightMaintenance = 2.0
	DefaultWeightExperience  = 1.5
	DefaultWeightFunctions   = 1.0
	DefaultWeightTemperature = 0.8
	DefaultWeightHumidity    = 0.7
)

// Weights maps factor name to weight.
type Weights map[string]float64

// DefaultWeights returns the built-in weights.
func DefaultWeights() Weights {
	return Weights{
		domain.FactorLocation:    DefaultWeightLocation,
		domain.FactorLight:       DefaultWeightLight,
		domain.FactorMaintenance: DefaultWeightMaintenance,
		domain.FactorExperience:  DefaultWeightExperience,
		domain.FactorFunctions:   DefaultWeightFunctions,
		domain.FactorTemperature: DefaultWeightTemperature,
		domain.FactorHumidity:    DefaultWeightHumidity,
	}
}

// Validate rejects unknown factors and negative or non-finite weights.
func (w Weights) Validate() error {
	for factor, v := range w {
		if !knownFactor(factor) {
			return fmt.Errorf("unknown ranking factor %q", factor)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("invalid weight %v for factor %s", v, factor)
		}
	}
	return nil
}

// Resolve overlays per-request overrides onto w. Invalid overrides are
// skipped and reported as warnings; the base weight is kept.
func (w Weights) Resolve(overrides map[string]float64) (Weights, []string) {
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	var warnings []string
	for _, factor := range sortedKeys(overrides) {
		v := overrides[factor]
		name := domain.Canonical(factor)
		switch {
		case !knownFactor(name):
			warnings = append(warnings, fmt.Sprintf("weights: unknown factor %q ignored", factor))
		case math.IsNaN(v) || math.IsInf(v, 0) || v < 0:
			warnings = append(warnings, fmt.Sprintf("weights: invalid weight %v for %s ignored", v, name))
		default:
			out[name] = v
		}
	}
	return out, warnings
}

func knownFactor(name string) bool {
	for _, f := range domain.Factors {
		if f == name {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Ranker scores and orders items.
type Ranker struct {
	weights Weights
}

// New creates a ranker with the given default weights. Nil uses DefaultWeights().
// Factors missing from weights fall back to their built-in weight.
func New(weights Weights) *Ranker {
	base := DefaultWeights()
	for k, v := range weights {
		base[k] = v
	}
	return &Ranker{weights: base}
}

// Weights returns a copy of the ranker's default weights.
func (r *Ranker) Weights() Weights {
	out := make(Weights, len(r.weights))
	for k, v := range r.weights {
		out[k] = v
	}
	return out
}

// Rank scores items against prefs and returns them in descending score
// order. Callers at subscriber tier or above also get a per-factor
// explanation. Warnings report ignored weight overrides.
func (r *Ranker) Rank(items []domain.CatalogItem, prefs domain.Preferences, tier domain.SubscriptionTier) ([]domain.ScoredItem, []string) {
	weights, warnings := r.weights.Resolve(prefs.Weights)
	factors := activeFactors(prefs)
	explain := tier.AtLeast(domain.TierSubscriber)

	maxPossible := 0.0
	for _, fc := range factors {
		maxPossible += weights[fc.name]
	}

	scored := make([]domain.ScoredItem, len(items))
	for i := range items {
		s := domain.ScoredItem{
			CatalogItem:      items[i],
			MaxPossibleScore: maxPossible,
			ScoreComponents:  make(map[string]float64, len(factors)),
		}
		for _, fc := range factors {
			w := weights[fc.name]
			contribution := w * fc.credit(&items[i])
			s.ScoreComponents[fc.name] = contribution
			s.MatchScore += contribution
			if explain {
				s.ScoreExplanation = append(s.ScoreExplanation, domain.ScoreExplanation{
					Factor:      fc.name,
					Score:       round1(contribution),
					MaxPossible: w,
					Percentage:  percentage(contribution, w),
				})
			}
		}
		s.NormalizedScore = percentage(s.MatchScore, maxPossible)
		scored[i] = s
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].MatchScore > scored[j].MatchScore
	})
	return scored, warnings
}

func percentage(score, max float64) float64 {
	if max <= 0 {
		return 0
	}
	p := round1(score / max * 100)
	if p > 100 {
		return 100
	}
	return p
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// factor pairs a factor name with its credit function for one request.
type factor struct {
	name   string
	credit func(*domain.CatalogItem) float64
}

// activeFactors returns the factors declared (and parseable) in prefs, in
// domain.Factors order.
func activeFactors(prefs domain.Preferences) []factor {
	var out []factor

	if loc := domain.Canonical(prefs.Location); loc != "" {
		out = append(out, factor{domain.FactorLocation, func(it *domain.CatalogItem) float64 {
			return boolCredit(it.HasLocation(loc))
		}})
	}

	if light, ok := domain.ParseLightLevel(prefs.Light); ok {
		out = append(out, factor{domain.FactorLight, func(it *domain.CatalogItem) float64 {
			return boolCredit(it.LEDLight == light || it.NaturalLight == light)
		}})
	}

	if m, ok := domain.ParseMaintenanceLevel(prefs.Maintenance); ok {
		out = append(out, factor{domain.FactorMaintenance, func(it *domain.CatalogItem) float64 {
			return maintenanceCredit(it.Maintenance, m)
		}})
	}

	if exp, ok := domain.ParseExperienceLevel(prefs.ExperienceLevel); ok {
		out = append(out, factor{domain.FactorExperience, func(it *domain.CatalogItem) float64 {
			return experienceCredit(it, exp)
		}})
	}

	if want := prefs.FunctionSet(); len(want) > 0 {
		out = append(out, factor{domain.FactorFunctions, func(it *domain.CatalogItem) float64 {
			return functionCredit(it, want)
		}})
	}

	if prefs.Temperature != nil && !math.IsNaN(*prefs.Temperature) {
		temp := *prefs.Temperature
		out = append(out, factor{domain.FactorTemperature, func(it *domain.CatalogItem) float64 {
			if it.TemperatureMin == nil && it.TemperatureMax == nil {
				return 0
			}
			return boolCredit(filter.TemperatureMatches(it, temp))
		}})
	}

	if !prefs.Humidity.IsZero() {
		if bucket, ok := prefs.Humidity.Bucket(); ok {
			percent := prefs.Humidity.Percent
			out = append(out, factor{domain.FactorHumidity, func(it *domain.CatalogItem) float64 {
				if it.HumidityMin == nil && it.HumidityMax == nil && it.HumidityLevel == "" {
					return 0
				}
				return boolCredit(filter.HumidityMatches(it, percent, bucket))
			}})
		}
	}

	return out
}

func boolCredit(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// maintenanceCredit is 1 - distance/2 over low, medium, high.
func maintenanceCredit(item, want domain.MaintenanceLevel) float64 {
	if item.Rank() < 0 {
		return 0
	}
	d := math.Abs(float64(item.Rank() - want.Rank()))
	return 1 - d/2
}

// experienceCredit is 1 for the user's own level, 0.75 for easier items and
// 1 - 0.5n for items n levels harder, floored at 0.
func experienceCredit(it *domain.CatalogItem, want domain.ExperienceLevel) float64 {
	got, ok := domain.ItemExperience(it)
	if !ok {
		return 0
	}
	switch diff := got.Rank() - want.Rank(); {
	case diff == 0:
		return 1
	case diff < 0:
		return 0.75
	default:
		return math.Max(0, 1-0.5*float64(diff))
	}
}

// functionCredit is the fraction of requested functions the item covers
// through its functions or tags.
func functionCredit(it *domain.CatalogItem, want map[string]struct{}) float64 {
	have := make(map[string]struct{}, len(it.Functions)+len(it.Tags))
	for _, f := range it.Functions {
		have[f] = struct{}{}
	}
	for _, t := range it.Tags {
		have[t] = struct{}{}
	}
	hit := 0
	for f := range want {
		if _, ok := have[f]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(want))
}
