package recommend

import (
	"sort"
	"strconv"

	"github.com/verdance/verdance/platform/internal/domain"
	"github.com/verdance/verdance/platform/internal/filter"
)

// suggest proposes, for every applied criterion, the value most common among
// the visible catalog plants other than the one requested. An empty
// Suggested value means dropping the criterion.
func suggest(visible []domain.CatalogItem, prefs domain.Preferences, applied []string) []domain.Suggestion {
	out := []domain.Suggestion{}
	for _, stage := range applied {
		var s domain.Suggestion
		var ok bool
		switch stage {
		case filter.StageSearch:
			s = domain.Suggestion{Criterion: stage, Current: prefs.SearchTerm, Matches: len(visible)}
			ok = len(visible) > 0
		case filter.StageLocation:
			s, ok = mostCommon(stage, domain.Canonical(prefs.Location), visible, func(it *domain.CatalogItem) []string {
				return it.CompatibleLocations
			})
		case filter.StageExperience:
			s, ok = mostCommon(stage, domain.Canonical(prefs.ExperienceLevel), visible, func(it *domain.CatalogItem) []string {
				if lvl, ok := domain.ItemExperience(it); ok {
					return []string{string(lvl)}
				}
				return nil
			})
		case filter.StageMaintenance:
			s, ok = mostCommon(stage, canonicalMaintenance(prefs.Maintenance), visible, func(it *domain.CatalogItem) []string {
				return nonEmpty(string(it.Maintenance))
			})
		case filter.StageFunctions:
			requested := prefs.FunctionSet()
			s, ok = mostCommonExcluding(stage, joinSet(prefs.Functions), visible, requested, func(it *domain.CatalogItem) []string {
				return append(append([]string(nil), it.Functions...), it.Tags...)
			})
		case filter.StageLight:
			s, ok = mostCommon(stage, canonicalLight(prefs.Light), visible, func(it *domain.CatalogItem) []string {
				return nonEmpty(string(it.LEDLight), string(it.NaturalLight))
			})
		case filter.StageWattage:
			s, ok = mostCommon(stage, formatPtr(prefs.LightWattage), visible, func(it *domain.CatalogItem) []string {
				return nonEmpty(formatPtr(it.MinWattage))
			})
		case filter.StageTemperature:
			s, ok = mostCommon(stage, formatPtr(prefs.Temperature), visible, func(it *domain.CatalogItem) []string {
				return nonEmpty(formatRange(it.TemperatureMin, it.TemperatureMax))
			})
		case filter.StageHumidity:
			current := ""
			if prefs.Humidity != nil {
				if b, valid := prefs.Humidity.Bucket(); valid {
					current = string(b)
				}
			}
			s, ok = mostCommon(stage, current, visible, func(it *domain.CatalogItem) []string {
				return nonEmpty(string(itemHumidity(it)))
			})
		}
		if ok {
			out = append(out, s)
		}
	}
	return out
}

func mostCommon(criterion, current string, items []domain.CatalogItem, values func(*domain.CatalogItem) []string) (domain.Suggestion, bool) {
	return mostCommonExcluding(criterion, current, items, map[string]struct{}{current: {}}, values)
}

// mostCommonExcluding counts each value once per item and returns the most
// frequent value not in exclude. Ties resolve alphabetically.
func mostCommonExcluding(criterion, current string, items []domain.CatalogItem, exclude map[string]struct{}, values func(*domain.CatalogItem) []string) (domain.Suggestion, bool) {
	counts := make(map[string]int)
	for i := range items {
		seen := make(map[string]struct{})
		for _, v := range values(&items[i]) {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			if _, skip := exclude[v]; skip {
				continue
			}
			counts[v]++
		}
	}
	if len(counts) == 0 {
		return domain.Suggestion{}, false
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	best := keys[0]
	for _, k := range keys[1:] {
		if counts[k] > counts[best] {
			best = k
		}
	}
	return domain.Suggestion{Criterion: criterion, Current: current, Suggested: best, Matches: counts[best]}, true
}

func canonicalMaintenance(s string) string {
	if m, ok := domain.ParseMaintenanceLevel(s); ok {
		return string(m)
	}
	return domain.Canonical(s)
}

func canonicalLight(s string) string {
	if l, ok := domain.ParseLightLevel(s); ok {
		return string(l)
	}
	return domain.Canonical(s)
}

// itemHumidity returns the item's qualitative humidity, deriving it from the
// declared range when no level is given.
func itemHumidity(it *domain.CatalogItem) domain.HumidityLevel {
	if it.HumidityLevel != "" {
		return it.HumidityLevel
	}
	switch {
	case it.HumidityMin != nil && it.HumidityMax != nil:
		return domain.HumidityBucket((*it.HumidityMin + *it.HumidityMax) / 2)
	case it.HumidityMin != nil:
		return domain.HumidityBucket(*it.HumidityMin)
	case it.HumidityMax != nil:
		return domain.HumidityBucket(*it.HumidityMax)
	}
	return ""
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func formatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatRange(lo, hi *float64) string {
	if lo == nil && hi == nil {
		return ""
	}
	return formatPtr(lo) + ".." + formatPtr(hi)
}

func joinSet(values []string) string {
	out := ""
	for _, v := range values {
		if c := domain.Canonical(v); c != "" {
			if out != "" {
				out += ","
			}
			out += c
		}
	}
	return out
}
