package filter

import (
	"math"
	"strings"

	"github.com/verdance/verdance/platform/internal/domain"
)

// wattageTolerance lets a fixture slightly under an item's rated minimum
// still qualify.
const wattageTolerance = 0.9

// ByVisibility hides premium content from tiers that cannot see it.
func ByVisibility(items []domain.CatalogItem, tier domain.SubscriptionTier) Outcome {
	if tier.SeesPremiumContent() {
		return passThrough(items)
	}
	return keep(items, func(it *domain.CatalogItem) bool { return !it.IsPremiumContent })
}

// BySearch keeps items whose name, scientific name, description or
// searchable text contains term, case-insensitively.
func BySearch(items []domain.CatalogItem, term string) Outcome {
	term = domain.Canonical(term)
	if term == "" {
		return passThrough(items)
	}
	return keep(items, func(it *domain.CatalogItem) bool {
		return containsFold(it.Name, term) ||
			containsFold(it.ScientificName, term) ||
			containsFold(it.Description, term) ||
			strings.Contains(it.SearchableText, term)
	})
}

func containsFold(s, lowerTerm string) bool {
	return s != "" && strings.Contains(strings.ToLower(s), lowerTerm)
}

// ByLocation keeps items listing location among their compatible locations.
func ByLocation(items []domain.CatalogItem, location string) Outcome {
	if domain.Canonical(location) == "" {
		return passThrough(items)
	}
	return keep(items, func(it *domain.CatalogItem) bool { return it.HasLocation(location) })
}

// ByExperience keeps items no harder than the user's level allows. Items
// whose difficulty cannot be resolved pass.
func ByExperience(items []domain.CatalogItem, level string) Outcome {
	if domain.Canonical(level) == "" {
		return passThrough(items)
	}
	want, ok := domain.ParseExperienceLevel(level)
	if !ok {
		return warn(items, "unknown experience level %q", level)
	}
	return keep(items, func(it *domain.CatalogItem) bool {
		got, known := domain.ItemExperience(it)
		return !known || got.Rank() <= want.Rank()
	})
}

// ByMaintenance keeps items whose upkeep is at most the accepted level:
// low accepts only low, medium accepts low and medium, high accepts all.
// Items without a declared level pass.
func ByMaintenance(items []domain.CatalogItem, level string) Outcome {
	if domain.Canonical(level) == "" {
		return passThrough(items)
	}
	want, ok := domain.ParseMaintenanceLevel(level)
	if !ok {
		return warn(items, "unknown maintenance level %q", level)
	}
	return keep(items, func(it *domain.CatalogItem) bool {
		return it.Maintenance.Rank() < 0 || it.Maintenance.Rank() <= want.Rank()
	})
}

// ByFunctions keeps items whose functions or tags overlap the requested set.
func ByFunctions(items []domain.CatalogItem, functions []string) Outcome {
	want := make(map[string]struct{}, len(functions))
	for _, f := range functions {
		if c := domain.Canonical(f); c != "" {
			want[c] = struct{}{}
		}
	}
	if len(want) == 0 {
		return passThrough(items)
	}
	return keep(items, func(it *domain.CatalogItem) bool {
		return overlaps(it.Functions, want) || overlaps(it.Tags, want)
	})
}

func overlaps(values []string, set map[string]struct{}) bool {
	for _, v := range values {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}

// ByLight keeps items whose LED or natural light requirement is satisfied by
// the available level. Items declaring neither pass.
func ByLight(items []domain.CatalogItem, level string) Outcome {
	if domain.Canonical(level) == "" {
		return passThrough(items)
	}
	avail, ok := domain.ParseLightLevel(level)
	if !ok {
		return warn(items, "unknown light level %q", level)
	}
	return keep(items, func(it *domain.CatalogItem) bool {
		led, natural := it.LEDLight.Rank(), it.NaturalLight.Rank()
		if led < 0 && natural < 0 {
			return true
		}
		return (led >= 0 && led <= avail.Rank()) || (natural >= 0 && natural <= avail.Rank())
	})
}

// ByWattage keeps items whose minimum wattage, less a 10% tolerance, is
// covered by the available wattage. Items with a missing or corrupt minimum pass.
func ByWattage(items []domain.CatalogItem, wattage *float64) Outcome {
	if wattage == nil {
		return passThrough(items)
	}
	w := *wattage
	if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
		return warn(items, "invalid light wattage %v", w)
	}
	return keep(items, func(it *domain.CatalogItem) bool {
		if it.MinWattage == nil || it.WattageInvalid {
			return true
		}
		return *it.MinWattage*wattageTolerance <= w
	})
}

// ByTemperature keeps items whose tolerated range contains temp. An open
// bound does not constrain.
func ByTemperature(items []domain.CatalogItem, temp *float64) Outcome {
	if temp == nil {
		return passThrough(items)
	}
	t := *temp
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return warn(items, "invalid temperature %v", t)
	}
	return keep(items, func(it *domain.CatalogItem) bool {
		return withinRange(t, it.TemperatureMin, it.TemperatureMax)
	})
}

// ByHumidity keeps items compatible with the humidity preference. A
// percentage is checked against the item's range when it has one, else its
// bucket; a level is compared with the item's bucket, derived from the range
// midpoint when only a range is known. Items declaring neither pass.
func ByHumidity(items []domain.CatalogItem, humidity *domain.Humidity) Outcome {
	if humidity.IsZero() {
		return passThrough(items)
	}
	bucket, ok := humidity.Bucket()
	if !ok {
		if humidity.Percent != nil {
			return warn(items, "humidity %v out of range", *humidity.Percent)
		}
		return warn(items, "unknown humidity level %q", humidity.Level)
	}
	return keep(items, func(it *domain.CatalogItem) bool {
		return humidityMatches(it, humidity.Percent, bucket)
	})
}

// HumidityMatches reports whether it is compatible with a humidity
// preference already resolved to percent (may be nil) and bucket.
func HumidityMatches(it *domain.CatalogItem, percent *float64, bucket domain.HumidityLevel) bool {
	return humidityMatches(it, percent, bucket)
}

func humidityMatches(it *domain.CatalogItem, percent *float64, bucket domain.HumidityLevel) bool {
	hasRange := it.HumidityMin != nil || it.HumidityMax != nil
	if percent != nil && hasRange {
		return withinRange(*percent, it.HumidityMin, it.HumidityMax)
	}
	if it.HumidityLevel != "" {
		return it.HumidityLevel == bucket
	}
	if hasRange {
		return domain.HumidityBucket(rangeMidpoint(it.HumidityMin, it.HumidityMax)) == bucket
	}
	return true
}

// TemperatureMatches reports whether temp lies in the item's tolerated range.
func TemperatureMatches(it *domain.CatalogItem, temp float64) bool {
	return withinRange(temp, it.TemperatureMin, it.TemperatureMax)
}

func withinRange(v float64, lo, hi *float64) bool {
	if lo != nil && v < *lo {
		return false
	}
	if hi != nil && v > *hi {
		return false
	}
	return true
}

func rangeMidpoint(lo, hi *float64) float64 {
	switch {
	case lo != nil && hi != nil:
		return (*lo + *hi) / 2
	case lo != nil:
		return *lo
	default:
		return *hi
	}
}
