package domain

import "strings"

// Canonical lower-cases and trims s. All list values and enumerations in the
// core are stored in this form.
func Canonical(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ExperienceLevel is the user's gardening experience.
type ExperienceLevel string

const (
	ExperienceBeginner     ExperienceLevel = "beginner"
	ExperienceIntermediate ExperienceLevel = "intermediate"
	ExperienceAdvanced     ExperienceLevel = "advanced"
)

// experienceOrder ranks levels; the ceiling is the inclusive max numeric difficulty.
var experienceOrder = []struct {
	level   ExperienceLevel
	ceiling float64
}{
	{ExperienceBeginner, 3},
	{ExperienceIntermediate, 6},
	{ExperienceAdvanced, 10},
}

// ParseExperienceLevel returns the level for s, or false if s is not one of
// beginner, intermediate or advanced.
func ParseExperienceLevel(s string) (ExperienceLevel, bool) {
	switch ExperienceLevel(Canonical(s)) {
	case ExperienceBeginner:
		return ExperienceBeginner, true
	case ExperienceIntermediate:
		return ExperienceIntermediate, true
	case ExperienceAdvanced:
		return ExperienceAdvanced, true
	}
	return "", false
}

// Rank returns 0 for beginner, 1 for intermediate, 2 for advanced, -1 otherwise.
func (e ExperienceLevel) Rank() int {
	for i, o := range experienceOrder {
		if o.level == e {
			return i
		}
	}
	return -1
}

// Ceiling returns the inclusive maximum numeric difficulty for the level.
func (e ExperienceLevel) Ceiling() float64 {
	for _, o := range experienceOrder {
		if o.level == e {
			return o.ceiling
		}
	}
	return 0
}

// ExperienceForDifficulty maps a numeric difficulty onto the lowest level whose
// ceiling covers it. Values above 10 map to advanced.
func ExperienceForDifficulty(d float64) ExperienceLevel {
	for _, o := range experienceOrder {
		if d <= o.ceiling {
			return o.level
		}
	}
	return ExperienceAdvanced
}

// ExperienceFromLabel applies substring heuristics to non-numeric difficulty
// text. Returns false when no heuristic matches.
func ExperienceFromLabel(label string) (ExperienceLevel, bool) {
	l := Canonical(label)
	if l == "" {
		return "", false
	}
	if lvl, ok := ParseExperienceLevel(l); ok {
		return lvl, true
	}
	switch {
	case containsAny(l, "easy", "beginner", "simple", "novice"):
		return ExperienceBeginner, true
	case containsAny(l, "moderate", "medium", "intermediate", "average"):
		return ExperienceIntermediate, true
	case containsAny(l, "hard", "difficult", "advanced", "expert", "challenging"):
		return ExperienceAdvanced, true
	}
	return "", false
}

// ItemExperience resolves an item's difficulty to a level, preferring the
// numeric value and falling back to the label heuristics.
func ItemExperience(item *CatalogItem) (ExperienceLevel, bool) {
	if item.Difficulty != nil {
		return ExperienceForDifficulty(*item.Difficulty), true
	}
	return ExperienceFromLabel(item.DifficultyLabel)
}

// MaintenanceLevel is how much upkeep an item needs or a user accepts.
type MaintenanceLevel string

const (
	MaintenanceLow    MaintenanceLevel = "low"
	MaintenanceMedium MaintenanceLevel = "medium"
	MaintenanceHigh   MaintenanceLevel = "high"
)

var maintenanceOrder = []MaintenanceLevel{MaintenanceLow, MaintenanceMedium, MaintenanceHigh}

// ParseMaintenanceLevel accepts the canonical levels plus common synonyms.
func ParseMaintenanceLevel(s string) (MaintenanceLevel, bool) {
	switch Canonical(s) {
	case "low", "minimal", "easy":
		return MaintenanceLow, true
	case "medium", "moderate", "average":
		return MaintenanceMedium, true
	case "high", "demanding":
		return MaintenanceHigh, true
	}
	return "", false
}

// Rank returns the level's position in low < medium < high, or -1.
func (m MaintenanceLevel) Rank() int {
	return indexOf(maintenanceOrder, m)
}

// MaintenanceLevels returns the levels in ascending order.
func MaintenanceLevels() []MaintenanceLevel {
	return append([]MaintenanceLevel(nil), maintenanceOrder...)
}

// LightLevel is a light requirement or the light a location provides.
type LightLevel string

const (
	LightLow            LightLevel = "low"
	LightMedium         LightLevel = "medium"
	LightBrightIndirect LightLevel = "bright_indirect"
	LightDirect         LightLevel = "direct"
)

var lightOrder = []LightLevel{LightLow, LightMedium, LightBrightIndirect, LightDirect}

// ParseLightLevel accepts the canonical levels plus common horticultural phrasing.
func ParseLightLevel(s string) (LightLevel, bool) {
	l := strings.NewReplacer("-", " ", "_", " ").Replace(Canonical(s))
	l = strings.Join(strings.Fields(l), " ")
	switch l {
	case "low", "low light", "shade", "full shade", "dim":
		return LightLow, true
	case "medium", "medium light", "moderate", "partial shade", "part shade", "partial sun", "indirect":
		return LightMedium, true
	case "bright indirect", "bright", "bright light", "bright filtered", "filtered":
		return LightBrightIndirect, true
	case "direct", "full sun", "direct sun", "high", "full":
		return LightDirect, true
	}
	return "", false
}

// Rank returns the level's position in low < medium < bright_indirect < direct, or -1.
func (l LightLevel) Rank() int {
	return indexOf(lightOrder, l)
}

// LightLevels returns the levels in ascending order.
func LightLevels() []LightLevel {
	return append([]LightLevel(nil), lightOrder...)
}

// HumidityLevel is a qualitative humidity bucket.
type HumidityLevel string

const (
	HumidityLow    HumidityLevel = "low"
	HumidityMedium HumidityLevel = "medium"
	HumidityHigh   HumidityLevel = "high"
)

// ParseHumidityLevel accepts low, medium (or moderate/average) and high.
func ParseHumidityLevel(s string) (HumidityLevel, bool) {
	switch Canonical(s) {
	case "low", "dry":
		return HumidityLow, true
	case "medium", "moderate", "average":
		return HumidityMedium, true
	case "high", "humid":
		return HumidityHigh, true
	}
	return "", false
}

// HumidityBucket collapses a relative humidity percentage: low < 40,
// medium 40-69, high >= 70.
func HumidityBucket(percent float64) HumidityLevel {
	switch {
	case percent < 40:
		return HumidityLow
	case percent < 70:
		return HumidityMedium
	default:
		return HumidityHigh
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func indexOf[T comparable](xs []T, x T) int {
	for i, v := range xs {
		if v == x {
			return i
		}
	}
	return -1
}
