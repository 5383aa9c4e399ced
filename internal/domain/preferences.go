package domain

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Ranking factor names. They double as keys of Preferences.Weights and of
// ScoredItem.ScoreComponents.
const (
	FactorLocation    = "location"
	FactorLight       = "light"
	FactorMaintenance = "maintenance"
	FactorExperience  = "experience"
	FactorFunctions   = "functions"
	FactorTemperature = "temperature"
	FactorHumidity    = "humidity"
)

// Factors lists the ranking factors in the order explanations are reported.
var Factors = []string{
	FactorLocation, FactorLight, FactorMaintenance, FactorExperience,
	FactorFunctions, FactorTemperature, FactorHumidity,
}

// Humidity is a humidity preference given either as a relative humidity
// percentage or as a qualitative level. In JSON it may be a number, a numeric
// string, or one of "low", "medium", "high".
type Humidity struct {
	Percent *float64
	Level   string // raw level text when not numeric
}

// UnmarshalJSON accepts a number or a string.
func (h *Humidity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*h = Humidity{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*h = HumidityFromString(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("humidity must be a number or a level: %w", err)
	}
	*h = Humidity{Percent: &f}
	return nil
}

// MarshalJSON writes the percentage when set, else the level.
func (h Humidity) MarshalJSON() ([]byte, error) {
	if h.Percent != nil {
		return json.Marshal(*h.Percent)
	}
	return json.Marshal(h.Level)
}

// HumidityFromString parses "55" as a percentage and anything else as a level.
func HumidityFromString(s string) Humidity {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Humidity{Percent: &f}
	}
	return Humidity{Level: s}
}

// Bucket resolves the preference to a qualitative level. Returns false when
// the level text is not recognised or the percentage is out of range.
func (h Humidity) Bucket() (HumidityLevel, bool) {
	if h.Percent != nil {
		if *h.Percent < 0 || *h.Percent > 100 {
			return "", false
		}
		return HumidityBucket(*h.Percent), true
	}
	return ParseHumidityLevel(h.Level)
}

// IsZero reports whether no humidity preference was given.
func (h *Humidity) IsZero() bool {
	return h == nil || (h.Percent == nil && strings.TrimSpace(h.Level) == "")
}

// Preferences are the filter and ranking inputs of one recommendation request.
// Location is required; every other criterion is optional and an empty value
// means "not declared".
type Preferences struct {
	Location        string             `json:"location" yaml:"location"`
	ExperienceLevel string             `json:"experience_level,omitempty" yaml:"experience_level"`
	Maintenance     string             `json:"maintenance,omitempty" yaml:"maintenance"`
	Functions       []string           `json:"functions,omitempty" yaml:"functions"`
	Light           string             `json:"light,omitempty" yaml:"light"`
	LightWattage    *float64           `json:"light_wattage,omitempty" yaml:"light_wattage"`
	Temperature     *float64           `json:"temperature,omitempty" yaml:"temperature"`
	Humidity        *Humidity          `json:"humidity,omitempty" yaml:"-"`
	SearchTerm      string             `json:"search_term,omitempty" yaml:"search_term"`
	Weights         map[string]float64 `json:"weights,omitempty" yaml:"weights"`

	// Pagination and limits. These never influence filtering or ranking.
	MaxResults  int `json:"max_results,omitempty" yaml:"max_results"`
	MaxProducts int `json:"max_products,omitempty" yaml:"max_products"`
	MaxKits     int `json:"max_kits,omitempty" yaml:"max_kits"`
	Offset      int `json:"offset,omitempty" yaml:"offset"`
}

// Validate rejects requests that cannot be served. Only the required location
// is checked here; malformed optional criteria are handled by their filters.
func (p *Preferences) Validate() error {
	const op = "preferences.validate"
	if p == nil {
		return Invalid(op, "preferences are required")
	}
	if strings.TrimSpace(p.Location) == "" {
		return Invalid(op, "location is required")
	}
	return nil
}

// FunctionSet returns the requested functions as a canonical set.
func (p *Preferences) FunctionSet() map[string]struct{} {
	set := make(map[string]struct{}, len(p.Functions))
	for _, f := range p.Functions {
		if c := Canonical(f); c != "" {
			set[c] = struct{}{}
		}
	}
	return set
}

// FilterKey is the subset of preferences that influences which items are
// returned and in what order. Limits and offset are excluded so requests
// differing only in page size share a cache entry.
type FilterKey struct {
	Location        string             `json:"location"`
	ExperienceLevel string             `json:"experience_level,omitempty"`
	Maintenance     string             `json:"maintenance,omitempty"`
	Functions       []string           `json:"functions,omitempty"`
	Light           string             `json:"light,omitempty"`
	LightWattage    *float64           `json:"light_wattage,omitempty"`
	Temperature     *float64           `json:"temperature,omitempty"`
	Humidity        string             `json:"humidity,omitempty"`
	SearchTerm      string             `json:"search_term,omitempty"`
	Weights         map[string]float64 `json:"weights,omitempty"`
}

// Key builds the canonical FilterKey. Text fields are canonicalized and
// functions deduplicated and sorted, so "Kitchen" and "kitchen" share a
// cache entry.
func (p *Preferences) Key() FilterKey {
	k := FilterKey{
		Location:        Canonical(p.Location),
		ExperienceLevel: Canonical(p.ExperienceLevel),
		Maintenance:     Canonical(p.Maintenance),
		Light:           Canonical(p.Light),
		LightWattage:    p.LightWattage,
		Temperature:     p.Temperature,
		SearchTerm:      Canonical(p.SearchTerm),
		Weights:         p.Weights,
	}
	for f := range p.FunctionSet() {
		k.Functions = append(k.Functions, f)
	}
	sort.Strings(k.Functions)
	if !p.Humidity.IsZero() {
		if p.Humidity.Percent != nil {
			k.Humidity = strconv.FormatFloat(*p.Humidity.Percent, 'f', -1, 64)
		} else {
			k.Humidity = Canonical(p.Humidity.Level)
		}
	}
	return k
}
