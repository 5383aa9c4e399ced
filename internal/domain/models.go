// Package domain defines the core types shared across the recommendation core.
// These types describe catalog items, user preferences and the response
// contract. They carry json tags because the CLI and any outer collaborator
// serialize them directly.
//
// Catalog records arrive from collaborators as loosely-typed mappings. They
// are converted into CatalogItem exactly once by catalog.Normalize; nothing
// downstream of that boundary re-parses strings into lists or numbers.
package domain

import "time"

// ItemKind identifies which catalog collection an item belongs to.
type ItemKind string

const (
	KindPlant   ItemKind = "plant"
	KindProduct ItemKind = "product"
	KindKit     ItemKind = "kit"
)

// ValidItemKind checks if a string is a known item kind.
func ValidItemKind(s string) bool {
	switch ItemKind(s) {
	case KindPlant, KindProduct, KindKit:
		return true
	}
	return false
}

// CareFrequency is the canonical bucket a care task repeats in.
type CareFrequency string

const (
	FrequencyDaily     CareFrequency = "daily"
	FrequencyWeekly    CareFrequency = "weekly"
	FrequencyMonthly   CareFrequency = "monthly"
	FrequencyQuarterly CareFrequency = "quarterly"
	FrequencyAnnually  CareFrequency = "annually"
)

// CareFrequencies lists the buckets in ascending interval order.
var CareFrequencies = []CareFrequency{
	FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyAnnually,
}

// CareTask is a recurring care action declared by a plant record
// (e.g. watering_frequency: "weekly" becomes {Task: "watering", Frequency: weekly}).
type CareTask struct {
	Task      string        `json:"task"`
	Frequency CareFrequency `json:"frequency"`
}

// CatalogItem is a normalized plant, product or kit record.
// Optional numeric facts are pointers: nil means the source did not declare them.
type CatalogItem struct {
	ID             string   `json:"id"`
	Kind           ItemKind `json:"kind"`
	Name           string   `json:"name"`
	ScientificName string   `json:"scientific_name,omitempty"`
	Description    string   `json:"description,omitempty"`

	// SearchableText is a lower-cased concatenation of the item's text fields,
	// built at ingestion for the search filter.
	SearchableText string `json:"-"`

	CompatibleLocations []string `json:"compatible_locations,omitempty"`
	Functions           []string `json:"functions,omitempty"`
	Tags                []string `json:"tags,omitempty"`

	// Difficulty is the numeric 1-10 difficulty. DifficultyLabel holds the raw
	// text when the source used words ("easy", "moderate") instead of numbers.
	Difficulty      *float64 `json:"difficulty,omitempty"`
	DifficultyLabel string   `json:"difficulty_label,omitempty"`

	Maintenance  MaintenanceLevel `json:"maintenance,omitempty"`
	LEDLight     LightLevel       `json:"led_light,omitempty"`
	NaturalLight LightLevel       `json:"natural_light,omitempty"`

	MinWattage     *float64 `json:"min_wattage,omitempty"`
	WattageInvalid bool     `json:"-"` // source value present but unparseable

	TemperatureMin *float64 `json:"temperature_min,omitempty"`
	TemperatureMax *float64 `json:"temperature_max,omitempty"`

	HumidityMin   *float64      `json:"humidity_min,omitempty"`
	HumidityMax   *float64      `json:"humidity_max,omitempty"`
	HumidityLevel HumidityLevel `json:"humidity_level,omitempty"`

	CareTasks []CareTask `json:"care_tasks,omitempty"`

	// Product facts.
	Category string   `json:"category,omitempty"`
	Price    *float64 `json:"price,omitempty"`

	// Kit facts.
	PlantIDs   []string `json:"plant_ids,omitempty"`
	ProductIDs []string `json:"product_ids,omitempty"`

	IsPremiumContent bool `json:"is_premium_content"`

	// Attributes keeps source keys the normalizer does not model.
	Attributes map[string]any `json:"attributes,omitempty"`
}

// HasLocation reports whether loc (case-insensitive) is among the item's
// compatible locations. Locations are lower-cased at ingestion.
func (c *CatalogItem) HasLocation(loc string) bool {
	loc = Canonical(loc)
	for _, l := range c.CompatibleLocations {
		if l == loc {
			return true
		}
	}
	return false
}

// PlantProduct is one row of the plant/product compatibility relation.
type PlantProduct struct {
	PlantID             string `json:"plant_id"`
	ProductID           string `json:"product_id"`
	CompatibilityRating int    `json:"compatibility_rating"` // 1-5
	PrimaryPurpose      string `json:"primary_purpose,omitempty"`
	Notes               string `json:"notes,omitempty"`
}

// UsageSnapshot is a persisted quota counter from the user record.
type UsageSnapshot struct {
	PeriodKey string `json:"period_key"`
	Count     int    `json:"count"`
}

// User is the subset of the user record the core consumes.
type User struct {
	Email              string                   `json:"email"`
	SubscriptionStatus string                   `json:"subscription_status"`
	Tier               SubscriptionTier         `json:"tier"`
	RequestTracking    map[string]UsageSnapshot `json:"request_tracking,omitempty"`
}

// AnonymousUser is used when a request carries no user identity.
func AnonymousUser() User {
	return User{Email: "", SubscriptionStatus: string(TierFree), Tier: TierFree}
}

// QuotaKey returns the identity quotas are tracked under.
func (u User) QuotaKey() string {
	if u.Email == "" {
		return "anonymous"
	}
	return Canonical(u.Email)
}

// ScoreExplanation describes one ranking factor for subscriber and premium callers.
type ScoreExplanation struct {
	Factor      string  `json:"factor"`
	Score       float64 `json:"score"`
	MaxPossible float64 `json:"max_possible"`
	Percentage  float64 `json:"percentage"`
}

// ScoredItem is a catalog item with its ranking result attached.
type ScoredItem struct {
	CatalogItem
	MatchScore       float64            `json:"match_score"`
	MaxPossibleScore float64            `json:"max_possible_score"`
	NormalizedScore  float64            `json:"normalized_score"`
	ScoreComponents  map[string]float64 `json:"score_components"`
	ScoreExplanation []ScoreExplanation `json:"score_explanation,omitempty"`
}

// ProductMatch is a product recommended alongside the ranked plants.
type ProductMatch struct {
	CatalogItem
	CompatibilityScore float64  `json:"compatibility_score"`
	CompatiblePlants   []string `json:"compatible_plants,omitempty"`
	PrimaryPurpose     string   `json:"primary_purpose,omitempty"`
}

// KitMatch is a kit recommended alongside the ranked plants.
type KitMatch struct {
	CatalogItem
	RelevanceScore float64  `json:"relevance_score"`
	MatchedPlants  []string `json:"matched_plants,omitempty"`
}

// ScheduledTask is one care task with its next due date.
type ScheduledTask struct {
	PlantID   string        `json:"plant_id"`
	PlantName string        `json:"plant_name"`
	Task      string        `json:"task"`
	Frequency CareFrequency `json:"frequency"`
	DueDate   time.Time     `json:"due_date"`
}

// CareSchedule buckets scheduled tasks by frequency.
type CareSchedule map[CareFrequency][]ScheduledTask
