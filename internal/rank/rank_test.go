package rank_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verdance/verdance/platform/internal/domain"
	"github.com/verdance/verdance/platform/internal/rank"
)

func f(v float64) *float64 { return &v }

func ids(items []domain.ScoredItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func catalog() []domain.CatalogItem {
	return []domain.CatalogItem{
		{ID: "fern", CompatibleLocations: []string{"bathroom"}, Maintenance: domain.MaintenanceMedium, Difficulty: f(4)},
		{ID: "pothos", CompatibleLocations: []string{"office", "kitchen"}, Maintenance: domain.MaintenanceLow, Difficulty: f(1),
			NaturalLight: domain.LightLow, Functions: []string{"air purifying"}},
		{ID: "fiddle", CompatibleLocations: []string{"office"}, Maintenance: domain.MaintenanceHigh, Difficulty: f(8),
			NaturalLight: domain.LightBrightIndirect},
		{ID: "snake", CompatibleLocations: []string{"office"}, Maintenance: domain.MaintenanceLow, Difficulty: f(2),
			NaturalLight: domain.LightLow, Tags: []string{"air purifying", "pet safe"}},
	}
}

// --- Weights ---

func TestDefaultWeights(t *testing.T) {
	w := rank.DefaultWeights()

	assert.Equal(t, 3.0, w[domain.FactorLocation])
	assert.Equal(t, 2.5, w[domain.FactorLight])
	assert.Equal(t, 2.0, w[domain.FactorMaintenance])
	assert.Equal(t, 1.5, w[domain.FactorExperience])
	assert.Equal(t, 1.0, w[domain.FactorFunctions])
	assert.Equal(t, 0.8, w[domain.FactorTemperature])
	assert.Equal(t, 0.7, w[domain.FactorHumidity])
	assert.NoError(t, w.Validate())
}

func TestWeights_Resolve_IgnoresInvalidOverrides(t *testing.T) {
	w, warnings := rank.DefaultWeights().Resolve(map[string]float64{
		"Location": 5,
		"light":    -1,
		"humidity": math.NaN(),
		"color":    2,
	})

	assert.Equal(t, 5.0, w[domain.FactorLocation])
	assert.Equal(t, 2.5, w[domain.FactorLight])
	assert.Equal(t, 0.7, w[domain.FactorHumidity])
	assert.Len(t, warnings, 3)
}

func TestWeights_Validate_Rejects(t *testing.T) {
	assert.Error(t, rank.Weights{"color": 1}.Validate())
	assert.Error(t, rank.Weights{domain.FactorLight: -2}.Validate())
}

// --- Rank ---

func TestRank_IsPermutationOfInput(t *testing.T) {
	r := rank.New(nil)
	items := catalog()

	out, _ := r.Rank(items, domain.Preferences{Location: "office", Maintenance: "low", Light: "low"}, domain.TierFree)

	assert.ElementsMatch(t, []string{"fern", "pothos", "fiddle", "snake"}, ids(out))
}

func TestRank_OrdersByScore(t *testing.T) {
	r := rank.New(nil)

	out, _ := r.Rank(catalog(), domain.Preferences{
		Location:        "office",
		Maintenance:     "low",
		ExperienceLevel: "beginner",
		Functions:       []string{"air purifying", "pet safe"},
	}, domain.TierFree)

	assert.Equal(t, []string{"snake", "pothos", "fiddle", "fern"}, ids(out))
	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i-1].MatchScore, out[i].MatchScore)
	}
}

func TestRank_TiesKeepInputOrder(t *testing.T) {
	r := rank.New(nil)
	items := []domain.CatalogItem{
		{ID: "b", CompatibleLocations: []string{"office"}},
		{ID: "a", CompatibleLocations: []string{"office"}},
		{ID: "c", CompatibleLocations: []string{"office"}},
	}

	out, _ := r.Rank(items, domain.Preferences{Location: "office"}, domain.TierFree)

	assert.Equal(t, []string{"b", "a", "c"}, ids(out))
}

func TestRank_IsDeterministic(t *testing.T) {
	r := rank.New(nil)
	prefs := domain.Preferences{Location: "office", Light: "low", Maintenance: "medium"}

	first, _ := r.Rank(catalog(), prefs, domain.TierPremium)
	for i := 0; i < 20; i++ {
		again, _ := r.Rank(catalog(), prefs, domain.TierPremium)
		assert.Equal(t, first, again)
	}
}

func TestRank_NormalizedScoreInRange(t *testing.T) {
	r := rank.New(nil)
	h := domain.HumidityFromString("55")
	prefs := domain.Preferences{
		Location: "office", Light: "bright indirect", Maintenance: "high",
		ExperienceLevel: "advanced", Functions: []string{"air purifying"},
		Temperature: f(21), Humidity: &h,
	}

	out, _ := r.Rank(catalog(), prefs, domain.TierFree)

	for _, it := range out {
		assert.GreaterOrEqual(t, it.NormalizedScore, 0.0)
		assert.LessOrEqual(t, it.NormalizedScore, 100.0)
		assert.Equal(t, math.Round(it.NormalizedScore*10)/10, it.NormalizedScore, "one decimal")
	}
}

func TestRank_ZeroMaxScore_NormalizesToZero(t *testing.T) {
	r := rank.New(nil)

	out, _ := r.Rank(catalog(), domain.Preferences{Location: "office", Weights: map[string]float64{"location": 0}}, domain.TierFree)

	for _, it := range out {
		assert.Equal(t, 0.0, it.MaxPossibleScore)
		assert.Equal(t, 0.0, it.NormalizedScore)
	}
}

func TestRank_ScoreComponents(t *testing.T) {
	r := rank.New(nil)

	out, _ := r.Rank([]domain.CatalogItem{catalog()[1]}, domain.Preferences{
		Location:        "office",
		Maintenance:     "high",
		ExperienceLevel: "intermediate",
		Functions:       []string{"air purifying", "edible"},
	}, domain.TierFree)

	require.Len(t, out, 1)
	c := out[0].ScoreComponents
	assert.Equal(t, 3.0, c[domain.FactorLocation])
	assert.Equal(t, 0.0, c[domain.FactorMaintenance], "low vs high is distance 2")
	assert.Equal(t, 1.5*0.75, c[domain.FactorExperience], "easier item")
	assert.Equal(t, 0.5, c[domain.FactorFunctions], "one of two functions")
	assert.Equal(t, 3.0+2.0+1.5+1.0, out[0].MaxPossibleScore)
	assert.Empty(t, out[0].ScoreExplanation, "free tier gets no explanation")
}

func TestRank_ExperienceCredit_HarderItems(t *testing.T) {
	r := rank.New(nil)
	items := []domain.CatalogItem{
		{ID: "same", Difficulty: f(1)},
		{ID: "one-harder", Difficulty: f(5)},
		{ID: "two-harder", Difficulty: f(9)},
	}

	out, _ := r.Rank(items, domain.Preferences{ExperienceLevel: "beginner"}, domain.TierFree)

	byID := map[string]float64{}
	for _, it := range out {
		byID[it.ID] = it.ScoreComponents[domain.FactorExperience]
	}
	assert.Equal(t, 1.5, byID["same"])
	assert.Equal(t, 0.75, byID["one-harder"])
	assert.Equal(t, 0.0, byID["two-harder"])
}

func TestRank_WeightOverrideChangesOrder(t *testing.T) {
	r := rank.New(nil)
	items := []domain.CatalogItem{
		{ID: "right-place", CompatibleLocations: []string{"office"}, Maintenance: domain.MaintenanceHigh},
		{ID: "easy-care", Maintenance: domain.MaintenanceLow},
	}
	prefs := domain.Preferences{Location: "office", Maintenance: "low"}

	out, _ := r.Rank(items, prefs, domain.TierFree)
	assert.Equal(t, []string{"right-place", "easy-care"}, ids(out))

	prefs.Weights = map[string]float64{"maintenance": 10}
	out, _ = r.Rank(items, prefs, domain.TierFree)
	assert.Equal(t, []string{"easy-care", "right-place"}, ids(out))
}

func TestRank_ExplanationForSubscribers(t *testing.T) {
	r := rank.New(nil)

	out, _ := r.Rank([]domain.CatalogItem{catalog()[3]}, domain.Preferences{Location: "office", Light: "low"}, domain.TierSubscriber)

	require.Len(t, out, 1)
	assert.Equal(t, []domain.ScoreExplanation{
		{Factor: "location", Score: 3, MaxPossible: 3, Percentage: 100},
		{Factor: "light", Score: 2.5, MaxPossible: 2.5, Percentage: 100},
	}, out[0].ScoreExplanation)
	assert.Equal(t, 100.0, out[0].NormalizedScore)
}

func TestRank_UnknownCriteriaAreNotScored(t *testing.T) {
	r := rank.New(nil)

	out, _ := r.Rank(catalog(), domain.Preferences{Location: "office", Light: "moonlight"}, domain.TierFree)

	for _, it := range out {
		_, has := it.ScoreComponents[domain.FactorLight]
		assert.False(t, has)
		assert.Equal(t, 3.0, it.MaxPossibleScore)
	}
}

func TestNew_OverridesDefaults(t *testing.T) {
	r := rank.New(rank.Weights{domain.FactorLocation: 10})

	w := r.Weights()
	assert.Equal(t, 10.0, w[domain.FactorLocation])
	assert.Equal(t, 2.5, w[domain.FactorLight])
}
