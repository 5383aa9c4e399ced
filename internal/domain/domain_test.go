package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdance/verdance/platform/internal/domain"
)

// --- Tiers ---

func TestTierFromStatus(t *testing.T) {
	tests := []struct {
		status string
		want   domain.SubscriptionTier
	}{
		{"premium", domain.TierPremium},
		{" PRO ", domain.TierPremium},
		{"active", domain.TierSubscriber},
		{"trialing", domain.TierSubscriber},
		{"subscriber", domain.TierSubscriber},
		{"canceled", domain.TierFree},
		{"", domain.TierFree},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.TierFromStatus(tt.status))
		})
	}
}

func TestTierOrdering(t *testing.T) {
	assert.True(t, domain.TierPremium.AtLeast(domain.TierSubscriber))
	assert.True(t, domain.TierSubscriber.AtLeast(domain.TierSubscriber))
	assert.False(t, domain.TierFree.AtLeast(domain.TierSubscriber))
	assert.Equal(t, 0, domain.SubscriptionTier("gold").Rank(), "unknown tiers rank as free")

	assert.False(t, domain.TierFree.SeesPremiumContent())
	assert.True(t, domain.TierSubscriber.SeesPremiumContent())
	assert.True(t, domain.TierPremium.SeesPremiumContent())

	assert.True(t, domain.ValidTier("premium"))
	assert.False(t, domain.ValidTier("Premium"))
}

// --- Levels ---

func TestParseExperienceLevel(t *testing.T) {
	lvl, ok := domain.ParseExperienceLevel(" Beginner ")
	require.True(t, ok)
	assert.Equal(t, domain.ExperienceBeginner, lvl)

	_, ok = domain.ParseExperienceLevel("guru")
	assert.False(t, ok)
	assert.Equal(t, -1, domain.ExperienceLevel("guru").Rank())
}

func TestExperienceForDifficulty(t *testing.T) {
	tests := []struct {
		difficulty float64
		want       domain.ExperienceLevel
	}{
		{1, domain.ExperienceBeginner},
		{3, domain.ExperienceBeginner},
		{3.5, domain.ExperienceIntermediate},
		{6, domain.ExperienceIntermediate},
		{9, domain.ExperienceAdvanced},
		{42, domain.ExperienceAdvanced},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.difficulty), func(t *testing.T) {
			assert.Equal(t, tt.want, domain.ExperienceForDifficulty(tt.difficulty))
		})
	}
}

func TestExperienceFromLabel(t *testing.T) {
	tests := []struct {
		label string
		want  domain.ExperienceLevel
		ok    bool
	}{
		{"Easy", domain.ExperienceBeginner, true},
		{"moderately difficult", domain.ExperienceIntermediate, true},
		{"Challenging", domain.ExperienceAdvanced, true},
		{"advanced", domain.ExperienceAdvanced, true},
		{"varies", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, ok := domain.ExperienceFromLabel(tt.label)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestItemExperience_PrefersNumericDifficulty(t *testing.T) {
	d := 8.0
	item := domain.CatalogItem{Difficulty: &d, DifficultyLabel: "easy"}
	lvl, ok := domain.ItemExperience(&item)
	require.True(t, ok)
	assert.Equal(t, domain.ExperienceAdvanced, lvl)

	item = domain.CatalogItem{DifficultyLabel: "easy"}
	lvl, ok = domain.ItemExperience(&item)
	require.True(t, ok)
	assert.Equal(t, domain.ExperienceBeginner, lvl)

	_, ok = domain.ItemExperience(&domain.CatalogItem{})
	assert.False(t, ok)
}

func TestParseLightLevel(t *testing.T) {
	tests := map[string]domain.LightLevel{
		"low":             domain.LightLow,
		"Partial Shade":   domain.LightMedium,
		"bright-indirect": domain.LightBrightIndirect,
		"bright_indirect": domain.LightBrightIndirect,
		"Full Sun":        domain.LightDirect,
	}
	for in, want := range tests {
		got, ok := domain.ParseLightLevel(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := domain.ParseLightLevel("moonlight")
	assert.False(t, ok)
	assert.Equal(t, 3, domain.LightDirect.Rank())
}

func TestHumidityBucket(t *testing.T) {
	assert.Equal(t, domain.HumidityLow, domain.HumidityBucket(39.9))
	assert.Equal(t, domain.HumidityMedium, domain.HumidityBucket(40))
	assert.Equal(t, domain.HumidityMedium, domain.HumidityBucket(69))
	assert.Equal(t, domain.HumidityHigh, domain.HumidityBucket(70))
}

// --- Humidity preference ---

func TestHumidity_UnmarshalJSON(t *testing.T) {
	var prefs domain.Preferences
	require.NoError(t, json.Unmarshal([]byte(`{"location":"kitchen","humidity":55}`), &prefs))
	require.NotNil(t, prefs.Humidity)
	require.NotNil(t, prefs.Humidity.Percent)
	assert.Equal(t, 55.0, *prefs.Humidity.Percent)

	prefs = domain.Preferences{}
	require.NoError(t, json.Unmarshal([]byte(`{"location":"kitchen","humidity":"60%"}`), &prefs))
	require.NotNil(t, prefs.Humidity.Percent)
	assert.Equal(t, 60.0, *prefs.Humidity.Percent)

	prefs = domain.Preferences{}
	require.NoError(t, json.Unmarshal([]byte(`{"location":"kitchen","humidity":"High"}`), &prefs))
	assert.Equal(t, "High", prefs.Humidity.Level)
	bucket, ok := prefs.Humidity.Bucket()
	require.True(t, ok)
	assert.Equal(t, domain.HumidityHigh, bucket)

	prefs = domain.Preferences{}
	assert.Error(t, json.Unmarshal([]byte(`{"location":"kitchen","humidity":[1]}`), &prefs))
}

func TestHumidity_Bucket(t *testing.T) {
	out := 120.0
	_, ok := domain.Humidity{Percent: &out}.Bucket()
	assert.False(t, ok, "percentages outside 0-100 are malformed")

	_, ok = domain.Humidity{Level: "soggy"}.Bucket()
	assert.False(t, ok)

	var nilHumidity *domain.Humidity
	assert.True(t, nilHumidity.IsZero())
	assert.True(t, (&domain.Humidity{Level: "  "}).IsZero())
}

func TestHumidity_MarshalJSON(t *testing.T) {
	p := 45.0
	data, err := json.Marshal(domain.Humidity{Percent: &p})
	require.NoError(t, err)
	assert.JSONEq(t, `45`, string(data))

	data, err = json.Marshal(domain.Humidity{Level: "low"})
	require.NoError(t, err)
	assert.JSONEq(t, `"low"`, string(data))
}

// --- Preferences ---

func TestPreferences_Validate(t *testing.T) {
	var nilPrefs *domain.Preferences
	assert.Equal(t, domain.EInvalidPreference, domain.ErrorCodeOf(nilPrefs.Validate()))

	prefs := &domain.Preferences{Location: "   "}
	err := prefs.Validate()
	assert.Equal(t, domain.EInvalidPreference, domain.ErrorCodeOf(err))
	assert.Equal(t, "location is required", domain.ErrorMessage(err))

	prefs.Location = "kitchen"
	assert.NoError(t, prefs.Validate())
}

func TestPreferences_Key(t *testing.T) {
	a := domain.Preferences{
		Location:   " Kitchen ",
		Functions:  []string{"Pet Safe", "air purifying", "pet safe", ""},
		Humidity:   &domain.Humidity{Level: "HIGH"},
		MaxResults: 5,
		Offset:     10,
	}
	b := domain.Preferences{
		Location:  "kitchen",
		Functions: []string{"air purifying", "pet safe"},
		Humidity:  &domain.Humidity{Level: "high"},
	}
	assert.Equal(t, a.Key(), b.Key(), "pagination and case do not change the key")
	assert.Equal(t, []string{"air purifying", "pet safe"}, a.Key().Functions)
	assert.Equal(t, "high", a.Key().Humidity)

	p := 55.0
	c := domain.Preferences{Location: "kitchen", Humidity: &domain.Humidity{Percent: &p}}
	assert.Equal(t, "55", c.Key().Humidity)
	assert.NotEqual(t, b.Key(), c.Key())
}

func TestPreferences_FunctionSet(t *testing.T) {
	prefs := domain.Preferences{Functions: []string{" Pet Safe", "pet safe", ""}}
	assert.Equal(t, map[string]struct{}{"pet safe": {}}, prefs.FunctionSet())
}

// --- Errors ---

func TestError_Chain(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("load: %w", domain.DataError(cause, "recommend.load_catalog", "catalog is unavailable"))

	assert.Equal(t, domain.EDataError, domain.ErrorCodeOf(err))
	assert.Equal(t, "catalog is unavailable", domain.ErrorMessage(err))
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "recommend.load_catalog: catalog is unavailable: connection refused")
}

func TestError_Unknown(t *testing.T) {
	assert.Equal(t, domain.ErrorCode(""), domain.ErrorCodeOf(nil))
	assert.Equal(t, "", domain.ErrorMessage(nil))

	err := errors.New("nil map write")
	assert.Equal(t, domain.EUnknown, domain.ErrorCodeOf(err))
	assert.NotContains(t, domain.ErrorMessage(err), "nil map", "internal details stay in the logs")

	assert.Equal(t, "bad: x", domain.Invalid("", "bad: %s", "x").Error())
}

// --- Users and responses ---

func TestUser_QuotaKey(t *testing.T) {
	assert.Equal(t, "anonymous", domain.AnonymousUser().QuotaKey())
	assert.Equal(t, domain.TierFree, domain.AnonymousUser().Tier)
	assert.Equal(t, "ada@example.com", domain.User{Email: " Ada@Example.com"}.QuotaKey())
}

func TestCatalogItem_HasLocation(t *testing.T) {
	item := domain.CatalogItem{CompatibleLocations: []string{"kitchen", "office"}}
	assert.True(t, item.HasLocation(" Kitchen"))
	assert.False(t, item.HasLocation("garage"))
}

func TestResponse_Failed(t *testing.T) {
	assert.False(t, (&domain.Response{}).Failed())
	assert.True(t, (&domain.Response{Error: domain.ENoMatches}).Failed())
}

func TestValidItemKind(t *testing.T) {
	assert.True(t, domain.ValidItemKind("kit"))
	assert.False(t, domain.ValidItemKind("seed"))
}
