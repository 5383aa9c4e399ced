package filter_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/verdance/verdance/platform/internal/domain"
	"github.com/verdance/verdance/platform/internal/filter"
)

func f(v float64) *float64 { return &v }

func ids(items []domain.CatalogItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func plant(id string, mutate func(*domain.CatalogItem)) domain.CatalogItem {
	it := domain.CatalogItem{ID: id, Kind: domain.KindPlant, Name: id}
	if mutate != nil {
		mutate(&it)
	}
	return it
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// --- Location ---

func TestByLocation_KitchenScenario(t *testing.T) {
	items := []domain.CatalogItem{
		plant("basil", func(it *domain.CatalogItem) { it.CompatibleLocations = []string{"kitchen", "balcony"} }),
		plant("fern", func(it *domain.CatalogItem) { it.CompatibleLocations = []string{"bathroom"} }),
		plant("cactus", func(it *domain.CatalogItem) { it.CompatibleLocations = []string{"office"} }),
	}

	out := filter.ByLocation(items, "Kitchen")

	assert.True(t, out.Applied)
	assert.Equal(t, []string{"basil"}, ids(out.Items))
}

func TestByLocation_Empty_PassesThrough(t *testing.T) {
	items := []domain.CatalogItem{plant("a", nil)}

	out := filter.ByLocation(items, "  ")

	assert.False(t, out.Applied)
	assert.Equal(t, items, out.Items)
}

// --- Experience ---

func TestByExperience_BeginnerScenario(t *testing.T) {
	items := []domain.CatalogItem{
		plant("easy", func(it *domain.CatalogItem) { it.Difficulty = f(1) }),
		plant("mid", func(it *domain.CatalogItem) { it.Difficulty = f(5) }),
		plant("hard", func(it *domain.CatalogItem) { it.Difficulty = f(9) }),
	}

	out := filter.ByExperience(items, "beginner")

	assert.Equal(t, []string{"easy"}, ids(out.Items))
}

func TestByExperience_Levels(t *testing.T) {
	items := []domain.CatalogItem{
		plant("d3", func(it *domain.CatalogItem) { it.Difficulty = f(3) }),
		plant("d6", func(it *domain.CatalogItem) { it.Difficulty = f(6) }),
		plant("d10", func(it *domain.CatalogItem) { it.Difficulty = f(10) }),
		plant("label-hard", func(it *domain.CatalogItem) { it.DifficultyLabel = "Difficult" }),
		plant("unknown", nil),
	}

	tests := []struct {
		level string
		want  []string
	}{
		{"beginner", []string{"d3", "unknown"}},
		{"intermediate", []string{"d3", "d6", "unknown"}},
		{"advanced", []string{"d3", "d6", "d10", "label-hard", "unknown"}},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(filter.ByExperience(items, tt.level).Items))
		})
	}
}

func TestByExperience_Unknown_WarnsAndPasses(t *testing.T) {
	items := []domain.CatalogItem{plant("a", func(it *domain.CatalogItem) { it.Difficulty = f(9) })}

	out := filter.ByExperience(items, "guru")

	assert.False(t, out.Applied)
	assert.Contains(t, out.Warning, "guru")
	assert.Equal(t, items, out.Items)
}

// --- Maintenance ---

func maintenanceCatalog() []domain.CatalogItem {
	return []domain.CatalogItem{
		plant("low", func(it *domain.CatalogItem) { it.Maintenance = domain.MaintenanceLow }),
		plant("medium", func(it *domain.CatalogItem) { it.Maintenance = domain.MaintenanceMedium }),
		plant("high", func(it *domain.CatalogItem) { it.Maintenance = domain.MaintenanceHigh }),
		plant("undeclared", nil),
	}
}

func TestByMaintenance_CumulativeAllowSets(t *testing.T) {
	items := maintenanceCatalog()

	assert.Equal(t, []string{"low", "undeclared"}, ids(filter.ByMaintenance(items, "low").Items))
	assert.Equal(t, []string{"low", "medium", "undeclared"}, ids(filter.ByMaintenance(items, "moderate").Items))
	assert.Equal(t, []string{"low", "medium", "high", "undeclared"}, ids(filter.ByMaintenance(items, "high").Items))
}

func TestByMaintenance_StricterIsSubset(t *testing.T) {
	items := maintenanceCatalog()
	levels := domain.MaintenanceLevels()

	for i := 1; i < len(levels); i++ {
		looser := ids(filter.ByMaintenance(items, string(levels[i])).Items)
		stricter := ids(filter.ByMaintenance(items, string(levels[i-1])).Items)
		assert.Subset(t, looser, stricter, "%s must be a subset of %s", levels[i-1], levels[i])
	}
}

// --- Functions ---

func TestByFunctions_OverlapsFunctionsOrTags(t *testing.T) {
	items := []domain.CatalogItem{
		plant("herb", func(it *domain.CatalogItem) { it.Functions = []string{"culinary"} }),
		plant("purifier", func(it *domain.CatalogItem) { it.Tags = []string{"air purifying"} }),
		plant("plain", nil),
	}

	out := filter.ByFunctions(items, []string{"Culinary", "air purifying"})

	assert.True(t, out.Applied)
	assert.Equal(t, []string{"herb", "purifier"}, ids(out.Items))
}

func TestByFunctions_BlankList_PassesThrough(t *testing.T) {
	items := []domain.CatalogItem{plant("a", nil)}

	out := filter.ByFunctions(items, []string{"", " "})

	assert.False(t, out.Applied)
	assert.Len(t, out.Items, 1)
}

// --- Light ---

func lightCatalog() []domain.CatalogItem {
	return []domain.CatalogItem{
		plant("shade", func(it *domain.CatalogItem) { it.NaturalLight = domain.LightLow }),
		plant("bright", func(it *domain.CatalogItem) { it.NaturalLight = domain.LightBrightIndirect }),
		plant("sun", func(it *domain.CatalogItem) {
			it.NaturalLight = domain.LightDirect
			it.LEDLight = domain.LightMedium
		}),
		plant("any", nil),
	}
}

func TestByLight_RequirementCoveredByAvailable(t *testing.T) {
	items := lightCatalog()

	assert.Equal(t, []string{"shade", "any"}, ids(filter.ByLight(items, "low").Items))
	assert.Equal(t, []string{"shade", "sun", "any"}, ids(filter.ByLight(items, "medium").Items), "LED requirement satisfies")
	assert.Equal(t, []string{"shade", "bright", "sun", "any"}, ids(filter.ByLight(items, "full sun").Items))
}

func TestByLight_DimmerIsSubset(t *testing.T) {
	items := lightCatalog()
	levels := domain.LightLevels()

	for i := 1; i < len(levels); i++ {
		brighter := ids(filter.ByLight(items, string(levels[i])).Items)
		dimmer := ids(filter.ByLight(items, string(levels[i-1])).Items)
		assert.Subset(t, brighter, dimmer)
	}
}

func TestByLight_Unknown_Warns(t *testing.T) {
	out := filter.ByLight(lightCatalog(), "moonlight")

	assert.NotEmpty(t, out.Warning)
	assert.Len(t, out.Items, 4)
}

// --- Wattage ---

func TestByWattage_AppliesTolerance(t *testing.T) {
	items := []domain.CatalogItem{
		plant("needs100", func(it *domain.CatalogItem) { it.MinWattage = f(100) }),
		plant("corrupt", func(it *domain.CatalogItem) { it.WattageInvalid = true }),
		plant("missing", nil),
	}

	assert.Equal(t, []string{"needs100", "corrupt", "missing"}, ids(filter.ByWattage(items, f(90)).Items))
	assert.Equal(t, []string{"corrupt", "missing"}, ids(filter.ByWattage(items, f(89)).Items))
}

func TestByWattage_Negative_Warns(t *testing.T) {
	items := []domain.CatalogItem{plant("needs100", func(it *domain.CatalogItem) { it.MinWattage = f(100) })}

	out := filter.ByWattage(items, f(-5))

	assert.NotEmpty(t, out.Warning)
	assert.Len(t, out.Items, 1)
}

// --- Temperature ---

func TestByTemperature_RangeContainment(t *testing.T) {
	items := []domain.CatalogItem{
		plant("tropical", func(it *domain.CatalogItem) { it.TemperatureMin, it.TemperatureMax = f(18), f(30) }),
		plant("hardy", func(it *domain.CatalogItem) { it.TemperatureMin = f(-5) }),
		plant("open", nil),
	}

	assert.Equal(t, []string{"tropical", "hardy", "open"}, ids(filter.ByTemperature(items, f(20)).Items))
	assert.Equal(t, []string{"hardy", "open"}, ids(filter.ByTemperature(items, f(10)).Items))
	assert.Equal(t, []string{"tropical", "hardy", "open"}, ids(filter.ByTemperature(items, f(30)).Items), "bounds are inclusive")
}

// --- Humidity ---

func humidityCatalog() []domain.CatalogItem {
	return []domain.CatalogItem{
		plant("ranged", func(it *domain.CatalogItem) { it.HumidityMin, it.HumidityMax = f(60), f(80) }),
		plant("dry", func(it *domain.CatalogItem) { it.HumidityLevel = domain.HumidityLow }),
		plant("open", nil),
	}
}

func TestByHumidity_Percent(t *testing.T) {
	h := domain.HumidityFromString("65")

	out := filter.ByHumidity(humidityCatalog(), &h)

	assert.Equal(t, []string{"ranged", "open"}, ids(out.Items))
}

func TestByHumidity_Level(t *testing.T) {
	low := domain.Humidity{Level: "low"}
	high := domain.Humidity{Level: "High"}

	assert.Equal(t, []string{"dry", "open"}, ids(filter.ByHumidity(humidityCatalog(), &low).Items))
	assert.Equal(t, []string{"ranged", "open"}, ids(filter.ByHumidity(humidityCatalog(), &high).Items), "range midpoint 70 is high")
}

func TestByHumidity_Malformed_Warns(t *testing.T) {
	bad := domain.Humidity{Level: "soggy"}

	out := filter.ByHumidity(humidityCatalog(), &bad)

	assert.NotEmpty(t, out.Warning)
	assert.Len(t, out.Items, 3)

	assert.False(t, filter.ByHumidity(humidityCatalog(), nil).Applied)
}

// --- Search / Visibility ---

func TestBySearch_MatchesAcrossFields(t *testing.T) {
	items := []domain.CatalogItem{
		plant("p1", func(it *domain.CatalogItem) { it.Name = "Snake Plant" }),
		plant("p2", func(it *domain.CatalogItem) { it.ScientificName = "Dracaena trifasciata" }),
		plant("p3", func(it *domain.CatalogItem) { it.Description = "Tolerates SNAKE-like neglect" }),
		plant("p4", func(it *domain.CatalogItem) { it.SearchableText = "mother-in-law's tongue snake" }),
		plant("p5", func(it *domain.CatalogItem) { it.Name = "Pothos" }),
	}

	assert.Equal(t, []string{"p1", "p3", "p4"}, ids(filter.BySearch(items, "snake").Items))
	assert.Equal(t, []string{"p2"}, ids(filter.BySearch(items, "DRACAENA").Items))
}

func TestByVisibility_FreeTierHidesPremium(t *testing.T) {
	items := []domain.CatalogItem{
		plant("a", nil),
		plant("b", func(it *domain.CatalogItem) { it.IsPremiumContent = true }),
		plant("c", nil),
	}

	free := filter.ByVisibility(items, domain.TierFree)
	sub := filter.ByVisibility(items, domain.TierSubscriber)

	assert.Equal(t, []string{"a", "c"}, ids(free.Items))
	assert.True(t, free.Applied)
	assert.Len(t, sub.Items, 3)
	assert.False(t, sub.Applied)
}

// --- Chain ---

func chainCatalog() []domain.CatalogItem {
	return []domain.CatalogItem{
		plant("basil", func(it *domain.CatalogItem) {
			it.CompatibleLocations = []string{"kitchen"}
			it.Difficulty = f(2)
			it.Maintenance = domain.MaintenanceLow
		}),
		plant("orchid", func(it *domain.CatalogItem) {
			it.CompatibleLocations = []string{"kitchen"}
			it.Difficulty = f(8)
			it.IsPremiumContent = true
		}),
		plant("mint", func(it *domain.CatalogItem) {
			it.CompatibleLocations = []string{"kitchen", "balcony"}
			it.Difficulty = f(1)
			it.Maintenance = domain.MaintenanceMedium
		}),
		plant("cactus", func(it *domain.CatalogItem) {
			it.CompatibleLocations = []string{"office"}
			it.Difficulty = f(1)
		}),
	}
}

func TestChain_Run_DefaultOrderAndTrace(t *testing.T) {
	chain := filter.NewChain(quietLogger())
	criteria := filter.Criteria{
		Tier: domain.TierFree,
		Preferences: domain.Preferences{
			Location:        "kitchen",
			ExperienceLevel: "beginner",
			Maintenance:     "low",
		},
	}

	res := chain.Run(context.Background(), chainCatalog(), criteria)

	assert.Equal(t, []string{"basil"}, ids(res.Items))
	assert.Equal(t, []string{"visibility", "location", "experience", "maintenance"}, res.Applied)
	require.Len(t, res.Trace, 10)
	assert.Equal(t, domain.StageCount{Stage: "visibility", In: 4, Out: 3}, res.Trace[0])
	assert.Equal(t, domain.StageCount{Stage: "location", In: 3, Out: 2}, res.Trace[2])
	assert.Empty(t, res.Warnings)
}

func TestChain_Run_PremiumExcludedRegardlessOfMatch(t *testing.T) {
	chain := filter.NewChain(quietLogger())
	criteria := filter.Criteria{Tier: domain.TierFree, Preferences: domain.Preferences{Location: "kitchen", SearchTerm: "orchid"}}

	res := chain.Run(context.Background(), chainCatalog(), criteria)

	assert.Empty(t, res.Items)
}

func TestChain_Run_CollectsWarnings(t *testing.T) {
	chain := filter.NewChain(quietLogger())
	criteria := filter.Criteria{Tier: domain.TierPremium, Preferences: domain.Preferences{Location: "kitchen", ExperienceLevel: "guru"}}

	res := chain.Run(context.Background(), chainCatalog(), criteria)

	assert.Equal(t, []string{"basil", "orchid", "mint"}, ids(res.Items))
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "experience:")
}

func TestChain_Run_PanickingStageFailsOpen(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	boom := filter.Stage{Name: "boom", Apply: func([]domain.CatalogItem, filter.Criteria) filter.Outcome {
		panic("corrupt record")
	}}
	locate := filter.Stage{Name: "location", Apply: func(items []domain.CatalogItem, c filter.Criteria) filter.Outcome {
		return filter.ByLocation(items, c.Preferences.Location)
	}}
	chain := filter.NewChain(logger, boom, locate)

	res := chain.Run(context.Background(), chainCatalog(), filter.Criteria{Preferences: domain.Preferences{Location: "office"}})

	assert.Equal(t, []string{"cactus"}, ids(res.Items))
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "corrupt record")
	assert.Contains(t, logs.String(), "stage=boom")
	assert.Equal(t, []string{"boom", "location"}, chain.Stages())
}

func TestChain_Run_DoesNotModifyInput(t *testing.T) {
	items := chainCatalog()
	before := ids(items)

	filter.NewChain(quietLogger()).Run(context.Background(), items, filter.Criteria{
		Tier:        domain.TierFree,
		Preferences: domain.Preferences{Location: "office"},
	})

	assert.Equal(t, before, ids(items))
}

func TestChain_Run_OutputIsSubsetOfInput(t *testing.T) {
	chain := filter.NewChain(quietLogger())
	items := chainCatalog()
	all := ids(items)

	for _, loc := range []string{"kitchen", "office", "balcony", "garage"} {
		for _, exp := range []string{"", "beginner", "advanced"} {
			for _, tier := range domain.Tiers {
				res := chain.Run(context.Background(), items, filter.Criteria{
					Tier:        tier,
					Preferences: domain.Preferences{Location: loc, ExperienceLevel: exp},
				})
				assert.Subset(t, all, ids(res.Items))
				for _, it := range res.Items {
					assert.True(t, it.HasLocation(loc))
					if tier == domain.TierFree {
						assert.False(t, it.IsPremiumContent)
					}
				}
			}
		}
	}
}
