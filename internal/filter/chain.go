// Package filter narrows a catalog snapshot to the items compatible with a
// request's declared constraints.
//
// Every stage is a pure function of (items, criteria) returning an Outcome.
// A missing criterion leaves the input untouched; a malformed one does the
// same and reports a warning. Stages never abort the chain: a stage that
// panics is logged and its input passes through unchanged.
package filter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/verdance/verdance/platform/internal/domain"
)

// Stage names, in default chain order.
const (
	StageVisibility  = "visibility"
	StageSearch      = "search"
	StageLocation    = "location"
	StageExperience  = "experience"
	StageMaintenance = "maintenance"
	StageFunctions   = "functions"
	StageLight       = "light"
	StageWattage     = "wattage"
	StageTemperature = "temperature"
	StageHumidity    = "humidity"
)

// Outcome is the result of one stage. Items is always well-defined: on a
// warning it is the stage's input.
type Outcome struct {
	Items   []domain.CatalogItem
	Applied bool   // the criterion was present and valid
	Warning string // non-empty when the criterion was malformed or the stage failed
}

func passThrough(items []domain.CatalogItem) Outcome {
	return Outcome{Items: items}
}

func warn(items []domain.CatalogItem, format string, args ...any) Outcome {
	return Outcome{Items: items, Warning: fmt.Sprintf(format, args...)}
}

func keep(items []domain.CatalogItem, pred func(*domain.CatalogItem) bool) Outcome {
	out := make([]domain.CatalogItem, 0, len(items))
	for i := range items {
		if pred(&items[i]) {
			out = append(out, items[i])
		}
	}
	return Outcome{Items: out, Applied: true}
}

// Criteria is everything a stage may consult.
type Criteria struct {
	Tier        domain.SubscriptionTier
	Preferences domain.Preferences
}

// Stage is one named filter.
type Stage struct {
	Name  string
	Apply func(items []domain.CatalogItem, c Criteria) Outcome
}

// Result is the output of a full chain run.
type Result struct {
	Items    []domain.CatalogItem
	Applied  []string // names of stages whose criterion was applied
	Trace    []domain.StageCount
	Warnings []string
}

// Chain runs stages in order, each narrowing the previous stage's output.
type Chain struct {
	stages []Stage
	logger *slog.Logger
}

// NewChain creates a chain. With no stages the default order is used.
func NewChain(logger *slog.Logger, stages ...Stage) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	if len(stages) == 0 {
		stages = DefaultStages()
	}
	return &Chain{stages: stages, logger: logger}
}

// Stages returns the stage names in execution order.
func (c *Chain) Stages() []string {
	names := make([]string, len(c.stages))
	for i, s := range c.stages {
		names[i] = s.Name
	}
	return names
}

// Run applies every stage to items. The input slice is never modified.
func (c *Chain) Run(ctx context.Context, items []domain.CatalogItem, criteria Criteria) Result {
	res := Result{Items: items}
	for _, stage := range c.stages {
		in := len(res.Items)
		out := c.apply(ctx, stage, res.Items, criteria)
		if out.Warning != "" {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %s", stage.Name, out.Warning))
		}
		if out.Applied {
			res.Applied = append(res.Applied, stage.Name)
		}
		res.Items = out.Items
		res.Trace = append(res.Trace, domain.StageCount{Stage: stage.Name, In: in, Out: len(res.Items)})
	}
	return res
}

// apply runs one stage, converting a panic into a pass-through warning.
func (c *Chain) apply(ctx context.Context, stage Stage, items []domain.CatalogItem, criteria Criteria) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorContext(ctx, "filter stage panicked, passing input through",
				"stage", stage.Name, "panic", r)
			out = warn(items, "stage failed: %v", r)
		}
	}()

	out = stage.Apply(items, criteria)
	if out.Items == nil && !out.Applied {
		out.Items = items
	}
	if out.Warning != "" {
		c.logger.WarnContext(ctx, "filter criterion ignored", "stage", stage.Name, "warning", out.Warning)
	}
	return out
}

// DefaultStages returns the stages in default order: visibility, search,
// location, experience, maintenance, functions, light, wattage, temperature,
// humidity.
func DefaultStages() []Stage {
	return []Stage{
		{Name: StageVisibility, Apply: func(items []domain.CatalogItem, c Criteria) Outcome {
			return ByVisibility(items, c.Tier)
		}},
		{Name: StageSearch, Apply: func(items []domain.CatalogItem, c Criteria) Outcome {
			return BySearch(items, c.Preferences.SearchTerm)
		}},
		{Name: StageLocation, Apply: func(items []domain.CatalogItem, c Criteria) Outcome {
			return ByLocation(items, c.Preferences.Location)
		}},
		{Name: StageExperience, Apply: func(items []domain.CatalogItem, c Criteria) Outcome {
			return ByExperience(items, c.Preferences.ExperienceLevel)
		}},
		{Name: StageMaintenance, Apply: func(items []domain.CatalogItem, c Criteria) Outcome {
			return ByMaintenance(items, c.Preferences.Maintenance)
		}},
		{Name: StageFunctions, Apply: func(items []domain.CatalogItem, c Criteria) Outcome {
			return ByFunctions(items, c.Preferences.Functions)
		}},
		{Name: StageLight, Apply: func(items []domain.CatalogItem, c Criteria) Outcome {
			return ByLight(items, c.Preferences.Light)
		}},
		{Name: StageWattage, Apply: func(items []domain.CatalogItem, c Criteria) Outcome {
			return ByWattage(items, c.Preferences.LightWattage)
		}},
		{Name: StageTemperature, Apply: func(items []domain.CatalogItem, c Criteria) Outcome {
			return ByTemperature(items, c.Preferences.Temperature)
		}},
		{Name: StageHumidity, Apply: func(items []domain.CatalogItem, c Criteria) Outcome {
			return ByHumidity(items, c.Preferences.Humidity)
		}},
	}
}
