package catalog

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/verdance/verdance/platform/internal/domain"
)

// frequencySuffix marks raw keys carrying a care task frequency, e.g.
// "watering_frequency": "weekly".
const frequencySuffix = "_frequency"

// Normalize converts one loosely-typed source record into a CatalogItem.
// Values are coerced once here and never re-parsed downstream: comma-joined
// strings become lists, numeric strings become numbers, bool-ish strings
// become bools and level synonyms become canonical levels. Corrupt values
// are dropped with a warning. ok is false when the record has no id.
func Normalize(kind domain.ItemKind, raw map[string]any) (item domain.CatalogItem, warnings []string, ok bool) {
	n := normalizer{kind: kind}
	id := scalarString(raw["id"])
	if id == "" {
		return domain.CatalogItem{}, []string{fmt.Sprintf("%s record without id dropped", kind)}, false
	}
	n.id = id
	item = domain.CatalogItem{ID: id, Kind: kind}

	for _, key := range sortedKeys(raw) {
		n.apply(&item, strings.ToLower(strings.TrimSpace(key)), raw[key])
	}
	if item.Name == "" {
		item.Name = id
	}
	item.SearchableText = searchableText(&item, n.extraText)
	return item, n.warnings, true
}

type normalizer struct {
	kind      domain.ItemKind
	id        string
	warnings  []string
	extraText []string
}

func (n *normalizer) warn(format string, args ...any) {
	n.warnings = append(n.warnings, fmt.Sprintf("%s %s: ", n.kind, n.id)+fmt.Sprintf(format, args...))
}

func (n *normalizer) apply(item *domain.CatalogItem, key string, v any) {
	switch key {
	case "id":
	case "name", "common_name":
		if item.Name == "" || key == "name" {
			item.Name = scalarString(v)
		}
	case "scientific_name", "botanical_name":
		item.ScientificName = scalarString(v)
	case "description":
		item.Description = scalarString(v)
	case "searchable_text", "search_text":
		n.extraText = append(n.extraText, scalarString(v))

	case "compatible_locations", "locations":
		item.CompatibleLocations = appendUnique(item.CompatibleLocations, List(v)...)
	case "functions", "plant_functions":
		item.Functions = appendUnique(item.Functions, List(v)...)
	case "tags", "features":
		item.Tags = appendUnique(item.Tags, List(v)...)

	case "difficulty", "difficulty_level", "care_difficulty":
		if f, ok := Number(v); ok {
			item.Difficulty = &f
			return
		}
		if s := scalarString(v); s != "" {
			item.DifficultyLabel = s
			if _, ok := domain.ExperienceFromLabel(s); !ok {
				n.warn("difficulty %q not recognised", s)
			}
		}
	case "maintenance", "maintenance_level":
		n.level(v, "maintenance", func(s string) bool {
			m, ok := domain.ParseMaintenanceLevel(s)
			item.Maintenance = m
			return ok
		})
	case "led_light", "led_light_requirement", "led_light_requirements":
		n.level(v, "led light", func(s string) bool {
			l, ok := domain.ParseLightLevel(s)
			item.LEDLight = l
			return ok
		})
	case "natural_light", "natural_light_requirement", "natural_light_requirements", "light", "light_requirement":
		n.level(v, "natural light", func(s string) bool {
			l, ok := domain.ParseLightLevel(s)
			item.NaturalLight = l
			return ok
		})

	case "min_wattage", "led_wattage_min", "min_led_wattage":
		if isEmpty(v) {
			return
		}
		if f, ok := Number(v); ok && f >= 0 {
			item.MinWattage = &f
			return
		}
		item.WattageInvalid = true
		n.warn("corrupt wattage %v", v)

	case "temperature_min", "min_temperature", "temp_min":
		item.TemperatureMin = n.number(v, "temperature_min")
	case "temperature_max", "max_temperature", "temp_max":
		item.TemperatureMax = n.number(v, "temperature_max")
	case "humidity_min", "min_humidity":
		item.HumidityMin = n.number(v, "humidity_min")
	case "humidity_max", "max_humidity":
		item.HumidityMax = n.number(v, "humidity_max")
	case "humidity", "humidity_level", "humidity_requirement":
		if isEmpty(v) {
			return
		}
		if f, ok := Number(v); ok {
			item.HumidityLevel = domain.HumidityBucket(f)
			return
		}
		n.level(v, "humidity", func(s string) bool {
			h, ok := domain.ParseHumidityLevel(s)
			item.HumidityLevel = h
			return ok
		})

	case "category", "product_category", "type":
		item.Category = domain.Canonical(scalarString(v))
	case "price":
		item.Price = n.number(v, "price")

	case "plant_ids", "plants":
		item.PlantIDs = appendUnique(item.PlantIDs, rawList(v)...)
	case "product_ids", "products":
		item.ProductIDs = appendUnique(item.ProductIDs, rawList(v)...)

	case "is_premium_content", "premium", "is_premium":
		b, ok := Bool(v)
		if !ok && !isEmpty(v) {
			n.warn("is_premium_content %v is not a boolean", v)
		}
		item.IsPremiumContent = item.IsPremiumContent || b

	default:
		if strings.HasSuffix(key, frequencySuffix) {
			n.careTask(item, strings.TrimSuffix(key, frequencySuffix), v)
			return
		}
		if item.Attributes == nil {
			item.Attributes = make(map[string]any)
		}
		item.Attributes[key] = v
	}
}

// level parses a string enumeration, warning when parse rejects it.
func (n *normalizer) level(v any, what string, parse func(string) bool) {
	s := scalarString(v)
	if s == "" {
		return
	}
	if !parse(s) {
		n.warn("unknown %s level %q", what, s)
	}
}

func (n *normalizer) number(v any, what string) *float64 {
	if isEmpty(v) {
		return nil
	}
	f, ok := Number(v)
	if !ok {
		n.warn("corrupt %s %v", what, v)
		return nil
	}
	return &f
}

func (n *normalizer) careTask(item *domain.CatalogItem, task string, v any) {
	s := scalarString(v)
	if s == "" {
		return
	}
	freq, ok := ParseFrequency(s)
	if !ok {
		n.warn("unknown %s frequency %q", task, s)
		return
	}
	item.CareTasks = append(item.CareTasks, domain.CareTask{Task: strings.ReplaceAll(task, "_", " "), Frequency: freq})
}

// ParseFrequency maps frequency text onto a CareFrequency.
func ParseFrequency(s string) (domain.CareFrequency, bool) {
	switch domain.Canonical(s) {
	case "daily", "every day", "day":
		return domain.FrequencyDaily, true
	case "weekly", "every week", "week", "biweekly", "twice a week":
		return domain.FrequencyWeekly, true
	case "monthly", "every month", "month":
		return domain.FrequencyMonthly, true
	case "quarterly", "every 3 months", "seasonal", "seasonally":
		return domain.FrequencyQuarterly, true
	case "annually", "annual", "yearly", "every year":
		return domain.FrequencyAnnually, true
	}
	return "", false
}

// List coerces a raw value into a canonical list: comma-joined strings are
// split, elements lower-cased and trimmed, blanks and duplicates dropped.
func List(v any) []string {
	raw := rawList(v)
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		out = append(out, domain.Canonical(s))
	}
	return appendUnique(nil, out...)
}

// rawList splits v without changing case. Used for identifiers.
func rawList(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		parts := strings.Split(t, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	case []string:
		out := make([]string, 0, len(t))
		for _, s := range t {
			out = append(out, rawList(s)...)
		}
		return out
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, rawList(scalarString(e))...)
		}
		return out
	default:
		if s := scalarString(v); s != "" {
			return []string{s}
		}
		return nil
	}
}

// Number coerces numbers and numeric strings. NaN and infinities are rejected.
func Number(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case int32:
		f = float64(t)
	case uint64:
		f = float64(t)
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(t), "%"))
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Bool coerces booleans and bool-ish strings ("true", "yes", "1", ...).
func Bool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch domain.Canonical(t) {
		case "true", "yes", "y", "1", "t":
			return true, true
		case "false", "no", "n", "0", "f", "":
			return false, true
		}
	case float64:
		return t != 0, true
	case int:
		return t != 0, true
	case int64:
		return t != 0, true
	}
	return false, false
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func appendUnique(dst []string, values ...string) []string {
	seen := make(map[string]struct{}, len(dst)+len(values))
	for _, d := range dst {
		seen[d] = struct{}{}
	}
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		dst = append(dst, v)
	}
	return dst
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func searchableText(item *domain.CatalogItem, extra []string) string {
	parts := []string{item.Name, item.ScientificName, item.Description, item.Category}
	parts = append(parts, item.Functions...)
	parts = append(parts, item.Tags...)
	parts = append(parts, extra...)
	var b strings.Builder
	for _, p := range parts {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strings.ToLower(p))
	}
	return b.String()
}

// NormalizePlantProduct converts one compatibility relation row. Ratings are
// clamped to 1-5; rows missing either id are dropped.
func NormalizePlantProduct(raw map[string]any) (domain.PlantProduct, []string, bool) {
	pp := domain.PlantProduct{
		PlantID:        scalarString(raw["plant_id"]),
		ProductID:      scalarString(raw["product_id"]),
		PrimaryPurpose: scalarString(raw["primary_purpose"]),
		Notes:          scalarString(raw["notes"]),
	}
	if pp.PlantID == "" || pp.ProductID == "" {
		return domain.PlantProduct{}, []string{"plant_product row without plant_id or product_id dropped"}, false
	}
	var warnings []string
	rating, ok := Number(raw["compatibility_rating"])
	if !ok {
		if !isEmpty(raw["compatibility_rating"]) {
			warnings = append(warnings, fmt.Sprintf("plant_product %s/%s: corrupt rating %v", pp.PlantID, pp.ProductID, raw["compatibility_rating"]))
		}
		rating = 3
	}
	pp.CompatibilityRating = int(math.Round(math.Max(1, math.Min(5, rating))))
	return pp, warnings, true
}
