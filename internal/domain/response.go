package domain

// Suggestion proposes relaxing one criterion after the filter chain emptied
// the candidate set.
type Suggestion struct {
	Criterion string `json:"criterion"`
	Current   string `json:"current"`
	Suggested string `json:"suggested"`
	Matches   int    `json:"matches"` // visible catalog items carrying the suggested value
}

// StageCount records how many items entered and left one filter stage.
type StageCount struct {
	Stage string `json:"stage"`
	In    int    `json:"in"`
	Out   int    `json:"out"`
}

// Stats summarizes how a response was produced.
type Stats struct {
	TotalPlants    int          `json:"total_plants"`
	VisiblePlants  int          `json:"visible_plants"`
	MatchedPlants  int          `json:"matched_plants"`
	ReturnedPlants int          `json:"returned_plants"`
	TotalProducts  int          `json:"total_products"`
	TotalKits      int          `json:"total_kits"`
	AppliedFilters []string     `json:"applied_filters"`
	Stages         []StageCount `json:"stages,omitempty"`
	Warnings       []string     `json:"warnings,omitempty"`
	CacheHit       bool         `json:"cache_hit"`
}

// QuotaStatus reports the caller's remaining quota after the request.
// Remaining is -1 when the feature is unlimited for the tier.
type QuotaStatus struct {
	Feature   string `json:"feature"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	PeriodKey string `json:"period_key,omitempty"`
}

// Response is the result of one recommendation request. On failure Error
// and Message are set and the item lists are empty.
type Response struct {
	RequestID        string           `json:"request_id"`
	Plants           []ScoredItem     `json:"plants"`
	Products         []ProductMatch   `json:"products"`
	Kits             []KitMatch       `json:"kits"`
	CareSchedule     CareSchedule     `json:"care_schedule"`
	Stats            Stats            `json:"stats"`
	SubscriptionTier SubscriptionTier `json:"subscription_tier"`
	Quota            *QuotaStatus     `json:"quota,omitempty"`

	Error        ErrorCode    `json:"error,omitempty"`
	Message      string       `json:"message,omitempty"`
	Suggestions  []Suggestion `json:"suggestions,omitempty"`
	RetryAfterMs int64        `json:"retry_after_ms,omitempty"`
}

// Failed reports whether the response carries an error code.
func (r *Response) Failed() bool {
	return r.Error != ""
}
