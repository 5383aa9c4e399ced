// Package metrics declares the Prometheus instruments of the recommendation
// core. Labels are tiers, stages and outcomes only; no user identity, to keep
// cardinality bounded.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "verdance"

// Request metrics
var (
	RecommendationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendations_total",
			Help:      "Total number of recommendation requests by outcome",
		},
		[]string{"tier", "outcome"}, // outcome: "ok" or an error code
	)

	RecommendationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recommendation_duration_seconds",
			Help:      "Recommendation latency distribution",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"tier", "cache"},
	)

	FilterWarningsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filter_warnings_total",
			Help:      "Total number of ignored filter criteria and failed filter stages",
		},
		[]string{"stage"},
	)
)

// Cache metrics
var (
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Total number of cache lookups",
		},
		[]string{"cache", "result"}, // result: "hit" or "miss"
	)

	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Current number of cache entries",
		},
		[]string{"cache"},
	)

	CacheEvictionsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_evictions",
			Help:      "Entries evicted to make room since the cache was created",
		},
		[]string{"cache"},
	)
)

// Quota and rate limit metrics
var (
	QuotaDeniedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_denied_total",
			Help:      "Total number of requests denied by quota",
		},
		[]string{"tier", "feature"},
	)

	QuotaCommittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_committed_total",
			Help:      "Total usage committed after successful requests",
		},
		[]string{"tier", "feature"},
	)

	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the burst limiter",
		},
		[]string{"tier"},
	)
)

// Collaborator metrics
var (
	CatalogLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_loads_total",
			Help:      "Total number of catalog snapshot loads from the source",
		},
		[]string{"status"},
	)

	CatalogLoadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "catalog_load_duration_seconds",
			Help:      "Catalog snapshot load latency distribution",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	CatalogItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_items",
			Help:      "Number of items in the most recently loaded snapshot",
		},
		[]string{"kind"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)
)

// ObserveRecommendation records one finished request.
func ObserveRecommendation(tier, outcome string, cacheHit bool, d time.Duration) {
	RecommendationsTotal.WithLabelValues(tier, outcome).Inc()
	cache := "miss"
	if cacheHit {
		cache = "hit"
	}
	RecommendationDuration.WithLabelValues(tier, cache).Observe(d.Seconds())
}

// ObserveCacheLookup records a cache hit or miss.
func ObserveCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookupsTotal.WithLabelValues(cache, result).Inc()
}
