package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/verdance/verdance/platform/internal/metrics"
)

func TestObserveRecommendation_IncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(metrics.RecommendationsTotal.WithLabelValues("free", "ok"))

	metrics.ObserveRecommendation("free", "ok", true, 5*time.Millisecond)

	after := testutil.ToFloat64(metrics.RecommendationsTotal.WithLabelValues("free", "ok"))
	assert.Equal(t, before+1, after)
}

func TestObserveCacheLookup_LabelsResult(t *testing.T) {
	hits := testutil.ToFloat64(metrics.CacheLookupsTotal.WithLabelValues("results", "hit"))
	misses := testutil.ToFloat64(metrics.CacheLookupsTotal.WithLabelValues("results", "miss"))

	metrics.ObserveCacheLookup("results", true)
	metrics.ObserveCacheLookup("results", false)
	metrics.ObserveCacheLookup("results", false)

	assert.Equal(t, hits+1, testutil.ToFloat64(metrics.CacheLookupsTotal.WithLabelValues("results", "hit")))
	assert.Equal(t, misses+2, testutil.ToFloat64(metrics.CacheLookupsTotal.WithLabelValues("results", "miss")))
}
