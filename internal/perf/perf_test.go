package perf

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestQueryPerfEstimatesPercentile(t *testing.T) {
	reg := prometheus.NewRegistry()
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_latency_seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5},
	})
	reg.MustRegister(hist)
	for _, v := range []float64{0.05, 0.2, 0.3, 0.4, 0.6, 0.8, 1.5, 3} {
		hist.Observe(v)
	}

	value, err := QueryPerf(reg, MetricQuery{MetricName: "test_latency_seconds", Percentile: 0.5, Granularity: GranularityMinutes})
	assert.NoError(t, err)
	assert.Equal(t, "test_latency_seconds", value.MetricName)
	assert.Greater(t, value.Value, 0.0)
}

func TestQueryPerfUnknownMetric(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := QueryPerf(reg, MetricQuery{MetricName: "does_not_exist", Percentile: 0.9})
	assert.Error(t, err)
}

func TestQueryPerfRejectsNonHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter_total"})
	reg.MustRegister(counter)
	counter.Inc()

	_, err := QueryPerf(reg, MetricQuery{MetricName: "test_counter_total", Percentile: 0.9})
	assert.Error(t, err)
}
