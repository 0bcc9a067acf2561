// Package perf implements the supplemented C10 perf query (SPEC_FULL.md
// §4.10), grounded in original_source's common_admin/perf.rs endpoint and
// api_client::models::{PerfHistoryValue,PerfValueArea,TimeGranularity}. The
// original backs this with a dedicated in-memory counter-history store;
// here it is a thin read over the observability package's Prometheus
// registry instead, since C9/C10 already register every histogram that
// matters through that registry and a second time-series store would just
// duplicate it.
package perf

import (
	"sort"
	"time"

	"github.com/jutuon/afrodite-backend-sub001/internal/apierr"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Granularity mirrors original_source's TimeGranularity enum. The registry
// holds no history, so it only labels the returned HistoryValue; it does
// not bucket samples by window.
type Granularity string

const (
	GranularityMinutes Granularity = "minutes"
	GranularityHours   Granularity = "hours"
	GranularityDays    Granularity = "days"
)

// MetricQuery names a registered histogram and the percentile to read from
// it (SPEC_FULL.md §3's perf.MetricQuery).
type MetricQuery struct {
	MetricName  string
	Percentile  float64 // in (0, 1], e.g. 0.99
	Granularity Granularity
}

// HistoryValue is a single percentile reading (SPEC_FULL.md §3's
// perf.HistoryValue / original_source's PerfHistoryValue).
type HistoryValue struct {
	MetricName  string
	Granularity Granularity
	At          time.Time
	Value       float64
}

// QueryPerf gathers q.MetricName from gatherer and estimates q.Percentile
// over its buckets by linear interpolation (the same approximation
// Prometheus's own histogram_quantile uses), since the client library
// exposes cumulative bucket counts rather than a quantile sketch.
func QueryPerf(gatherer prometheus.Gatherer, q MetricQuery) (HistoryValue, error) {
	families, err := gatherer.Gather()
	if err != nil {
		return HistoryValue{}, apierr.Internal(err)
	}
	for _, fam := range families {
		if fam.GetName() != q.MetricName {
			continue
		}
		if fam.GetType() != dto.MetricType_HISTOGRAM {
			return HistoryValue{}, apierr.New(apierr.CodeBadRequest, "metric is not a histogram")
		}
		value, ok := quantileFromBuckets(fam.GetMetric(), q.Percentile)
		if !ok {
			return HistoryValue{}, apierr.New(apierr.CodeNotFound, "metric has no observations")
		}
		return HistoryValue{MetricName: q.MetricName, Granularity: q.Granularity, At: time.Now(), Value: value}, nil
	}
	return HistoryValue{}, apierr.New(apierr.CodeNotFound, "unknown metric")
}

type bucket struct {
	upperBound float64
	count      float64
}

// quantileFromBuckets sums bucket counts across every label combination of
// the metric family (the admin view wants the aggregate, not per-route
// breakdowns) and interpolates within the bucket that first exceeds the
// requested percentile, mirroring PromQL's histogram_quantile.
func quantileFromBuckets(metrics []*dto.Metric, percentile float64) (float64, bool) {
	totals := make(map[float64]float64)
	var count float64
	for _, m := range metrics {
		h := m.GetHistogram()
		if h == nil {
			continue
		}
		count += float64(h.GetSampleCount())
		for _, b := range h.GetBucket() {
			totals[b.GetUpperBound()] += float64(b.GetCumulativeCount())
		}
	}
	if count == 0 {
		return 0, false
	}
	buckets := make([]bucket, 0, len(totals))
	for upper, c := range totals {
		buckets = append(buckets, bucket{upperBound: upper, count: c})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].upperBound < buckets[j].upperBound })

	target := percentile * count
	var prevUpper, prevCount float64
	for _, b := range buckets {
		if b.count >= target {
			if b.upperBound == prevUpper {
				return b.upperBound, true
			}
			span := b.count - prevCount
			if span <= 0 {
				return b.upperBound, true
			}
			frac := (target - prevCount) / span
			return prevUpper + frac*(b.upperBound-prevUpper), true
		}
		prevUpper, prevCount = b.upperBound, b.count
	}
	return prevUpper, true
}
