package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests processed, labeled by route, method and status.",
	}, []string{"route", "method", "status"})

	httpLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	liveChannels = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_channels_active",
		Help: "Number of bound realtime channels (C8).",
	})

	eventsRouted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_routed_total",
		Help: "Events handed to a live channel vs folded into the pending-notification bitmask.",
	}, []string{"kind", "delivery"})
)

func init() {
	prometheus.MustRegister(httpRequests, httpLatency, liveChannels, eventsRouted)
}

// MetricsMiddleware records request count and latency per route.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpLatency.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler exposes the registry for scraping.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordChannelBound/Unbound track the number of live C8 channels as a gauge.
func RecordChannelBound() { liveChannels.Inc() }
func RecordChannelUnbound() { liveChannels.Dec() }

// RecordEventRouted labels a C9 delivery as either "channel" (delivered to a
// live realtime channel) or "pending" (folded into the notification bitmask).
func RecordEventRouted(kind, delivery string) {
	eventsRouted.WithLabelValues(kind, delivery).Inc()
}
