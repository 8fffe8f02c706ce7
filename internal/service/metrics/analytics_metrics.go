// Package metrics holds collectors for the HTTP analytics endpoints.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// AnalyticsMetrics tracks latency and outcomes of analytics requests.
type AnalyticsMetrics struct {
	latency *prometheus.HistogramVec
	errors  *prometheus.CounterVec
	cache   *prometheus.CounterVec
}

// NewAnalyticsMetrics registers the collectors on reg. A nil reg returns
// a recorder that drops everything.
func NewAnalyticsMetrics(reg prometheus.Registerer) *AnalyticsMetrics {
	if reg == nil {
		return nil
	}
	f := promauto.With(reg)
	return &AnalyticsMetrics{
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "quantpulse",
			Subsystem: "analytics",
			Name:      "latency_seconds",
			Help:      "Latency of analytics endpoints",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint", "method"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quantpulse",
			Subsystem: "analytics",
			Name:      "errors_total",
			Help:      "Analytics results carrying an error, by endpoint",
		}, []string{"endpoint"}),
		cache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quantpulse",
			Subsystem: "analytics",
			Name:      "snapshot_lookups_total",
			Help:      "Latest-snapshot lookups by result",
		}, []string{"result"}),
	}
}

func (m *AnalyticsMetrics) Observe(endpoint, method string, start time.Time, failed bool) {
	if m == nil {
		return
	}
	m.latency.WithLabelValues(endpoint, method).Observe(time.Since(start).Seconds())
	if failed {
		m.errors.WithLabelValues(endpoint).Inc()
	}
}

// Lookup counts a snapshot cache hit or miss.
func (m *AnalyticsMetrics) Lookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cache.WithLabelValues(result).Inc()
}
