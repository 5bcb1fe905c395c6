package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors scraped from /metrics. Each
// Metrics owns its own registry so multiple servers (e.g. one per test)
// never collide on collector names.
type Metrics struct {
	Registry       *prometheus.Registry
	SyncRequests   *prometheus.CounterVec
	SyncDuration   prometheus.Histogram
	ChangesApplied prometheus.Counter
	Conflicts      prometheus.Counter
}

// NewMetrics registers and returns the server's Prometheus collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		SyncRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "goodies_sync_requests_total",
			Help: "Sync requests handled, labeled by outcome.",
		}, []string{"outcome"}),
		SyncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "goodies_sync_duration_seconds",
			Help:    "Latency of a sync round-trip as observed by the server.",
			Buckets: prometheus.DefBuckets,
		}),
		ChangesApplied: factory.NewCounter(prometheus.CounterOpts{
			Name: "goodies_changes_applied_total",
			Help: "Entity versions successfully committed to the store.",
		}),
		Conflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "goodies_conflicts_total",
			Help: "Conflict reports returned to clients, by any cause.",
		}),
	}
}

func (m *Metrics) observe(start time.Time, outcome string, applied, conflicts int) {
	m.SyncRequests.WithLabelValues(outcome).Inc()
	m.SyncDuration.Observe(time.Since(start).Seconds())
	m.ChangesApplied.Add(float64(applied))
	m.Conflicts.Add(float64(conflicts))
}
