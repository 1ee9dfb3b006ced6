// Package metrics provides Prometheus instrumentation for the dashboard.
//
// Metrics exposed:
//   - rewardboard_backend_fetch_seconds: Histogram of backend request duration by endpoint
//   - rewardboard_backend_fetch_errors_total: Counter of failed backend requests by endpoint
//   - rewardboard_cache_puts_total: Counter of run series written to the cache
//   - rewardboard_selection_changes_total: Counter of selection changes across sessions
//   - rewardboard_sessions_active: Gauge of open dashboard sessions
//
// Metrics implements view.Observer so every session reports into the same
// collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the dashboard.
type Metrics struct {
	FetchSeconds     *prometheus.HistogramVec
	FetchErrorsTotal *prometheus.CounterVec
	CachePutsTotal   prometheus.Counter
	SelectionChanges prometheus.Counter
	SessionsActive   prometheus.Gauge
}

// New creates the metrics and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		FetchSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rewardboard_backend_fetch_seconds",
			Help:    "Time spent fetching from the training backend",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		FetchErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rewardboard_backend_fetch_errors_total",
			Help: "Total number of failed backend fetches",
		}, []string{"endpoint"}),

		CachePutsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "rewardboard_cache_puts_total",
			Help: "Total number of run series written to the cache",
		}),

		SelectionChanges: factory.NewCounter(prometheus.CounterOpts{
			Name: "rewardboard_selection_changes_total",
			Help: "Total number of run selection changes",
		}),

		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rewardboard_sessions_active",
			Help: "Number of open dashboard sessions",
		}),
	}
}

// ObserveFetch records one backend request.
func (m *Metrics) ObserveFetch(endpoint string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.FetchSeconds.WithLabelValues(endpoint).Observe(d.Seconds())
	if err != nil {
		m.FetchErrorsTotal.WithLabelValues(endpoint).Inc()
	}
}

// ObserveCachePut records a run series written to the cache.
func (m *Metrics) ObserveCachePut(string) {
	if m == nil {
		return
	}
	m.CachePutsTotal.Inc()
}

// ObserveSelectionChange records a selection change.
func (m *Metrics) ObserveSelectionChange() {
	if m == nil {
		return
	}
	m.SelectionChanges.Inc()
}

// SetSessions updates the active session gauge.
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(n))
}
