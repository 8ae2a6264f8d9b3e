package pagekit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports resolution and administrative counters to Prometheus.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	resolutions   *prometheus.CounterVec
	duration      prometheus.Histogram
	cacheFailures prometheus.Counter
	adminChanges  *prometheus.CounterVec
}

// NewMetrics registers the pagekit collectors with reg.
//
// Example:
//
//	metrics := pagekit.NewMetrics(prometheus.DefaultRegisterer)
//	service := pagekit.NewService(db, pagekit.WithMetrics(metrics))
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagekit_resolutions_total",
				Help: "Total number of permission resolutions by outcome",
			},
			[]string{"outcome"},
		),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pagekit_resolution_duration_seconds",
			Help:    "Duration of permission resolutions",
			Buckets: prometheus.DefBuckets,
		}),
		cacheFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "pagekit_cache_failures_total",
			Help: "Total number of permission cache operations that failed and fell back to the store",
		}),
		adminChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagekit_admin_changes_total",
				Help: "Total number of audited administrative changes by action",
			},
			[]string{"action"},
		),
	}
}

func (m *Metrics) observeResolution(outcome Outcome, d time.Duration) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(string(outcome)).Inc()
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) observeCacheFailure() {
	if m == nil {
		return
	}
	m.cacheFailures.Inc()
}

func (m *Metrics) observeAdminChange(action AuditAction) {
	if m == nil {
		return
	}
	m.adminChanges.WithLabelValues(string(action)).Inc()
}
