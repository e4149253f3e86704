package inventory

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the reconciliation and correlation collectors. A nil
// *Metrics records nothing.
type Metrics struct {
	reconcileTotal      *prometheus.CounterVec
	reconcileDuration   prometheus.Histogram
	correlationFailures prometheus.Counter
}

// NewMetrics registers the inventory collectors with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		reconcileTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleetinv",
			Name:      "reconcile_total",
			Help:      "Snapshots reconciled, by result.",
		}, []string{"result"}),
		reconcileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fleetinv",
			Name:      "reconcile_duration_seconds",
			Help:      "Time spent reconciling one snapshot.",
			Buckets:   prometheus.DefBuckets,
		}),
		correlationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fleetinv",
			Name:      "correlation_failures_total",
			Help:      "Event store lookups that failed or timed out.",
		}),
	}

	for _, c := range []prometheus.Collector{m.reconcileTotal, m.reconcileDuration, m.correlationFailures} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeReconcile(result string, started time.Time) {
	if m == nil {
		return
	}
	m.reconcileTotal.WithLabelValues(result).Inc()
	m.reconcileDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) correlationFailed() {
	if m == nil {
		return
	}
	m.correlationFailures.Inc()
}
