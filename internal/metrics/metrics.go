// Package metrics exposes rental engine activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rental"

// Metrics implements rental.Observer.
type Metrics struct {
	opened   prometheus.Counter
	closed   *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
	overdue  prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		opened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rentals_opened_total",
			Help:      "Rentals opened successfully.",
		}),
		closed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rentals_closed_total",
			Help:      "Rentals closed successfully, by outcome.",
		}, []string{"outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_failures_total",
			Help:      "Failed rental operations, by operation and error kind.",
		}, []string{"operation", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Rental operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
		overdue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "overdue_rentals",
			Help:      "Open rentals past their due date at the last sweep.",
		}),
	}

	reg.MustRegister(m.opened, m.closed, m.failures, m.duration, m.overdue)
	return m
}

// ObserveOperation records one engine call. outcome is "ok" or an error kind name.
func (m *Metrics) ObserveOperation(operation, outcome string, elapsed time.Duration) {
	m.duration.WithLabelValues(operation, outcome).Observe(elapsed.Seconds())

	if outcome != "ok" {
		m.failures.WithLabelValues(operation, outcome).Inc()
		return
	}
	if operation == "open" {
		m.opened.Inc()
	}
}

// ObserveClosed counts a successful close by outcome.
func (m *Metrics) ObserveClosed(outcome string) {
	m.closed.WithLabelValues(outcome).Inc()
}

// ObserveOverdue records the overdue count of the latest sweep.
func (m *Metrics) ObserveOverdue(count int) {
	m.overdue.Set(float64(count))
}
