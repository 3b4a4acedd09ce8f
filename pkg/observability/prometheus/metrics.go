// Package prometheus exposes dispatch bus metrics on a dedicated registry.
package prometheus

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DefaultRegistry is the default Prometheus registry for bus metrics.
	DefaultRegistry = prometheus.NewRegistry()

	// DefaultRegisterer wraps DefaultRegistry with the service label.
	DefaultRegisterer = prometheus.WrapRegistererWith(prometheus.Labels{"service": "actionbus"}, DefaultRegistry)

	metricsOnce sync.Once
	metrics     *Metrics
)

// Metrics holds the Prometheus instruments recorded by the metrics
// interceptor.
type Metrics struct {
	// DispatchesTotal counts dispatches by action type and outcome (ok, error).
	DispatchesTotal *prometheus.CounterVec

	// DispatchDuration observes end-to-end dispatch latency, interceptors and
	// fan-out included, by action type.
	DispatchDuration *prometheus.HistogramVec
}

// GetMetrics returns the process-wide metrics instance, created on first use
// against DefaultRegisterer.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetrics(DefaultRegisterer)
	})
	return metrics
}

// NewMetrics creates a metrics collection registered with registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = DefaultRegisterer
	}

	return &Metrics{
		DispatchesTotal: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "actionbus_dispatches_total",
				Help: "Total number of dispatched actions",
			},
			[]string{"type", "outcome"},
		),
		DispatchDuration: promauto.With(registerer).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "actionbus_dispatch_duration_seconds",
				Help:    "Dispatch duration in seconds, interceptors and fan-out included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"type"},
		),
	}
}
