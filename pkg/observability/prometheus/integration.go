package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fluxorio/actionbus/pkg/bus"
)

// ObserveDispatcher registers gauges and counters that track a dispatcher's
// live state: subscription count and the cumulative dispatch/delivery/drop
// counters from its Stats snapshot. Pass nil to use DefaultRegisterer.
func ObserveDispatcher(d *bus.Dispatcher, registerer prometheus.Registerer) error {
	if registerer == nil {
		registerer = DefaultRegisterer
	}

	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "actionbus_subscriptions_live",
				Help: "Number of live (non-disposed) subscriptions",
			},
			func() float64 { return float64(d.SubscriptionCount()) },
		),
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: "actionbus_deliveries_total",
				Help: "Total number of successful subscription deliveries",
			},
			func() float64 { return float64(d.Stats().Delivered) },
		),
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: "actionbus_dropped_deliveries_total",
				Help: "Deliveries dropped because the subscription was already disposed",
			},
			func() float64 { return float64(d.Stats().Dropped) },
		),
	}

	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return err
		}
	}
	return nil
}
