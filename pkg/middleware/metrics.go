package middleware

import (
	"time"

	"github.com/fluxorio/actionbus/pkg/action"
	"github.com/fluxorio/actionbus/pkg/bus"
	busprom "github.com/fluxorio/actionbus/pkg/observability/prometheus"
)

// Metrics returns an interceptor recording dispatch counts and latency.
// Pass nil to use the process-wide metrics instance.
func Metrics(m *busprom.Metrics) bus.Interceptor {
	if m == nil {
		m = busprom.GetMetrics()
	}
	return func(a *action.Action, next bus.Next) (*action.Action, error) {
		start := time.Now()
		out, err := next(a)

		typ := string(a.Type())
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		m.DispatchesTotal.WithLabelValues(typ, outcome).Inc()
		m.DispatchDuration.WithLabelValues(typ).Observe(time.Since(start).Seconds())

		return out, err
	}
}
