// Package middleware provides ready-made interceptors for the dispatch bus:
// structured logging, correlation-id propagation, Prometheus metrics, and
// OpenTelemetry tracing. Each is an ordinary bus.Interceptor; compose them
// with Dispatcher.AddInterceptor in the order they should see actions.
package middleware

import (
	"time"

	"github.com/fluxorio/actionbus/pkg/action"
	"github.com/fluxorio/actionbus/pkg/bus"
	"github.com/fluxorio/actionbus/pkg/logging"
)

// Logging returns an interceptor that logs every dispatch with its duration
// and outcome. Failures log at error level, successes at debug.
func Logging(logger logging.Logger) bus.Interceptor {
	if logger == nil {
		logger = logging.NewStdLogger()
	}
	return func(a *action.Action, next bus.Next) (*action.Action, error) {
		start := time.Now()
		out, err := next(a)
		elapsed := time.Since(start)

		if err != nil {
			logger.Errorf("dispatch %q failed after %s: %v", a.Type(), elapsed, err)
			return out, err
		}
		logger.Debugf("dispatch %q completed in %s", a.Type(), elapsed)
		return out, nil
	}
}
