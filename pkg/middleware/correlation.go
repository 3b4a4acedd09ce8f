package middleware

import (
	"github.com/google/uuid"

	"github.com/fluxorio/actionbus/pkg/action"
	"github.com/fluxorio/actionbus/pkg/bus"
)

// MetaCorrelationID is the action metadata key carrying the correlation id.
const MetaCorrelationID = "correlation_id"

// Correlation returns an interceptor that stamps every action with a
// correlation id before delivery. Actions arriving with one keep it, so ids
// survive interceptor transforms and async hops.
func Correlation() bus.Interceptor {
	return func(a *action.Action, next bus.Next) (*action.Action, error) {
		if a.Meta(MetaCorrelationID) == "" {
			a = a.WithMeta(MetaCorrelationID, uuid.NewString())
		}
		return next(a)
	}
}
