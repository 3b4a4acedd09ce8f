package middleware

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fluxorio/actionbus/pkg/action"
	"github.com/fluxorio/actionbus/pkg/bus"
	busotel "github.com/fluxorio/actionbus/pkg/observability/otel"
)

// Tracing returns an interceptor that wraps every dispatch in a span named
// after the action type, recording its tags, correlation id, and outcome.
func Tracing() bus.Interceptor {
	tracer := busotel.Tracer()
	return func(a *action.Action, next bus.Next) (*action.Action, error) {
		tags := a.Tags()
		tagNames := make([]string, len(tags))
		for i, t := range tags {
			tagNames[i] = string(t)
		}

		_, span := tracer.Start(context.Background(), "dispatch "+string(a.Type()),
			trace.WithSpanKind(trace.SpanKindInternal),
			trace.WithAttributes(
				attribute.String("actionbus.action.type", string(a.Type())),
				attribute.StringSlice("actionbus.action.tags", tagNames),
				attribute.String("actionbus.correlation_id", a.Meta(MetaCorrelationID)),
			),
		)
		defer span.End()

		out, err := next(a)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return out, err
	}
}
