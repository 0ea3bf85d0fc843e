package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("credential-lifecycle/internal/identity/service")

func startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "AuthService."+op, trace.WithAttributes(attrs...))
}

// endSpan records the outcome of an operation. Domain errors keep the span OK and
// only annotate the code; other errors mark the span as failed.
func endSpan(span trace.Span, err error) {
	span.SetAttributes(attribute.String("auth.outcome", outcome(err)))
	if err != nil {
		if _, ok := AsError(err); !ok {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
