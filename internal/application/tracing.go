package application

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Mostafa-DE/gatherly-sub002/internal/application"

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on span and ends it. Domain refusals keep an unset
// status so only unexpected failures show up as errored spans.
func endSpan(span trace.Span, err error) {
	if err != nil {
		kind := ErrorKind(err)
		span.SetAttributes(attribute.String("gatherly.error_kind", kind))
		if kind == "unexpected" {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}
