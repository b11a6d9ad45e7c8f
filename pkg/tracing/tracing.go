package tracing

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer

// SetTracer points StartSpan at t. nil disables span creation.
func SetTracer(t trace.Tracer) {
	tracer = t
}

// StartSpan starts a child span named spanName. Without a tracer the span on
// ctx (usually a no-op) is returned unchanged.
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName)
}

// Fail records err on span and marks it failed
func Fail(span trace.Span, err error, description string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, description)
}

func spanContext(ctx context.Context) (trace.SpanContext, bool) {
	if tracer == nil {
		return trace.SpanContext{}, false
	}
	sc := trace.SpanContextFromContext(ctx)
	return sc, sc.IsValid()
}

// TraceID returns the hex trace id on ctx, or "" outside a span
func TraceID(ctx context.Context) string {
	sc, ok := spanContext(ctx)
	if !ok {
		return ""
	}
	return sc.TraceID().String()
}

// SpanID returns the hex span id on ctx, or "" outside a span
func SpanID(ctx context.Context) string {
	sc, ok := spanContext(ctx)
	if !ok {
		return ""
	}
	return sc.SpanID().String()
}

// Headers returns the W3C traceparent and tracestate for ctx so the trace
// can continue across a message broker. Empty outside a span.
func Headers(ctx context.Context) map[string]string {
	if _, ok := spanContext(ctx); !ok {
		return map[string]string{}
	}
	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)
	return carrier
}
