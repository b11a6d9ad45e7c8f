package tracing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Ramsey-B/aster/pkg/tracing"
	"github.com/Ramsey-B/aster/pkg/tracing/exporters"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := tracing.Setup(context.Background(), "aster", "test", exporters.OTLPConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestTraceIdentifiers(t *testing.T) {
	provider := tracing.NewProvider("aster", "test")
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
		tracing.SetTracer(nil)
	})

	assert.Empty(t, tracing.TraceID(context.Background()))
	assert.Empty(t, tracing.Headers(context.Background()))

	ctx, span := tracing.StartSpan(context.Background(), "Pipeline.run")
	defer span.End()

	traceID := tracing.TraceID(ctx)
	assert.Len(t, traceID, 32)
	assert.Len(t, tracing.SpanID(ctx), 16)
	assert.Contains(t, tracing.Headers(ctx)["traceparent"], traceID)
}

func TestFailRecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := tracing.NewProvider("aster", "test", sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
		tracing.SetTracer(nil)
	})

	_, span := tracing.StartSpan(context.Background(), "Promoter.Promote")
	tracing.Fail(span, errors.New("disk full"), "promotion failed")
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "promotion failed", ended[0].Status().Description)
	require.Len(t, ended[0].Events(), 1)
	assert.Equal(t, "exception", ended[0].Events()[0].Name)
}
