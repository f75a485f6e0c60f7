package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestHeadersRoundTrip(t *testing.T) {
	SetupPropagation()

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	headers := InjectHeaders(ctx, map[string]any{"x-other": 1})
	require.Contains(t, headers, "traceparent")
	assert.Equal(t, 1, headers["x-other"])

	out := ExtractHeaders(context.Background(), headers)
	assert.Equal(t, traceID, trace.SpanContextFromContext(out).TraceID())
}

func TestExtractHeadersWithoutTrace(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, ExtractHeaders(ctx, nil))
	assert.Equal(t, ctx, ExtractHeaders(ctx, map[string]any{"n": 3}))
}
