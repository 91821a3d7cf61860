package statemachine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTestTracer creates a test tracer with an in-memory exporter.
func setupTestTracer(t *testing.T) (*tracetest.InMemoryExporter, func()) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(
		trace.WithSyncer(exporter),
	)

	oldProvider := otel.GetTracerProvider()

	otel.SetTracerProvider(tp)

	cleanup := func() {
		otel.SetTracerProvider(oldProvider)
	}

	return exporter, cleanup
}

func spanAttributes(span tracetest.SpanStub) map[string]any {
	attrs := make(map[string]any)
	for _, attr := range span.Attributes {
		attrs[string(attr.Key)] = attr.Value.AsInterface()
	}

	return attrs
}

// TestDispatchSpans verifies the spans created around dispatches and effects.
// Note: Cannot use t.Parallel() because setupTestTracer modifies global OTEL tracer provider.
//
//nolint:paralleltest // Test modifies global OTEL tracer provider
func TestDispatchSpans(t *testing.T) {
	exporter, cleanup := setupTestTracer(t)
	t.Cleanup(cleanup)

	schema := &Schema{
		Name: "traced",
		States: map[string]State{
			"a": {On: map[string]Handler{"next": func(*Scope) Transition { return Goto("b") }}},
			"b": {
				On: map[string]Handler{"broken": Dynamic(func(*Scope) any { return 1.5 })},
				Entry: func(ctx context.Context, _ Entry) Cleanup {
					traceID, spanID := extractTraceContext(ctx)
					assert.NotEmpty(t, traceID)
					assert.NotEmpty(t, spanID)

					return nil
				},
			},
		},
	}

	m, err := New(context.Background(), schema, "a")
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close(context.Background()) })

	exporter.Reset()

	m.Send("next")

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	dispatch := spans[0]
	assert.Equal(t, "statemachine.dispatch", dispatch.Name)

	attrs := spanAttributes(dispatch)
	assert.Equal(t, "traced", attrs["machine"])
	assert.Equal(t, m.ID().String(), attrs["instance"])
	assert.Equal(t, "a", attrs["state"])
	assert.Equal(t, "next", attrs["event"])
	assert.Equal(t, "b", attrs["next_state"])
	assert.Equal(t, "transitioned", attrs["outcome"])

	effect := spans[1]
	assert.Equal(t, "effect.b.$entry", effect.Name)
	assert.Equal(t, dispatch.SpanContext.TraceID(), effect.SpanContext.TraceID())
	assert.Equal(t, "entry", spanAttributes(effect)["kind"])

	exporter.Reset()

	m.Send("broken")

	spans = exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "rejected", spanAttributes(spans[0])["outcome"])
	assert.NotEmpty(t, spans[0].Events, "the error is recorded on the span")
}

func TestExtractTraceContextWithoutSpan(t *testing.T) {
	t.Parallel()

	traceID, spanID := extractTraceContext(context.Background())
	assert.Empty(t, traceID)
	assert.Empty(t, spanID)
}
