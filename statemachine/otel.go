package statemachine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "statemachine"

// startDispatchSpan creates the span covering the reduction of one event.
// The caller is responsible for calling span.End().
//
//nolint:spancheck // Span lifecycle managed by caller
func startDispatchSpan(ctx context.Context, machine, instance, state, event string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "statemachine.dispatch")
	span.SetAttributes(
		attribute.String("machine", machine),
		attribute.String("instance", instance),
		attribute.String("state", state),
		attribute.String("event", event),
	)

	return ctx, span
}

// startEffectSpan creates the span covering one effect body.
// The caller is responsible for calling span.End().
//
//nolint:spancheck // Span lifecycle managed by caller
func startEffectSpan(ctx context.Context, machine, effect, kind string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "effect."+effect)
	span.SetAttributes(
		attribute.String("machine", machine),
		attribute.String("effect", effect),
		attribute.String("kind", kind),
	)

	return ctx, span
}

// endDispatchSpan records the outcome of a dispatch and ends the span.
func endDispatchSpan(span trace.Span, to string, outcome Outcome, err error) {
	span.SetAttributes(
		attribute.String("next_state", to),
		attribute.String("outcome", string(outcome)),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, string(outcome))
	}

	span.End()
}

// extractTraceContext extracts trace ID and span ID from context for logging.
func extractTraceContext(ctx context.Context) (traceID, spanID string) {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		spanCtx := span.SpanContext()

		return spanCtx.TraceID().String(), spanCtx.SpanID().String()
	}

	return "", ""
}
