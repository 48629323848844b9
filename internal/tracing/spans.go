package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartCompleteSpan opens the span covering one routed completion,
// including cache lookup and every provider attempt.
func StartCompleteSpan(ctx context.Context, model string, messages int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "router.complete",
		trace.WithAttributes(
			attribute.String("request.model", model),
			attribute.Int("request.messages", messages),
		),
	)
}

// StartAttemptSpan opens a client span for a single provider attempt.
func StartAttemptSpan(ctx context.Context, providerID string, priority int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "provider.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("provider.id", providerID),
			attribute.Int("provider.priority", priority),
		),
	)
}

// SetOutcome records the result of a completion on the span in ctx.
func SetOutcome(ctx context.Context, providerID string, tokens int, cached bool) {
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("response.provider", providerID),
		attribute.Int("response.tokens", tokens),
		attribute.Bool("response.cached", cached),
	)
}

// InjectHeaders writes the current trace context (traceparent, tracestate)
// into req so the upstream can continue the trace.
func InjectHeaders(ctx context.Context, req *http.Request) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
}

// RecordError records err on the span in ctx and marks it failed.
func RecordError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
