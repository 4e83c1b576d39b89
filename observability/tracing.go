package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/xraph/courier"

// Tracer wraps the OpenTelemetry tracer used for trigger and attempt spans.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global otel provider.
func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(tracerName)}
}

// NewTracerWithProvider creates a tracer from tp.
func NewTracerWithProvider(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(tracerName)}
}

// noopSpan is non-recording: the background context carries no span.
func noopSpan() trace.Span {
	return trace.SpanFromContext(context.Background())
}

// StartTriggerSpan starts the span covering one Trigger call.
func (t *Tracer) StartTriggerSpan(ctx context.Context, eventType string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, noopSpan()
	}
	return t.tracer.Start(ctx, "courier.trigger",
		trace.WithAttributes(attribute.String("courier.event_type", eventType)),
	)
}

// EndTriggerSpan records how many deliveries were enqueued.
func (t *Tracer) EndTriggerSpan(span trace.Span, enqueued int, err error) {
	if t == nil {
		return
	}
	span.SetAttributes(attribute.Int("courier.enqueued", enqueued))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// StartAttemptSpan starts the span covering one delivery attempt.
func (t *Tracer) StartAttemptSpan(ctx context.Context, deliveryID, subscriptionID, eventType string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, noopSpan()
	}
	return t.tracer.Start(ctx, "courier.attempt",
		trace.WithAttributes(
			attribute.String("courier.delivery_id", deliveryID),
			attribute.String("courier.subscription_id", subscriptionID),
			attribute.String("courier.event_type", eventType),
		),
	)
}

// EndAttemptSpan ends an attempt span with its result.
func (t *Tracer) EndAttemptSpan(span trace.Span, statusCode, latencyMs int, outcome, errMsg string) {
	if t == nil {
		return
	}
	span.SetAttributes(
		attribute.Int("courier.status_code", statusCode),
		attribute.Int("courier.latency_ms", latencyMs),
		attribute.String("courier.outcome", outcome),
	)
	if errMsg != "" {
		span.SetAttributes(attribute.String("courier.error", errMsg))
		if outcome != "retry" {
			span.SetStatus(codes.Error, errMsg)
		}
	}
	span.End()
}
