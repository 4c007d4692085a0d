package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the rstmdb client tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("rstmdb")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartConnectSpan starts a span covering dial, handshake, and auth.
	StartConnectSpan(ctx context.Context, addr string) (context.Context, trace.Span)

	// StartRequestSpan starts a span for one command round-trip.
	StartRequestSpan(ctx context.Context, op, correlationID string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the
// provider before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartConnectSpan starts a span covering dial, handshake, and auth.
func (m *otelSpanManager) StartConnectSpan(ctx context.Context, addr string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "rstmdb.connect",
		trace.WithAttributes(
			attribute.String("server.addr", addr),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// StartRequestSpan starts a span for one command round-trip.
func (m *otelSpanManager) StartRequestSpan(ctx context.Context, op, correlationID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "rstmdb.request."+op,
		trace.WithAttributes(
			attribute.String("rcp.op", op),
			attribute.String("rcp.correlation_id", correlationID),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
