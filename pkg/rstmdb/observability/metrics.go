package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records client metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordRequest records one command round-trip with its duration and
	// error status.
	RecordRequest(ctx context.Context, op string, duration time.Duration, err error)

	// RecordReconnect records a reconnect outcome and how many attempts it
	// took.
	RecordReconnect(ctx context.Context, success bool, attempts int)

	// RecordEventDelivered records one notification delivered to a consumer
	// queue.
	RecordEventDelivered(ctx context.Context, machine string)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	requests       metric.Int64Counter
	requestLatency metric.Float64Histogram
	requestErrors  metric.Int64Counter
	reconnects     metric.Int64Counter
	events         metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("rstmdb")

	requests, err := meter.Int64Counter("rstmdb.client.requests",
		metric.WithDescription("Number of commands sent"),
	)
	if err != nil {
		return nil, err
	}

	requestLatency, err := meter.Float64Histogram("rstmdb.client.request.duration_ms",
		metric.WithDescription("Command round-trip latency in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	requestErrors, err := meter.Int64Counter("rstmdb.client.request.errors",
		metric.WithDescription("Number of failed commands"),
	)
	if err != nil {
		return nil, err
	}

	reconnects, err := meter.Int64Counter("rstmdb.client.reconnects",
		metric.WithDescription("Number of reconnect cycles"),
	)
	if err != nil {
		return nil, err
	}

	events, err := meter.Int64Counter("rstmdb.client.events.delivered",
		metric.WithDescription("Number of stream events delivered to consumers"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		requests:       requests,
		requestLatency: requestLatency,
		requestErrors:  requestErrors,
		reconnects:     reconnects,
		events:         events,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder backed by the global OTel
// meter provider, or NoopMetrics if meter creation fails.
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		return NoopMetrics{}
	}
	return m
}

// RecordRequest records one command round-trip.
func (m *otelMetrics) RecordRequest(ctx context.Context, op string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("op", op))
	m.requests.Add(ctx, 1, attrs)
	m.requestLatency.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err != nil {
		m.requestErrors.Add(ctx, 1, attrs)
	}
}

// RecordReconnect records a reconnect outcome.
func (m *otelMetrics) RecordReconnect(ctx context.Context, success bool, attempts int) {
	m.reconnects.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", success),
		attribute.Int("attempts", attempts),
	))
}

// RecordEventDelivered records one delivered notification.
func (m *otelMetrics) RecordEventDelivered(ctx context.Context, machine string) {
	m.events.Add(ctx, 1, metric.WithAttributes(attribute.String("machine", machine)))
}
