// Package metrics holds the OpenTelemetry instruments Objectory records.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of all Objectory instruments.
const MeterName = "github.com/erazemk/objectory"

// Metrics holds the metric instruments. A nil *Metrics records nothing.
type Metrics struct {
	capturesStarted  metric.Int64Counter
	captureOutcomes  metric.Int64Counter
	captureBytes     metric.Int64Histogram
	captureDuration  metric.Float64Histogram
	collectionWrites metric.Int64Counter
}

// New creates the instruments on the given MeterProvider.
func New(mp metric.MeterProvider) *Metrics {
	meter := mp.Meter(MeterName)
	m := &Metrics{}

	// Instrument creation only fails on invalid names; fall back to the
	// bare instrument so recording never has to nil-check.
	var err error

	m.capturesStarted, err = meter.Int64Counter(
		"objectory.capture.started",
		metric.WithDescription("Capture sessions started"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		m.capturesStarted, _ = meter.Int64Counter("objectory.capture.started")
	}

	m.captureOutcomes, err = meter.Int64Counter(
		"objectory.capture.finished",
		metric.WithDescription("Capture sessions finished, by outcome"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		m.captureOutcomes, _ = meter.Int64Counter("objectory.capture.finished")
	}

	m.captureBytes, err = meter.Int64Histogram(
		"objectory.capture.size",
		metric.WithDescription("Size of finished video assets"),
		metric.WithUnit("By"),
	)
	if err != nil {
		m.captureBytes, _ = meter.Int64Histogram("objectory.capture.size")
	}

	m.captureDuration, err = meter.Float64Histogram(
		"objectory.capture.duration",
		metric.WithDescription("Wall time from capture start to finish"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		m.captureDuration, _ = meter.Float64Histogram("objectory.capture.duration")
	}

	m.collectionWrites, err = meter.Int64Counter(
		"objectory.collection.writes",
		metric.WithDescription("Collection mutations, by operation"),
		metric.WithUnit("{write}"),
	)
	if err != nil {
		m.collectionWrites, _ = meter.Int64Counter("objectory.collection.writes")
	}

	return m
}

// CaptureStarted records the start of a capture session.
func (m *Metrics) CaptureStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.capturesStarted.Add(ctx, 1)
}

// CaptureFinished records the outcome of a capture session.
func (m *Metrics) CaptureFinished(ctx context.Context, outcome string, size int, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.captureOutcomes.Add(ctx, 1, attrs)
	m.captureDuration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	if size > 0 {
		m.captureBytes.Record(ctx, int64(size))
	}
}

// CollectionWrite records a successful collection mutation.
func (m *Metrics) CollectionWrite(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.collectionWrites.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}
