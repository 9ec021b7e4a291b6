package query

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/kestrelworks/queryd/internal/logging"
)

const instrumentationName = "github.com/kestrelworks/queryd/internal/query"

// Metrics is the orchestrator's outcome sink. Recording is
// fire-and-forget: instrument construction failures degrade to no-ops
// and never fail a query.
type Metrics struct {
	meter     metric.Meter
	processed metric.Int64Counter
	duration  metric.Float64Histogram
	inFlight  metric.Int64UpDownCounter
}

// NewMetrics creates the query outcome instruments.
func NewMetrics(logger *logging.Logger) *Metrics {
	m := &Metrics{meter: otel.Meter(instrumentationName)}

	var err error
	m.processed, err = m.meter.Int64Counter(
		"queryd.query.processed_total",
		metric.WithDescription("Processed queries labeled by variant, outcome, and cache_hit."),
		metric.WithUnit("{query}"),
	)
	if err != nil && logger != nil {
		logger.Warn(context.Background(), "failed to create processed counter", zap.Error(err))
	}

	m.duration, err = m.meter.Float64Histogram(
		"queryd.query.duration_seconds",
		metric.WithDescription("End-to-end Process duration in seconds, labeled by variant and outcome."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.025, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 15.0, 30.0, 60.0),
	)
	if err != nil && logger != nil {
		logger.Warn(context.Background(), "failed to create duration histogram", zap.Error(err))
	}

	m.inFlight, err = m.meter.Int64UpDownCounter(
		"queryd.query.in_flight",
		metric.WithDescription("Number of Process calls currently executing."),
		metric.WithUnit("{query}"),
	)
	if err != nil && logger != nil {
		logger.Warn(context.Background(), "failed to create in-flight counter", zap.Error(err))
	}

	return m
}

// RecordOutcome records one terminal Process outcome.
func (m *Metrics) RecordOutcome(ctx context.Context, variant Variant, elapsed time.Duration, cacheHit, success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	attrs := []attribute.KeyValue{
		attribute.String("variant", string(variant)),
		attribute.String("outcome", outcome),
		attribute.Bool("cache_hit", cacheHit),
	}
	if m.processed != nil {
		m.processed.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if m.duration != nil {
		m.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
	}
}

// AddInFlight adjusts the in-flight gauge.
func (m *Metrics) AddInFlight(ctx context.Context, delta int64) {
	if m == nil || m.inFlight == nil {
		return
	}
	m.inFlight.Add(ctx, delta)
}
