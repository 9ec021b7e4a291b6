package cache

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kestrelworks/queryd/internal/logging"
)

const instrumentationName = "github.com/kestrelworks/queryd/internal/cache"

// RegisterMetrics exposes cache occupancy as observable gauges.
func (c *Cache) RegisterMetrics(logger *logging.Logger) {
	meter := otel.Meter(instrumentationName)

	entries, err := meter.Int64ObservableGauge(
		"queryd.cache.entries",
		metric.WithDescription("Cache entries by state (active or expired-pending-eviction)."),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		logger.Warn(context.Background(), "failed to create cache entries gauge")
		return
	}

	size, err := meter.Int64ObservableGauge(
		"queryd.cache.approx_size_bytes",
		metric.WithDescription("Approximate memory held by cached values."),
		metric.WithUnit("By"),
	)
	if err != nil {
		logger.Warn(context.Background(), "failed to create cache size gauge")
		return
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := c.Stats()
		o.ObserveInt64(entries, int64(stats.Active),
			metric.WithAttributes(attribute.String("state", "active")))
		o.ObserveInt64(entries, int64(stats.Expired),
			metric.WithAttributes(attribute.String("state", "expired")))
		o.ObserveInt64(size, int64(stats.ApproxSize))
		return nil
	}, entries, size)
	if err != nil {
		logger.Warn(context.Background(), "failed to register cache gauge callback")
	}
}
