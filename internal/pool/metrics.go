package pool

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/kestrelworks/queryd/internal/agent"
)

const instrumentationName = "github.com/kestrelworks/queryd/internal/pool"

// RegisterMetrics exposes pool occupancy as observable gauges. Failures
// are logged and leave the pool unobserved, never broken.
func (c *Coordinator) RegisterMetrics() {
	meter := otel.Meter(instrumentationName)

	agents, err := meter.Int64ObservableGauge(
		"queryd.pool.agents",
		metric.WithDescription("Live agents by type and status."),
		metric.WithUnit("{agent}"),
	)
	if err != nil {
		c.logger.Warn(context.Background(), "failed to create pool gauge", zap.Error(err))
		return
	}

	observe := func(o metric.Observer, t agent.Type, status agent.Status, n int) {
		o.ObserveInt64(agents, int64(n), metric.WithAttributes(
			attribute.String("agent_type", string(t)),
			attribute.String("status", string(status))))
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		stats := c.Stats()
		for t, ts := range stats.ByType {
			observe(o, t, agent.StatusIdle, ts.Idle)
			observe(o, t, agent.StatusBusy, ts.Busy)
			observe(o, t, agent.StatusError, ts.Error)
		}
		return nil
	}, agents)
	if err != nil {
		c.logger.Warn(context.Background(), "failed to register pool gauge callback", zap.Error(err))
	}
}
