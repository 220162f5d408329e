package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "veobridge"

// Metrics holds all VeoBridge metric instruments. When no meter provider is
// configured the instruments are no-ops, so callers never need nil checks.
type Metrics struct {
	TasksEnqueued    metric.Int64Counter
	TasksDispatched  metric.Int64Counter
	TasksSucceeded   metric.Int64Counter
	TasksFailed      metric.Int64Counter
	TasksTimedOut    metric.Int64Counter
	WorkersConnected metric.Int64UpDownCounter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.TasksEnqueued, err = meter.Int64Counter("veobridge.tasks.enqueued",
		metric.WithDescription("Number of tasks accepted into the queue"))
	if err != nil {
		return nil, err
	}

	m.TasksDispatched, err = meter.Int64Counter("veobridge.tasks.dispatched",
		metric.WithDescription("Number of tasks sent to a worker"))
	if err != nil {
		return nil, err
	}

	m.TasksSucceeded, err = meter.Int64Counter("veobridge.tasks.succeeded",
		metric.WithDescription("Number of tasks that produced an artifact"))
	if err != nil {
		return nil, err
	}

	m.TasksFailed, err = meter.Int64Counter("veobridge.tasks.failed",
		metric.WithDescription("Number of tasks that ended failed or save_failed"))
	if err != nil {
		return nil, err
	}

	m.TasksTimedOut, err = meter.Int64Counter("veobridge.tasks.timed_out",
		metric.WithDescription("Number of tasks reclaimed by the timeout sweep"))
	if err != nil {
		return nil, err
	}

	m.WorkersConnected, err = meter.Int64UpDownCounter("veobridge.workers.connected",
		metric.WithDescription("Number of currently connected workers"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
