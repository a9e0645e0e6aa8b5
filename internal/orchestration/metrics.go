package orchestration

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const metricsNamespace = "etl"

// Metrics are the per-run task metrics. Each run gets its own registry so
// a push carries only that run's series.
type Metrics struct {
	registry *prometheus.Registry

	TaskRuns     *prometheus.CounterVec
	TaskDuration *prometheus.HistogramVec
	RowsLoaded   *prometheus.GaugeVec
}

// NewMetrics creates and registers the task metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		TaskRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "task_runs_total",
				Help:      "Tasks executed by flow, stage and status",
			},
			[]string{"flow", "task", "stage", "status"},
		),
		TaskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "task_duration_seconds",
				Help:      "Task execution time in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
			},
			[]string{"flow", "stage"},
		),
		RowsLoaded: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "rows_loaded",
				Help:      "Rows handed to a load task in the last run",
			},
			[]string{"flow", "task"},
		),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observe(flow, task string, stage Stage, ok bool, d time.Duration) {
	status := "success"
	if !ok {
		status = "failure"
	}
	m.TaskRuns.WithLabelValues(flow, task, string(stage), status).Inc()
	m.TaskDuration.WithLabelValues(flow, string(stage)).Observe(d.Seconds())
}

// Push sends the run's metrics to a Prometheus pushgateway grouped by flow.
func (m *Metrics) Push(ctx context.Context, gatewayURL, flow string) error {
	return push.New(gatewayURL, "etl_flows").
		Gatherer(m.registry).
		Grouping("flow", flow).
		PushContext(ctx)
}
