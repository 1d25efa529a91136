package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/seatrack/metric"
)

// engineMetrics holds Prometheus metrics for engine maintenance.
type engineMetrics struct {
	// Maintenance runs by task (purge, flush) and status (success, failure)
	runs *prometheus.CounterVec

	// Maintenance latency by task
	duration *prometheus.HistogramVec

	// Components currently started
	running prometheus.Gauge
}

// newEngineMetrics creates and registers engine metrics with the provided registry.
func newEngineMetrics(registry *metric.MetricsRegistry) (*engineMetrics, error) {
	if registry == nil {
		return nil, nil // Metrics disabled
	}

	m := &engineMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seatrack",
			Subsystem: "engine",
			Name:      "maintenance_runs_total",
			Help:      "Maintenance task runs",
		}, []string{"task", "status"}),

		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "seatrack",
			Subsystem: "engine",
			Name:      "maintenance_duration_seconds",
			Help:      "Maintenance task duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}, []string{"task"}),

		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "seatrack",
			Subsystem: "engine",
			Name:      "components_running",
			Help:      "Components started by the engine",
		}),
	}

	if err := registry.RegisterCounterVec("engine", "maintenance_runs", m.runs); err != nil {
		return nil, err
	}
	if err := registry.RegisterHistogramVec("engine", "maintenance_duration", m.duration); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge("engine", "components_running", m.running); err != nil {
		return nil, err
	}

	return m, nil
}

// recordRun records one maintenance task run.
func (m *engineMetrics) recordRun(task string, seconds float64, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.runs.WithLabelValues(task, status).Inc()
	m.duration.WithLabelValues(task).Observe(seconds)
}

func (m *engineMetrics) setRunning(n int) {
	if m == nil {
		return
	}
	m.running.Set(float64(n))
}
