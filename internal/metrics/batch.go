package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lasstat"

// File outcomes
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// BatchMetrics counts per-file outcomes of a batch. Each instance owns its
// registry so concurrent batches and tests never collide.
type BatchMetrics struct {
	registry *prometheus.Registry

	files    *prometheus.CounterVec
	points   prometheus.Counter
	duration prometheus.Histogram
	workers  prometheus.Gauge
	batches  *prometheus.CounterVec
}

// NewBatchMetrics creates and registers the batch collectors
func NewBatchMetrics() *BatchMetrics {
	m := &BatchMetrics{
		registry: prometheus.NewRegistry(),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Files processed by outcome",
		}, []string{"outcome"}),
		points: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_total",
			Help:      "Points in successfully processed files",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_duration_seconds",
			Help:      "Per-file extraction time",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers",
			Help:      "Worker count planned for the current batch",
		}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Batches by terminal state",
		}, []string{"state"}),
	}

	m.registry.MustRegister(m.files, m.points, m.duration, m.workers, m.batches)
	return m
}

// Registry exposes the underlying registry
func (m *BatchMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveFile records one finished file
func (m *BatchMetrics) ObserveFile(outcome string, elapsed time.Duration, points int64) {
	m.files.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK {
		m.duration.Observe(elapsed.Seconds())
		if points > 0 {
			m.points.Add(float64(points))
		}
	}
}

// SetWorkers records the planned worker count
func (m *BatchMetrics) SetWorkers(n int) {
	m.workers.Set(float64(n))
}

// ObserveBatch records a batch's terminal state
func (m *BatchMetrics) ObserveBatch(state string) {
	m.batches.WithLabelValues(state).Inc()
}

// WriteTextfile dumps all collectors in the node_exporter textfile format
func (m *BatchMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
