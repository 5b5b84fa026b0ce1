package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the scheduler's Prometheus collectors. Controller and workers
// in the same process may share one instance.
type Metrics struct {
	ChunksDispatched prometheus.Counter
	QuitsSent        prometheus.Counter
	PartialResults   prometheus.Counter
	ExitAcks         prometheus.Counter
	ChunksInFlight   prometheus.Gauge
	ChunkSeconds     prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which is what tests usually want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ChunksDispatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "quadsched_chunks_dispatched_total",
			Help: "Chunks sent to workers with the work-available tag",
		}),
		QuitsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "quadsched_quits_sent_total",
			Help: "Quit signals sent to workers, one per drained pipeline slot",
		}),
		PartialResults: factory.NewCounter(prometheus.CounterOpts{
			Name: "quadsched_partial_results_total",
			Help: "Partial sums received by the controller",
		}),
		ExitAcks: factory.NewCounter(prometheus.CounterOpts{
			Name: "quadsched_worker_exits_total",
			Help: "Worker-exiting acknowledgments received by the controller",
		}),
		ChunksInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "quadsched_chunks_in_flight",
			Help: "Chunks dispatched whose partial sum has not arrived yet",
		}),
		ChunkSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "quadsched_chunk_compute_seconds",
			Help:    "Time a worker spends summing one chunk",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12),
		}),
	}
}
