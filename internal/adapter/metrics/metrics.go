package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ArchiveMetrics holds all Prometheus metrics of the archive service.
type ArchiveMetrics struct {
	MessagesTotal     *prometheus.CounterVec
	BufferedMessages  prometheus.Gauge
	FlushBatchSize    prometheus.Histogram
	FlushesTotal      *prometheus.CounterVec
	StreamsDiscovered prometheus.Counter
	ReconcilePasses   *prometheus.CounterVec
}

// New initializes and registers the metrics with the given registerer.
// Tests pass a fresh prometheus.NewRegistry to avoid collisions.
func New(reg prometheus.Registerer) *ArchiveMetrics {
	factory := promauto.With(reg)
	return &ArchiveMetrics{
		MessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatvault",
			Subsystem: "ingest",
			Name:      "messages_total",
			Help:      "Total number of received chat lines by status.",
		}, []string{"status"}), // status: accepted, error_parse, error_unknown_type, error_missing_tag
		BufferedMessages: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatvault",
			Subsystem: "staging",
			Name:      "buffered_messages",
			Help:      "Number of messages held in the staging buffer.",
		}),
		FlushBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chatvault",
			Subsystem: "writer",
			Name:      "flush_batch_size",
			Help:      "Size of batches written to the store.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		FlushesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatvault",
			Subsystem: "writer",
			Name:      "flushes_total",
			Help:      "Total number of flush attempts by status.",
		}, []string{"status"}),
		StreamsDiscovered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "chatvault",
			Subsystem: "reconciler",
			Name:      "streams_discovered_total",
			Help:      "Total number of newly observed live streams.",
		}),
		ReconcilePasses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatvault",
			Subsystem: "reconciler",
			Name:      "passes_total",
			Help:      "Total number of reconciliation passes by status.",
		}, []string{"status"}),
	}
}
