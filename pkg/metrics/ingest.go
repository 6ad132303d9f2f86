package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// IngestMetrics tracks the chunk pipeline's line outcomes and retries.
type IngestMetrics struct {
	lines         *prometheus.CounterVec
	chunkRetries  *prometheus.CounterVec
	chunkDuration *prometheus.HistogramVec
}

// NewIngestMetrics registers the pipeline metrics on the provided registerer.
func NewIngestMetrics(reg prometheus.Registerer) *IngestMetrics {
	if reg == nil {
		return &IngestMetrics{}
	}
	lines := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_lines_total",
		Help: "Ingested lines by entity type and outcome.",
	}, []string{"entity", "outcome"})
	chunkRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_chunk_retries_total",
		Help: "Chunk retries by cause.",
	}, []string{"cause"})
	chunkDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingest_chunk_duration_seconds",
		Help:    "Duration of chunk processing in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"entity"})
	reg.MustRegister(lines, chunkRetries, chunkDuration)
	return &IngestMetrics{
		lines:         lines,
		chunkRetries:  chunkRetries,
		chunkDuration: chunkDuration,
	}
}

// IncLine records one line outcome (created, updated, skipped).
func (m *IngestMetrics) IncLine(entity, outcome string) {
	if m == nil || m.lines == nil {
		return
	}
	m.lines.WithLabelValues(normalizeLabel(entity), normalizeLabel(outcome)).Inc()
}

// IncChunkRetry records a scheduled chunk retry by cause.
func (m *IngestMetrics) IncChunkRetry(cause string) {
	if m == nil || m.chunkRetries == nil {
		return
	}
	m.chunkRetries.WithLabelValues(normalizeLabel(cause)).Inc()
}

// ObserveChunkDuration records the wall time of one chunk attempt.
func (m *IngestMetrics) ObserveChunkDuration(entity string, duration time.Duration) {
	if m == nil || m.chunkDuration == nil {
		return
	}
	m.chunkDuration.WithLabelValues(normalizeLabel(entity)).Observe(duration.Seconds())
}
