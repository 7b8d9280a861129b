package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jittakal/gctrace/internal/storage"
	"github.com/jittakal/gctrace/pkg/tracer"
)

var (
	_ tracer.MetricsCollector  = (*Metrics)(nil)
	_ storage.MetricsCollector = (*Metrics)(nil)
)

const namespace = "gctrace"

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Tracer flush path
	Flushes       *prometheus.CounterVec
	FlushDuration *prometheus.HistogramVec
	Rotations     prometheus.Counter
	SinkErrors    *prometheus.CounterVec
	FlushBytes    prometheus.Histogram

	// Storage metrics
	FilesWritten         *prometheus.CounterVec
	StorageWriteDuration *prometheus.HistogramVec
	FileSize             *prometheus.HistogramVec
	StorageErrors        *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Flushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flushes_total",
				Help:      "Total number of flush attempts by mode and outcome",
			},
			[]string{"mode", "status"},
		),
		FlushDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "flush_duration_seconds",
				Help:      "Time spent draining buffers into the log file",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"mode"},
		),
		Rotations: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rotations_total",
				Help:      "Total number of log file rotations",
			},
		),
		SinkErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sink_errors_total",
				Help:      "Total number of log file errors",
			},
			[]string{"operation"},
		),
		FlushBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "flush_bytes",
				Help:      "Bytes written to the log file per flush",
				Buckets:   prometheus.ExponentialBuckets(64, 4, 10), // 64B to 16MB
			},
		),

		FilesWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "files_written_total",
				Help: "Total number of files written to storage",
			},
			[]string{"backend", "format", "status"},
		),
		StorageWriteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storage_write_duration_seconds",
				Help:    "Duration of complete storage write operations including encoding",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
		FileSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "file_size_bytes",
				Help:    "Size of files written to storage",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to 256MB
			},
			[]string{"backend", "format"},
		),
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_errors_total",
				Help: "Total number of storage errors",
			},
			[]string{"backend", "error_type"},
		),
	}
}

// IncFlushes increments the flush counter.
func (m *Metrics) IncFlushes(mode, status string) {
	m.Flushes.WithLabelValues(mode, status).Inc()
}

// ObserveFlushDuration observes flush duration.
func (m *Metrics) ObserveFlushDuration(mode string, seconds float64) {
	m.FlushDuration.WithLabelValues(mode).Observe(seconds)
}

// IncRotations increments the rotation counter.
func (m *Metrics) IncRotations() {
	m.Rotations.Inc()
}

// IncSinkErrors increments the sink error counter.
func (m *Metrics) IncSinkErrors(operation string) {
	m.SinkErrors.WithLabelValues(operation).Inc()
}

// ObserveBytesWritten observes bytes written by one flush.
func (m *Metrics) ObserveBytesWritten(bytes float64) {
	m.FlushBytes.Observe(bytes)
}

// IncFilesWritten increments files written counter.
func (m *Metrics) IncFilesWritten(backend string, format string, status string) {
	m.FilesWritten.WithLabelValues(backend, format, status).Inc()
}

// ObserveFileSize observes file size.
func (m *Metrics) ObserveFileSize(backend string, format string, size float64) {
	m.FileSize.WithLabelValues(backend, format).Observe(size)
}

// ObserveStorageWriteDuration observes storage write duration.
func (m *Metrics) ObserveStorageWriteDuration(backend string, duration float64) {
	m.StorageWriteDuration.WithLabelValues(backend).Observe(duration)
}

// IncStorageErrors increments storage errors counter.
func (m *Metrics) IncStorageErrors(backend string, operation string) {
	m.StorageErrors.WithLabelValues(backend, operation).Inc()
}

// StatsSource is implemented by *tracer.Tracer.
type StatsSource interface {
	Stats() tracer.Stats
}

// RegisterTracerStats exposes the tracer's hot-path counters. They are read
// from src at scrape time, so emitting never touches a metric.
func RegisterTracerStats(registry prometheus.Registerer, src StatsSource) {
	factory := promauto.With(registry)

	counter := func(name, help string, read func(tracer.Stats) uint64) {
		factory.NewCounterFunc(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      name,
				Help:      help,
			},
			func() float64 { return float64(read(src.Stats())) },
		)
	}

	counter("records_emitted_total", "Records reserved in a buffer",
		func(s tracer.Stats) uint64 { return s.RecordsEmitted })
	counter("bytes_emitted_total", "Bytes reserved in buffers, tags included",
		func(s tracer.Stats) uint64 { return s.BytesEmitted })
	counter("records_dropped_total", "Records dropped because the tracer was disabled or the record was invalid",
		func(s tracer.Stats) uint64 { return s.RecordsDropped })
	counter("heavy_skipped_total", "High-volume records skipped because heavy tracing is off",
		func(s tracer.Stats) uint64 { return s.HeavySkipped })
	counter("flushes_completed_total", "Flushes that drained buffers",
		func(s tracer.Stats) uint64 { return s.Flushes })
	counter("forced_flushes_total", "Flushes that waited for the gate",
		func(s tracer.Stats) uint64 { return s.ForcedFlushes })
	counter("flushes_skipped_total", "Opportunistic flushes skipped because an emitter held the gate",
		func(s tracer.Stats) uint64 { return s.FlushesSkipped })
	counter("bytes_written_total", "Bytes written to the log file",
		func(s tracer.Stats) uint64 { return s.BytesWritten })
	counter("buffers_allocated_total", "Buffers allocated",
		func(s tracer.Stats) uint64 { return s.BuffersAllocated })
	counter("buffers_discarded_total", "Buffers discarded after losing the install race",
		func(s tracer.Stats) uint64 { return s.BuffersDiscarded })
	counter("buffers_released_total", "Buffers returned to the pool after a flush",
		func(s tracer.Stats) uint64 { return s.BuffersReleased })
}
