package tracer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/jittakal/gctrace/internal/buffer"
	"github.com/jittakal/gctrace/internal/gate"
	"github.com/jittakal/gctrace/internal/storage"
	"github.com/jittakal/gctrace/pkg/catalog"
	"github.com/jittakal/gctrace/pkg/event"
)

// DefaultFlushInterval is used by Run when Config.FlushInterval is zero.
const DefaultFlushInterval = time.Second

// Flush modes used as metric labels.
const (
	ModeOpportunistic = "opportunistic"
	ModeForced        = "forced"
	ModeClose         = "close"
)

// Config configures a Tracer.
type Config struct {
	// Path is the log file, or the prefix of the rotated files when
	// SizeLimit is set.
	Path string
	// SizeLimit rotates the log once a file reaches this many bytes. Zero
	// keeps a single file.
	SizeLimit int64
	// Heavy enables per-object events.
	Heavy bool
	// FlushInterval is the period of Run.
	FlushInterval time.Duration
}

// MetricsCollector receives flush path metrics. It is never called from the
// emit path.
type MetricsCollector interface {
	IncFlushes(mode, status string)
	ObserveFlushDuration(mode string, seconds float64)
	IncRotations()
	IncSinkErrors(operation string)
	ObserveBytesWritten(bytes float64)
}

// Option configures optional Tracer dependencies.
type Option func(*Tracer)

// WithLogger sets the logger used on the cold path.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracer) { t.logger = logger }
}

// WithMetrics sets the flush metrics collector.
func WithMetrics(metrics MetricsCollector) Option {
	return func(t *Tracer) { t.metrics = metrics }
}

// WithFatalHandler replaces the handler for unrecoverable errors.
func WithFatalHandler(fn func(error)) Option {
	return func(t *Tracer) { t.fatal = fn }
}

// WithCatalog sets the catalog returned by Catalog. Defaults to
// catalog.Default.
func WithCatalog(c *catalog.Catalog) Option {
	return func(t *Tracer) { t.catalog = c }
}

// Stats contains tracer counters.
type Stats struct {
	RecordsEmitted   uint64
	BytesEmitted     uint64
	RecordsDropped   uint64
	HeavySkipped     uint64
	Flushes          uint64
	ForcedFlushes    uint64
	FlushesSkipped   uint64
	BytesWritten     uint64
	Rotations        uint64
	BuffersAllocated uint64
	BuffersDiscarded uint64
	BuffersReleased  uint64
}

// Tracer buffers binary event records and flushes them to a log file.
type Tracer struct {
	cfg     Config
	gate    gate.Gate
	pool    *buffer.Pool
	sink    *storage.FileSink
	catalog *catalog.Catalog

	logger  *slog.Logger
	metrics MetricsCollector
	fatal   func(error)

	closed atomic.Bool

	emitted      atomic.Uint64
	emittedBytes atomic.Uint64
	dropped      atomic.Uint64
	heavySkipped atomic.Uint64
	flushes      atomic.Uint64
	forced       atomic.Uint64
	skipped      atomic.Uint64
	written      atomic.Uint64
	rotations    atomic.Uint64
}

// New opens the log file and writes the header record into the buffers.
func New(cfg Config, opts ...Option) (*Tracer, error) {
	t := &Tracer{
		cfg:     cfg,
		pool:    buffer.NewPool(),
		catalog: catalog.Default(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.fatal == nil {
		t.fatal = t.exit
	}

	sink, err := storage.OpenFileSink(storage.SinkConfig{
		Path:      cfg.Path,
		SizeLimit: cfg.SizeLimit,
	}, t.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	t.sink = sink

	var header [1 + event.HeaderPayloadSize]byte
	t.Emit(event.KindHeader, false, event.NativeHeader().AppendPayload(header[:0]))

	t.logger.Info("tracer started",
		"path", sink.Path(),
		"size_limit", cfg.SizeLimit,
		"heavy", cfg.Heavy,
	)
	return t, nil
}

func (t *Tracer) exit(err error) {
	t.logger.Error("fatal tracer error", "error", err)
	os.Exit(1)
}

// Enabled reports whether records are still being recorded.
func (t *Tracer) Enabled() bool {
	return t.sink.Valid()
}

// Catalog returns the tracer's event catalog.
func (t *Tracer) Catalog() *catalog.Catalog {
	return t.catalog
}

// Path returns the current log file.
func (t *Tracer) Path() string {
	return t.sink.Path()
}

// Emit appends a record with the given kind and raw payload. It is a no-op
// once the tracer is disabled. A payload that does not fit in a buffer is
// dropped and counted.
func (t *Tracer) Emit(kind event.Kind, background bool, payload []byte) {
	if !t.sink.Valid() {
		return
	}

	t.gate.AcquireShared()
	if !t.sink.Valid() {
		t.gate.ReleaseShared()
		return
	}
	slot, err := t.pool.Reserve(1 + len(payload))
	if err != nil {
		t.gate.ReleaseShared()
		t.dropped.Add(1)
		return
	}
	slot[0] = byte(event.NewTag(kind, background))
	copy(slot[1:], payload)
	t.gate.ReleaseShared()

	t.emitted.Add(1)
	t.emittedBytes.Add(uint64(len(slot)))
}

// EmitEvent encodes values with desc and appends the record. Heavy events
// are skipped unless Config.Heavy is set; events marked Flush are followed
// by an opportunistic flush. values must hold one entry per field, or the
// record is dropped.
func (t *Tracer) EmitEvent(desc *catalog.Descriptor, background bool, values ...uint64) {
	if desc.Heavy && !t.cfg.Heavy {
		t.heavySkipped.Add(1)
		return
	}
	if len(values) != len(desc.Fields) {
		t.dropped.Add(1)
		return
	}
	if !t.sink.Valid() {
		return
	}

	size := 1 + desc.PayloadSize()

	t.gate.AcquireShared()
	if !t.sink.Valid() {
		t.gate.ReleaseShared()
		return
	}
	slot, err := t.pool.Reserve(size)
	if err != nil {
		t.gate.ReleaseShared()
		t.dropped.Add(1)
		return
	}
	slot[0] = byte(event.NewTag(desc.Kind, background))
	desc.Put(slot[1:], values)
	t.gate.ReleaseShared()

	t.emitted.Add(1)
	t.emittedBytes.Add(uint64(size))

	if desc.Flush {
		t.Flush(false)
	}
}

// Flush writes all buffered records to the log file.
//
// A non-forced flush gives up and returns false if the gate is busy. A
// forced flush takes the gate unconditionally and leaves it held; the caller
// must release it with ReleaseForcedFlush. Flush returns false, without
// touching the gate, once the tracer is disabled.
func (t *Tracer) Flush(forced bool) bool {
	if !t.sink.Valid() {
		return false
	}

	mode := ModeOpportunistic
	if forced {
		mode = ModeForced
		t.gate.ForceAcquireExclusive()
	} else if !t.gate.TryAcquireExclusive() {
		t.skipped.Add(1)
		if t.metrics != nil {
			t.metrics.IncFlushes(mode, "skipped")
		}
		return false
	}

	t.flushLocked(mode)

	if !forced {
		t.gate.ReleaseExclusive()
	} else {
		t.forced.Add(1)
	}
	return true
}

// ReleaseForcedFlush releases the gate held since a successful Flush(true).
func (t *Tracer) ReleaseForcedFlush() {
	t.gate.ReleaseExclusive()
}

// flushLocked writes and releases every detached buffer, oldest first.
// The gate must be held exclusively.
func (t *Tracer) flushLocked(mode string) {
	start := time.Now()
	chain := t.pool.DetachAll()

	var written int64
	for _, b := range chain.OldestFirst() {
		if t.sink.Valid() {
			t.writeBuffer(b, &written)
		}
		t.pool.Release(b)
	}

	t.flushes.Add(1)
	t.written.Add(uint64(written))

	if t.metrics == nil {
		return
	}
	status := "ok"
	if !t.sink.Valid() {
		status = "disabled"
	}
	t.metrics.IncFlushes(mode, status)
	t.metrics.ObserveFlushDuration(mode, time.Since(start).Seconds())
	if written > 0 {
		t.metrics.ObserveBytesWritten(float64(written))
	}
}

func (t *Tracer) writeBuffer(b *buffer.Buffer, written *int64) {
	if err := t.sink.WriteAll(b.Bytes()); err != nil {
		if t.metrics != nil {
			t.metrics.IncSinkErrors("write")
		}
		return
	}
	*written += int64(b.Len())

	rotated, err := t.sink.RotateIfNeeded()
	if err != nil {
		if t.metrics != nil {
			t.metrics.IncSinkErrors("rotate")
		}
		t.fatal(err)
		return
	}
	if rotated {
		t.rotations.Add(1)
		if t.metrics != nil {
			t.metrics.IncRotations()
		}
	}
}

// Run flushes opportunistically every Config.FlushInterval until ctx is
// done.
func (t *Tracer) Run(ctx context.Context) error {
	interval := t.cfg.FlushInterval
	if interval <= 0 {
		interval = DefaultFlushInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !t.Enabled() {
				t.logger.Warn("tracer disabled, stopping periodic flush")
				return nil
			}
			t.Flush(false)
		}
	}
}

// Close waits for active emitters, flushes everything and closes the log
// file. Emits after Close are no-ops. Close must not be called while a
// forced flush is still holding the gate.
func (t *Tracer) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	for !t.gate.TryAcquireExclusive() {
		runtime.Gosched()
	}
	defer t.gate.ReleaseExclusive()

	if t.sink.Valid() {
		t.flushLocked(ModeClose)
	}

	if err := t.sink.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}

	s := t.Stats()
	t.logger.Info("tracer closed",
		"records", s.RecordsEmitted,
		"bytes_written", s.BytesWritten,
		"dropped", s.RecordsDropped,
		"rotations", s.Rotations,
	)
	return nil
}

// Stats returns a snapshot of the tracer counters.
func (t *Tracer) Stats() Stats {
	ps := t.pool.Stats()
	return Stats{
		RecordsEmitted:   t.emitted.Load(),
		BytesEmitted:     t.emittedBytes.Load(),
		RecordsDropped:   t.dropped.Load(),
		HeavySkipped:     t.heavySkipped.Load(),
		Flushes:          t.flushes.Load(),
		ForcedFlushes:    t.forced.Load(),
		FlushesSkipped:   t.skipped.Load(),
		BytesWritten:     t.written.Load(),
		Rotations:        t.rotations.Load(),
		BuffersAllocated: ps.Allocated,
		BuffersDiscarded: ps.Discarded,
		BuffersReleased:  ps.Released,
	}
}
