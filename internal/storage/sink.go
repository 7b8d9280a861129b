package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	apperrors "github.com/jittakal/gctrace/internal/errors"
	"github.com/jittakal/gctrace/pkg/event"
)

// SinkConfig configures the live trace file.
type SinkConfig struct {
	// Path is the file name, or the prefix of the rotated file names when
	// SizeLimit is set.
	Path string
	// SizeLimit is the size at which the file is rotated. Zero means one
	// unbounded file.
	SizeLimit int64
}

// FileSink writes flushed buffers to the trace file and rotates it.
//
// WriteAll, RotateIfNeeded and Close must be serialized by the caller; the
// tracer only calls them while holding its gate exclusively. Valid is safe
// for concurrent use.
type FileSink struct {
	prefix string
	policy *SizePolicy
	logger *slog.Logger

	file      *os.File
	name      string
	index     int
	size      int64
	openedAt  time.Time
	lastWrite time.Time

	valid atomic.Bool
	// path mirrors name for readers that do not hold the gate.
	path atomic.Pointer[string]
}

// OpenFileSink creates or truncates the first trace file and locks it.
// If the file cannot be opened or is locked by another process, the process
// id in hex is appended to the prefix and the open is retried once.
func OpenFileSink(cfg SinkConfig, logger *slog.Logger) (*FileSink, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("trace file path is empty")
	}
	if cfg.SizeLimit < 0 {
		return nil, fmt.Errorf("negative size limit: %d", cfg.SizeLimit)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &FileSink{
		prefix: cfg.Path,
		policy: NewSizePolicy(cfg.SizeLimit),
		logger: logger,
	}

	err := s.open()
	if err != nil {
		fallback := currentPidPrefix(cfg.Path)
		logger.Warn("cannot use trace file, retrying with pid suffix",
			"path", s.fileName(),
			"fallback_prefix", fallback,
			"error", err,
		)
		s.prefix = fallback
		err = s.open()
	}
	if err != nil {
		return nil, &apperrors.StorageError{Operation: "open", Path: s.fileName(), Err: err}
	}

	s.valid.Store(true)
	logger.Info("trace file opened",
		"path", s.name,
		"size_limit", cfg.SizeLimit,
	)
	return s, nil
}

func (s *FileSink) fileName() string {
	return FileName(s.prefix, s.index, s.policy.Limited())
}

// open opens, locks and truncates the file for the current index.
func (s *FileSink) open() error {
	name := s.fileName()

	var (
		f   *os.File
		err error
	)
	for {
		f, err = os.OpenFile(name, os.O_CREATE|os.O_WRONLY, 0o644)
		if !errors.Is(err, syscall.EINTR) {
			break
		}
	}
	if err != nil {
		return err
	}

	if err := lockFile(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Truncate(0); err != nil {
		f.Close()
		return fmt.Errorf("truncate: %w", err)
	}

	s.file = f
	s.name = name
	s.path.Store(&name)
	s.size = 0
	s.openedAt = time.Now()
	return nil
}

// WriteAll writes p to the current file. Interrupted writes are retried; any
// other failure closes the file, disables the sink for good and returns
// ErrSinkDisabled.
func (s *FileSink) WriteAll(p []byte) error {
	if !s.valid.Load() {
		return apperrors.ErrSinkDisabled
	}

	for len(p) > 0 {
		n, err := s.file.Write(p)
		s.size += int64(n)
		p = p[n:]
		if err == nil {
			continue
		}
		if errors.Is(err, syscall.EINTR) {
			continue
		}
		s.disable(err)
		return fmt.Errorf("%w: %w", apperrors.ErrSinkDisabled, err)
	}
	s.lastWrite = time.Now()
	return nil
}

func (s *FileSink) disable(cause error) {
	s.valid.Store(false)
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
	s.logger.Error("trace file disabled after write failure",
		"path", s.name,
		"error", cause,
	)
}

// RotateIfNeeded starts the next file once the current one has reached the
// size limit. The file two indices back is deleted so that at most the
// previous and the current file exist. It returns true if it rotated.
// An error means the next file could not be opened; the sink is disabled.
func (s *FileSink) RotateIfNeeded() (bool, error) {
	if !s.valid.Load() || !s.policy.ShouldRotate(s.Stats()) {
		return false, nil
	}

	closed := s.name
	if err := s.file.Close(); err != nil {
		s.logger.Warn("failed to close trace file", "path", closed, "error", err)
	}
	s.file = nil

	if s.index > 0 {
		old := FileName(s.prefix, s.index-1, true)
		if err := os.Remove(old); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to delete old trace file", "path", old, "error", err)
		}
	}

	s.index++
	s.size = 0

	if err := s.open(); err != nil {
		s.valid.Store(false)
		return false, &apperrors.StorageError{Operation: "rotate", Path: s.fileName(), Err: err}
	}

	s.logger.Info("trace file rotated",
		"closed", closed,
		"path", s.name,
		"index", s.index,
	)
	return true, nil
}

// Stats returns statistics about the current file.
func (s *FileSink) Stats() event.FileStats {
	return event.FileStats{
		SizeBytes:      s.size,
		FirstWriteTime: s.openedAt,
		LastWriteTime:  s.lastWrite,
	}
}

// Valid reports whether the sink still accepts writes.
func (s *FileSink) Valid() bool {
	return s.valid.Load()
}

// Prefix returns the file name prefix in use, including a pid suffix if the
// fallback was taken.
func (s *FileSink) Prefix() string {
	return s.prefix
}

// Path returns the name of the current file. It is safe to call while the
// sink rotates.
func (s *FileSink) Path() string {
	if p := s.path.Load(); p != nil {
		return *p
	}
	return ""
}

// Index returns the rotation index of the current file.
func (s *FileSink) Index() int {
	return s.index
}

// Size returns the number of bytes written to the current file.
func (s *FileSink) Size() int64 {
	return s.size
}

// Close closes the current file and disables the sink.
func (s *FileSink) Close() error {
	s.valid.Store(false)
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	if err != nil {
		return &apperrors.StorageError{Operation: "close", Path: s.name, Err: err}
	}
	s.logger.Info("trace file closed", "path", s.name, "size", s.size)
	return nil
}
