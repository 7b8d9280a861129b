package storage

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	apperrors "github.com/jittakal/gctrace/internal/errors"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenFileSink(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.log")

	// Existing content must be truncated.
	if err := os.WriteFile(path, []byte("stale content"), 0o644); err != nil {
		t.Fatal(err)
	}

	sink, err := OpenFileSink(SinkConfig{Path: path}, discardLogger())
	if err != nil {
		t.Fatalf("OpenFileSink() error = %v", err)
	}
	defer sink.Close()

	if !sink.Valid() {
		t.Error("Valid() = false after open")
	}
	if sink.Path() != path {
		t.Errorf("Path() = %q, want %q", sink.Path(), path)
	}
	if sink.Index() != 0 {
		t.Errorf("Index() = %d, want 0", sink.Index())
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 0 {
		t.Errorf("file size = %d after open, want 0", info.Size())
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0o644 {
		t.Errorf("mode = %v, want 0644", info.Mode().Perm())
	}
}

func TestOpenFileSink_SizeLimitedName(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "trace.log")

	sink, err := OpenFileSink(SinkConfig{Path: prefix, SizeLimit: 1024}, discardLogger())
	if err != nil {
		t.Fatalf("OpenFileSink() error = %v", err)
	}
	defer sink.Close()

	if want := prefix + ".0"; sink.Path() != want {
		t.Errorf("Path() = %q, want %q", sink.Path(), want)
	}
}

func TestOpenFileSink_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  SinkConfig
	}{
		{"empty path", SinkConfig{}},
		{"negative limit", SinkConfig{Path: "trace.log", SizeLimit: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := OpenFileSink(tt.cfg, discardLogger()); err == nil {
				t.Error("OpenFileSink() error = nil, want error")
			}
		})
	}
}

func TestOpenFileSink_LockedFallsBackToPid(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("advisory locks are not used on windows")
	}

	path := filepath.Join(t.TempDir(), "trace.log")

	first, err := OpenFileSink(SinkConfig{Path: path}, discardLogger())
	if err != nil {
		t.Fatalf("first OpenFileSink() error = %v", err)
	}
	defer first.Close()

	second, err := OpenFileSink(SinkConfig{Path: path}, discardLogger())
	if err != nil {
		t.Fatalf("second OpenFileSink() error = %v", err)
	}
	defer second.Close()

	want := PidPrefix(path, os.Getpid())
	if second.Prefix() != want {
		t.Errorf("Prefix() = %q, want %q", second.Prefix(), want)
	}
	if second.Path() != want {
		t.Errorf("Path() = %q, want %q", second.Path(), want)
	}

	// Both locks held: a third open has no fallback left.
	if _, err := OpenFileSink(SinkConfig{Path: path}, discardLogger()); err == nil {
		t.Error("third OpenFileSink() error = nil, want error")
	} else if !errors.Is(err, apperrors.ErrLockHeld) {
		t.Errorf("third OpenFileSink() error = %v, want ErrLockHeld", err)
	}
}

func TestFileSink_WriteAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.log")
	sink, err := OpenFileSink(SinkConfig{Path: path}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	if err := sink.WriteAll([]byte("abc")); err != nil {
		t.Fatalf("WriteAll() error = %v", err)
	}
	if err := sink.WriteAll([]byte("defg")); err != nil {
		t.Fatalf("WriteAll() error = %v", err)
	}
	if sink.Size() != 7 {
		t.Errorf("Size() = %d, want 7", sink.Size())
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "abcdefg" {
		t.Errorf("file content = %q, want abcdefg", got)
	}
}

func TestFileSink_WriteFailureDisables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.log")
	sink, err := OpenFileSink(SinkConfig{Path: path}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	// Break the descriptor underneath the sink.
	sink.file.Close()

	err = sink.WriteAll([]byte("x"))
	if !errors.Is(err, apperrors.ErrSinkDisabled) {
		t.Fatalf("WriteAll() error = %v, want ErrSinkDisabled", err)
	}
	if sink.Valid() {
		t.Error("Valid() = true after write failure")
	}

	// Disablement is permanent.
	if err := sink.WriteAll([]byte("y")); !errors.Is(err, apperrors.ErrSinkDisabled) {
		t.Errorf("second WriteAll() error = %v, want ErrSinkDisabled", err)
	}
	if rotated, err := sink.RotateIfNeeded(); rotated || err != nil {
		t.Errorf("RotateIfNeeded() = %v, %v on disabled sink", rotated, err)
	}
}

func TestFileSink_RotateIfNeeded(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "trace.log")

	sink, err := OpenFileSink(SinkConfig{Path: prefix, SizeLimit: 10}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	chunk := []byte("0123456789")
	for i := 0; i < 4; i++ {
		if err := sink.WriteAll(chunk[:6]); err != nil {
			t.Fatal(err)
		}
		if rotated, err := sink.RotateIfNeeded(); err != nil || rotated {
			t.Fatalf("round %d: RotateIfNeeded() below limit = %v, %v", i, rotated, err)
		}
		if err := sink.WriteAll(chunk[:4]); err != nil {
			t.Fatal(err)
		}
		rotated, err := sink.RotateIfNeeded()
		if err != nil {
			t.Fatalf("round %d: RotateIfNeeded() error = %v", i, err)
		}
		if !rotated {
			t.Fatalf("round %d: RotateIfNeeded() = false at limit", i)
		}
		if sink.Index() != i+1 {
			t.Errorf("round %d: Index() = %d, want %d", i, sink.Index(), i+1)
		}
		if sink.Size() != 0 {
			t.Errorf("round %d: Size() = %d after rotation, want 0", i, sink.Size())
		}
	}

	matches, err := filepath.Glob(prefix + ".*")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("files on disk = %v, want 2 files", matches)
	}
	for _, name := range []string{prefix + ".3", prefix + ".4"} {
		if _, err := os.Stat(name); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}

	full, err := os.ReadFile(prefix + ".3")
	if err != nil {
		t.Fatal(err)
	}
	if string(full) != "0123450123" {
		t.Errorf("rotated file content = %q", full)
	}
}

func TestFileSink_PathWhileRotating(t *testing.T) {
	prefix := filepath.Join(t.TempDir(), "trace.log")

	sink, err := OpenFileSink(SinkConfig{Path: prefix, SizeLimit: 4}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	done := make(chan struct{})
	bad := make(chan string, 1)
	go func() {
		defer close(bad)
		for {
			select {
			case <-done:
				return
			default:
			}
			if p := sink.Path(); !strings.HasPrefix(p, prefix+".") {
				bad <- p
				return
			}
		}
	}()

	for i := 0; i < 100; i++ {
		if err := sink.WriteAll([]byte("abcd")); err != nil {
			t.Fatal(err)
		}
		if _, err := sink.RotateIfNeeded(); err != nil {
			t.Fatal(err)
		}
	}
	close(done)

	if p, ok := <-bad; ok {
		t.Errorf("Path() = %q during rotation", p)
	}
	if want := prefix + ".100"; sink.Path() != want {
		t.Errorf("Path() = %q, want %q", sink.Path(), want)
	}
}

func TestFileSink_UnlimitedNeverRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.log")
	sink, err := OpenFileSink(SinkConfig{Path: path}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	if err := sink.WriteAll(make([]byte, 4096)); err != nil {
		t.Fatal(err)
	}
	if rotated, err := sink.RotateIfNeeded(); rotated || err != nil {
		t.Errorf("RotateIfNeeded() = %v, %v, want false, nil", rotated, err)
	}
}

func TestFileSink_RotateOpenFailure(t *testing.T) {
	dir := t.TempDir()
	prefix := filepath.Join(dir, "trace.log")

	sink, err := OpenFileSink(SinkConfig{Path: prefix, SizeLimit: 1}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer sink.Close()

	// A directory in place of the next file makes the open fail.
	if err := os.Mkdir(prefix+".1", 0o755); err != nil {
		t.Fatal(err)
	}
	if err := sink.WriteAll([]byte("x")); err != nil {
		t.Fatal(err)
	}

	rotated, err := sink.RotateIfNeeded()
	if rotated {
		t.Error("RotateIfNeeded() = true, want false")
	}
	var storageErr *apperrors.StorageError
	if !errors.As(err, &storageErr) || storageErr.Operation != "rotate" {
		t.Fatalf("RotateIfNeeded() error = %v, want rotate StorageError", err)
	}
	if sink.Valid() {
		t.Error("Valid() = true after failed rotation")
	}
}

func TestFileSink_CloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.log")
	sink, err := OpenFileSink(SinkConfig{Path: path}, discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	if err := sink.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if sink.Valid() {
		t.Error("Valid() = true after Close")
	}
}
