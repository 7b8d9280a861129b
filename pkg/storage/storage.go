// Package storage defines interfaces for trace file storage operations.
//
// Live trace logs are written by the tracer's file sink. Finished logs and
// their exported forms can then be copied to object storage (S3, GCS, Azure
// Blob) through an Uploader.
package storage

import (
	"context"

	"github.com/jittakal/gctrace/pkg/event"
)

// Writer writes decoded records to a file in an export format.
type Writer interface {
	// Write encodes records into a new file under dir.
	// Returns the path of the file and the number of bytes written.
	Write(ctx context.Context, records []event.Record, dir string) (string, int64, error)

	// Close closes the writer and releases resources.
	Close() error
}

// Uploader copies a local file to object storage.
type Uploader interface {
	// Upload stores the file at localPath under the object URI produced by
	// a Router. Returns the number of bytes uploaded.
	Upload(ctx context.Context, localPath, uri string) (int64, error)

	// Close closes the uploader and releases resources.
	Close() error
}

// Router determines object storage locations for archived files.
type Router interface {
	// Route returns the object URI for a file produced on host during an
	// archive session.
	Route(host, session, fileName string) string
}

// RotationPolicy determines when the live trace file is rotated.
type RotationPolicy interface {
	// ShouldRotate returns true if the current file should be closed and
	// a new one started.
	ShouldRotate(stats event.FileStats) bool
}
