package storage

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/jittakal/gctrace/pkg/event"
	"github.com/jittakal/gctrace/pkg/storage"
)

// Ensure implementations satisfy interfaces.
var (
	_ storage.Router         = (*DefaultRouter)(nil)
	_ storage.RotationPolicy = (*SizePolicy)(nil)
)

// DefaultRouter lays archived files out per host and archive session.
type DefaultRouter struct {
	protocol string
	bucket   string
	basePath string
}

// NewRouter creates a new storage router.
func NewRouter(protocol, bucket, basePath string) *DefaultRouter {
	return &DefaultRouter{
		protocol: protocol,
		bucket:   bucket,
		basePath: strings.Trim(basePath, "/"),
	}
}

// Route returns the object URI for a file.
// Format: protocol://bucket/basePath/host/session/fileName
func (r *DefaultRouter) Route(host, session, fileName string) string {
	key := path.Join(r.basePath, host, session, path.Base(fileName))
	return fmt.Sprintf("%s://%s/%s", r.protocol, r.bucket, strings.TrimPrefix(key, "/"))
}

// objectKey strips "scheme://bucket/" from uri. A bare key is returned as is.
func objectKey(uri, scheme string) string {
	prefix := scheme + "://"
	if !strings.HasPrefix(uri, prefix) {
		return strings.TrimPrefix(uri, "/")
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, prefix), "/", 2)
	if len(parts) == 2 {
		return parts[1]
	}
	return ""
}

// FileName returns the name of the trace file with the given rotation index.
// Without a size limit there is a single file named after the prefix.
func FileName(prefix string, index int, limited bool) string {
	if !limited {
		return prefix
	}
	return fmt.Sprintf("%s.%d", prefix, index)
}

// PidPrefix returns the fallback prefix used when another process holds the
// lock on prefix.
func PidPrefix(prefix string, pid int) string {
	return fmt.Sprintf("%s.%x", prefix, pid)
}

func currentPidPrefix(prefix string) string {
	return PidPrefix(prefix, os.Getpid())
}

// SizePolicy rotates once the current file has reached a byte limit.
// A limit of zero disables rotation.
type SizePolicy struct {
	maxSizeBytes int64
}

// NewSizePolicy creates a new size based rotation policy.
func NewSizePolicy(limit int64) *SizePolicy {
	return &SizePolicy{maxSizeBytes: limit}
}

// Limited reports whether the policy ever rotates.
func (p *SizePolicy) Limited() bool {
	return p.maxSizeBytes > 0
}

// ShouldRotate returns true if the file size reached the limit.
func (p *SizePolicy) ShouldRotate(stats event.FileStats) bool {
	return p.maxSizeBytes > 0 && stats.SizeBytes >= p.maxSizeBytes
}
