package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	pkgstorage "github.com/jittakal/gctrace/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ pkgstorage.Uploader = (*GCSUploader)(nil)

// GCSConfig contains Google Cloud Storage configuration.
type GCSConfig struct {
	Bucket               string
	ProjectID            string
	CredentialsFile      string
	CredentialsJSON      string
	Endpoint             string
	UseDefaultCredential bool
}

// GCSUploader implements storage.Uploader for Google Cloud Storage.
// It supports service account files, inline JSON credentials and
// application default credentials.
type GCSUploader struct {
	client  *storage.Client
	bucket  string
	logger  *slog.Logger
	metrics MetricsCollector
}

// gcsClientOptions returns the client options for cfg.
func gcsClientOptions(cfg GCSConfig, logger *slog.Logger) []option.ClientOption {
	var clientOpts []option.ClientOption
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.Endpoint))
	}

	switch {
	case cfg.UseDefaultCredential:
		logger.Info("using default GCP credentials")
	case cfg.CredentialsJSON != "":
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
		logger.Info("using GCP credentials from JSON string")
	case cfg.CredentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Info("using GCP credentials from file", "file", cfg.CredentialsFile)
	default:
		logger.Info("no explicit credentials provided, using default GCP credentials")
	}
	return clientOpts
}

// NewGCSUploader creates a new Google Cloud Storage uploader.
func NewGCSUploader(
	ctx context.Context,
	cfg GCSConfig,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*GCSUploader, error) {
	client, err := storage.NewClient(ctx, gcsClientOptions(cfg, logger)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	logger.Info("GCS uploader created",
		"bucket", cfg.Bucket,
		"project_id", cfg.ProjectID,
	)

	return &GCSUploader{
		client:  client,
		bucket:  cfg.Bucket,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Upload uploads localPath to GCS. uri is either gs://bucket/object or a
// bare object name.
func (u *GCSUploader) Upload(ctx context.Context, localPath, uri string) (int64, error) {
	startTime := time.Now()
	objectPath := objectKey(uri, "gs")
	format := formatLabel(localPath)

	file, err := os.Open(localPath)
	if err != nil {
		u.incError("file_open")
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	gcsWriter := u.client.Bucket(u.bucket).Object(objectPath).NewWriter(ctx)
	gcsWriter.ContentType = contentType(localPath)

	bytesWritten, err := io.Copy(gcsWriter, file)
	if err != nil {
		u.incError("upload")
		gcsWriter.Close()
		return 0, fmt.Errorf("failed to write to GCS: %w", err)
	}

	// Close finalizes the upload
	if err := gcsWriter.Close(); err != nil {
		u.incError("close")
		return 0, fmt.Errorf("failed to close GCS writer: %w", err)
	}

	duration := time.Since(startTime)

	u.logger.Info("uploaded file to GCS",
		"bucket", u.bucket,
		"object", objectPath,
		"bytes_written", bytesWritten,
		"total_duration_ms", duration.Milliseconds(),
	)

	if u.metrics != nil {
		u.metrics.IncFilesWritten("gcs", format, "success")
		u.metrics.ObserveFileSize("gcs", format, float64(bytesWritten))
		u.metrics.ObserveStorageWriteDuration("gcs", duration.Seconds())
	}

	return bytesWritten, nil
}

func (u *GCSUploader) incError(operation string) {
	if u.metrics != nil {
		u.metrics.IncStorageErrors("gcs", operation)
	}
}

// Close closes the GCS client.
func (u *GCSUploader) Close() error {
	u.logger.Info("closing GCS uploader")
	if u.client != nil {
		return u.client.Close()
	}
	return nil
}
