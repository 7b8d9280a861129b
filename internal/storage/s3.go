package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jittakal/gctrace/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Uploader = (*S3Uploader)(nil)

// S3Config contains AWS S3 configuration.
type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
	SSEEnabled   bool
	SSEKMSKeyID  string
}

// S3Uploader implements storage.Uploader for AWS S3 storage.
// Large files are sent as multipart uploads.
type S3Uploader struct {
	client      *s3.Client
	uploader    *manager.Uploader
	bucket      string
	region      string
	sseEnabled  bool
	sseKMSKeyID string
	logger      *slog.Logger
	metrics     MetricsCollector
}

// NewS3Uploader creates a new S3 uploader.
func NewS3Uploader(
	ctx context.Context,
	cfg S3Config,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*S3Uploader, error) {
	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	uploader := manager.NewUploader(s3Client, func(u *manager.Uploader) {
		u.PartSize = 10 * 1024 * 1024 // 10MB parts
		u.Concurrency = 5
	})

	logger.Info("S3 uploader created",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"sse_enabled", cfg.SSEEnabled,
	)

	return &S3Uploader{
		client:      s3Client,
		uploader:    uploader,
		bucket:      cfg.Bucket,
		region:      cfg.Region,
		sseEnabled:  cfg.SSEEnabled,
		sseKMSKeyID: cfg.SSEKMSKeyID,
		logger:      logger,
		metrics:     metrics,
	}, nil
}

// putObjectInput builds the upload request for key.
func (u *S3Uploader) putObjectInput(key string, body *os.File) *s3.PutObjectInput {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType(body.Name())),
	}
	if u.sseEnabled {
		if u.sseKMSKeyID != "" {
			input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
			input.SSEKMSKeyId = aws.String(u.sseKMSKeyID)
		} else {
			input.ServerSideEncryption = types.ServerSideEncryptionAes256
		}
	}
	return input
}

// Upload uploads localPath to S3. uri is either s3://bucket/key or a bare key.
func (u *S3Uploader) Upload(ctx context.Context, localPath, uri string) (int64, error) {
	startTime := time.Now()
	key := objectKey(uri, "s3")
	format := formatLabel(localPath)

	file, err := os.Open(localPath)
	if err != nil {
		u.incError("file_open")
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		u.incError("file_stat")
		return 0, fmt.Errorf("failed to stat file: %w", err)
	}

	result, err := u.uploader.Upload(ctx, u.putObjectInput(key, file))
	if err != nil {
		u.incError("upload")
		return 0, fmt.Errorf("failed to upload to S3: %w", err)
	}

	duration := time.Since(startTime)

	u.logger.Info("uploaded file to S3",
		"bucket", u.bucket,
		"key", key,
		"file_size", info.Size(),
		"location", result.Location,
		"total_duration_ms", duration.Milliseconds(),
	)

	if u.metrics != nil {
		u.metrics.IncFilesWritten("s3", format, "success")
		u.metrics.ObserveFileSize("s3", format, float64(info.Size()))
		u.metrics.ObserveStorageWriteDuration("s3", duration.Seconds())
	}

	return info.Size(), nil
}

func (u *S3Uploader) incError(operation string) {
	if u.metrics != nil {
		u.metrics.IncStorageErrors("s3", operation)
	}
}

// Close closes the S3 uploader.
func (u *S3Uploader) Close() error {
	u.logger.Info("closing S3 uploader")
	return nil
}
