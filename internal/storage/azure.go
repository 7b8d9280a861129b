package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/jittakal/gctrace/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Uploader = (*AzureUploader)(nil)

// AzureConfig contains Azure Blob Storage configuration.
type AzureConfig struct {
	AccountName   string
	AccountKey    string
	ContainerName string
	Endpoint      string
}

// AzureUploader implements storage.Uploader for Azure Blob Storage using
// access key authentication.
type AzureUploader struct {
	client        *azblob.Client
	containerName string
	logger        *slog.Logger
	metrics       MetricsCollector
}

// azureConnectionString builds the connection string for cfg.
func azureConnectionString(cfg AzureConfig) string {
	if cfg.Endpoint != "" {
		return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;BlobEndpoint=%s",
			cfg.AccountName, cfg.AccountKey, cfg.Endpoint)
	}
	return fmt.Sprintf("DefaultEndpointsProtocol=https;AccountName=%s;AccountKey=%s;EndpointSuffix=core.windows.net",
		cfg.AccountName, cfg.AccountKey)
}

// NewAzureUploader creates a new Azure Blob storage uploader.
func NewAzureUploader(
	cfg AzureConfig,
	logger *slog.Logger,
	metrics MetricsCollector,
) (*AzureUploader, error) {
	client, err := azblob.NewClientFromConnectionString(azureConnectionString(cfg), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	logger.Info("Azure uploader created",
		"container", cfg.ContainerName,
		"account", cfg.AccountName,
	)

	return &AzureUploader{
		client:        client,
		containerName: cfg.ContainerName,
		logger:        logger,
		metrics:       metrics,
	}, nil
}

// Upload uploads localPath to Azure Blob Storage. uri is either
// wasbs://container/blob or a bare blob name.
func (u *AzureUploader) Upload(ctx context.Context, localPath, uri string) (int64, error) {
	startTime := time.Now()
	blobPath := objectKey(uri, "wasbs")
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

	if _, err := u.client.UploadFile(ctx, u.containerName, blobPath, file, nil); err != nil {
		u.incError("upload")
		return 0, fmt.Errorf("failed to upload to Azure Blob: %w", err)
	}

	duration := time.Since(startTime)

	u.logger.Info("uploaded file to Azure Blob",
		"container", u.containerName,
		"blob", blobPath,
		"file_size", info.Size(),
		"total_duration_ms", duration.Milliseconds(),
	)

	if u.metrics != nil {
		u.metrics.IncFilesWritten("azure", format, "success")
		u.metrics.ObserveFileSize("azure", format, float64(info.Size()))
		u.metrics.ObserveStorageWriteDuration("azure", duration.Seconds())
	}

	return info.Size(), nil
}

func (u *AzureUploader) incError(operation string) {
	if u.metrics != nil {
		u.metrics.IncStorageErrors("azure", operation)
	}
}

// Close closes the Azure uploader.
func (u *AzureUploader) Close() error {
	u.logger.Info("Azure uploader closed")
	return nil
}
