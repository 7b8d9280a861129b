package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jittakal/gctrace/internal/config/dto"
	apperrors "github.com/jittakal/gctrace/internal/errors"
	"github.com/jittakal/gctrace/internal/observability"
	"github.com/jittakal/gctrace/internal/storage"
	pkgstorage "github.com/jittakal/gctrace/pkg/storage"
)

const (
	uploadAttempts = 3
	uploadBackoff  = 500 * time.Millisecond
)

// backendTarget returns the URI scheme and bucket (or container) of an
// archive backend.
func backendTarget(cfg dto.ArchiveConfig) (protocol, bucket string, err error) {
	switch cfg.Backend {
	case "s3":
		return "s3", cfg.S3.Bucket, nil
	case "gcs":
		return "gs", cfg.GCS.Bucket, nil
	case "azure":
		return "wasbs", cfg.Azure.Container, nil
	case "":
		return "", "", fmt.Errorf("no archive backend configured (use --backend s3|gcs|azure)")
	default:
		return "", "", fmt.Errorf("unsupported archive backend: %s (supported: s3, gcs, azure)", cfg.Backend)
	}
}

func newUploader(
	ctx context.Context,
	cfg dto.ArchiveConfig,
	logger *slog.Logger,
	metrics storage.MetricsCollector,
) (pkgstorage.Uploader, error) {
	switch cfg.Backend {
	case "s3":
		if err := cfg.S3.Validate(); err != nil {
			return nil, err
		}
		return storage.NewS3Uploader(ctx, storage.S3Config{
			Bucket:       cfg.S3.Bucket,
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			UsePathStyle: cfg.S3.UsePathStyle,
			SSEEnabled:   cfg.S3.SSEEnabled,
			SSEKMSKeyID:  cfg.S3.SSEKMSKeyID,
		}, logger, metrics)
	case "gcs":
		if err := cfg.GCS.Validate(); err != nil {
			return nil, err
		}
		return storage.NewGCSUploader(ctx, storage.GCSConfig{
			Bucket:               cfg.GCS.Bucket,
			ProjectID:            cfg.GCS.ProjectID,
			CredentialsFile:      cfg.GCS.CredentialsFile,
			CredentialsJSON:      cfg.GCS.CredentialsJSON,
			Endpoint:             cfg.GCS.Endpoint,
			UseDefaultCredential: cfg.GCS.UseDefaultCredential,
		}, logger, metrics)
	case "azure":
		if err := cfg.Azure.Validate(); err != nil {
			return nil, err
		}
		return storage.NewAzureUploader(storage.AzureConfig{
			AccountName:   cfg.Azure.AccountName,
			AccountKey:    cfg.Azure.AccountKey,
			ContainerName: cfg.Azure.Container,
			Endpoint:      cfg.Azure.Endpoint,
		}, logger, metrics)
	default:
		_, _, err := backendTarget(cfg)
		return nil, err
	}
}

type archiver struct {
	uploader pkgstorage.Uploader
	router   pkgstorage.Router
	host     string
	session  string
	remove   bool
	backoff  time.Duration
	logger   *slog.Logger
}

// archive uploads each file and returns the object URIs in file order.
func (a *archiver) archive(ctx context.Context, files []string) ([]string, error) {
	uris := make([]string, 0, len(files))
	for _, path := range files {
		uri := a.router.Route(a.host, a.session, path)
		if err := a.upload(ctx, path, uri); err != nil {
			return uris, err
		}
		uris = append(uris, uri)

		if a.remove {
			if err := os.Remove(path); err != nil {
				return uris, &apperrors.StorageError{Operation: "remove", Path: path, Err: err}
			}
		}
	}
	return uris, nil
}

func (a *archiver) upload(ctx context.Context, path, uri string) error {
	var err error
	for attempt := 1; attempt <= uploadAttempts; attempt++ {
		var size int64
		size, err = a.uploader.Upload(ctx, path, uri)
		if err == nil {
			a.logger.Info("archived trace file", "path", path, "uri", uri, "bytes", size)
			return nil
		}

		err = &apperrors.StorageError{Operation: "upload", Path: path, Err: err}
		if !apperrors.IsRetryable(err) || attempt == uploadAttempts {
			break
		}
		a.logger.Warn("upload failed, retrying", "path", path, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.backoff * time.Duration(attempt)):
		}
	}
	return err
}

func newArchiveCommand(a *app) *cobra.Command {
	var (
		backend  string
		basePath string
		session  string
		remove   bool
	)

	archiveCmd := &cobra.Command{
		Use:   "archive [trace-path...]",
		Short: "Upload finished trace files to object storage",
		Long: `Upload trace files to S3, GCS or Azure Blob Storage.

Objects are stored under <base-path>/<host>/<session>/<file name>, where the
session is a fresh UUID unless --session is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.Archive
			if cmd.Flags().Changed("backend") {
				cfg.Backend = backend
			}
			if cmd.Flags().Changed("base-path") {
				cfg.BasePath = basePath
			}
			if cmd.Flags().Changed("delete") {
				cfg.DeleteAfterUpload = remove
			}

			protocol, bucket, err := backendTarget(cfg)
			if err != nil {
				return err
			}

			files, err := tracePaths(a, args)
			if err != nil {
				return err
			}

			host, err := os.Hostname()
			if err != nil {
				host = "unknown-host"
			}
			if session == "" {
				session = uuid.NewString()
			}

			metrics := observability.NewMetrics(prometheus.NewRegistry())
			uploader, err := newUploader(cmd.Context(), cfg, a.logger, metrics)
			if err != nil {
				return fmt.Errorf("failed to create %s uploader: %w", cfg.Backend, err)
			}
			defer uploader.Close()

			arch := &archiver{
				uploader: uploader,
				router:   storage.NewRouter(protocol, bucket, cfg.BasePath),
				host:     host,
				session:  session,
				remove:   cfg.DeleteAfterUpload,
				backoff:  uploadBackoff,
				logger:   a.logger,
			}
			uris, err := arch.archive(cmd.Context(), files)
			for _, uri := range uris {
				fmt.Fprintln(cmd.OutOrStdout(), uri)
			}
			return err
		},
	}
	archiveCmd.Flags().StringVarP(&backend, "backend", "b", "", "Object storage backend: s3|gcs|azure")
	archiveCmd.Flags().StringVar(&basePath, "base-path", "", "Key prefix inside the bucket")
	archiveCmd.Flags().StringVar(&session, "session", "", "Archive session id (default: random UUID)")
	archiveCmd.Flags().BoolVar(&remove, "delete", false, "Delete local files after a successful upload")
	return archiveCmd
}
