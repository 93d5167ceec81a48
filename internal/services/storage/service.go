// Package storage provides S3 object storage operations for backup artifacts.
package storage

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/yvsainath/postgres-backup-simple/internal/backuperr"
	"github.com/yvsainath/postgres-backup-simple/internal/models"
)

// ContentType is set on every uploaded artifact.
const ContentType = "application/gzip"

// Service defines the interface for object storage operations.
type Service interface {
	Probe(ctx context.Context) error
	Upload(ctx context.Context, localPath, key string, metadata map[string]string) (*models.UploadResult, error)
	List(ctx context.Context, prefix string) ([]models.ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// ObjectAPI is the subset of *s3.Client used for listing and deleting.
type ObjectAPI interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Uploader wraps *manager.Uploader for mocking.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Impl implements the storage Service interface.
type Impl struct {
	api      ObjectAPI
	uploader Uploader
	cfg      models.StorageConfig
	logger   zerolog.Logger
}

// New creates a storage service from an AWS configuration.
func New(logger zerolog.Logger, awsCfg aws.Config, cfg models.StorageConfig) *Impl {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Impl{
		api:      client,
		uploader: manager.NewUploader(client),
		cfg:      cfg,
		logger:   logger.With().Str("component", "storage").Logger(),
	}
}

// NewWithClients creates a storage service with custom clients (for testing).
func NewWithClients(logger zerolog.Logger, api ObjectAPI, uploader Uploader, cfg models.StorageConfig) *Impl {
	return &Impl{
		api:      api,
		uploader: uploader,
		cfg:      cfg,
		logger:   logger,
	}
}

// Probe verifies the bucket can be listed under the configured prefix.
func (s *Impl) Probe(ctx context.Context) error {
	s.logger.Debug().
		Str("bucket", s.cfg.Bucket).
		Str("prefix", s.cfg.Prefix).
		Msg("probing bucket access")

	_, err := s.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.cfg.Bucket),
		Prefix:  aws.String(s.cfg.Prefix + "/"),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return backuperr.New(backuperr.KindStorageAccess,
			fmt.Sprintf("cannot list s3://%s/%s/", s.cfg.Bucket, s.cfg.Prefix), err)
	}

	return nil
}

// Upload stores a local file under key with the given metadata. It makes a
// single attempt; callers decide on retries.
func (s *Impl) Upload(ctx context.Context, localPath, key string, metadata map[string]string) (*models.UploadResult, error) {
	start := time.Now()
	result := &models.UploadResult{
		Key:    key,
		Bucket: s.cfg.Bucket,
	}

	f, err := os.Open(localPath) //nolint:gosec // localPath is controlled by caller
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat artifact: %w", err)
	}

	s.logger.Debug().
		Str("bucket", s.cfg.Bucket).
		Str("key", key).
		Int64("size_bytes", info.Size()).
		Msg("uploading artifact")

	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(ContentType),
		Metadata:    metadata,
	})
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = backuperr.New(backuperr.KindUpload, fmt.Sprintf("put s3://%s/%s", s.cfg.Bucket, key), err)
		return result, nil
	}

	result.SizeBytes = info.Size()
	if out != nil {
		result.Location = out.Location
	}

	return result, nil
}

// List returns every object under prefix.
func (s *Impl) List(ctx context.Context, prefix string) ([]models.ObjectInfo, error) {
	paginator := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(prefix),
	})

	var objects []models.ObjectInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", s.cfg.Bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			info := models.ObjectInfo{
				Key:  aws.ToString(obj.Key),
				Size: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			objects = append(objects, info)
		}
	}

	s.logger.Debug().Str("prefix", prefix).Int("count", len(objects)).Msg("objects listed")
	return objects, nil
}

// Delete removes a single object.
func (s *Impl) Delete(ctx context.Context, key string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete s3://%s/%s: %w", s.cfg.Bucket, key, err)
	}
	return nil
}
