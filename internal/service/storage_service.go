// Package service contains the business logic layer.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/snapdock/snapdock-api/internal/config"
)

// ErrObjectNotFound is returned when a download target does not exist.
var ErrObjectNotFound = errors.New("object not found")

// allowedContentTypes are the only artifact types uploads accept.
var allowedContentTypes = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"image/webp":      true,
	"application/pdf": true,
}

// StorageService handles object storage operations (Tigris/S3-compatible).
type StorageService struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	enabled bool
	logger  *slog.Logger
}

// NewStorageService creates a new storage service.
func NewStorageService(cfg *appconfig.Config, logger *slog.Logger) (*StorageService, error) {
	if !cfg.StorageEnabled {
		logger.Info("storage service disabled - no bucket configured")
		return &StorageService{
			enabled: false,
			logger:  logger,
		}, nil
	}

	// Load AWS config with static credentials
	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(cfg.StorageRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.StorageAccessKey,
			cfg.StorageSecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Create S3 client with custom endpoint for S3-compatible storage (Tigris, MinIO, etc.)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.StorageEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.StorageEndpoint)
		}
		o.UsePathStyle = true // Required for some S3-compatible services
	})

	svc := &StorageService{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.StorageBucket,
		enabled: true,
		logger:  logger,
	}
	if err := svc.ensureBucket(context.Background()); err != nil {
		return nil, err
	}

	logger.Info("storage service initialized",
		"bucket", cfg.StorageBucket,
		"endpoint", cfg.StorageEndpoint,
	)
	return svc, nil
}

// ensureBucket makes sure the configured bucket exists. Safe to run on
// every startup; an existing bucket is a no-op, and losing a create
// race to another instance is treated as success.
func (s *StorageService) ensureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}
	if !isNotFoundError(err) {
		return fmt.Errorf("failed to head bucket: %w", err)
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		if isBucketExistsError(err) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}

	s.logger.Info("created storage bucket", "bucket", s.bucket)
	return nil
}

// IsEnabled returns whether storage is configured and available.
func (s *StorageService) IsEnabled() bool {
	return s.enabled
}

// Bucket returns the configured bucket name.
func (s *StorageService) Bucket() string {
	return s.bucket
}

// ScreenshotKey builds the storage key for a screenshot artifact:
// screenshots/{tenant_id}/{unix_ms}-{sanitized_name}.{ext}
func ScreenshotKey(tenantID, name, ext string) string {
	return artifactKey("screenshots", tenantID, name, ext)
}

// PDFKey builds the storage key for a PDF artifact:
// pdfs/{tenant_id}/{unix_ms}-{sanitized_name}.pdf
func PDFKey(tenantID, name string) string {
	return artifactKey("pdfs", tenantID, name, "pdf")
}

func artifactKey(prefix, tenantID, name, ext string) string {
	return fmt.Sprintf("%s/%s/%d-%s.%s", prefix, tenantID, time.Now().UnixMilli(), sanitizeName(name), ext)
}

// sanitizeName reduces a display name to [a-z0-9-] so keys stay flat
// and traversal-proof.
func sanitizeName(name string) string {
	name = strings.ToLower(path.Base(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.' || r == ' ':
			b.WriteByte('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		out = "capture"
	}
	if len(out) > 64 {
		out = out[:64]
	}
	return out
}

// Upload stores an artifact with optional object metadata. Content
// types outside the artifact allow-list are rejected before any bytes
// leave the process.
func (s *StorageService) Upload(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	if !s.enabled {
		return fmt.Errorf("storage is not enabled")
	}
	if !allowedContentTypes[contentType] {
		return fmt.Errorf("content type %q not allowed", contentType)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata:    metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to store artifact: %w", err)
	}

	s.logger.Info("stored artifact",
		"key", key,
		"content_type", contentType,
		"size_bytes", len(data),
	)
	return nil
}

// Download retrieves an artifact and its content type. Missing objects
// return ErrObjectNotFound so callers can map it to a 404.
func (s *StorageService) Download(ctx context.Context, key string) ([]byte, string, error) {
	if !s.enabled {
		return nil, "", fmt.Errorf("storage is not enabled")
	}

	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, "", ErrObjectNotFound
		}
		return nil, "", fmt.Errorf("failed to get artifact: %w", err)
	}
	defer func() { _ = output.Body.Close() }()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read artifact: %w", err)
	}

	contentType := ""
	if output.ContentType != nil {
		contentType = *output.ContentType
	}
	return data, contentType, nil
}

// PresignedURL returns a time-limited download URL for an artifact.
func (s *StorageService) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if !s.enabled {
		return "", fmt.Errorf("storage is not enabled")
	}
	if expiry == 0 {
		expiry = 1 * time.Hour
	}

	presignedReq, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return presignedReq.URL, nil
}

// Delete removes an artifact. Deleting a missing object is not an error.
func (s *StorageService) Delete(ctx context.Context, key string) error {
	if !s.enabled || key == "" {
		return nil
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil
		}
		return fmt.Errorf("failed to delete artifact: %w", err)
	}

	s.logger.Info("deleted artifact", "key", key)
	return nil
}

// Exists reports whether an artifact is present.
func (s *StorageService) Exists(ctx context.Context, key string) (bool, error) {
	if !s.enabled {
		return false, nil
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to head artifact: %w", err)
	}
	return true, nil
}

// isNotFoundError matches the S3 error shapes for a missing object or
// bucket.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "NoSuchKey") ||
		strings.Contains(msg, "NoSuchBucket") ||
		strings.Contains(msg, "NotFound") ||
		strings.Contains(msg, "StatusCode: 404")
}

// isBucketExistsError matches a create that lost the race to an
// already-present bucket.
func isBucketExistsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "BucketAlreadyOwnedByYou") ||
		strings.Contains(msg, "BucketAlreadyExists")
}
