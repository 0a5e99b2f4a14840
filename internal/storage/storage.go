// Package storage checks attachment references against a MinIO bucket.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/zulandar/dealyard/internal/apperr"
	"github.com/zulandar/dealyard/internal/config"
)

// Verifier confirms that referenced objects exist before they are recorded.
type Verifier interface {
	Verify(ctx context.Context, keys []string) error
}

// objectClient abstracts the minio.Client methods we use, enabling test mocks.
type objectClient interface {
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// Store verifies and links attachments kept in one bucket.
type Store struct {
	client objectClient
	bucket string
}

// New creates a Store from the storage config section.
func New(cfg config.StorageConfig) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: create minio client: %w", err)
	}
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

// Verify returns a validation error naming every key that is not present in
// the bucket. Empty keys are rejected without a round trip.
func (s *Store) Verify(ctx context.Context, keys []string) error {
	var missing []string
	for _, key := range keys {
		if strings.TrimSpace(key) == "" {
			return apperr.Validation("storage: verify", "attachment key is empty")
		}
		_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
		if err == nil {
			continue
		}
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			missing = append(missing, key)
			continue
		}
		return fmt.Errorf("storage: stat %s: %w", key, err)
	}
	if len(missing) > 0 {
		return apperr.Validation("storage: verify", "attachments not found in bucket %s: %s", s.bucket, strings.Join(missing, ", "))
	}
	return nil
}

// PresignedURL returns a time-limited download link for key.
func (s *Store) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("storage: presign %s: %w", key, err)
	}
	return u.String(), nil
}
