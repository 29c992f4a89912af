package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"media_gateway/internal/config"
)

// MinioStore stores objects in a MinIO server
type MinioStore struct {
	client    *minio.Client
	bucket    string
	region    string
	scheme    string
	endpoint  string
	publicURL string

	initOnce sync.Once
	initErr  error
}

// NewMinioStore creates a MinIO store. The bucket is created on first upload if missing.
func NewMinioStore(cfg config.StorageConfig) (*MinioStore, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}
	// minio.New wants host:port without a scheme
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")

	region := cfg.Region
	if region == "" || region == "auto" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}

	return &MinioStore{
		client:    client,
		bucket:    cfg.Bucket,
		region:    region,
		scheme:    scheme,
		endpoint:  endpoint,
		publicURL: cfg.PublicBaseURL,
	}, nil
}

func (s *MinioStore) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = fmt.Errorf("failed to check bucket existence: %w", err)
			return
		}
		if exists {
			return
		}
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			s.initErr = fmt.Errorf("failed to create bucket: %w", err)
		}
	})
	return s.initErr
}

// Put uploads an object
func (s *MinioStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

// Delete removes an object
func (s *MinioStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// URL returns the public URL of an object
func (s *MinioStore) URL(key string) string {
	if u := publicURL(s.publicURL, key); u != "" {
		return u
	}
	return fmt.Sprintf("%s://%s/%s/%s", s.scheme, s.endpoint, s.bucket, key)
}

// SignedURL returns a presigned GET URL
func (s *MinioStore) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return u.String(), nil
}
