// Package objectstore holds produced media in durable, S3-compatible storage.
package objectstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"media_gateway/internal/config"
)

// Store is a bucket of objects addressed by key
type Store interface {
	// Put uploads size bytes from body under key
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	// Delete removes key; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
	// URL returns the public URL of key
	URL(key string) string
	// SignedURL returns a time-limited download URL for key
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// New builds the store selected by cfg.Backend
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "s3", "r2", "":
		return NewS3Store(ctx, cfg)
	case "minio":
		return NewMinioStore(cfg)
	case "memory":
		return NewMemoryStore(cfg.PublicBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// publicURL joins a public base URL and a key, or returns "" when no base is set
func publicURL(base, key string) string {
	if base == "" {
		return ""
	}
	return base + "/" + key
}
