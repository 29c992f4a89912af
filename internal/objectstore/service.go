package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"media_gateway/internal/utils"
)

// ErrObjectTooLarge is returned when a download exceeds the configured limit
var ErrObjectTooLarge = errors.New("object exceeds maximum size")

// UploadRequest describes a remote file to copy into the store
type UploadRequest struct {
	URL         string
	Key         string
	ContentType string
	// Authorize decorates the download request, for vendor URLs that need credentials
	Authorize func(*http.Request)
}

// UploadResult describes a stored object
type UploadResult struct {
	Key  string
	URL  string
	Size int64
}

// Service copies remote media into the store
type Service struct {
	store    Store
	client   *http.Client
	maxBytes int64
	logger   *utils.Logger
}

// NewService creates an uploader over store. A zero maxBytes disables the size limit.
func NewService(store Store, downloadTimeout time.Duration, maxBytes int64) *Service {
	if downloadTimeout <= 0 {
		downloadTimeout = 5 * time.Minute
	}
	return &Service{
		store:    store,
		client:   &http.Client{Timeout: downloadTimeout},
		maxBytes: maxBytes,
		logger:   utils.NewLogger("object-store"),
	}
}

// Store returns the underlying store
func (s *Service) Store() Store {
	return s.store
}

// DownloadAndUpload fetches req.URL into a temporary file and uploads it under req.Key
func (s *Service) DownloadAndUpload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if req.URL == "" || req.Key == "" {
		return nil, fmt.Errorf("url and key are required")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid download url: %w", err)
	}
	if req.Authorize != nil {
		req.Authorize(httpReq)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download failed: status %d", resp.StatusCode)
	}
	if s.maxBytes > 0 && resp.ContentLength > s.maxBytes {
		return nil, ErrObjectTooLarge
	}

	tmp, err := os.CreateTemp("", "media-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	var body io.Reader = resp.Body
	if s.maxBytes > 0 {
		body = io.LimitReader(resp.Body, s.maxBytes+1)
	}
	size, err := io.Copy(tmp, body)
	if err != nil {
		return nil, fmt.Errorf("download interrupted: %w", err)
	}
	if s.maxBytes > 0 && size > s.maxBytes {
		return nil, ErrObjectTooLarge
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind temp file: %w", err)
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = detectContentType(resp.Header.Get("Content-Type"), req.Key)
	}

	if err := s.store.Put(ctx, req.Key, tmp, size, contentType); err != nil {
		return nil, err
	}

	s.logger.Info("Stored media", "key", req.Key, "bytes", size)
	return &UploadResult{Key: req.Key, URL: s.store.URL(req.Key), Size: size}, nil
}

// Delete removes every key, continuing past failures. The first error is returned.
func (s *Service) Delete(ctx context.Context, keys ...string) error {
	var firstErr error
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Warn("Failed to delete object", "key", key, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func detectContentType(header, key string) string {
	if header != "" && !strings.HasPrefix(header, "application/octet-stream") {
		return header
	}
	if t := mime.TypeByExtension(path.Ext(key)); t != "" {
		return t
	}
	return "application/octet-stream"
}
