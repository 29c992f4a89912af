package objectstore

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// MemoryObject is an object held by MemoryStore
type MemoryObject struct {
	Data        []byte
	ContentType string
}

// MemoryStore keeps objects in memory, for development and tests
type MemoryStore struct {
	mu        sync.RWMutex
	objects   map[string]MemoryObject
	publicURL string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(publicBaseURL string) *MemoryStore {
	if publicBaseURL == "" {
		publicBaseURL = "memory://media"
	}
	return &MemoryStore{
		objects:   make(map[string]MemoryObject),
		publicURL: publicBaseURL,
	}
}

// Put stores an object
func (s *MemoryStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("size mismatch: declared %d, read %d", size, len(data))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = MemoryObject{Data: data, ContentType: contentType}
	return nil
}

// Delete removes an object
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

// URL returns the public URL of an object
func (s *MemoryStore) URL(key string) string {
	return publicURL(s.publicURL, key)
}

// SignedURL returns the public URL with an expiry marker
func (s *MemoryStore) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("%s?expires=%d", s.URL(key), time.Now().Add(expiry).Unix()), nil
}

// Get returns a stored object
func (s *MemoryStore) Get(key string) (MemoryObject, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	return obj, ok
}

// Keys lists stored keys in order
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
