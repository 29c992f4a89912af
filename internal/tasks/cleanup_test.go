package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media_gateway/internal/queue"
)

// flakyDeleter fails a fixed number of times before deleting
type flakyDeleter struct {
	mu       sync.Mutex
	failures int
	deleted  []string
}

func (d *flakyDeleter) Delete(ctx context.Context, keys ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failures > 0 {
		d.failures--
		return errors.New("storage timeout")
	}
	d.deleted = append(d.deleted, keys...)
	return nil
}

func (d *flakyDeleter) deletedKeys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.deleted...)
}

func testCleanupConfig() *queue.Config {
	cfg := queue.DefaultConfig("asset-cleanup-test")
	cfg.BatchTimeout = 50 * time.Millisecond
	cfg.RetryBackoff = 5 * time.Millisecond
	return cfg
}

func TestCleanupWorker_RetriesDeletion(t *testing.T) {
	deleter := &flakyDeleter{failures: 2}
	dlq := queue.NewMemoryDeadLetterQueue[CleanupRequest]()
	w := NewCleanupWorker(queue.NewMemoryQueue[CleanupRequest](10), dlq, deleter, testCleanupConfig())

	ctx := context.Background()
	w.Start(ctx)
	defer w.Stop()

	require.NoError(t, w.EnqueueCleanup(ctx, CleanupRequest{TaskID: "t1", Keys: []string{"videos/u/t1/0.mp4"}}))

	assert.Eventually(t, func() bool { return len(deleter.deletedKeys()) == 1 }, 2*time.Second, 10*time.Millisecond)
	items, err := dlq.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCleanupWorker_EmptyRequestGoesToDLQ(t *testing.T) {
	deleter := &flakyDeleter{}
	dlq := queue.NewMemoryDeadLetterQueue[CleanupRequest]()
	w := NewCleanupWorker(queue.NewMemoryQueue[CleanupRequest](10), dlq, deleter, testCleanupConfig())

	ctx := context.Background()
	w.Start(ctx)
	defer w.Stop()

	require.NoError(t, w.EnqueueCleanup(ctx, CleanupRequest{TaskID: "t2"}))

	assert.Eventually(t, func() bool {
		items, err := dlq.List(ctx, 0)
		return err == nil && len(items) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, deleter.deletedKeys())
}
