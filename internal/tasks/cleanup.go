package tasks

import (
	"context"
	"fmt"

	"media_gateway/internal/queue"
)

// CleanupRequest lists storage keys left behind by a deleted task
type CleanupRequest struct {
	TaskID string   `json:"task_id"`
	Keys   []string `json:"keys"`
}

// AssetDeleter removes objects from durable storage
type AssetDeleter interface {
	Delete(ctx context.Context, keys ...string) error
}

// CleanupWorker retries asset deletions in the background
type CleanupWorker struct {
	*queue.Worker[CleanupRequest]
}

// NewCleanupWorker creates a cleanup worker on top of q and dlq
func NewCleanupWorker(q queue.Queue[CleanupRequest], dlq queue.DeadLetterQueue[CleanupRequest], deleter AssetDeleter, config *queue.Config) *CleanupWorker {
	if config == nil {
		config = queue.DefaultConfig("asset-cleanup")
	}

	handler := func(ctx context.Context, req CleanupRequest) error {
		if len(req.Keys) == 0 {
			return queue.Permanent(fmt.Errorf("cleanup request for task %q has no keys", req.TaskID))
		}
		return deleter.Delete(ctx, req.Keys...)
	}

	return &CleanupWorker{Worker: queue.NewWorker(q, dlq, handler, config)}
}

// EnqueueCleanup schedules a deletion
func (w *CleanupWorker) EnqueueCleanup(ctx context.Context, req CleanupRequest) error {
	return w.Enqueue(ctx, req)
}
