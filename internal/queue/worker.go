package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"media_gateway/internal/utils"
)

// Handler processes one queued item
type Handler[T any] func(ctx context.Context, item T) error

// Worker drains a queue in batches and retries failed items
type Worker[T any] struct {
	name    string
	queue   Queue[T]
	dlq     DeadLetterQueue[T]
	handler Handler[T]
	config  *Config
	logger  *utils.Logger

	startOnce   sync.Once
	stopOnce    sync.Once
	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// NewWorker creates a worker. dlq may be nil, in which case exhausted items are dropped.
func NewWorker[T any](q Queue[T], dlq DeadLetterQueue[T], handler Handler[T], config *Config) *Worker[T] {
	if config == nil {
		config = DefaultConfig("worker")
	}

	return &Worker[T]{
		name:        config.QueueName,
		queue:       q,
		dlq:         dlq,
		handler:     handler,
		config:      config,
		logger:      utils.NewLogger("queue-worker").With("queue", config.QueueName),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start starts the worker goroutine
func (w *Worker[T]) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		go w.run(ctx)
	})
}

// Stop gracefully stops the worker and waits for the current batch to finish
func (w *Worker[T]) Stop() error {
	w.stopOnce.Do(func() {
		close(w.stopChan)
	})
	// A worker that was never started has nothing to wait for
	w.startOnce.Do(func() { close(w.stoppedChan) })
	<-w.stoppedChan
	return nil
}

// Enqueue adds an item to the queue
func (w *Worker[T]) Enqueue(ctx context.Context, item T) error {
	return w.queue.Enqueue(ctx, item)
}

// run is the main worker loop
func (w *Worker[T]) run(ctx context.Context) {
	defer close(w.stoppedChan)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker stopping")
			return
		case <-ctx.Done():
			w.logger.Info("Worker context cancelled")
			return
		default:
			w.processBatch(ctx)
		}
	}
}

// processBatch processes one batch of items
func (w *Worker[T]) processBatch(ctx context.Context) {
	items, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, w.config.BatchTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.Error("Failed to dequeue items", "error", err)
		w.sleep(ctx, time.Second) // Back off on error
		return
	}

	if len(items) == 0 {
		return
	}

	w.logger.Debug("Processing batch", "count", len(items))

	for _, item := range items {
		if err := w.processItem(ctx, item); err != nil {
			w.logger.Error("Failed to process item", "error", err)
		}
	}
}

// processItem runs the handler with retries and exponential backoff
func (w *Worker[T]) processItem(ctx context.Context, item T) error {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := w.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
			w.logger.Debug("Retrying item", "attempt", attempt, "backoff", backoff)
			if !w.sleep(ctx, backoff) {
				break
			}
		}

		attempts++
		if err := w.handler(ctx, item); err != nil {
			lastErr = err
			w.logger.Warn("Handler failed", "attempt", attempt, "error", err)
			if !shouldRetry(err) {
				break
			}
			continue
		}

		return nil
	}

	if lastErr == nil {
		lastErr = ctx.Err()
	}

	if w.dlq != nil {
		// The DLQ write must outlive a cancelled worker context
		dlqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := w.dlq.Add(dlqCtx, item, lastErr, attempts-1); err != nil {
			w.logger.Error("Failed to add to dead letter queue", "error", err)
		} else {
			w.logger.Warn("Item moved to DLQ", "error", lastErr)
		}
	}

	return fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

// sleep waits for d, returning false if the worker is stopping
func (w *Worker[T]) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-w.stopChan:
		return false
	case <-ctx.Done():
		return false
	}
}

// QueueLength returns the current queue length
func (w *Worker[T]) QueueLength(ctx context.Context) (int, error) {
	return w.queue.Length(ctx)
}

// DeadLetterItems returns items from the dead letter queue
func (w *Worker[T]) DeadLetterItems(ctx context.Context, maxItems int) ([]DeadLetterItem[T], error) {
	if w.dlq == nil {
		return nil, ErrDLQNotConfigured
	}
	return w.dlq.List(ctx, maxItems)
}

// RetryDeadLetterItem re-enqueues a failed item and removes it from the DLQ
func (w *Worker[T]) RetryDeadLetterItem(ctx context.Context, id string) error {
	if w.dlq == nil {
		return ErrDLQNotConfigured
	}

	items, err := w.dlq.List(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to list dead letter items: %w", err)
	}

	for _, dlItem := range items {
		if dlItem.ID != id {
			continue
		}
		if err := w.queue.Enqueue(ctx, dlItem.Item); err != nil {
			return fmt.Errorf("failed to re-enqueue item: %w", err)
		}
		if err := w.dlq.Remove(ctx, id); err != nil {
			return fmt.Errorf("failed to remove from DLQ: %w", err)
		}
		return nil
	}

	return ErrItemNotFound
}
