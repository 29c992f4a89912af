package billing

import (
	"context"
	"fmt"

	"media_gateway/internal/queue"
)

// RefundWorker delivers refunds asynchronously with retries and a dead-letter queue
type RefundWorker struct {
	*queue.Worker[RefundRequest]
}

// NewRefundWorker creates a refund worker on top of q and dlq
func NewRefundWorker(q queue.Queue[RefundRequest], dlq queue.DeadLetterQueue[RefundRequest], service Service, config *queue.Config) *RefundWorker {
	if config == nil {
		config = queue.DefaultConfig("refunds")
	}

	handler := func(ctx context.Context, req RefundRequest) error {
		if req.UserID == "" || req.TaskID == "" {
			return queue.Permanent(fmt.Errorf("refund request missing user or task id"))
		}
		return service.Refund(ctx, req)
	}

	return &RefundWorker{Worker: queue.NewWorker(q, dlq, handler, config)}
}

// EnqueueRefund schedules a refund
func (w *RefundWorker) EnqueueRefund(ctx context.Context, req RefundRequest) error {
	return w.Enqueue(ctx, req)
}
