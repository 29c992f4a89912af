package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type refundItem struct {
	TaskID string `json:"task_id"`
	Amount int    `json:"amount"`
}

func TestMemoryQueue_EnqueueDequeue(t *testing.T) {
	q := NewMemoryQueue[refundItem](10)
	defer q.Close()

	ctx := context.Background()

	item := refundItem{TaskID: "task-1", Amount: 6}
	if err := q.Enqueue(ctx, item); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	items, err := q.DequeueWithTimeout(ctx, 1, time.Second)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}
	if items[0] != item {
		t.Errorf("Expected %+v, got %+v", item, items[0])
	}
}

func TestMemoryQueue_MultipleBatch(t *testing.T) {
	q := NewMemoryQueue[int](50)
	defer q.Close()

	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := q.Enqueue(ctx, i); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	items, err := q.DequeueWithTimeout(ctx, 5, time.Second)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if len(items) != 5 {
		t.Errorf("Expected 5 items, got %d", len(items))
	}

	items, err = q.DequeueWithTimeout(ctx, 10, time.Second)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if len(items) != 5 {
		t.Errorf("Expected 5 items, got %d", len(items))
	}
	if items[0] != 5 {
		t.Errorf("Expected FIFO order, first item %d", items[0])
	}
}

func TestMemoryQueue_DequeueWithTimeout(t *testing.T) {
	q := NewMemoryQueue[int](10)
	defer q.Close()

	ctx := context.Background()

	start := time.Now()
	items, err := q.DequeueWithTimeout(ctx, 5, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("DequeueWithTimeout failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected no items, got %d", len(items))
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("Returned before timeout: %v", elapsed)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := q.DequeueWithTimeout(cancelled, 5, time.Second); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestMemoryQueue_Concurrent(t *testing.T) {
	q := NewMemoryQueue[int](1000)
	defer q.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for p := 0; p < 10; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if err := q.Enqueue(ctx, p*100+i); err != nil {
					t.Errorf("Enqueue failed: %v", err)
				}
			}
		}(p)
	}
	wg.Wait()

	length, err := q.Length(ctx)
	if err != nil {
		t.Fatalf("Length failed: %v", err)
	}
	if length != 500 {
		t.Errorf("Expected 500 items, got %d", length)
	}
}

func TestMemoryQueue_ClosedQueue(t *testing.T) {
	q := NewMemoryQueue[int](10)
	if err := q.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Second close is a no-op
	if err := q.Close(); err != nil {
		t.Fatalf("Second close failed: %v", err)
	}

	ctx := context.Background()
	if err := q.Enqueue(ctx, 1); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed, got %v", err)
	}
	if _, err := q.DequeueWithTimeout(ctx, 1, time.Millisecond); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed, got %v", err)
	}
	if _, err := q.Length(ctx); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed, got %v", err)
	}
}

func TestMemoryDeadLetterQueue_AddListRemove(t *testing.T) {
	dlq := NewMemoryDeadLetterQueue[refundItem]()
	defer dlq.Close()

	ctx := context.Background()
	failure := errors.New("ledger unavailable")

	if err := dlq.Add(ctx, refundItem{TaskID: "a", Amount: 6}, failure, 3); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := dlq.Add(ctx, refundItem{TaskID: "b", Amount: 8}, failure, 3); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	items, err := dlq.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}
	if items[0].Error != "ledger unavailable" || items[0].Retries != 3 {
		t.Errorf("Unexpected item details: %+v", items[0])
	}
	if items[0].ID == items[1].ID {
		t.Error("Expected unique ids")
	}

	limited, _ := dlq.List(ctx, 1)
	if len(limited) != 1 {
		t.Errorf("Expected 1 item with limit, got %d", len(limited))
	}

	if err := dlq.Remove(ctx, items[0].ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := dlq.Remove(ctx, items[0].ID); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("Expected ErrItemNotFound, got %v", err)
	}

	remaining, _ := dlq.List(ctx, 0)
	if len(remaining) != 1 || remaining[0].Item.TaskID != "b" {
		t.Errorf("Unexpected remaining items: %+v", remaining)
	}
}

func TestMemoryDeadLetterQueue_Closed(t *testing.T) {
	dlq := NewMemoryDeadLetterQueue[int]()
	dlq.Close()

	ctx := context.Background()
	if err := dlq.Add(ctx, 1, errors.New("x"), 0); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed, got %v", err)
	}
	if _, err := dlq.List(ctx, 0); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed, got %v", err)
	}
}
