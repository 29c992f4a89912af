package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHandler fails the first failures calls per task and records successes
type recordingHandler struct {
	mu        sync.Mutex
	failures  int
	permanent bool
	failWith  error
	attempts  map[string]int
	done      []string
}

func newRecordingHandler(failures int) *recordingHandler {
	return &recordingHandler{failures: failures, attempts: make(map[string]int)}
}

func (h *recordingHandler) handle(ctx context.Context, item refundItem) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.attempts[item.TaskID]++
	if h.attempts[item.TaskID] <= h.failures {
		err := errors.New("simulated ledger error")
		if h.failWith != nil {
			err = h.failWith
		}
		if h.permanent {
			return Permanent(err)
		}
		return err
	}
	h.done = append(h.done, item.TaskID)
	return nil
}

func (h *recordingHandler) doneCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.done)
}

func (h *recordingHandler) attemptsFor(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attempts[id]
}

func testWorkerConfig() *Config {
	cfg := DefaultConfig("refunds-test")
	cfg.BatchSize = 10
	cfg.BatchTimeout = 50 * time.Millisecond
	cfg.MaxRetries = 3
	cfg.RetryBackoff = 5 * time.Millisecond
	return cfg
}

func TestWorker_ProcessesItems(t *testing.T) {
	h := newRecordingHandler(0)
	w := NewWorker[refundItem](NewMemoryQueue[refundItem](100), NewMemoryDeadLetterQueue[refundItem](), h.handle, testWorkerConfig())

	ctx := context.Background()
	w.Start(ctx)
	defer w.Stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, w.Enqueue(ctx, refundItem{TaskID: string(rune('a' + i))}))
	}

	assert.Eventually(t, func() bool { return h.doneCount() == 5 }, 2*time.Second, 10*time.Millisecond)
}

func TestWorker_RetriesThenSucceeds(t *testing.T) {
	h := newRecordingHandler(2)
	dlq := NewMemoryDeadLetterQueue[refundItem]()
	w := NewWorker[refundItem](NewMemoryQueue[refundItem](10), dlq, h.handle, testWorkerConfig())

	ctx := context.Background()
	w.Start(ctx)
	defer w.Stop()

	require.NoError(t, w.Enqueue(ctx, refundItem{TaskID: "flaky"}))

	assert.Eventually(t, func() bool { return h.doneCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3, h.attemptsFor("flaky"))

	items, err := w.DeadLetterItems(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestWorker_ExhaustedItemsGoToDLQ(t *testing.T) {
	h := newRecordingHandler(100)
	dlq := NewMemoryDeadLetterQueue[refundItem]()
	q := NewMemoryQueue[refundItem](10)
	w := NewWorker[refundItem](q, dlq, h.handle, testWorkerConfig())

	ctx := context.Background()
	w.Start(ctx)

	require.NoError(t, w.Enqueue(ctx, refundItem{TaskID: "doomed", Amount: 6}))

	assert.Eventually(t, func() bool {
		items, _ := dlq.List(ctx, 0)
		return len(items) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, w.Stop())

	// MaxRetries 3 means 4 attempts
	assert.Equal(t, 4, h.attemptsFor("doomed"))

	items, err := w.DeadLetterItems(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Retries)
	assert.Equal(t, "simulated ledger error", items[0].Error)

	// Retrying moves the item back onto the queue
	require.NoError(t, w.RetryDeadLetterItem(ctx, items[0].ID))
	length, _ := w.QueueLength(ctx)
	assert.Equal(t, 1, length)
	remaining, _ := dlq.List(ctx, 0)
	assert.Empty(t, remaining)

	assert.ErrorIs(t, w.RetryDeadLetterItem(ctx, "missing"), ErrItemNotFound)
}

func TestWorker_PermanentErrorsSkipRetries(t *testing.T) {
	h := newRecordingHandler(100)
	h.permanent = true
	dlq := NewMemoryDeadLetterQueue[refundItem]()
	w := NewWorker[refundItem](NewMemoryQueue[refundItem](10), dlq, h.handle, testWorkerConfig())

	ctx := context.Background()
	w.Start(ctx)
	defer w.Stop()

	require.NoError(t, w.Enqueue(ctx, refundItem{TaskID: "bad"}))

	assert.Eventually(t, func() bool {
		items, _ := dlq.List(ctx, 0)
		return len(items) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, h.attemptsFor("bad"))
}

// statusErr mimics a vendor error that knows whether it is worth retrying
type statusErr int

func (e statusErr) Error() string     { return fmt.Sprintf("upstream status %d", int(e)) }
func (e statusErr) Recoverable() bool { return e >= 500 || e == 429 }

func TestWorker_RetriesOnlyRecoverableErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		attempts int
	}{
		{"rejected by upstream", fmt.Errorf("refund: %w", statusErr(400)), 1},
		{"upstream unavailable", statusErr(503), 4},
		{"cancelled", fmt.Errorf("refund: %w", context.Canceled), 1},
		{"deadline", context.DeadlineExceeded, 4},
		{"unclassified", errors.New("connection reset"), 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newRecordingHandler(100)
			h.failWith = tt.err
			dlq := NewMemoryDeadLetterQueue[refundItem]()
			w := NewWorker[refundItem](NewMemoryQueue[refundItem](10), dlq, h.handle, testWorkerConfig())

			ctx := context.Background()
			w.Start(ctx)
			defer w.Stop()

			require.NoError(t, w.Enqueue(ctx, refundItem{TaskID: "r"}))

			assert.Eventually(t, func() bool {
				items, _ := dlq.List(ctx, 0)
				return len(items) == 1
			}, 2*time.Second, 10*time.Millisecond)
			assert.Equal(t, tt.attempts, h.attemptsFor("r"))
		})
	}
}

func TestWorker_WithoutDLQ(t *testing.T) {
	h := newRecordingHandler(0)
	w := NewWorker[refundItem](NewMemoryQueue[refundItem](10), nil, h.handle, testWorkerConfig())

	_, err := w.DeadLetterItems(context.Background(), 0)
	assert.ErrorIs(t, err, ErrDLQNotConfigured)
	assert.ErrorIs(t, w.RetryDeadLetterItem(context.Background(), "x"), ErrDLQNotConfigured)

	// Stop without Start returns immediately
	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a worker that never started")
	}
}

func TestWorker_StopsOnContextCancel(t *testing.T) {
	h := newRecordingHandler(0)
	w := NewWorker[refundItem](NewMemoryQueue[refundItem](10), nil, h.handle, testWorkerConfig())

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after context cancel")
	}
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))

	base := errors.New("bad request")
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
}
