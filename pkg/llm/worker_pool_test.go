package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWorkerPool_Process_Success(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{MaxConcurrent: 2}, zap.NewNop())

	items := []WorkItem[string]{
		{ID: "A-501_page2.png", Execute: func(ctx context.Context) (string, error) { return "roof plan", nil }},
		{ID: "A-502_page3.png", Execute: func(ctx context.Context) (string, error) { return "roof detail", nil }},
		{ID: "A-901_page9.png", Execute: func(ctx context.Context) (string, error) { return "section", nil }},
	}

	results := Process(context.Background(), pool, items, nil)
	require.Len(t, results, 3)

	// Order may vary
	resultsByID := make(map[string]string)
	for _, r := range results {
		require.NoError(t, r.Err, "task %s", r.ID)
		resultsByID[r.ID] = r.Result
	}
	assert.Equal(t, map[string]string{"A-501_page2.png": "roof plan", "A-502_page3.png": "roof detail", "A-901_page9.png": "section"}, resultsByID)
}

func TestWorkerPool_Process_WithErrors(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{MaxConcurrent: 2}, zap.NewNop())

	expectedErr := errors.New("status 500: internal error")
	items := []WorkItem[string]{
		{ID: "A-501_page2.png", Execute: func(ctx context.Context) (string, error) { return "roof plan", nil }},
		{ID: "A-502_page3.png", Execute: func(ctx context.Context) (string, error) { return "", expectedErr }},
		{ID: "A-901_page9.png", Execute: func(ctx context.Context) (string, error) { return "section", nil }},
	}

	results := Process(context.Background(), pool, items, nil)
	require.Len(t, results, 3)

	resultsByID := make(map[string]WorkResult[string])
	for _, r := range results {
		resultsByID[r.ID] = r
	}

	assert.NoError(t, resultsByID["A-501_page2.png"].Err)
	assert.ErrorIs(t, resultsByID["A-502_page3.png"].Err, expectedErr)
	assert.NoError(t, resultsByID["A-901_page9.png"].Err)
}

func TestWorkerPool_Process_PanicIsIsolated(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{MaxConcurrent: 2}, zap.NewNop())

	items := []WorkItem[int]{
		{ID: "ok1", Execute: func(ctx context.Context) (int, error) { return 1, nil }},
		{ID: "boom", Execute: func(ctx context.Context) (int, error) { panic("decoder exploded") }},
		{ID: "ok2", Execute: func(ctx context.Context) (int, error) { return 2, nil }},
	}

	results := Process(context.Background(), pool, items, nil)
	require.Len(t, results, 3)

	for _, r := range results {
		if r.ID == "boom" {
			require.Error(t, r.Err)
			assert.Contains(t, r.Err.Error(), "decoder exploded")
			assert.Zero(t, r.Result)
		} else {
			assert.NoError(t, r.Err)
		}
	}
}

func TestWorkerPool_Process_EmptyItems(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{MaxConcurrent: 2}, zap.NewNop())

	results := Process(context.Background(), pool, []WorkItem[string]{}, nil)

	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestWorkerPool_Process_ContextCancellation(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{MaxConcurrent: 1}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())

	items := []WorkItem[string]{
		{ID: "A-501_page2.png", Execute: func(ctx context.Context) (string, error) {
			// Cancel after starting first task
			cancel()
			// Wait a moment for cancellation to propagate
			time.Sleep(10 * time.Millisecond)
			return "", ctx.Err()
		}},
		{ID: "A-502_page3.png", Execute: func(ctx context.Context) (string, error) {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			default:
				return "roof detail", nil
			}
		}},
	}

	results := Process(ctx, pool, items, nil)
	require.Len(t, results, 2)

	foundCancellation := false
	for _, r := range results {
		if errors.Is(r.Err, context.Canceled) {
			foundCancellation = true
		}
	}
	assert.True(t, foundCancellation, "expected at least one task to observe cancellation")
}

func TestWorkerPool_Process_ConcurrencyLimit(t *testing.T) {
	maxConcurrent := 3
	pool := NewWorkerPool(WorkerPoolConfig{MaxConcurrent: maxConcurrent}, zap.NewNop())

	var currentConcurrent atomic.Int32
	var maxObservedConcurrent atomic.Int32

	items := make([]WorkItem[string], 10)
	for i := 0; i < 10; i++ {
		items[i] = WorkItem[string]{
			ID: fmt.Sprintf("task%d", i),
			Execute: func(ctx context.Context) (string, error) {
				current := currentConcurrent.Add(1)
				defer currentConcurrent.Add(-1)

				for {
					max := maxObservedConcurrent.Load()
					if current <= max || maxObservedConcurrent.CompareAndSwap(max, current) {
						break
					}
				}

				// Simulate work
				time.Sleep(50 * time.Millisecond)
				return "done", nil
			},
		}
	}

	results := Process(context.Background(), pool, items, nil)
	require.Len(t, results, 10)

	maxObserved := maxObservedConcurrent.Load()
	assert.LessOrEqual(t, maxObserved, int32(maxConcurrent), "concurrency limit violated")
	assert.GreaterOrEqual(t, maxObserved, int32(2), "expected some concurrency")
}

func TestWorkerPool_Process_ProgressCallback(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{MaxConcurrent: 2}, zap.NewNop())

	items := []WorkItem[string]{
		{ID: "A-501_page2.png", Execute: func(ctx context.Context) (string, error) { return "roof plan", nil }},
		{ID: "A-502_page3.png", Execute: func(ctx context.Context) (string, error) { return "roof detail", nil }},
		{ID: "A-901_page9.png", Execute: func(ctx context.Context) (string, error) { return "section", nil }},
	}

	var mu sync.Mutex
	progressUpdates := []int{}

	results := Process(context.Background(), pool, items, func(completed, total int) {
		mu.Lock()
		defer mu.Unlock()
		progressUpdates = append(progressUpdates, completed)
		assert.Equal(t, 3, total)
	})
	require.Len(t, results, 3)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3}, progressUpdates)
}

func TestWorkerPool_ConfigDefault(t *testing.T) {
	for _, n := range []int{0, -1} {
		pool := NewWorkerPool(WorkerPoolConfig{MaxConcurrent: n, ItemTimeout: -time.Second}, zap.NewNop())
		assert.Equal(t, DefaultMaxConcurrent, pool.MaxConcurrent())
		assert.Zero(t, pool.config.ItemTimeout)
	}
	assert.Equal(t, DefaultMaxConcurrent, DefaultWorkerPoolConfig().MaxConcurrent)
}

func TestWorkerPool_Process_ItemTimeout(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{MaxConcurrent: 2, ItemTimeout: 20 * time.Millisecond}, zap.NewNop())

	items := []WorkItem[string]{
		{ID: "slow", Execute: func(ctx context.Context) (string, error) {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Second):
				return "late", nil
			}
		}},
		{ID: "fast", Execute: func(ctx context.Context) (string, error) {
			_, hasDeadline := ctx.Deadline()
			if !hasDeadline {
				return "", errors.New("expected a per-item deadline")
			}
			return "ok", nil
		}},
	}

	results := Process(context.Background(), pool, items, nil)
	require.Len(t, results, 2)

	for _, r := range results {
		switch r.ID {
		case "slow":
			assert.ErrorIs(t, r.Err, context.DeadlineExceeded)
			assert.Less(t, r.Elapsed, time.Second)
		case "fast":
			assert.NoError(t, r.Err)
			assert.Equal(t, "ok", r.Result)
		}
	}
}

func TestWorkerPool_Process_ResultsCarrySubmissionIndex(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{MaxConcurrent: 4}, zap.NewNop())

	items := make([]WorkItem[int], 8)
	for i := range items {
		delay := time.Duration(len(items)-i) * 2 * time.Millisecond
		items[i] = WorkItem[int]{
			ID: fmt.Sprintf("page%d", i+1),
			Execute: func(ctx context.Context) (int, error) {
				time.Sleep(delay)
				return i, nil
			},
		}
	}

	results := Process(context.Background(), pool, items, nil)
	require.Len(t, results, len(items))

	seen := make(map[int]bool)
	for _, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, r.Index, r.Result)
		assert.Equal(t, fmt.Sprintf("page%d", r.Index+1), r.ID)
		seen[r.Index] = true
	}
	assert.Len(t, seen, len(items))
}

func TestWorkerPool_Process_QueuedItemsSkippedAfterCancel(t *testing.T) {
	pool := NewWorkerPool(WorkerPoolConfig{MaxConcurrent: 1}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	var ran atomic.Int32
	items := []WorkItem[string]{
		{ID: "first", Execute: func(ctx context.Context) (string, error) {
			ran.Add(1)
			cancel()
			return "done", nil
		}},
		{ID: "second", Execute: func(ctx context.Context) (string, error) { ran.Add(1); return "done", nil }},
		{ID: "third", Execute: func(ctx context.Context) (string, error) { ran.Add(1); return "done", nil }},
	}

	results := Process(ctx, pool, items, nil)
	require.Len(t, results, 3)
	assert.Equal(t, int32(1), ran.Load())

	for _, r := range results {
		if r.ID == "first" {
			assert.NoError(t, r.Err)
			continue
		}
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}
