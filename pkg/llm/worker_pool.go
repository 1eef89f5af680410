package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxConcurrent is the number of vision calls in flight at once.
const DefaultMaxConcurrent = 3

// WorkerPoolConfig configures the vision worker pool.
type WorkerPoolConfig struct {
	MaxConcurrent int           // Workers pulling from the queue (default: DefaultMaxConcurrent)
	ItemTimeout   time.Duration // Deadline for each item; 0 means none
}

// DefaultWorkerPoolConfig returns the pool defaults.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{MaxConcurrent: DefaultMaxConcurrent}
}

// WorkerPool runs vision calls on a fixed set of workers. Results are
// delivered as they complete so a slow page never holds back the rest.
type WorkerPool struct {
	config WorkerPoolConfig
	logger *zap.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(config WorkerPoolConfig, logger *zap.Logger) *WorkerPool {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = DefaultMaxConcurrent
	}
	if config.ItemTimeout < 0 {
		config.ItemTimeout = 0
	}
	return &WorkerPool{
		config: config,
		logger: logger.Named("vision-worker-pool"),
	}
}

// MaxConcurrent returns the effective concurrency limit.
func (p *WorkerPool) MaxConcurrent() int {
	return p.config.MaxConcurrent
}

// WorkItem is one queued call.
type WorkItem[T any] struct {
	ID      string
	Execute func(ctx context.Context) (T, error)
}

// WorkResult is the outcome of one WorkItem.
type WorkResult[T any] struct {
	ID      string
	Index   int // position of the item in the submitted slice
	Result  T
	Err     error
	Elapsed time.Duration
}

// Process runs every item and returns one result per item in completion
// order. Failures stay local to their item: an error or panic becomes that
// item's Err. Items still queued when ctx is done get ctx.Err() without
// running.
func Process[T any](
	ctx context.Context,
	pool *WorkerPool,
	items []WorkItem[T],
	onProgress func(completed, total int),
) []WorkResult[T] {
	total := len(items)
	results := make([]WorkResult[T], 0, total)
	if total == 0 {
		return results
	}

	workers := pool.config.MaxConcurrent
	if workers > total {
		workers = total
	}

	queue := make(chan int, total)
	for i := range items {
		queue <- i
	}
	close(queue)

	out := make(chan WorkResult[T], total)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				if err := ctx.Err(); err != nil {
					out <- WorkResult[T]{ID: items[i].ID, Index: i, Err: err}
					continue
				}
				out <- runItem(ctx, pool, i, items[i])
			}
		}()
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	for res := range out {
		results = append(results, res)
		if onProgress != nil {
			onProgress(len(results), total)
		}
	}
	return results
}

func runItem[T any](ctx context.Context, pool *WorkerPool, index int, item WorkItem[T]) (res WorkResult[T]) {
	res.ID = item.ID
	res.Index = index
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			pool.logger.Error("Work item panicked",
				zap.String("id", item.ID),
				zap.Any("panic", r))
			var zero T
			res.Result = zero
			res.Err = fmt.Errorf("work item %s panicked: %v", item.ID, r)
		}
		res.Elapsed = time.Since(start)
	}()

	if pool.config.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, pool.config.ItemTimeout)
		defer cancel()
	}

	res.Result, res.Err = item.Execute(ctx)
	return res
}
