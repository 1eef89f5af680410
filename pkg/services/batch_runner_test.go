package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-roofscan/pkg/llm"
	"github.com/ekaya-inc/ekaya-roofscan/pkg/models"
)

// stubAnalyzer returns a canned analysis per path. Paths in panics panic, paths in
// failures return nil.
type stubAnalyzer struct {
	panics   map[string]bool
	failures map[string]bool
	delay    time.Duration

	mu       sync.Mutex
	seen     []string
	inFlight int32
	peak     int32
}

func (s *stubAnalyzer) AnalyzeImage(ctx context.Context, path string) *models.VisionAnalysis {
	n := atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)
	for {
		p := atomic.LoadInt32(&s.peak)
		if n <= p || atomic.CompareAndSwapInt32(&s.peak, p, n) {
			break
		}
	}

	s.mu.Lock()
	s.seen = append(s.seen, path)
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil
		}
	}
	if s.panics[path] {
		panic("decoder blew up on " + path)
	}
	if s.failures[path] {
		return nil
	}
	return ParseVisionResponse(`{"drawing_type": "ROOF PLAN", "elements": {"drains": {"count": 1}}}`)
}

func imagePaths(n int) []string {
	paths := make([]string, n)
	for i := range paths {
		paths[i] = fmt.Sprintf("/tmp/run/A-5%02d_page%d.png", i, i+1)
	}
	return paths
}

func TestBatchRunner_Run(t *testing.T) {
	analyzer := &stubAnalyzer{}
	runner := NewBatchRunner(analyzer, BatchConfig{}, zap.NewNop())

	paths := imagePaths(5)
	results := runner.Run(context.Background(), paths)

	require.Len(t, results, 5)
	var got []string
	for _, r := range results {
		got = append(got, r.ImagePath)
		assert.True(t, r.Analysis.IsValid())
	}
	sort.Strings(got)
	assert.Equal(t, paths, got)
}

func TestBatchRunner_OneFailingUnit(t *testing.T) {
	paths := imagePaths(6)
	analyzer := &stubAnalyzer{panics: map[string]bool{paths[2]: true}}
	runner := NewBatchRunner(analyzer, BatchConfig{MaxConcurrent: 2}, zap.NewNop())

	results := runner.Run(context.Background(), paths)
	require.Len(t, results, 6)

	nilCount := 0
	for _, r := range results {
		if r.Analysis == nil {
			nilCount++
			assert.Equal(t, paths[2], r.ImagePath)
		}
	}
	assert.Equal(t, 1, nilCount)

	agg := Aggregate(&FilterResult{Filtered: []*models.SheetInfo{}}, results)
	assert.Len(t, agg.AIAnalysis, 5)
	assert.Equal(t, 5, agg.Summary.AIAnalysesCompleted)
}

func TestBatchRunner_NilAnalysisIsKept(t *testing.T) {
	paths := imagePaths(3)
	analyzer := &stubAnalyzer{failures: map[string]bool{paths[0]: true}}
	results := NewBatchRunner(analyzer, BatchConfig{}, zap.NewNop()).Run(context.Background(), paths)

	require.Len(t, results, 3)
	nils := 0
	for _, r := range results {
		if r.Analysis == nil {
			nils++
		}
	}
	assert.Equal(t, 1, nils)
}

func TestBatchRunner_RespectsConcurrencyLimit(t *testing.T) {
	analyzer := &stubAnalyzer{delay: 20 * time.Millisecond}
	runner := NewBatchRunner(analyzer, BatchConfig{MaxConcurrent: 3}, zap.NewNop())

	results := runner.Run(context.Background(), imagePaths(9))
	assert.Len(t, results, 9)
	assert.LessOrEqual(t, atomic.LoadInt32(&analyzer.peak), int32(3))
}

func TestBatchRunner_DefaultConcurrency(t *testing.T) {
	analyzer := &stubAnalyzer{delay: 20 * time.Millisecond}
	runner := NewBatchRunner(analyzer, BatchConfig{}, zap.NewNop())

	results := runner.Run(context.Background(), imagePaths(8))
	assert.Len(t, results, 8)
	peak := atomic.LoadInt32(&analyzer.peak)
	assert.GreaterOrEqual(t, peak, int32(1))
	assert.LessOrEqual(t, peak, int32(llm.DefaultMaxConcurrent))
}

func TestBatchRunner_RequestTimeout(t *testing.T) {
	analyzer := &stubAnalyzer{delay: time.Second}
	runner := NewBatchRunner(analyzer, BatchConfig{RequestTimeout: 10 * time.Millisecond}, zap.NewNop())

	start := time.Now()
	results := runner.Run(context.Background(), imagePaths(2))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	for _, r := range results {
		assert.Nil(t, r.Analysis)
	}
}

func TestBatchRunner_Empty(t *testing.T) {
	analyzer := &stubAnalyzer{}
	results := NewBatchRunner(analyzer, BatchConfig{}, zap.NewNop()).Run(context.Background(), nil)

	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Empty(t, analyzer.seen)
}
