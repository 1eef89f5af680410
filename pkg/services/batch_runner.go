package services

import (
	"context"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-roofscan/pkg/llm"
	"github.com/ekaya-inc/ekaya-roofscan/pkg/models"
)

// ImageAnalyzer analyzes one exported page image. Implementations must not
// return an error; a failed analysis is nil.
type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, path string) *models.VisionAnalysis
}

var _ ImageAnalyzer = (*VisionAnalyzer)(nil)

// BatchConfig configures a BatchRunner.
type BatchConfig struct {
	MaxConcurrent  int           // default 3
	RequestTimeout time.Duration // per image, 0 = none
}

// ImageResult pairs an image with its analysis. Analysis is nil when the
// image could not be analyzed.
type ImageResult struct {
	ImagePath string
	Analysis  *models.VisionAnalysis
}

// BatchRunner analyzes many images with bounded concurrency. A failing or
// panicking unit only loses its own result.
type BatchRunner struct {
	analyzer ImageAnalyzer
	pool     *llm.WorkerPool
	logger   *zap.Logger
}

// NewBatchRunner creates a runner around analyzer.
func NewBatchRunner(analyzer ImageAnalyzer, cfg BatchConfig, logger *zap.Logger) *BatchRunner {
	poolCfg := llm.DefaultWorkerPoolConfig()
	if cfg.MaxConcurrent > 0 {
		poolCfg.MaxConcurrent = cfg.MaxConcurrent
	}
	poolCfg.ItemTimeout = cfg.RequestTimeout

	return &BatchRunner{
		analyzer: analyzer,
		pool:     llm.NewWorkerPool(poolCfg, logger),
		logger:   logger.Named("batch-runner"),
	}
}

// Run analyzes every path and returns one result per path in completion order.
func (r *BatchRunner) Run(ctx context.Context, imagePaths []string) []ImageResult {
	results := make([]ImageResult, 0, len(imagePaths))
	if len(imagePaths) == 0 {
		return results
	}

	items := make([]llm.WorkItem[*models.VisionAnalysis], len(imagePaths))
	for i, path := range imagePaths {
		items[i] = llm.WorkItem[*models.VisionAnalysis]{
			ID: path,
			Execute: func(ctx context.Context) (*models.VisionAnalysis, error) {
				return r.analyzer.AnalyzeImage(ctx, path), nil
			},
		}
	}

	r.logger.Info("Starting vision analysis",
		zap.Int("images", len(imagePaths)),
		zap.Int("max_concurrent", r.pool.MaxConcurrent()))

	workResults := llm.Process(ctx, r.pool, items, func(completed, total int) {
		r.logger.Debug("Vision analysis progress",
			zap.Int("completed", completed),
			zap.Int("total", total))
	})

	for _, wr := range workResults {
		if wr.Err != nil {
			r.logger.Error("Vision analysis unit failed",
				zap.String("image", filepath.Base(wr.ID)),
				zap.Error(wr.Err))
			results = append(results, ImageResult{ImagePath: wr.ID})
			continue
		}
		r.logger.Info("Analyzed image",
			zap.String("image", filepath.Base(wr.ID)),
			zap.Duration("elapsed", wr.Elapsed))
		results = append(results, ImageResult{ImagePath: wr.ID, Analysis: wr.Result})
	}

	return results
}
