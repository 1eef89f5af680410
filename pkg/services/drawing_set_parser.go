package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-roofscan/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-roofscan/pkg/llm"
	"github.com/ekaya-inc/ekaya-roofscan/pkg/models"
	"github.com/ekaya-inc/ekaya-roofscan/pkg/pdf"
)

// PageExporter rasterizes filtered sheets to image files.
type PageExporter interface {
	Export(ctx context.Context, pdfPath, outDir string, sheets []*models.SheetInfo) []string
}

var _ PageExporter = (*pdf.PageExporter)(nil)

// ParserDeps are the collaborators of a DrawingSetParser.
type ParserDeps struct {
	Filter   *DrawingSetFilter
	Exporter PageExporter
	// Vision is optional; without it only Stage 1 runs.
	Vision llm.VisionClient
}

// ParserConfig holds Stage 2 settings.
type ParserConfig struct {
	MaxConcurrent  int
	RequestTimeout time.Duration
	MaxRetries     int
	// KeepImages keeps the temporary image directory after the run.
	KeepImages bool
	// TempDir is the parent of temporary image directories (default os.TempDir()).
	TempDir string
	// OutputDir, when set, receives a kept per-run image directory for runs
	// that do not name their own.
	OutputDir string
}

// ParseOptions are per-run options.
type ParseOptions struct {
	MaxPages  int
	UseVision bool
	// MinRelevanceScore overrides the filter threshold for this run.
	MinRelevanceScore *float64
	// OutputDir receives the exported images. Empty means a temporary directory.
	OutputDir string
}

// DrawingSetParser runs the two-stage roof triage over one drawing set.
type DrawingSetParser struct {
	filter   *DrawingSetFilter
	exporter PageExporter
	vision   llm.VisionClient
	cfg      ParserConfig
	logger   *zap.Logger
}

// NewDrawingSetParser creates a parser. Filter is required.
func NewDrawingSetParser(deps ParserDeps, cfg ParserConfig, logger *zap.Logger) (*DrawingSetParser, error) {
	if deps.Filter == nil {
		return nil, fmt.Errorf("drawing set parser: filter is required")
	}
	exporter := deps.Exporter
	if exporter == nil {
		exporter = pdf.NewPageExporter(pdf.ExportConfig{}, nil, logger)
	}
	return &DrawingSetParser{
		filter:   deps.Filter,
		exporter: exporter,
		vision:   deps.Vision,
		cfg:      cfg,
		logger:   logger.Named("drawing-set-parser"),
	}, nil
}

// VisionEnabled reports whether a vision client is configured.
func (p *DrawingSetParser) VisionEnabled() bool {
	return p.vision != nil
}

// pipelineRun tracks the state of one Parse call.
type pipelineRun struct {
	id     string
	state  models.PipelineState
	logger *zap.Logger
}

func newPipelineRun(logger *zap.Logger) *pipelineRun {
	id := uuid.NewString()
	return &pipelineRun{
		id:     id,
		state:  models.PipelineStateNotStarted,
		logger: logger.With(zap.String("run_id", id)),
	}
}

func (r *pipelineRun) transition(next models.PipelineState) error {
	if !r.state.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidTransition, r.state, next)
	}
	r.logger.Debug("Pipeline state change",
		zap.String("from", string(r.state)),
		zap.String("to", string(next)))
	r.state = next
	return nil
}

// Parse analyzes the drawing set at path and builds the report. Only a
// Stage 1 failure is returned as an error; Stage 2 problems reduce the
// report's content instead.
func (p *DrawingSetParser) Parse(ctx context.Context, path string, opts ParseOptions) (*models.Report, error) {
	run := newPipelineRun(p.logger)
	logger := run.logger

	if err := run.transition(models.PipelineStateFiltering); err != nil {
		return nil, err
	}
	logger.Info("Stage 1: filtering pages", zap.String("path", path))

	filter := p.filter
	if opts.MinRelevanceScore != nil {
		filter = filter.WithThreshold(*opts.MinRelevanceScore)
	}

	stage1, err := filter.Analyze(ctx, path, opts.MaxPages)
	if err != nil {
		if terr := run.transition(models.PipelineStateError); terr != nil {
			return nil, terr
		}
		return nil, err
	}

	report := &models.Report{
		Filename:       filepath.Base(path),
		Stage1Filter:   stage1.Summary(),
		FilteredSheets: stage1.Summary().FilteredSheets,
		RoofDetails:    []*models.RoofDetail{},
		AIAnalysis:     []models.AnalysisEntry{},
		Summary:        BuildSummary(stage1.Stats, stage1.FilterEfficiency(), nil, 0),
	}

	switch {
	case !opts.UseVision:
		logger.Info("Vision analysis disabled for this run")
	case p.vision == nil:
		logger.Info("Vision analysis unavailable: no provider credential configured")
	case len(stage1.Filtered) == 0:
		logger.Info("No roof-related pages found, skipping vision analysis")
	default:
		return p.runStage2(ctx, run, path, opts, stage1, report)
	}

	if err := run.transition(models.PipelineStateFilteredOnly); err != nil {
		return nil, err
	}
	return report, nil
}

func (p *DrawingSetParser) runStage2(
	ctx context.Context,
	run *pipelineRun,
	path string,
	opts ParseOptions,
	stage1 *FilterResult,
	report *models.Report,
) (*models.Report, error) {
	logger := run.logger

	if err := run.transition(models.PipelineStateExporting); err != nil {
		return nil, err
	}

	outDir := opts.OutputDir
	if outDir == "" && p.cfg.OutputDir != "" {
		outDir = filepath.Join(p.cfg.OutputDir, "drawing_analysis_"+run.id)
	}
	if outDir == "" {
		base := p.cfg.TempDir
		if base == "" {
			base = os.TempDir()
		}
		outDir = filepath.Join(base, "drawing_analysis_"+run.id)
		if !p.cfg.KeepImages {
			defer func() {
				if err := os.RemoveAll(outDir); err != nil {
					logger.Warn("Failed to remove image directory", zap.String("dir", outDir), zap.Error(err))
				}
			}()
		}
	}

	logger.Info("Stage 2: exporting filtered pages",
		zap.Int("pages", len(stage1.Filtered)),
		zap.String("dir", outDir))
	images := p.exporter.Export(ctx, path, outDir, stage1.Filtered)

	if err := run.transition(models.PipelineStateAnalyzing); err != nil {
		return nil, err
	}

	var results []ImageResult
	if len(images) == 0 {
		logger.Warn("No images exported, skipping vision analysis")
	} else {
		analyzer := NewVisionAnalyzer(p.vision, VisionAnalyzerConfig{MaxRetries: p.cfg.MaxRetries}, p.logger)
		runner := NewBatchRunner(analyzer, BatchConfig{
			MaxConcurrent:  p.cfg.MaxConcurrent,
			RequestTimeout: p.cfg.RequestTimeout,
		}, p.logger)
		results = runner.Run(ctx, images)
	}

	agg := Aggregate(stage1, results)
	report.RoofDetails = agg.RoofDetails
	report.AIAnalysis = agg.AIAnalysis
	report.Summary = agg.Summary

	if err := run.transition(models.PipelineStateAggregated); err != nil {
		return nil, err
	}

	logger.Info("Drawing set analysis complete",
		zap.Int("roof_details", len(report.RoofDetails)),
		zap.Int("ai_analyses_completed", report.Summary.AIAnalysesCompleted))
	return report, nil
}
