package services

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-roofscan/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-roofscan/pkg/config"
	"github.com/ekaya-inc/ekaya-roofscan/pkg/llm"
	"github.com/ekaya-inc/ekaya-roofscan/pkg/logging"
	"github.com/ekaya-inc/ekaya-roofscan/pkg/pdf"
	"github.com/ekaya-inc/ekaya-roofscan/pkg/scoring"
)

// NewDrawingSetParserFromConfig wires the scorer, filter, page exporter and
// vision client described by cfg. A missing provider credential leaves
// vision analysis off rather than failing.
func NewDrawingSetParserFromConfig(cfg *config.Config, logger *zap.Logger) (*DrawingSetParser, error) {
	rules, err := scoring.LoadRules(cfg.DrawingSet.ScoringRulesPath)
	if err != nil {
		return nil, fmt.Errorf("load scoring rules: %w", err)
	}
	scorer, err := scoring.NewScorer(rules)
	if err != nil {
		return nil, fmt.Errorf("create scorer: %w", err)
	}

	filter, err := NewDrawingSetFilter(nil, scorer, cfg.DrawingSet.MinRelevanceScore, logger)
	if err != nil {
		return nil, err
	}

	exporter := pdf.NewPageExporter(pdf.ExportConfig{
		Pdftoppm: cfg.Export.Pdftoppm,
		DPI:      cfg.Export.DPI,
	}, nil, logger)

	vision, err := newVisionClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	return NewDrawingSetParser(ParserDeps{
		Filter:   filter,
		Exporter: exporter,
		Vision:   vision,
	}, ParserConfig{
		MaxConcurrent:  cfg.Vision.MaxConcurrent,
		RequestTimeout: cfg.Vision.RequestTimeout,
		MaxRetries:     cfg.Vision.MaxRetries,
		KeepImages:     cfg.Export.KeepImages,
		OutputDir:      cfg.Export.OutputDir,
	}, logger)
}

func newVisionClient(cfg *config.Config, logger *zap.Logger) (llm.VisionClient, error) {
	if cfg.Vision.Disabled {
		logger.Info("Vision analysis disabled by configuration")
		return nil, nil
	}

	client, err := llm.NewVisionClient(&llm.Config{
		Provider:  cfg.Vision.Provider,
		Endpoint:  cfg.VisionEndpoint(),
		Model:     cfg.Vision.Model,
		APIKey:    cfg.VisionAPIKey(),
		MaxTokens: cfg.Vision.MaxTokens,
	}, logger)
	if errors.Is(err, apperrors.ErrVisionUnavailable) {
		logger.Info("Vision analysis unavailable, running Stage 1 only",
			zap.String("reason", logging.SanitizeError(err)))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create vision client: %w", err)
	}

	logger.Info("Vision analysis enabled",
		zap.String("provider", cfg.Vision.Provider),
		zap.String("model", client.GetModel()))
	return client, nil
}
