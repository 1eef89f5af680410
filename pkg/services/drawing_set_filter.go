package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-roofscan/pkg/models"
	"github.com/ekaya-inc/ekaya-roofscan/pkg/pdf"
	"github.com/ekaya-inc/ekaya-roofscan/pkg/scoring"
)

const (
	// progressLogInterval controls how often filtering progress is logged.
	progressLogInterval = 100

	maxTitleLength = 100
)

// Title-block heuristics. The first pattern that matches anywhere on the page
// wins; within it the most frequent match wins.
var sheetNumberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?im)\b([A-Z]-?\d{3}(?:\.\d+)?)\b`),        // A-501, A501, A501.1
	regexp.MustCompile(`(?im)\bSheet\s*(?:No\.?|#)?\s*([A-Z0-9.-]+)`), // SHEET NO. A5.01
	regexp.MustCompile(`(?im)\b([A-Z]{1,2}\d{1,2}\.\d{1,2})\b`),    // A5.01, AR5.1
	regexp.MustCompile(`(?im)^([A-Z]-?\d+)`),                       // line-leading sheet numbers
}

var sheetTitlePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:ROOF\s+PLAN|ROOFING\s+PLAN)[^\n]*`),
	regexp.MustCompile(`(?i)(?:ROOF\s+DETAIL|ROOFING\s+DETAIL)S?[^\n]*`),
	regexp.MustCompile(`(?i)ROOF\s+SECTIONS?[^\n]*`),
	regexp.MustCompile(`(?i)ENLARGED\s+ROOF[^\n]*`),
	regexp.MustCompile(`(?i)\bLEVEL\s+\d+\s+ROOF[^\n]*`),
	regexp.MustCompile(`(?i)\b(?:HIGH\s+ROOF|LOW\s+ROOF|MAIN\s+ROOF)[^\n]*`),
}

// FilterResult is the outcome of Stage 1 filtering.
type FilterResult struct {
	// Sheets holds one entry per analyzed page, in page order.
	Sheets []*models.SheetInfo
	// Filtered is the roof-related subset of Sheets, in page order.
	Filtered []*models.SheetInfo
	Stats    models.Stage1Stats
}

// FilterEfficiency returns the share of analyzed pages that were excluded.
func (r *FilterResult) FilterEfficiency() string {
	return models.FilterEfficiency(r.Stats.RoofRelatedPages, r.Stats.PagesAnalyzed)
}

// Summary returns the stage1_filter report section.
func (r *FilterResult) Summary() models.Stage1Summary {
	filtered := r.Filtered
	if filtered == nil {
		filtered = []*models.SheetInfo{}
	}
	return models.Stage1Summary{
		Stats:            r.Stats,
		FilteredSheets:   filtered,
		FilterEfficiency: r.FilterEfficiency(),
	}
}

// DrawingSetFilter scans every page of a drawing set and keeps the ones that
// look roof related. Pages are read sequentially from a single reader.
type DrawingSetFilter struct {
	open      pdf.DocumentOpener
	scorer    *scoring.Scorer
	threshold float64
	logger    *zap.Logger
}

// NewDrawingSetFilter creates a filter. A nil opener reads PDFs from disk and a
// nil scorer uses the built-in rules.
func NewDrawingSetFilter(opener pdf.DocumentOpener, scorer *scoring.Scorer, threshold float64, logger *zap.Logger) (*DrawingSetFilter, error) {
	if opener == nil {
		opener = pdf.OpenSource
	}
	if scorer == nil {
		var err error
		scorer, err = scoring.NewScorer(nil)
		if err != nil {
			return nil, err
		}
	}
	return &DrawingSetFilter{
		open:      opener,
		scorer:    scorer,
		threshold: threshold,
		logger:    logger.Named("drawing-set-filter"),
	}, nil
}

// Threshold returns the minimum relevance score for a roof-related page.
func (f *DrawingSetFilter) Threshold() float64 {
	return f.threshold
}

// WithThreshold returns a copy of the filter using a different threshold.
func (f *DrawingSetFilter) WithThreshold(threshold float64) *DrawingSetFilter {
	c := *f
	c.threshold = threshold
	return &c
}

// Analyze runs Stage 1 over the document at path. maxPages <= 0 analyzes every
// page. Only a document that cannot be opened (or a cancelled context) is an
// error; unreadable pages become degraded sheets.
func (f *DrawingSetFilter) Analyze(ctx context.Context, path string, maxPages int) (*FilterResult, error) {
	start := time.Now()

	f.logger.Info("Opening drawing set", zap.String("path", path))
	doc, err := f.open(path)
	if err != nil {
		return nil, fmt.Errorf("open drawing set: %w", err)
	}
	defer func() {
		if err := doc.Close(); err != nil {
			f.logger.Warn("Failed to close drawing set", zap.String("path", path), zap.Error(err))
		}
	}()

	total := doc.NumPages()
	analyzed := total
	if maxPages > 0 && maxPages < total {
		analyzed = maxPages
	}

	f.logger.Info("Analyzing pages",
		zap.Int("pages_to_analyze", analyzed),
		zap.Int("total_pages", total))

	result := &FilterResult{
		Sheets:   make([]*models.SheetInfo, 0, analyzed),
		Filtered: []*models.SheetInfo{},
	}

	for page := 1; page <= analyzed; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if page%progressLogInterval == 0 {
			f.logger.Info("Processing page",
				zap.Int("page", page),
				zap.Int("pages_to_analyze", analyzed))
		}

		sheet := f.analyzePage(doc, page)
		result.Sheets = append(result.Sheets, sheet)
		if sheet.IsRoofRelated() {
			result.Filtered = append(result.Filtered, sheet)
		}
	}

	result.Stats = models.Stage1Stats{
		TotalPages:            total,
		PagesAnalyzed:         len(result.Sheets),
		RoofRelatedPages:      len(result.Filtered),
		ProcessingTimeSeconds: models.RoundTo(time.Since(start).Seconds(), 2),
	}

	f.logger.Info("Filtering complete",
		zap.Int("roof_related_pages", result.Stats.RoofRelatedPages),
		zap.Int("pages_analyzed", result.Stats.PagesAnalyzed),
		zap.String("filter_efficiency", result.FilterEfficiency()))

	return result, nil
}

func (f *DrawingSetFilter) analyzePage(doc pdf.PageSource, page int) *models.SheetInfo {
	text, err := doc.PageText(page)
	if err != nil {
		f.logger.Warn("Skipping unreadable page", zap.Int("page", page), zap.Error(err))
		return models.NewDegradedSheetInfo(page)
	}
	return f.ScorePage(page, text)
}

// ScorePage builds the SheetInfo for one page of extracted text.
func (f *DrawingSetFilter) ScorePage(page int, text string) *models.SheetInfo {
	sheetNumber := ExtractSheetNumber(text, page)
	title := ExtractSheetTitle(text)
	category := models.CategoryFromSheetNumber(sheetNumber)
	score, reasons := f.scorer.Score(sheetNumber, title, strings.ToLower(text), category)

	return models.NewSheetInfo(page, sheetNumber, title, category, score, reasons, text, f.threshold)
}

// ExtractSheetNumber finds the sheet number in a page's title block text.
// Pages without one get the PAGE-<n> placeholder.
func ExtractSheetNumber(text string, page int) string {
	for _, re := range sheetNumberPatterns {
		matches := re.FindAllStringSubmatch(text, -1)
		if len(matches) == 0 {
			continue
		}

		counts := make(map[string]int, len(matches))
		best, bestCount := "", 0
		for _, m := range matches {
			counts[m[1]]++
		}
		// ties go to the first value seen
		for _, m := range matches {
			if c := counts[m[1]]; c > bestCount {
				best, bestCount = m[1], c
			}
		}
		return strings.ToUpper(best)
	}
	return models.PlaceholderSheetNumber(page)
}

// ExtractSheetTitle returns the first roof title line found on the page, or "".
func ExtractSheetTitle(text string) string {
	for _, re := range sheetTitlePatterns {
		if m := re.FindString(text); m != "" {
			return truncateTitle(strings.TrimSpace(m))
		}
	}
	return ""
}

func truncateTitle(s string) string {
	if utf8.RuneCountInString(s) <= maxTitleLength {
		return s
	}
	return string([]rune(s)[:maxTitleLength])
}
