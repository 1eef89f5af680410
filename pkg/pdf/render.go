package pdf

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-roofscan/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-roofscan/pkg/models"
)

// DefaultDPI is the rasterization resolution used for vision analysis.
const DefaultDPI = 150

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	logger *zap.Logger
}

// NewExecRunner creates a Runner that executes real binaries.
func NewExecRunner(logger *zap.Logger) *ExecRunner {
	return &ExecRunner{logger: logger.Named("exec")}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if err != nil {
		r.logger.Error("Command failed",
			zap.String("cmd", name),
			zap.String("args", strings.Join(args, " ")),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("stderr", truncate(errb.String(), 8<<10)),
			zap.Error(err))
	} else {
		r.logger.Debug("Command completed",
			zap.String("cmd", name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Int("stdout_bytes", out.Len()))
	}

	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// ExportConfig configures page rasterization.
type ExportConfig struct {
	Pdftoppm string // binary name or absolute path; if empty -> "pdftoppm"
	DPI      int    // default 150
}

// PageExporter renders selected PDF pages to PNG files.
type PageExporter struct {
	cfg      ExportConfig
	runner   Runner
	lookPath func(string) (string, error)
	logger   *zap.Logger
}

// NewPageExporter creates an exporter. A nil runner executes real binaries.
func NewPageExporter(cfg ExportConfig, runner Runner, logger *zap.Logger) *PageExporter {
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = DefaultDPI
	}
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	return &PageExporter{
		cfg:      cfg,
		runner:   runner,
		lookPath: exec.LookPath,
		logger:   logger.Named("page-exporter"),
	}
}

// CheckAvailable returns apperrors.ErrRendererUnavailable when the
// rasterizer binary cannot be found.
func (e *PageExporter) CheckAvailable() error {
	if _, err := e.lookPath(e.cfg.Pdftoppm); err != nil {
		return fmt.Errorf("%w: %s: %v", apperrors.ErrRendererUnavailable, e.cfg.Pdftoppm, err)
	}
	return nil
}

// Available reports whether the rasterizer binary can be found.
func (e *PageExporter) Available() bool {
	return e.CheckAvailable() == nil
}

// Export renders the page of each sheet into outDir and returns the paths of
// the images produced, in sheet order. Pages that fail to render are logged
// and skipped; an unavailable rasterizer yields an empty list.
func (e *PageExporter) Export(ctx context.Context, pdfPath, outDir string, sheets []*models.SheetInfo) []string {
	paths := []string{}

	if err := e.CheckAvailable(); err != nil {
		e.logger.Warn("Page rasterizer not available, skipping image export", zap.Error(err))
		return paths
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		e.logger.Error("Failed to create export directory",
			zap.String("dir", outDir),
			zap.Error(err))
		return paths
	}

	for _, sheet := range sheets {
		if ctx.Err() != nil {
			e.logger.Warn("Export cancelled", zap.Int("exported", len(paths)), zap.Error(ctx.Err()))
			break
		}

		path, err := e.exportPage(ctx, pdfPath, outDir, sheet)
		if err != nil {
			e.logger.Warn("Failed to export page",
				zap.Int("page", sheet.PageNumber),
				zap.String("sheet", sheet.SheetNumber),
				zap.Error(err))
			continue
		}
		paths = append(paths, path)
	}

	e.logger.Info("Exported page images",
		zap.Int("requested", len(sheets)),
		zap.Int("exported", len(paths)),
		zap.String("dir", outDir))

	return paths
}

func (e *PageExporter) exportPage(ctx context.Context, pdfPath, outDir string, sheet *models.SheetInfo) (string, error) {
	stem := strings.TrimSuffix(ImageFileName(sheet.SheetNumber, sheet.PageNumber), ".png")
	prefix := filepath.Join(outDir, stem)
	page := strconv.Itoa(sheet.PageNumber)

	// pdftoppm -f N -l N -r DPI -png -singlefile <pdf> <outDir/stem>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm,
		"-f", page, "-l", page,
		"-r", strconv.Itoa(e.cfg.DPI),
		"-png", "-singlefile",
		pdfPath, prefix)
	if err != nil {
		return "", fmt.Errorf("pdftoppm: %w: %s", err, truncate(strings.TrimSpace(string(errb)), 512))
	}

	path := prefix + ".png"
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("pdftoppm produced no image: %w", err)
	}
	return path, nil
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ImageFileName is the file name used for the rendered image of a page:
// <sheet>_page<n>.png, with the sheet number reduced to safe characters.
func ImageFileName(sheetNumber string, pageNumber int) string {
	safe := strings.Trim(unsafeFileChars.ReplaceAllString(sheetNumber, "_"), "_")
	if safe == "" {
		safe = models.PlaceholderSheetNumber(pageNumber)
	}
	return fmt.Sprintf("%s_page%d.png", safe, pageNumber)
}

var pageSuffixPattern = regexp.MustCompile(`_page(\d+)$`)

// PageNumberFromImagePath recovers the page number encoded by ImageFileName.
func PageNumberFromImagePath(path string) (int, bool) {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	m := pageSuffixPattern.FindStringSubmatch(stem)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
