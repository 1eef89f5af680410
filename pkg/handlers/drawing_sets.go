package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-roofscan/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-roofscan/pkg/models"
	"github.com/ekaya-inc/ekaya-roofscan/pkg/services"
)

const (
	// uploadField is the multipart field carrying the PDF.
	uploadField = "file"
	// legacyUploadField is accepted for older clients.
	legacyUploadField = "drawing_set"

	multipartMemory = 32 << 20
)

// DrawingSetAnalyzer runs the roof triage pipeline over a PDF on disk.
type DrawingSetAnalyzer interface {
	Parse(ctx context.Context, path string, opts services.ParseOptions) (*models.Report, error)
}

var _ DrawingSetAnalyzer = (*services.DrawingSetParser)(nil)

// DrawingSetsConfig holds upload limits and per-request defaults.
type DrawingSetsConfig struct {
	// MaxUploadBytes limits the request body. 0 means no limit.
	MaxUploadBytes int64
	// MaxPages is the page cap used when the request does not set one.
	MaxPages int
	// UploadDir holds uploads while they are analyzed (default os.TempDir()).
	UploadDir string
}

// DrawingSetsHandler exposes drawing set analysis over HTTP.
type DrawingSetsHandler struct {
	analyzer DrawingSetAnalyzer
	cfg      DrawingSetsConfig
	logger   *zap.Logger
}

// NewDrawingSetsHandler creates a new DrawingSetsHandler.
func NewDrawingSetsHandler(analyzer DrawingSetAnalyzer, cfg DrawingSetsConfig, logger *zap.Logger) *DrawingSetsHandler {
	return &DrawingSetsHandler{
		analyzer: analyzer,
		cfg:      cfg,
		logger:   logger.Named("drawing-sets-handler"),
	}
}

// RegisterRoutes registers the drawing set routes on the given mux.
func (h *DrawingSetsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/drawing-sets/analyze", h.Analyze)
	mux.HandleFunc("POST /api/drawing-sets/filter", h.Filter)
}

// Analyze handles POST /api/drawing-sets/analyze
// Query: max_pages, min_relevance, use_ai (default false). Returns the full report.
func (h *DrawingSetsHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	useAI, ok := ParseBoolQuery(w, r, "use_ai", false, h.logger)
	if !ok {
		return
	}
	report, ok := h.run(w, r, useAI)
	if !ok {
		return
	}
	if err := WriteJSON(w, http.StatusOK, report); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Filter handles POST /api/drawing-sets/filter
// Runs Stage 1 only and returns the stage1_filter section.
func (h *DrawingSetsHandler) Filter(w http.ResponseWriter, r *http.Request) {
	report, ok := h.run(w, r, false)
	if !ok {
		return
	}
	if err := WriteJSON(w, http.StatusOK, report.Stage1Filter); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// run reads the upload and the shared query parameters, then parses the
// drawing set. It writes the error response itself and returns ok=false on
// failure.
func (h *DrawingSetsHandler) run(w http.ResponseWriter, r *http.Request, useVision bool) (*models.Report, bool) {
	opts := services.ParseOptions{
		MaxPages:  h.cfg.MaxPages,
		UseVision: useVision,
	}
	maxPages, present, ok := ParseIntQuery(w, r, "max_pages", h.logger)
	if !ok {
		return nil, false
	}
	if present {
		opts.MaxPages = maxPages
	}
	minRelevance, present, ok := ParseScoreQuery(w, r, "min_relevance", h.logger)
	if !ok {
		return nil, false
	}
	if present {
		opts.MinRelevanceScore = &minRelevance
	}

	if h.cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, h.logger, http.StatusRequestEntityTooLarge, "file_too_large",
				fmt.Sprintf("Upload exceeds %d bytes", tooLarge.Limit))
			return nil, false
		}
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "Expected a multipart/form-data upload")
		return nil, false
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			h.logger.Warn("Failed to remove multipart temp files", zap.Error(err))
		}
	}()

	file, header, err := uploadedFile(r)
	if err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "missing_file", `No file uploaded. Use form field "file"`)
		return nil, false
	}
	defer file.Close()
	if header.Filename == "" {
		writeError(w, h.logger, http.StatusBadRequest, "missing_file", "No file selected")
		return nil, false
	}

	path, err := h.saveUpload(file)
	if err != nil {
		h.logger.Error("Failed to store upload", zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "upload_failed", "Failed to store uploaded file")
		return nil, false
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			h.logger.Warn("Failed to remove upload", zap.String("path", path), zap.Error(err))
		}
	}()

	filename := filepath.Base(header.Filename)
	h.logger.Info("Analyzing uploaded drawing set",
		zap.String("filename", filename),
		zap.Int64("size", header.Size),
		zap.Int("max_pages", opts.MaxPages),
		zap.Bool("use_ai", opts.UseVision))

	report, err := h.analyzer.Parse(r.Context(), path, opts)
	if err != nil {
		if errors.Is(err, apperrors.ErrDocumentOpen) {
			h.logger.Warn("Uploaded file is not a readable PDF",
				zap.String("filename", filename),
				zap.Error(err))
			writeError(w, h.logger, http.StatusUnprocessableEntity, "invalid_drawing_set", "The uploaded file could not be read as a PDF")
			return nil, false
		}
		h.logger.Error("Drawing set analysis failed",
			zap.String("filename", filename),
			zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "analysis_failed", err.Error())
		return nil, false
	}

	report.Filename = filename
	return report, true
}

func uploadedFile(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	file, header, err := r.FormFile(uploadField)
	if errors.Is(err, http.ErrMissingFile) {
		return r.FormFile(legacyUploadField)
	}
	return file, header, err
}

func (h *DrawingSetsHandler) saveUpload(src io.Reader) (string, error) {
	dst, err := os.CreateTemp(h.cfg.UploadDir, "drawing_set_*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("close upload: %w", err)
	}
	return dst.Name(), nil
}
