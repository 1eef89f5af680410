package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ekaya-inc/ekaya-roofscan/pkg/llm"
	"github.com/ekaya-inc/ekaya-roofscan/pkg/models"
)

const roofPlanResponse = `Here is the analysis:
{
  "sheet_number": "A-501",
  "drawing_title": "ROOF PLAN",
  "drawing_type": "ROOF PLAN",
  "elements": {
    "drains": {"count": 4, "notes": "RD-1 through RD-4"},
    "scuppers": {"count": 2, "type": "overflow"},
    "rtus_curbs": {"count": 3},
    "skylights": {"count": 0},
    "hatches": {"count": 1},
    "penetrations": {"count": 6}
  },
  "materials": {"membrane": "60 mil TPO", "insulation": "polyiso", "cover_board": null, "vapor_barrier": null},
  "details": [{"detail_number": "5", "title": "ROOF DRAIN", "scale": "1 1/2\" = 1'-0\"", "description": "drain sump"}],
  "references": {"spec_sections": ["07 54 23"], "other_details": ["5/A-502"]},
  "roof_areas": ["Area A", "Area B"],
  "notes": "Tapered insulation to drains.",
  "confidence": 0.85
}
Let me know if you need anything else.`

func writeImage(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n"), 0o644))
	return path
}

func TestVisionAnalyzer_AnalyzeImage(t *testing.T) {
	client := llm.NewMockVisionClient()
	client.AnalyzeImageFunc = func(ctx context.Context, image []byte, mediaType, prompt string) (string, error) {
		assert.Equal(t, RoofAnalysisPrompt, prompt)
		assert.Equal(t, []byte("\x89PNG\r\n"), image)
		return roofPlanResponse, nil
	}
	a := NewVisionAnalyzer(client, VisionAnalyzerConfig{}, zap.NewNop())

	analysis := a.AnalyzeImage(context.Background(), writeImage(t, t.TempDir(), "A-501_page12.png"))

	require.True(t, analysis.IsValid())
	assert.True(t, analysis.HasDrawingType())
	r := analysis.Result
	assert.Equal(t, "A-501", r.SheetNumber)
	assert.Equal(t, "ROOF PLAN", r.DrawingType)
	assert.Equal(t, 4, r.Elements.Drains.Count)
	assert.Equal(t, "RD-1 through RD-4", r.Elements.Drains.Notes)
	assert.Equal(t, 2, r.Elements.Scuppers.Count)
	assert.Equal(t, 3, r.Elements.RTUsCurbs.Count)
	require.NotNil(t, r.Materials.Membrane)
	assert.Equal(t, "60 mil TPO", *r.Materials.Membrane)
	assert.Nil(t, r.Materials.CoverBoard)
	assert.Equal(t, []string{"07 54 23"}, r.References.SpecSections)
	assert.Equal(t, 0.85, r.Confidence)
	require.Len(t, r.Details, 1)
	assert.Equal(t, "5", r.Details[0].DetailNumber)

	assert.Equal(t, []string{"image/png"}, client.MediaTypes())
}

func TestVisionAnalyzer_MediaTypeFromExtension(t *testing.T) {
	client := llm.NewMockVisionClient()
	client.AnalyzeImageFunc = func(context.Context, []byte, string, string) (string, error) {
		return `{"drawing_type": "OTHER"}`, nil
	}
	a := NewVisionAnalyzer(client, VisionAnalyzerConfig{}, zap.NewNop())
	dir := t.TempDir()

	for _, name := range []string{"a.JPG", "b.jpeg", "c.gif", "d.webp", "e.tiff"} {
		a.AnalyzeImage(context.Background(), writeImage(t, dir, name))
	}
	assert.Equal(t, []string{"image/jpeg", "image/jpeg", "image/gif", "image/webp", "image/png"}, client.MediaTypes())
}

func TestVisionAnalyzer_NoResult(t *testing.T) {
	dir := t.TempDir()
	image := writeImage(t, dir, "A-501_page1.png")

	t.Run("nil client", func(t *testing.T) {
		a := NewVisionAnalyzer(nil, VisionAnalyzerConfig{}, zap.NewNop())
		assert.Nil(t, a.AnalyzeImage(context.Background(), image))
	})

	t.Run("provider error", func(t *testing.T) {
		client := llm.NewMockVisionClient()
		client.AnalyzeImageFunc = func(context.Context, []byte, string, string) (string, error) {
			return "", errors.New("401 invalid x-api-key: sk-ant-REDACTED")
		}
		a := NewVisionAnalyzer(client, VisionAnalyzerConfig{}, zap.NewNop())
		assert.Nil(t, a.AnalyzeImage(context.Background(), image))
		assert.Equal(t, 1, client.Calls())
	})

	t.Run("unreadable image", func(t *testing.T) {
		client := llm.NewMockVisionClient()
		a := NewVisionAnalyzer(client, VisionAnalyzerConfig{}, zap.NewNop())
		assert.Nil(t, a.AnalyzeImage(context.Background(), filepath.Join(dir, "missing.png")))
		assert.Equal(t, 0, client.Calls())
	})
}

func TestVisionAnalyzer_RetriesTransientErrors(t *testing.T) {
	client := llm.NewMockVisionClient()
	attempts := 0
	client.AnalyzeImageFunc = func(context.Context, []byte, string, string) (string, error) {
		attempts++
		if attempts < 3 {
			return "", llm.NewError(llm.ErrorTypeOverloaded, "overloaded", true, errors.New("529"))
		}
		return `{"drawing_type": "ROOF DETAIL"}`, nil
	}
	core, logs := observer.New(zap.InfoLevel)
	a := NewVisionAnalyzer(client, VisionAnalyzerConfig{MaxRetries: 3, RetryDelay: time.Millisecond}, zap.New(core))

	analysis := a.AnalyzeImage(context.Background(), writeImage(t, t.TempDir(), "x_page2.png"))
	require.True(t, analysis.HasDrawingType())
	assert.Equal(t, 3, attempts)

	retries := logs.FilterMessage("Retrying vision analysis").All()
	require.Len(t, retries, 2)
	assert.Equal(t, int64(1), retries[0].ContextMap()["attempt"])
	assert.Equal(t, int64(2), retries[1].ContextMap()["attempt"])
	assert.Equal(t, "x_page2.png", retries[0].ContextMap()["image"])
}

func TestVisionAnalyzer_DoesNotRetryPermanentErrors(t *testing.T) {
	client := llm.NewMockVisionClient()
	client.AnalyzeImageFunc = func(context.Context, []byte, string, string) (string, error) {
		return "", llm.NewError(llm.ErrorTypeAuth, "authentication failed", false, nil)
	}
	core, logs := observer.New(zap.WarnLevel)
	a := NewVisionAnalyzer(client, VisionAnalyzerConfig{MaxRetries: 3, RetryDelay: time.Millisecond}, zap.New(core))

	assert.Nil(t, a.AnalyzeImage(context.Background(), writeImage(t, t.TempDir(), "x_page2.png")))
	assert.Equal(t, 1, client.Calls())

	failures := logs.FilterMessage("Vision analysis failed").All()
	require.Len(t, failures, 1)
	assert.Equal(t, string(llm.ErrorTypeAuth), failures[0].ContextMap()["error_type"])
}

func TestParseVisionResponse(t *testing.T) {
	t.Run("no object is raw text", func(t *testing.T) {
		a := ParseVisionResponse("I could not read this drawing.")
		require.NotNil(t, a)
		assert.Equal(t, models.AnalysisRawText, a.Kind)
		assert.False(t, a.IsValid())
		assert.Equal(t, "I could not read this drawing.", a.RawText)
	})

	t.Run("invalid top-level object is raw text", func(t *testing.T) {
		text := `{"sheet_number": "A-501", "drawing_type": "ROOF PLAN", ` +
			`"elements": {"drains": {"count": 4}, "scuppers": {"count": 2}}, "notes": "two roofs",}`
		a := ParseVisionResponse(text)
		require.NotNil(t, a)
		assert.Equal(t, models.AnalysisRawText, a.Kind)
		assert.False(t, a.IsValid())
		assert.Equal(t, text, a.RawText)
	})

	t.Run("first balanced object wins", func(t *testing.T) {
		a := ParseVisionResponse(`{"drawing_type": "ROOF PLAN"} and later {"drawing_type": "OTHER"}`)
		require.True(t, a.IsValid())
		assert.Equal(t, "ROOF PLAN", a.Result.DrawingType)
		assert.JSONEq(t, `{"drawing_type": "ROOF PLAN"}`, string(a.Raw))
	})

	t.Run("loose types", func(t *testing.T) {
		a := ParseVisionResponse(`{
			"sheet_number": 501,
			"drawing_type": "roof_plan",
			"elements": {"drains": 4, "scuppers": {"count": "2 overflow"}, "rtus_curbs": null},
			"roof_areas": "Main roof",
			"square_footage": "12,500 sf",
			"confidence": "0.7"
		}`)
		require.True(t, a.IsValid())
		r := a.Result
		assert.Equal(t, "501", r.SheetNumber)
		assert.Equal(t, 4, r.Elements.Drains.Count)
		assert.Equal(t, 2, r.Elements.Scuppers.Count)
		assert.Equal(t, 0, r.Elements.RTUsCurbs.Count)
		assert.Equal(t, []string{"Main roof"}, r.RoofAreas)
		require.NotNil(t, r.SquareFootage)
		assert.Equal(t, 12, *r.SquareFootage)
		assert.Equal(t, 0.7, r.Confidence)
	})

	t.Run("wrong nested shapes are dropped", func(t *testing.T) {
		a := ParseVisionResponse(`{"drawing_type": "ROOF SECTION", "elements": [], "materials": "TPO", "details": {}}`)
		require.True(t, a.IsValid())
		assert.Equal(t, "ROOF SECTION", a.Result.DrawingType)
		assert.Equal(t, 0, a.Result.Elements.Drains.Count)
		assert.Nil(t, a.Result.Materials.Membrane)
		assert.Empty(t, a.Result.Details)
	})

	t.Run("missing drawing type cannot be promoted", func(t *testing.T) {
		a := ParseVisionResponse(`{"sheet_number": "A-501", "drawing_type": null}`)
		require.True(t, a.IsValid())
		assert.False(t, a.HasDrawingType())
	})
}
