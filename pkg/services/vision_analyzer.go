package services

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-roofscan/pkg/jsonutil"
	"github.com/ekaya-inc/ekaya-roofscan/pkg/llm"
	"github.com/ekaya-inc/ekaya-roofscan/pkg/logging"
	"github.com/ekaya-inc/ekaya-roofscan/pkg/models"
	"github.com/ekaya-inc/ekaya-roofscan/pkg/retry"
)

// RoofAnalysisPrompt asks the vision model for the roofing contents of one
// drawing sheet in a fixed JSON shape.
const RoofAnalysisPrompt = `You are an expert architectural drawing analyst specializing in commercial roofing.

Analyze this architectural drawing page and extract ALL roofing-related information.

For ROOF PLANS, identify and count:
- Roof drains (RD symbols, usually circles with crosshairs)
- Scuppers (rectangular openings in parapets)
- Overflow drains/scuppers
- RTUs/Mechanical curbs (rectangles with equipment labels)
- Skylights
- Roof hatches
- Pipe penetrations
- Any other roof penetrations

For ROOF DETAILS, identify:
- Detail number and title
- Scale
- Materials shown (membrane type, insulation, cover board)
- Flashing types
- Edge conditions
- Attachment methods visible

Also note:
- Sheet number (from title block)
- Drawing title
- Any specification section references (like "07 52 00")
- Referenced detail numbers
- Roof areas/zones shown
- Slopes or drainage directions indicated

Return your analysis as JSON with this structure:
{
    "sheet_number": "string",
    "drawing_title": "string",
    "drawing_type": "ROOF PLAN" | "ROOF DETAIL" | "ROOF SECTION" | "OTHER",
    "elements": {
        "drains": {"count": int, "notes": "string"},
        "scuppers": {"count": int, "type": "primary|overflow|both", "notes": "string"},
        "rtus_curbs": {"count": int, "notes": "string"},
        "skylights": {"count": int, "notes": "string"},
        "hatches": {"count": int, "notes": "string"},
        "penetrations": {"count": int, "notes": "string"}
    },
    "materials": {
        "membrane": "string or null",
        "insulation": "string or null",
        "cover_board": "string or null",
        "vapor_barrier": "string or null"
    },
    "details": [
        {
            "detail_number": "string",
            "title": "string",
            "scale": "string",
            "description": "string"
        }
    ],
    "references": {
        "spec_sections": ["string"],
        "other_details": ["string"]
    },
    "roof_areas": ["string"],
    "square_footage": int or null,
    "notes": "string",
    "confidence": float between 0 and 1
}

Be thorough but only include information clearly visible in the drawing. If you cannot determine something, use null.`

var imageMediaTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// MediaTypeForPath derives an image media type from the file extension.
// Unknown extensions default to image/png.
func MediaTypeForPath(path string) string {
	if mt, ok := imageMediaTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mt
	}
	return "image/png"
}

// VisionAnalyzerConfig configures a VisionAnalyzer.
type VisionAnalyzerConfig struct {
	// MaxRetries is the number of extra attempts for transient provider
	// errors. Zero means a single attempt.
	MaxRetries int
	// RetryDelay overrides the initial backoff delay when positive.
	RetryDelay time.Duration
}

// VisionAnalyzer sends one drawing image to a vision model and validates the answer.
type VisionAnalyzer struct {
	client llm.VisionClient
	retry  *retry.Config
	logger *zap.Logger
}

// NewVisionAnalyzer creates an analyzer. A nil client is allowed; every call
// then yields no result.
func NewVisionAnalyzer(client llm.VisionClient, cfg VisionAnalyzerConfig, logger *zap.Logger) *VisionAnalyzer {
	a := &VisionAnalyzer{
		client: client,
		logger: logger.Named("vision-analyzer"),
	}
	if cfg.MaxRetries > 0 {
		a.retry = retry.WithMaxRetries(cfg.MaxRetries)
		if cfg.RetryDelay > 0 {
			a.retry.InitialDelay = cfg.RetryDelay
		}
	}
	return a
}

// AnalyzeImage analyzes the image at path. It never fails: a missing client,
// an unreadable image or a provider error yield nil, a response without a
// usable JSON object yields a RawText analysis.
func (a *VisionAnalyzer) AnalyzeImage(ctx context.Context, path string) *models.VisionAnalysis {
	if a.client == nil {
		a.logger.Error("Vision client not configured", zap.String("image", path))
		return nil
	}

	image, err := os.ReadFile(path)
	if err != nil {
		a.logger.Warn("Failed to read image", zap.String("image", path), zap.Error(err))
		return nil
	}
	mediaType := MediaTypeForPath(path)

	call := func() (string, error) {
		return a.client.AnalyzeImage(ctx, image, mediaType, RoofAnalysisPrompt)
	}

	var text string
	if a.retry != nil {
		cfg := *a.retry
		cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
			a.logger.Info("Retrying vision analysis",
				zap.String("image", filepath.Base(path)),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				logging.ErrorField(err))
		}
		text, err = retry.DoWithResultIfRetryable(ctx, &cfg, call)
	} else {
		text, err = call()
	}
	if err != nil {
		a.logger.Warn("Vision analysis failed",
			zap.String("image", filepath.Base(path)),
			zap.String("model", a.client.GetModel()),
			zap.String("error_type", string(llm.GetErrorType(err))),
			logging.ErrorField(err))
		return nil
	}

	analysis := ParseVisionResponse(text)
	if !analysis.IsValid() {
		a.logger.Warn("Could not parse JSON from vision response",
			zap.String("image", filepath.Base(path)),
			logging.ResponseField(text))
	}
	return analysis
}

// visionResponse mirrors the requested JSON shape with every leaf kept raw so
// that loosely typed answers ("4", 4, null) still decode.
type visionResponse struct {
	SheetNumber   json.RawMessage            `json:"sheet_number"`
	DrawingTitle  json.RawMessage            `json:"drawing_title"`
	DrawingType   json.RawMessage            `json:"drawing_type"`
	Elements      map[string]json.RawMessage `json:"elements"`
	Materials     map[string]json.RawMessage `json:"materials"`
	Details       json.RawMessage            `json:"details"`
	References    map[string]json.RawMessage `json:"references"`
	RoofAreas     json.RawMessage            `json:"roof_areas"`
	SquareFootage json.RawMessage            `json:"square_footage"`
	Notes         json.RawMessage            `json:"notes"`
	Confidence    json.RawMessage            `json:"confidence"`
}

// ParseVisionResponse turns a model response into a VisionAnalysis. The first
// balanced JSON object in the text is decoded leniently; when there is none
// the text is kept as a RawText analysis.
func ParseVisionResponse(text string) *models.VisionAnalysis {
	raw, err := llm.ExtractJSONObject(text)
	if err != nil {
		return models.NewRawTextAnalysis(text)
	}

	var resp visionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		// nested values of the wrong shape (e.g. "elements": [])
		resp = decodeLoosely(raw)
	}

	result := models.VisionResult{
		SheetNumber:  strings.TrimSpace(jsonutil.FlexibleStringValue(resp.SheetNumber)),
		DrawingTitle: strings.TrimSpace(jsonutil.FlexibleStringValue(resp.DrawingTitle)),
		DrawingType:  strings.TrimSpace(jsonutil.FlexibleStringValue(resp.DrawingType)),
		Elements: models.VisionElements{
			Drains:       parseElementCount(resp.Elements["drains"]),
			Scuppers:     parseElementCount(resp.Elements["scuppers"]),
			RTUsCurbs:    parseElementCount(resp.Elements["rtus_curbs"]),
			Skylights:    parseElementCount(resp.Elements["skylights"]),
			Hatches:      parseElementCount(resp.Elements["hatches"]),
			Penetrations: parseElementCount(resp.Elements["penetrations"]),
		},
		Materials: models.VisionMaterials{
			Membrane:     jsonutil.FlexibleOptionalString(resp.Materials["membrane"]),
			Insulation:   jsonutil.FlexibleOptionalString(resp.Materials["insulation"]),
			CoverBoard:   jsonutil.FlexibleOptionalString(resp.Materials["cover_board"]),
			VaporBarrier: jsonutil.FlexibleOptionalString(resp.Materials["vapor_barrier"]),
		},
		Details: parseDetails(resp.Details),
		References: models.VisionReferences{
			SpecSections: jsonutil.FlexibleStringSlice(resp.References["spec_sections"]),
			OtherDetails: jsonutil.FlexibleStringSlice(resp.References["other_details"]),
		},
		RoofAreas: jsonutil.FlexibleStringSlice(resp.RoofAreas),
		Notes:     jsonutil.FlexibleStringValue(resp.Notes),
	}
	if c, ok := jsonutil.FlexibleFloatValue(resp.Confidence); ok {
		result.Confidence = c
	}
	if sf, ok := jsonutil.FlexibleIntValue(resp.SquareFootage); ok {
		result.SquareFootage = &sf
	}

	return models.NewValidAnalysis(result, raw)
}

// decodeLoosely decodes field by field, dropping the ones whose shape is wrong.
func decodeLoosely(raw json.RawMessage) visionResponse {
	var fields map[string]json.RawMessage
	_ = json.Unmarshal(raw, &fields)

	objectField := func(name string) map[string]json.RawMessage {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(fields[name], &m); err != nil {
			return nil
		}
		return m
	}

	return visionResponse{
		SheetNumber:   fields["sheet_number"],
		DrawingTitle:  fields["drawing_title"],
		DrawingType:   fields["drawing_type"],
		Elements:      objectField("elements"),
		Materials:     objectField("materials"),
		Details:       fields["details"],
		References:    objectField("references"),
		RoofAreas:     fields["roof_areas"],
		SquareFootage: fields["square_footage"],
		Notes:         fields["notes"],
		Confidence:    fields["confidence"],
	}
}

// parseElementCount accepts {"count": n, "notes": "..."} or a bare count.
func parseElementCount(raw json.RawMessage) models.ElementCount {
	if jsonutil.IsNull(raw) {
		return models.ElementCount{}
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		n, _ := jsonutil.FlexibleIntValue(obj["count"])
		return models.ElementCount{
			Count: n,
			Notes: strings.TrimSpace(jsonutil.FlexibleStringValue(obj["notes"])),
		}
	}

	n, _ := jsonutil.FlexibleIntValue(raw)
	return models.ElementCount{Count: n}
}

func parseDetails(raw json.RawMessage) []models.VisionDetail {
	details := []models.VisionDetail{}
	if jsonutil.IsNull(raw) {
		return details
	}

	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return details
	}
	for _, item := range items {
		details = append(details, models.VisionDetail{
			DetailNumber: strings.TrimSpace(jsonutil.FlexibleStringValue(item["detail_number"])),
			Title:        strings.TrimSpace(jsonutil.FlexibleStringValue(item["title"])),
			Scale:        strings.TrimSpace(jsonutil.FlexibleStringValue(item["scale"])),
			Description:  strings.TrimSpace(jsonutil.FlexibleStringValue(item["description"])),
		})
	}
	return details
}
