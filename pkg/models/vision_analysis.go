package models

import (
	"encoding/json"
	"strings"
)

// ElementCount is a counted roof element as reported by the vision model.
type ElementCount struct {
	Count int    `json:"count"`
	Notes string `json:"notes,omitempty"`
}

// VisionElements groups the counted roof elements.
type VisionElements struct {
	Drains       ElementCount `json:"drains"`
	Scuppers     ElementCount `json:"scuppers"`
	RTUsCurbs    ElementCount `json:"rtus_curbs"`
	Skylights    ElementCount `json:"skylights"`
	Hatches      ElementCount `json:"hatches"`
	Penetrations ElementCount `json:"penetrations"`
}

// VisionMaterials lists the roofing materials visible on the sheet. Nil means not determined.
type VisionMaterials struct {
	Membrane     *string `json:"membrane"`
	Insulation   *string `json:"insulation"`
	CoverBoard   *string `json:"cover_board"`
	VaporBarrier *string `json:"vapor_barrier"`
}

// VisionDetail is one detail callout found on the sheet.
type VisionDetail struct {
	DetailNumber string `json:"detail_number"`
	Title        string `json:"title"`
	Scale        string `json:"scale"`
	Description  string `json:"description"`
}

// VisionReferences holds cross references found on the sheet.
type VisionReferences struct {
	SpecSections []string `json:"spec_sections"`
	OtherDetails []string `json:"other_details"`
}

// VisionResult is the validated, typed form of a schema-conformant vision response.
type VisionResult struct {
	SheetNumber   string           `json:"sheet_number"`
	DrawingTitle  string           `json:"drawing_title"`
	DrawingType   string           `json:"drawing_type"`
	Elements      VisionElements   `json:"elements"`
	Materials     VisionMaterials  `json:"materials"`
	Details       []VisionDetail   `json:"details"`
	References    VisionReferences `json:"references"`
	RoofAreas     []string         `json:"roof_areas"`
	Notes         string           `json:"notes"`
	Confidence    float64          `json:"confidence"`
	SquareFootage *int             `json:"square_footage,omitempty"`
}

// AnalysisKind distinguishes the non-nil outcomes of a vision call.
// A nil *VisionAnalysis is the "no result" outcome.
type AnalysisKind int

const (
	AnalysisValid AnalysisKind = iota + 1
	AnalysisRawText
)

// VisionAnalysis is the boundary variant produced for one analyzed image:
// either a parsed result (Valid) or the unparsed response text (RawText).
type VisionAnalysis struct {
	Kind    AnalysisKind
	Result  *VisionResult
	Raw     json.RawMessage
	RawText string
}

// NewValidAnalysis wraps a parsed result together with the JSON object it came from.
func NewValidAnalysis(result VisionResult, raw json.RawMessage) *VisionAnalysis {
	return &VisionAnalysis{Kind: AnalysisValid, Result: &result, Raw: raw}
}

// NewRawTextAnalysis keeps a response that contained no usable JSON object.
func NewRawTextAnalysis(text string) *VisionAnalysis {
	return &VisionAnalysis{Kind: AnalysisRawText, RawText: text}
}

// IsValid reports whether the analysis carries a parsed result.
func (a *VisionAnalysis) IsValid() bool {
	return a != nil && a.Kind == AnalysisValid && a.Result != nil
}

// HasDrawingType reports whether the analysis can be promoted to a RoofDetail.
func (a *VisionAnalysis) HasDrawingType() bool {
	return a.IsValid() && strings.TrimSpace(a.Result.DrawingType) != ""
}

// MarshalJSON emits the original response object, or {"raw_response": ...} for raw text.
func (a *VisionAnalysis) MarshalJSON() ([]byte, error) {
	if a.Kind == AnalysisRawText {
		return json.Marshal(map[string]string{"raw_response": a.RawText})
	}
	if len(a.Raw) > 0 {
		return a.Raw, nil
	}
	if a.Result != nil {
		return json.Marshal(a.Result)
	}
	return []byte("null"), nil
}
