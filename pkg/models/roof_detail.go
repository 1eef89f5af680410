package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DetailType is the closed set of drawing types a RoofDetail can have.
type DetailType string

const (
	DetailTypeRoofPlan    DetailType = "Roof Plan"
	DetailTypeRoofDetail  DetailType = "Roof Detail"
	DetailTypeRoofSection DetailType = "Roof Section"
	DetailTypeOther       DetailType = "Other"
)

// ParseDetailType normalizes a drawing type reported by the vision model.
// Case, underscores and hyphens are ignored; unrecognized values map to Other.
func ParseDetailType(s string) DetailType {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("_", " ", "-", " ").Replace(norm)
	norm = strings.Join(strings.Fields(norm), " ")
	switch norm {
	case "roof plan":
		return DetailTypeRoofPlan
	case "roof detail", "roof details":
		return DetailTypeRoofDetail
	case "roof section", "roof sections":
		return DetailTypeRoofSection
	default:
		return DetailTypeOther
	}
}

// UnmarshalJSON normalizes through ParseDetailType.
func (d *DetailType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("detail type: %w", err)
	}
	*d = ParseDetailType(s)
	return nil
}

// RoofDetail is the canonical roofing extraction for one analyzed page.
type RoofDetail struct {
	SheetNumber  string     `json:"sheet_number"`
	PageNumber   int        `json:"page_number"`
	DetailType   DetailType `json:"detail_type"`
	DetailNumber string     `json:"detail_number"`
	Title        string     `json:"title"`
	Scale        string     `json:"scale"`

	Drains       int `json:"drains"`
	Scuppers     int `json:"scuppers"`
	RTUs         int `json:"rtus"`
	Penetrations int `json:"penetrations"`
	Skylights    int `json:"skylights"`
	Hatches      int `json:"hatches"`

	RoofAreaName  string `json:"roof_area_name"`
	SquareFootage *int   `json:"square_footage"`

	MembraneType   string `json:"membrane_type"`
	InsulationType string `json:"insulation_type"`
	CoverBoard     string `json:"cover_board"`
	VaporBarrier   string `json:"vapor_barrier"`

	DetailReferences []string `json:"detail_references"`
	SpecReferences   []string `json:"spec_references"`

	AIDescription string  `json:"ai_description"`
	AIConfidence  float64 `json:"ai_confidence"`
}

// NewRoofDetail flattens a validated vision result into a RoofDetail.
// Counts are clamped to be non-negative and confidence to [0,1].
func NewRoofDetail(result *VisionResult, pageNumber int) *RoofDetail {
	d := &RoofDetail{
		SheetNumber:      strings.TrimSpace(result.SheetNumber),
		PageNumber:       pageNumber,
		DetailType:       ParseDetailType(result.DrawingType),
		Title:            strings.TrimSpace(result.DrawingTitle),
		Drains:           nonNegative(result.Elements.Drains.Count),
		Scuppers:         nonNegative(result.Elements.Scuppers.Count),
		RTUs:             nonNegative(result.Elements.RTUsCurbs.Count),
		Penetrations:     nonNegative(result.Elements.Penetrations.Count),
		Skylights:        nonNegative(result.Elements.Skylights.Count),
		Hatches:          nonNegative(result.Elements.Hatches.Count),
		RoofAreaName:     strings.Join(nonEmpty(result.RoofAreas), ", "),
		MembraneType:     deref(result.Materials.Membrane),
		InsulationType:   deref(result.Materials.Insulation),
		CoverBoard:       deref(result.Materials.CoverBoard),
		VaporBarrier:     deref(result.Materials.VaporBarrier),
		DetailReferences: nonEmpty(result.References.OtherDetails),
		SpecReferences:   nonEmpty(result.References.SpecSections),
		AIDescription:    result.Notes,
		AIConfidence:     clampUnit(result.Confidence),
	}
	if len(result.Details) > 0 {
		d.DetailNumber = result.Details[0].DetailNumber
		d.Scale = result.Details[0].Scale
		if d.Title == "" {
			d.Title = result.Details[0].Title
		}
	}
	if result.SquareFootage != nil && *result.SquareFootage >= 0 {
		sf := *result.SquareFootage
		d.SquareFootage = &sf
	}
	return d
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func clampUnit(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// nonEmpty trims entries and drops blanks. Always returns a non-nil slice.
func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
