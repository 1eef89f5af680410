package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDetailType(t *testing.T) {
	tests := map[string]DetailType{
		"ROOF PLAN":     DetailTypeRoofPlan,
		"Roof Plan":     DetailTypeRoofPlan,
		"roof_plan":     DetailTypeRoofPlan,
		" roof-plan ":   DetailTypeRoofPlan,
		"ROOF DETAIL":   DetailTypeRoofDetail,
		"roof details":  DetailTypeRoofDetail,
		"ROOF SECTION":  DetailTypeRoofSection,
		"OTHER":         DetailTypeOther,
		"FLOOR PLAN":    DetailTypeOther,
		"":              DetailTypeOther,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseDetailType(in), "input %q", in)
	}
}

func TestNewRoofDetail_MapsNestedFields(t *testing.T) {
	membrane := "60 mil TPO"
	sf := 12000
	result := &VisionResult{
		SheetNumber:  "A-501",
		DrawingTitle: "ROOF PLAN",
		DrawingType:  "ROOF PLAN",
		Elements: VisionElements{
			Drains:       ElementCount{Count: 4},
			Scuppers:     ElementCount{Count: 2},
			RTUsCurbs:    ElementCount{Count: 3},
			Skylights:    ElementCount{Count: 1},
			Hatches:      ElementCount{Count: 1},
			Penetrations: ElementCount{Count: -2},
		},
		Materials:     VisionMaterials{Membrane: &membrane},
		Details:       []VisionDetail{{DetailNumber: "5", Scale: "1/8\" = 1'-0\""}},
		References:    VisionReferences{SpecSections: []string{"07 54 23", " "}},
		RoofAreas:     []string{"Area A", "Area B"},
		Notes:         "Main roof",
		Confidence:    1.4,
		SquareFootage: &sf,
	}

	d := NewRoofDetail(result, 12)

	assert.Equal(t, "A-501", d.SheetNumber)
	assert.Equal(t, 12, d.PageNumber)
	assert.Equal(t, DetailTypeRoofPlan, d.DetailType)
	assert.Equal(t, 4, d.Drains)
	assert.Equal(t, 2, d.Scuppers)
	assert.Equal(t, 3, d.RTUs)
	assert.Equal(t, 0, d.Penetrations)
	assert.Equal(t, "60 mil TPO", d.MembraneType)
	assert.Equal(t, "", d.InsulationType)
	assert.Equal(t, "5", d.DetailNumber)
	assert.Equal(t, []string{"07 54 23"}, d.SpecReferences)
	assert.Equal(t, []string{}, d.DetailReferences)
	assert.Equal(t, "Area A, Area B", d.RoofAreaName)
	assert.Equal(t, 1.0, d.AIConfidence)
	require.NotNil(t, d.SquareFootage)
	assert.Equal(t, 12000, *d.SquareFootage)
}

func TestNewRoofDetail_EmptyResultDefaults(t *testing.T) {
	d := NewRoofDetail(&VisionResult{DrawingType: "ROOF DETAIL"}, 0)

	assert.Equal(t, DetailTypeRoofDetail, d.DetailType)
	assert.Zero(t, d.Drains)
	assert.Nil(t, d.SquareFootage)

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"spec_references":[]`)
	assert.Contains(t, string(data), `"detail_type":"Roof Detail"`)
}

func TestVisionAnalysis_Variants(t *testing.T) {
	var none *VisionAnalysis
	assert.False(t, none.IsValid())
	assert.False(t, none.HasDrawingType())

	raw := NewRawTextAnalysis("no json here")
	assert.False(t, raw.HasDrawingType())
	data, err := json.Marshal(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `{"raw_response":"no json here"}`, string(data))

	obj := json.RawMessage(`{"drawing_type":"ROOF PLAN","extra":true}`)
	valid := NewValidAnalysis(VisionResult{DrawingType: "ROOF PLAN"}, obj)
	assert.True(t, valid.HasDrawingType())
	data, err = json.Marshal(valid)
	require.NoError(t, err)
	assert.JSONEq(t, string(obj), string(data))

	noType := NewValidAnalysis(VisionResult{}, json.RawMessage(`{}`))
	assert.True(t, noType.IsValid())
	assert.False(t, noType.HasDrawingType())
}
