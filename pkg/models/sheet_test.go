package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryFromSheetNumber(t *testing.T) {
	tests := []struct {
		sheet string
		want  SheetCategory
	}{
		{"A-501", CategoryArchitectural},
		{"a5.01", CategoryArchitectural},
		{"S-201", CategoryStructural},
		{"E-101", CategoryElectrical},
		{"FP-1", CategoryFireProtection},
		{"Q-100", CategoryEquipment},
		{"X-100", CategoryUnknown},
		{"", CategoryUnknown},
		{"PAGE-12", CategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.sheet, func(t *testing.T) {
			assert.Equal(t, tt.want, CategoryFromSheetNumber(tt.sheet))
		})
	}
}

func TestSheetCategory_JSONUsesLetterCode(t *testing.T) {
	data, err := json.Marshal(CategoryFireProtection)
	require.NoError(t, err)
	assert.Equal(t, `"F"`, string(data))

	var c SheetCategory
	require.NoError(t, json.Unmarshal([]byte(`"Mechanical"`), &c))
	assert.Equal(t, CategoryMechanical, c)

	assert.Error(t, json.Unmarshal([]byte(`"Z"`), &c))
}

func TestNewSheetInfo_RoofRelatedIsDerivedFromThreshold(t *testing.T) {
	tests := []struct {
		name      string
		score     float64
		threshold float64
		want      bool
	}{
		{"above", 0.5, 0.3, true},
		{"equal", 0.3, 0.3, true},
		{"below", 0.29, 0.3, false},
		{"zero threshold", 0, 0, true},
		{"full score", 1, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSheetInfo(1, "A-501", "", CategoryArchitectural, tt.score, nil, "", tt.threshold)
			assert.Equal(t, tt.want, s.IsRoofRelated())
		})
	}
}

func TestNewSheetInfo_DefaultsAndPreview(t *testing.T) {
	text := strings.Repeat("é", 600)
	s := NewSheetInfo(7, "", "", CategoryUnknown, 0, nil, text, 0.3)

	assert.Equal(t, "PAGE-7", s.SheetNumber)
	assert.NotNil(t, s.RelevanceReasons)
	assert.Equal(t, 500, len([]rune(s.TextPreview)))
	assert.Equal(t, text, s.ExtractedText)
}

func TestNewDegradedSheetInfo(t *testing.T) {
	s := NewDegradedSheetInfo(42)

	assert.Equal(t, 42, s.PageNumber)
	assert.Equal(t, "PAGE-42", s.SheetNumber)
	assert.Equal(t, 0.0, s.RoofRelevanceScore)
	assert.False(t, s.IsRoofRelated())
	assert.True(t, IsPlaceholderSheetNumber(s.SheetNumber))
}

func TestSheetInfo_MarshalJSON(t *testing.T) {
	s := NewSheetInfo(3, "A-501", "ROOF PLAN", CategoryArchitectural, 1, []string{"r1"}, "roof", 0.3)

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, true, got["is_roof_related"])
	assert.Equal(t, "A", got["category"])
	assert.Equal(t, float64(3), got["page_number"])
	assert.Nil(t, got["ai_analysis"])
	assert.Equal(t, []any{"r1"}, got["relevance_reasons"])
}

func TestSheetInfo_AttachAnalysisKeepsScore(t *testing.T) {
	s := NewSheetInfo(3, "A-501", "", CategoryArchitectural, 0.8, nil, "", 0.3)
	s.AttachAnalysis(NewRawTextAnalysis("text"))

	assert.Equal(t, 0.8, s.RoofRelevanceScore)
	assert.Equal(t, CategoryArchitectural, s.Category)
	assert.True(t, s.IsRoofRelated())
	require.NotNil(t, s.AIAnalysis)
}

func TestFilterEfficiency(t *testing.T) {
	tests := []struct {
		roof, analyzed int
		want           string
	}{
		{0, 0, "100.0%"},
		{5, 100, "95.0%"},
		{1, 3, "66.7%"},
		{3, 3, "0.0%"},
		{2, 1500, "99.9%"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FilterEfficiency(tt.roof, tt.analyzed))
	}
}

func TestPipelineState_Transitions(t *testing.T) {
	assert.True(t, PipelineStateNotStarted.CanTransitionTo(PipelineStateFiltering))
	assert.True(t, PipelineStateFiltering.CanTransitionTo(PipelineStateError))
	assert.True(t, PipelineStateFiltering.CanTransitionTo(PipelineStateFilteredOnly))
	assert.True(t, PipelineStateExporting.CanTransitionTo(PipelineStateAnalyzing))
	assert.True(t, PipelineStateAnalyzing.CanTransitionTo(PipelineStateAggregated))

	assert.False(t, PipelineStateExporting.CanTransitionTo(PipelineStateError))
	assert.False(t, PipelineStateAnalyzing.CanTransitionTo(PipelineStateError))
	assert.False(t, PipelineStateNotStarted.CanTransitionTo(PipelineStateAnalyzing))
	assert.False(t, PipelineStateAggregated.CanTransitionTo(PipelineStateFiltering))

	assert.True(t, PipelineStateFilteredOnly.IsTerminal())
	assert.True(t, PipelineStateError.IsTerminal())
	assert.False(t, PipelineStateAnalyzing.IsTerminal())
}
