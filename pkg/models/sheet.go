// Package models contains domain types for ekaya-roofscan.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ============================================================================
// Sheet Categories
// ============================================================================

// SheetCategory is the AIA discipline of a drawing sheet.
type SheetCategory int

const (
	CategoryUnknown SheetCategory = iota
	CategoryGeneral
	CategoryCivil
	CategoryLandscape
	CategoryStructural
	CategoryArchitectural
	CategoryInteriors
	CategoryEquipment
	CategoryFireProtection
	CategoryPlumbing
	CategoryMechanical
	CategoryElectrical
)

type categoryInfo struct {
	code string
	name string
}

var categoryTable = map[SheetCategory]categoryInfo{
	CategoryUnknown:        {"?", "Unknown"},
	CategoryGeneral:        {"G", "General"},
	CategoryCivil:          {"C", "Civil"},
	CategoryLandscape:      {"L", "Landscape"},
	CategoryStructural:     {"S", "Structural"},
	CategoryArchitectural:  {"A", "Architectural"},
	CategoryInteriors:      {"I", "Interiors"},
	CategoryEquipment:      {"Q", "Equipment"},
	CategoryFireProtection: {"F", "Fire Protection"},
	CategoryPlumbing:       {"P", "Plumbing"},
	CategoryMechanical:     {"M", "Mechanical"},
	CategoryElectrical:     {"E", "Electrical"},
}

// String returns the display name of the category.
func (c SheetCategory) String() string {
	if info, ok := categoryTable[c]; ok {
		return info.name
	}
	return categoryTable[CategoryUnknown].name
}

// Code returns the single-letter AIA discipline designator ("?" for unknown).
func (c SheetCategory) Code() string {
	if info, ok := categoryTable[c]; ok {
		return info.code
	}
	return categoryTable[CategoryUnknown].code
}

// ParseSheetCategory accepts either the letter code or the display name.
func ParseSheetCategory(s string) (SheetCategory, bool) {
	s = strings.TrimSpace(s)
	for cat, info := range categoryTable {
		if strings.EqualFold(s, info.code) || strings.EqualFold(s, info.name) {
			return cat, true
		}
	}
	return CategoryUnknown, false
}

// CategoryFromSheetNumber classifies a sheet by the first letter of its number.
// Placeholder numbers produced for unidentifiable pages are Unknown.
func CategoryFromSheetNumber(sheetNumber string) SheetCategory {
	if sheetNumber == "" || IsPlaceholderSheetNumber(sheetNumber) {
		return CategoryUnknown
	}
	prefix := strings.ToUpper(sheetNumber[:1])
	if prefix == "?" {
		return CategoryUnknown
	}
	for cat, info := range categoryTable {
		if info.code == prefix {
			return cat
		}
	}
	return CategoryUnknown
}

// MarshalJSON encodes the category as its letter code.
func (c SheetCategory) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Code())
}

// UnmarshalJSON accepts the letter code or the display name.
func (c *SheetCategory) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("sheet category: %w", err)
	}
	cat, ok := ParseSheetCategory(s)
	if !ok {
		return fmt.Errorf("unknown sheet category %q", s)
	}
	*c = cat
	return nil
}

// ============================================================================
// Sheet Info
// ============================================================================

const (
	placeholderPrefix = "PAGE-"
	textPreviewLength = 500
)

// PlaceholderSheetNumber is used when no sheet number can be recovered from a page.
func PlaceholderSheetNumber(pageNumber int) string {
	return fmt.Sprintf("%s%d", placeholderPrefix, pageNumber)
}

// IsPlaceholderSheetNumber reports whether s was produced by PlaceholderSheetNumber.
func IsPlaceholderSheetNumber(s string) bool {
	rest, ok := strings.CutPrefix(s, placeholderPrefix)
	if !ok || rest == "" {
		return false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// SheetInfo describes one physical page examined during filtering.
// The roof-related flag is derived from the score and the threshold in force
// when the sheet was created and cannot be set independently.
type SheetInfo struct {
	PageNumber         int
	SheetNumber        string
	SheetTitle         string
	Category           SheetCategory
	RoofRelevanceScore float64
	RelevanceReasons   []string
	ExtractedText      string
	TextPreview        string
	AIAnalysis         *VisionAnalysis

	isRoofRelated bool
}

// NewSheetInfo builds a scored sheet. isRoofRelated = score >= threshold.
func NewSheetInfo(
	pageNumber int,
	sheetNumber, sheetTitle string,
	category SheetCategory,
	score float64,
	reasons []string,
	text string,
	threshold float64,
) *SheetInfo {
	if sheetNumber == "" {
		sheetNumber = PlaceholderSheetNumber(pageNumber)
	}
	if reasons == nil {
		reasons = []string{}
	}
	return &SheetInfo{
		PageNumber:         pageNumber,
		SheetNumber:        sheetNumber,
		SheetTitle:         sheetTitle,
		Category:           category,
		RoofRelevanceScore: score,
		RelevanceReasons:   reasons,
		ExtractedText:      text,
		TextPreview:        truncateRunes(text, textPreviewLength),
		isRoofRelated:      score >= threshold,
	}
}

// NewDegradedSheetInfo stands in for a page whose text could not be decoded.
func NewDegradedSheetInfo(pageNumber int) *SheetInfo {
	return &SheetInfo{
		PageNumber:       pageNumber,
		SheetNumber:      PlaceholderSheetNumber(pageNumber),
		Category:         CategoryUnknown,
		RelevanceReasons: []string{},
	}
}

// IsRoofRelated reports whether the sheet passed the relevance threshold.
func (s *SheetInfo) IsRoofRelated() bool {
	return s.isRoofRelated
}

// AttachAnalysis links a vision analysis to the sheet. Score and category are unchanged.
func (s *SheetInfo) AttachAnalysis(a *VisionAnalysis) {
	s.AIAnalysis = a
}

type sheetInfoJSON struct {
	PageNumber         int             `json:"page_number"`
	SheetNumber        string          `json:"sheet_number"`
	SheetTitle         string          `json:"sheet_title"`
	Category           SheetCategory   `json:"category"`
	IsRoofRelated      bool            `json:"is_roof_related"`
	RoofRelevanceScore float64         `json:"roof_relevance_score"`
	RelevanceReasons   []string        `json:"relevance_reasons"`
	ExtractedText      string          `json:"extracted_text"`
	TextPreview        string          `json:"text_preview"`
	AIAnalysis         *VisionAnalysis `json:"ai_analysis"`
}

// MarshalJSON includes the derived is_roof_related flag.
func (s *SheetInfo) MarshalJSON() ([]byte, error) {
	reasons := s.RelevanceReasons
	if reasons == nil {
		reasons = []string{}
	}
	return json.Marshal(sheetInfoJSON{
		PageNumber:         s.PageNumber,
		SheetNumber:        s.SheetNumber,
		SheetTitle:         s.SheetTitle,
		Category:           s.Category,
		IsRoofRelated:      s.isRoofRelated,
		RoofRelevanceScore: s.RoofRelevanceScore,
		RelevanceReasons:   reasons,
		ExtractedText:      s.ExtractedText,
		TextPreview:        s.TextPreview,
		AIAnalysis:         s.AIAnalysis,
	})
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
