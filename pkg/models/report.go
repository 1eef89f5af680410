package models

import (
	"fmt"
	"math"
)

// Stage1Stats holds counters collected while filtering a drawing set.
type Stage1Stats struct {
	TotalPages            int     `json:"total_pages"`
	PagesAnalyzed         int     `json:"pages_analyzed"`
	RoofRelatedPages      int     `json:"roof_related_pages"`
	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
}

// Stage1Summary is the stage1_filter section of the report.
type Stage1Summary struct {
	Stats            Stage1Stats  `json:"stats"`
	FilteredSheets   []*SheetInfo `json:"filtered_sheets"`
	FilterEfficiency string       `json:"filter_efficiency"`
}

// AnalysisEntry is one non-nil vision result in the raw analysis log.
type AnalysisEntry struct {
	Image    string          `json:"image"`
	Analysis *VisionAnalysis `json:"analysis"`
}

// ReportSummary aggregates the findings of a run.
type ReportSummary struct {
	TotalPagesAnalyzed  int    `json:"total_pages_analyzed"`
	RoofRelatedPages    int    `json:"roof_related_pages"`
	FilterEfficiency    string `json:"filter_efficiency"`
	RoofPlansFound      int    `json:"roof_plans_found"`
	RoofDetailsFound    int    `json:"roof_details_found"`
	TotalDrains         int    `json:"total_drains"`
	TotalScuppers       int    `json:"total_scuppers"`
	TotalRTUs           int    `json:"total_rtus"`
	AIAnalysesCompleted int    `json:"ai_analyses_completed"`
}

// Report is the complete output of a drawing set analysis. Its shape does not
// depend on whether vision analysis ran.
type Report struct {
	Filename       string          `json:"filename"`
	Stage1Filter   Stage1Summary   `json:"stage1_filter"`
	FilteredSheets []*SheetInfo    `json:"filtered_sheets"`
	RoofDetails    []*RoofDetail   `json:"roof_details"`
	AIAnalysis     []AnalysisEntry `json:"ai_analysis"`
	Summary        ReportSummary   `json:"summary"`
}

// FilterEfficiency is the share of analyzed pages excluded by filtering,
// formatted with one decimal and a percent sign.
func FilterEfficiency(roofRelated, analyzed int) string {
	denom := analyzed
	if denom < 1 {
		denom = 1
	}
	return fmt.Sprintf("%.1f%%", 100*(1-float64(roofRelated)/float64(denom)))
}

// RoundTo rounds f to the given number of decimal places, half away from zero.
func RoundTo(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}
