package services

import (
	"path/filepath"
	"sort"

	"github.com/ekaya-inc/ekaya-roofscan/pkg/models"
	"github.com/ekaya-inc/ekaya-roofscan/pkg/pdf"
)

// AggregateResult is the Stage 2 part of a report.
type AggregateResult struct {
	RoofDetails []*models.RoofDetail
	AIAnalysis  []models.AnalysisEntry
	Summary     models.ReportSummary
}

// Aggregate folds vision results into roof details, the raw analysis log and
// the summary. Results are ordered by image path first, so the output does
// not depend on completion order. Valid analyses are attached to the filtered
// sheet of the same page.
func Aggregate(stage1 *FilterResult, results []ImageResult) AggregateResult {
	sorted := make([]ImageResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ImagePath < sorted[j].ImagePath
	})

	sheetsByPage := make(map[int]*models.SheetInfo, len(stage1.Filtered))
	for _, s := range stage1.Filtered {
		sheetsByPage[s.PageNumber] = s
	}

	out := AggregateResult{
		RoofDetails: []*models.RoofDetail{},
		AIAnalysis:  []models.AnalysisEntry{},
	}

	for _, res := range sorted {
		if res.Analysis == nil {
			continue
		}
		out.AIAnalysis = append(out.AIAnalysis, models.AnalysisEntry{
			Image:    filepath.Base(res.ImagePath),
			Analysis: res.Analysis,
		})

		page, _ := pdf.PageNumberFromImagePath(res.ImagePath)
		sheet, hasSheet := sheetsByPage[page]
		if hasSheet && res.Analysis.IsValid() {
			sheet.AttachAnalysis(res.Analysis)
		}
		if res.Analysis.HasDrawingType() {
			detail := models.NewRoofDetail(res.Analysis.Result, page)
			if detail.SheetNumber == "" && hasSheet {
				detail.SheetNumber = sheet.SheetNumber
			}
			out.RoofDetails = append(out.RoofDetails, detail)
		}
	}

	out.Summary = BuildSummary(stage1.Stats, stage1.FilterEfficiency(), out.RoofDetails, len(out.AIAnalysis))
	return out
}

// BuildSummary computes the report summary from Stage 1 stats and the roof details.
func BuildSummary(stats models.Stage1Stats, efficiency string, details []*models.RoofDetail, completed int) models.ReportSummary {
	summary := models.ReportSummary{
		TotalPagesAnalyzed:  stats.PagesAnalyzed,
		RoofRelatedPages:    stats.RoofRelatedPages,
		FilterEfficiency:    efficiency,
		AIAnalysesCompleted: completed,
	}
	for _, d := range details {
		switch d.DetailType {
		case models.DetailTypeRoofPlan:
			summary.RoofPlansFound++
		case models.DetailTypeRoofDetail:
			summary.RoofDetailsFound++
		}
		summary.TotalDrains += d.Drains
		summary.TotalScuppers += d.Scuppers
		summary.TotalRTUs += d.RTUs
	}
	return summary
}
