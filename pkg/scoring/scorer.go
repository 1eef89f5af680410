package scoring

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-roofscan/pkg/models"
)

// DefaultThreshold is the minimum score for a sheet to count as roof related.
const DefaultThreshold = 0.3

// Scorer computes roof relevance scores. It is safe for concurrent use.
type Scorer struct {
	rules *Rules
}

// NewScorer creates a scorer. Nil rules use DefaultRules.
func NewScorer(rules *Rules) (*Scorer, error) {
	if rules == nil {
		var err error
		rules, err = DefaultRules()
		if err != nil {
			return nil, err
		}
	}
	return &Scorer{rules: rules}, nil
}

// Score rates a sheet in [0, 1], rounded to two decimals, and explains the
// contributing signals. lowerText must already be lowercased.
//
// Signals add up on a running total: a roof sheet-number pattern, an
// exclusion pattern penalty, a roof title, keyword hits (capped) and the
// category bonus. The total is clamped before rounding.
func (s *Scorer) Score(sheetNumber, title, lowerText string, category models.SheetCategory) (float64, []string) {
	r := s.rules
	score := 0.0
	reasons := []string{}

	for _, re := range r.roofPatterns {
		if re.MatchString(sheetNumber) {
			score += r.roofBonus
			reasons = append(reasons, fmt.Sprintf("Sheet number matches roof pattern: %s", sheetNumber))
			break
		}
	}

	for _, re := range r.excludePatterns {
		if re.MatchString(sheetNumber) {
			score -= r.excludePenalty
			break
		}
	}

	lowerTitle := strings.ToLower(title)
	for _, term := range r.titleTerms {
		if strings.Contains(lowerTitle, term) {
			score += r.titleBonus
			reasons = append(reasons, fmt.Sprintf("Title contains roof reference: %s", title))
			break
		}
	}

	keywordScore := 0.0
	var matched []string
	for _, kw := range r.keywords {
		if strings.Contains(lowerText, kw.Term) {
			keywordScore += kw.Weight * r.keywordFactor
			matched = append(matched, kw.Term)
		}
	}
	if keywordScore > 0 {
		score += min(keywordScore, r.keywordCap)
		if len(matched) > r.maxReasonTerms {
			matched = matched[:r.maxReasonTerms]
		}
		reasons = append(reasons, fmt.Sprintf("Keywords found: %s", strings.Join(matched, ", ")))
	}

	score += r.CategoryBonus(category)

	return models.RoundTo(max(0, min(1, score)), 2), reasons
}

// IsRoofRelated applies the inclusive threshold comparison.
func IsRoofRelated(score, threshold float64) bool {
	return score >= threshold
}
