// Package scoring rates how likely a drawing sheet is to carry roofing information.
package scoring

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-roofscan/pkg/models"
)

//go:embed default_rules.yaml
var defaultRulesYAML []byte

// Keyword is a roofing term and its weight.
type Keyword struct {
	Term   string  `yaml:"term"`
	Weight float64 `yaml:"weight"`
}

// RulesFile is the on-disk form of the scoring rules.
type RulesFile struct {
	SheetPatterns struct {
		Bonus float64  `yaml:"bonus"`
		Roof  []string `yaml:"roof"`
	} `yaml:"sheet_patterns"`

	Exclusions struct {
		Penalty  float64  `yaml:"penalty"`
		Patterns []string `yaml:"patterns"`
	} `yaml:"exclusions"`

	Title struct {
		Bonus float64  `yaml:"bonus"`
		Terms []string `yaml:"terms"`
	} `yaml:"title"`

	Keywords struct {
		Factor     float64   `yaml:"factor"`
		Cap        float64   `yaml:"cap"`
		MaxReasons int       `yaml:"max_reasons"`
		Terms      []Keyword `yaml:"terms"`
	} `yaml:"keywords"`

	CategoryBonus map[string]float64 `yaml:"category_bonus"`
}

// Rules are the compiled scoring rules. Build them with DefaultRules,
// LoadRules or ParseRules.
type Rules struct {
	roofPatterns    []*regexp.Regexp
	roofBonus       float64
	excludePatterns []*regexp.Regexp
	excludePenalty  float64
	titleTerms      []string
	titleBonus      float64
	keywords        []Keyword
	keywordFactor   float64
	keywordCap      float64
	maxReasonTerms  int
	categoryBonus   map[models.SheetCategory]float64
}

// DefaultRules returns the built-in rules.
func DefaultRules() (*Rules, error) {
	rules, err := ParseRules(defaultRulesYAML)
	if err != nil {
		return nil, fmt.Errorf("default scoring rules: %w", err)
	}
	return rules, nil
}

// LoadRules reads rules from a YAML file. An empty path returns DefaultRules.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scoring rules: %w", err)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("scoring rules %s: %w", path, err)
	}
	return rules, nil
}

// ParseRules decodes and compiles YAML rules. Invalid patterns or unknown
// categories are errors.
func ParseRules(data []byte) (*Rules, error) {
	var file RulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return file.Compile()
}

// Compile validates the file and compiles its patterns.
func (f *RulesFile) Compile() (*Rules, error) {
	roof, err := compilePatterns(f.SheetPatterns.Roof)
	if err != nil {
		return nil, fmt.Errorf("sheet_patterns.roof: %w", err)
	}
	exclude, err := compilePatterns(f.Exclusions.Patterns)
	if err != nil {
		return nil, fmt.Errorf("exclusions.patterns: %w", err)
	}

	titleTerms := make([]string, 0, len(f.Title.Terms))
	for _, term := range f.Title.Terms {
		if term = strings.ToLower(strings.TrimSpace(term)); term != "" {
			titleTerms = append(titleTerms, term)
		}
	}

	keywords := make([]Keyword, 0, len(f.Keywords.Terms))
	for _, kw := range f.Keywords.Terms {
		term := strings.ToLower(strings.TrimSpace(kw.Term))
		if term == "" {
			return nil, fmt.Errorf("keywords.terms: empty term")
		}
		if kw.Weight < 0 {
			return nil, fmt.Errorf("keywords.terms: negative weight for %q", term)
		}
		keywords = append(keywords, Keyword{Term: term, Weight: kw.Weight})
	}

	bonus := make(map[models.SheetCategory]float64, len(f.CategoryBonus))
	for name, value := range f.CategoryBonus {
		cat, ok := models.ParseSheetCategory(name)
		if !ok {
			return nil, fmt.Errorf("category_bonus: unknown category %q", name)
		}
		bonus[cat] = value
	}

	maxReasons := f.Keywords.MaxReasons
	if maxReasons <= 0 {
		maxReasons = 5
	}

	return &Rules{
		roofPatterns:    roof,
		roofBonus:       f.SheetPatterns.Bonus,
		excludePatterns: exclude,
		excludePenalty:  f.Exclusions.Penalty,
		titleTerms:      titleTerms,
		titleBonus:      f.Title.Bonus,
		keywords:        keywords,
		keywordFactor:   f.Keywords.Factor,
		keywordCap:      f.Keywords.Cap,
		maxReasonTerms:  maxReasons,
		categoryBonus:   bonus,
	}, nil
}

// CategoryBonus returns the priority bonus for a category (0 when none).
func (r *Rules) CategoryBonus(c models.SheetCategory) float64 {
	return r.categoryBonus[c]
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}
