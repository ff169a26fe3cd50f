// Package materiality scores how significant a section-level change is.
// The score is advisory: keyword banks, numeric-change detection, change
// kind, and content length — no legal or financial interpretation.
package materiality

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/wofare/edgarwatch/internal/models"
)

// Keyword banks by impact bucket.
var (
	HighImpactKeywords = []string{
		"material adverse", "significantly", "substantially", "materially",
		"acquisition", "merger", "bankruptcy", "restructuring", "litigation",
		"impairment", "discontinued", "segment", "divest", "spin-off",
		"going concern", "default", "covenant", "restatement",
	}
	MediumImpactKeywords = []string{
		"change", "modify", "update", "revise", "amend", "new", "increased",
		"decreased", "investment", "contract", "agreement", "policy",
		"estimate", "outlook", "guidance", "facility", "debt",
	}
	LowImpactKeywords = []string{
		"additional", "disclosure", "note", "footnote", "reference",
		"see also", "updated", "clarification", "formatting",
	}
)

var numericPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$[0-9,]+`),
	regexp.MustCompile(`[0-9]+%`),
	regexp.MustCompile(`[0-9]+\.[0-9]+`),
}

// Weights parameterizes the scoring rules. Defaults match the documented
// heuristics; they are not tuned constants.
type Weights struct {
	BaseAddition     float64
	BaseDeletion     float64
	BaseModification float64

	HighKeyword   float64
	MediumKeyword float64
	LowKeyword    float64

	LengthBonusOver1000 float64
	LengthBonusOver5000 float64
	NumericSignal       float64
}

// DefaultWeights returns the standard scoring weights.
func DefaultWeights() Weights {
	return Weights{
		BaseAddition:        0.6,
		BaseDeletion:        0.7,
		BaseModification:    0.5,
		HighKeyword:         0.3,
		MediumKeyword:       0.2,
		LowKeyword:          0.1,
		LengthBonusOver1000: 0.1,
		LengthBonusOver5000: 0.1,
		NumericSignal:       0.2,
	}
}

// Result is the outcome of scoring one change.
type Result struct {
	Score        float64  // [0,1], two decimals
	Significance string   // HIGH / MEDIUM / LOW
	Keywords     []string // matched keywords, capped at 10
	Reasoning    string
}

const maxReportedKeywords = 10

// Analyzer scores changes with a fixed weight set.
type Analyzer struct {
	weights Weights
}

// NewAnalyzer returns an analyzer with the default weights.
func NewAnalyzer() *Analyzer {
	return &Analyzer{weights: DefaultWeights()}
}

// NewAnalyzerWithWeights returns an analyzer with custom weights.
func NewAnalyzerWithWeights(w Weights) *Analyzer {
	return &Analyzer{weights: w}
}

// Analyze scores a change. The keyword and length rules read the non-empty
// content side: new content when present, else old content.
func (a *Analyzer) Analyze(oldContent, newContent, changeType string) Result {
	var score float64
	var reasons []string

	switch changeType {
	case models.ChangeAddition:
		score = a.weights.BaseAddition
	case models.ChangeDeletion:
		score = a.weights.BaseDeletion
	case models.ChangeModification:
		score = a.weights.BaseModification
	case models.ChangeUnchanged:
		return Result{Score: 0, Significance: models.SignificanceLow, Reasoning: "unchanged"}
	}
	reasons = append(reasons, fmt.Sprintf("%s base %.1f", strings.ToLower(changeType), score))

	content := newContent
	if content == "" {
		content = oldContent
	}
	lower := strings.ToLower(content)

	var matched []string
	score, matched = a.scanKeywords(lower, score, &reasons)

	if score < 1.0 {
		if n := len(content); n > 1000 {
			score += a.weights.LengthBonusOver1000
			if n > 5000 {
				score += a.weights.LengthBonusOver5000
			}
			reasons = append(reasons, fmt.Sprintf("length %d", n))
		}

		if hasNumericSignal(content) {
			score += a.weights.NumericSignal
			reasons = append(reasons, "numeric change detected")
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	score = math.Round(score*100) / 100

	return Result{
		Score:        score,
		Significance: Significance(score),
		Keywords:     matched,
		Reasoning:    strings.Join(reasons, "; "),
	}
}

// scanKeywords adds bucket weights for each distinct matched keyword,
// short-circuiting once the running total reaches 1.0.
func (a *Analyzer) scanKeywords(lower string, score float64, reasons *[]string) (float64, []string) {
	var matched []string

	buckets := []struct {
		words  []string
		weight float64
		label  string
	}{
		{HighImpactKeywords, a.weights.HighKeyword, "high"},
		{MediumImpactKeywords, a.weights.MediumKeyword, "medium"},
		{LowImpactKeywords, a.weights.LowKeyword, "low"},
	}

	for _, bucket := range buckets {
		hits := 0
		for _, kw := range bucket.words {
			if score >= 1.0 {
				break
			}
			if strings.Contains(lower, kw) {
				score += bucket.weight
				hits++
				if len(matched) < maxReportedKeywords {
					matched = append(matched, kw)
				}
			}
		}
		if hits > 0 {
			*reasons = append(*reasons, fmt.Sprintf("%d %s-impact keyword(s)", hits, bucket.label))
		}
		if score >= 1.0 {
			break
		}
	}

	return score, matched
}

func hasNumericSignal(content string) bool {
	for _, p := range numericPatterns {
		if p.MatchString(content) {
			return true
		}
	}
	return false
}

// Significance buckets a score for human display.
func Significance(score float64) string {
	switch {
	case score >= 0.7:
		return models.SignificanceHigh
	case score >= 0.4:
		return models.SignificanceMedium
	default:
		return models.SignificanceLow
	}
}
