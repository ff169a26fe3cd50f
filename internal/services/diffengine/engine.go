// Package diffengine aligns the sections of two filings and produces
// per-section change records with materiality scores and summaries.
package diffengine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wofare/edgarwatch/internal/interfaces"
	"github.com/wofare/edgarwatch/internal/models"
	"github.com/wofare/edgarwatch/internal/services/materiality"
	"github.com/wofare/edgarwatch/internal/services/sections"
)

// Engine implements interfaces.DiffEngine. CompareFilings is a pure function
// of the two filings' raw content and form type: identical inputs produce
// identical outputs, including ordering.
type Engine struct {
	extractor *sections.Extractor
	analyzer  *materiality.Analyzer
}

// NewEngine creates a diff engine with the canonical section table and
// default materiality weights.
func NewEngine() *Engine {
	return &Engine{
		extractor: sections.NewExtractor(),
		analyzer:  materiality.NewAnalyzer(),
	}
}

// NewEngineWith creates a diff engine with custom collaborators.
func NewEngineWith(extractor *sections.Extractor, analyzer *materiality.Analyzer) *Engine {
	return &Engine{extractor: extractor, analyzer: analyzer}
}

// ExtractSections exposes section extraction for persistence alongside diffs.
func (e *Engine) ExtractSections(filing *models.Filing) []models.Section {
	return e.extractor.Extract(filing.RawContent, filing.FormType)
}

// CompareFilings compares a filing against its predecessor. previous may be
// nil (first filing): the comparison then carries section totals but no diffs.
func (e *Engine) CompareFilings(previous, current *models.Filing) (*models.Comparison, error) {
	if current == nil {
		return nil, &models.ValidationError{Field: "current", Reason: "filing is required"}
	}

	currentSections := e.extractor.Extract(current.RawContent, current.FormType)

	comparison := &models.Comparison{
		TotalSections: len(currentSections),
	}

	if previous == nil {
		comparison.ImpactAssessment = impactLabel(0)
		return comparison, nil
	}

	previousSections := e.extractor.Extract(previous.RawContent, previous.FormType)

	prior := indexSections(previousSections)
	seen := make(map[string]bool, len(previousSections))
	counts := make(map[string]int)

	// Current sections first, in document order.
	for _, cur := range currentSections {
		key := sectionKey(cur, counts)
		prev, ok := prior[key]
		if ok {
			seen[key] = true
		}

		switch {
		case ok && prev.Content == cur.Content:
			continue // UNCHANGED sections produce no diff
		case ok:
			e.appendComparison(comparison, models.ChangeModification, &prev, &cur)
		default:
			e.appendComparison(comparison, models.ChangeAddition, nil, &cur)
		}
	}

	// Prior-only sections are emitted after current sections, in prior order.
	priorCounts := make(map[string]int)
	for _, prev := range previousSections {
		key := sectionKey(prev, priorCounts)
		if !seen[key] {
			e.appendComparison(comparison, models.ChangeDeletion, &prev, nil)
		}
	}

	e.aggregate(comparison)
	return comparison, nil
}

// indexSections keys prior sections by canonical type with an occurrence
// counter, so repeated tags (8-K triggering events, heuristic forms) align
// positionally.
func indexSections(secs []models.Section) map[string]models.Section {
	index := make(map[string]models.Section, len(secs))
	counts := make(map[string]int)
	for _, s := range secs {
		index[sectionKey(s, counts)] = s
	}
	return index
}

func sectionKey(s models.Section, counts map[string]int) string {
	n := counts[s.Type]
	counts[s.Type] = n + 1
	if n == 0 {
		return s.Type
	}
	return fmt.Sprintf("%s#%d", s.Type, n)
}

func (e *Engine) appendComparison(comparison *models.Comparison, changeType string, prev, cur *models.Section) {
	var oldContent, newContent, section string
	var line int

	if prev != nil {
		oldContent = prev.Content
		section = prev.Type
		line = prev.LineStart
	}
	if cur != nil {
		newContent = cur.Content
		section = cur.Type
		line = cur.LineStart
	}

	result := e.analyzer.Analyze(oldContent, newContent, changeType)

	var hunks []models.Change
	if changeType == models.ChangeModification {
		hunks = wordDiff(oldContent, newContent)
	}

	diff := models.Diff{
		Section:          section,
		ChangeType:       changeType,
		Summary:          e.sectionSummary(section, changeType, result, hunks),
		Impact:           result.Significance,
		MaterialityScore: result.Score,
		BeforeText:       oldContent,
		AfterText:        newContent,
		LineNumber:       line,
	}

	comparison.Sections = append(comparison.Sections, models.SectionComparison{
		Diff:    diff,
		Changes: hunks,
	})
}

// sectionSummary composes a short human string: change counts by
// significance plus up to three matched keywords.
func (e *Engine) sectionSummary(section, changeType string, result materiality.Result, hunks []models.Change) string {
	var sb strings.Builder

	switch changeType {
	case models.ChangeAddition:
		fmt.Fprintf(&sb, "%s: new section (%s)", section, strings.ToLower(result.Significance))
	case models.ChangeDeletion:
		fmt.Fprintf(&sb, "%s: section removed (%s)", section, strings.ToLower(result.Significance))
	default:
		buckets := hunkCounts(e.analyzer, hunks)
		fmt.Fprintf(&sb, "%s: %s", section, buckets)
	}

	if len(result.Keywords) > 0 {
		kws := result.Keywords
		if len(kws) > 3 {
			kws = kws[:3]
		}
		fmt.Fprintf(&sb, "; keywords: %s", strings.Join(kws, ", "))
	}

	return sb.String()
}

// hunkCounts buckets modification hunks by significance and renders counts.
func hunkCounts(analyzer *materiality.Analyzer, hunks []models.Change) string {
	counts := map[string]int{}
	for _, h := range hunks {
		r := analyzer.Analyze(h.OldText, h.NewText, models.ChangeModification)
		counts[r.Significance]++
	}

	var parts []string
	for _, sig := range []string{models.SignificanceHigh, models.SignificanceMedium, models.SignificanceLow} {
		if counts[sig] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[sig], strings.ToLower(sig)))
		}
	}
	if len(parts) == 0 {
		return "modified"
	}
	return strings.Join(parts, ", ") + " change(s)"
}

// aggregate fills the comparison's summary counters from its section diffs.
func (e *Engine) aggregate(c *models.Comparison) {
	var totalScore float64

	for _, sc := range c.Sections {
		switch sc.Diff.ChangeType {
		case models.ChangeModification:
			c.ChangedSections++
		case models.ChangeAddition:
			c.AddedSections++
		case models.ChangeDeletion:
			c.RemovedSections++
		}
		if sc.Diff.IsMaterial() {
			c.MaterialChanges++
		}
		totalScore += sc.Diff.MaterialityScore
	}

	if len(c.Sections) > 0 {
		c.OverallMaterialityScore = totalScore / float64(len(c.Sections))
	}
	c.ImpactAssessment = impactLabel(c.OverallMaterialityScore)

	// Top-5 section summaries by score, threshold 0.6. Stable sort keeps
	// document order among equal scores.
	ranked := make([]models.SectionComparison, len(c.Sections))
	copy(ranked, c.Sections)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Diff.MaterialityScore > ranked[j].Diff.MaterialityScore
	})
	for _, sc := range ranked {
		if sc.Diff.MaterialityScore < 0.6 || len(c.KeyChanges) >= 5 {
			break
		}
		c.KeyChanges = append(c.KeyChanges, sc.Diff.Summary)
	}
}

func impactLabel(overall float64) string {
	switch {
	case overall >= 0.7:
		return "High"
	case overall >= 0.4:
		return "Medium"
	default:
		return "Low"
	}
}

// Ensure Engine implements DiffEngine
var _ interfaces.DiffEngine = (*Engine)(nil)
