// Package sections splits filing text into canonical named sections.
//
// Known form types are driven by a per-form table of header patterns; the
// table is data, not code, so forms are reconfigurable without touching the
// scan algorithm. Unknown form types fall back to an uppercase-header
// heuristic with an implicit PREAMBLE.
package sections

import (
	"regexp"
	"strings"

	"github.com/wofare/edgarwatch/internal/models"
)

// HeaderPattern pairs a canonical section tag with the regex that opens it.
// Within one form, patterns are tried in declaration order; first match wins.
type HeaderPattern struct {
	Tag     string
	Name    string
	Pattern *regexp.Regexp
}

func pattern(expr string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + expr)
}

// formPatterns is the canonical section table per form type.
var formPatterns = map[string][]HeaderPattern{
	"10-K": {
		{models.SectionBusiness, "Business", pattern(`ITEM\s+1[.\s]+BUSINESS`)},
		{models.SectionRiskFactors, "Risk Factors", pattern(`ITEM\s+1A[.\s]+RISK\s+FACTORS`)},
		{models.SectionProperties, "Properties", pattern(`ITEM\s+2[.\s]+PROPERTIES`)},
		{models.SectionLegalProceedings, "Legal Proceedings", pattern(`ITEM\s+3[.\s]+LEGAL\s+PROCEEDINGS`)},
		{models.SectionSelectedFinancial, "Selected Financial Data", pattern(`ITEM\s+6[.\s]+SELECTED\s+FINANCIAL`)},
		{models.SectionMDA, "Management's Discussion and Analysis", pattern(`ITEM\s+7[.\s]+MANAGEMENT'?S\s+DISCUSSION`)},
		{models.SectionFinancialStatements, "Financial Statements", pattern(`ITEM\s+8[.\s]+FINANCIAL\s+STATEMENTS`)},
		{models.SectionControls, "Controls and Procedures", pattern(`ITEM\s+9A[.\s]+CONTROLS\s+AND\s+PROCEDURES`)},
	},
	"10-Q": {
		{models.SectionFinancialStatements, "Financial Statements", pattern(`ITEM\s+1[.\s]+FINANCIAL\s+STATEMENTS`)},
		{models.SectionMDA, "Management's Discussion and Analysis", pattern(`ITEM\s+2[.\s]+MANAGEMENT'?S\s+DISCUSSION`)},
		{models.SectionControls, "Controls and Procedures", pattern(`ITEM\s+4[.\s]+CONTROLS\s+AND\s+PROCEDURES`)},
		{models.SectionLegalProceedings, "Legal Proceedings", pattern(`ITEM\s+1[.\s]+LEGAL\s+PROCEEDINGS`)},
	},
	"8-K": {
		{models.SectionTriggeringEvents, "Triggering Events", pattern(`ITEM\s+[1-9][.\s]`)},
		{models.SectionFinancialStatements, "Financial Statements", pattern(`ITEM\s+9\.01[.\s]+FINANCIAL\s+STATEMENTS`)},
		{models.SectionExhibits, "Exhibits", pattern(`ITEM\s+9\.01[.\s]+EXHIBITS`)},
	},
}

// Extractor splits filing text into ordered section records.
type Extractor struct {
	patterns map[string][]HeaderPattern
}

// NewExtractor returns an extractor with the canonical section table.
func NewExtractor() *Extractor {
	return &Extractor{patterns: formPatterns}
}

// NewExtractorWithPatterns allows a custom table (tests, new forms).
func NewExtractorWithPatterns(patterns map[string][]HeaderPattern) *Extractor {
	return &Extractor{patterns: patterns}
}

// KnownForm reports whether the form type has a canonical section table.
func (e *Extractor) KnownForm(formType string) bool {
	_, ok := e.patterns[strings.ToUpper(formType)]
	return ok
}

// Extract splits full filing text into sections for the given form type.
// For known forms, lines before the first header are discarded; for unknown
// forms they become an implicit PREAMBLE section.
func (e *Extractor) Extract(text, formType string) []models.Section {
	lines := strings.Split(text, "\n")

	table, known := e.patterns[strings.ToUpper(formType)]
	if known {
		return e.extractKnown(lines, table)
	}
	return e.extractHeuristic(lines)
}

type openSection struct {
	tag       string
	name      string
	lineStart int
}

func (e *Extractor) extractKnown(lines []string, table []HeaderPattern) []models.Section {
	var sections []models.Section
	var open *openSection

	closeOpen := func(endLine int) {
		if open == nil {
			return
		}
		sections = append(sections, buildSection(lines, *open, endLine, len(sections)))
		open = nil
	}

	for i, line := range lines {
		matched := matchHeader(line, table)
		if matched == nil {
			continue
		}
		closeOpen(i - 1)
		open = &openSection{tag: matched.Tag, name: strings.TrimSpace(line), lineStart: i}
	}
	closeOpen(len(lines) - 1)

	return sections
}

// matchHeader returns the first table entry whose pattern matches the line,
// in declaration order.
func matchHeader(line string, table []HeaderPattern) *HeaderPattern {
	for i := range table {
		if table[i].Pattern.MatchString(line) {
			return &table[i]
		}
	}
	return nil
}

// Heuristic thresholds for unknown form types.
const (
	maxHeaderLength  = 200
	headerUpperRatio = 0.7
	bodyUpperRatio   = 0.5
	bodyMinLength    = 10
	headerLookahead  = 3
)

func (e *Extractor) extractHeuristic(lines []string) []models.Section {
	var sections []models.Section
	var open *openSection

	closeOpen := func(endLine int) {
		if open == nil {
			return
		}
		sections = append(sections, buildSection(lines, *open, endLine, len(sections)))
		open = nil
	}

	sawHeader := false
	for i, line := range lines {
		if !isHeuristicHeader(lines, i) {
			continue
		}
		if !sawHeader {
			// Everything before the first detected header is the preamble.
			if preamble := buildPreamble(lines, i); preamble != nil {
				sections = append(sections, *preamble)
			}
			sawHeader = true
		}
		closeOpen(i - 1)
		open = &openSection{tag: normalizeTag(line), name: strings.TrimSpace(line), lineStart: i}
	}
	closeOpen(len(lines) - 1)

	if !sawHeader {
		// No headers at all: the whole document is preamble.
		if preamble := buildPreamble(lines, len(lines)); preamble != nil {
			return []models.Section{*preamble}
		}
		return nil
	}

	// Preamble was inserted at index 0; renumber orders.
	for i := range sections {
		sections[i].Order = i
	}
	return sections
}

// isHeuristicHeader promotes a line to section header when it is non-empty,
// short, mostly uppercase, and followed within three non-empty lines by a
// prose-looking line.
func isHeuristicHeader(lines []string, i int) bool {
	line := strings.TrimSpace(lines[i])
	if line == "" || len(line) > maxHeaderLength {
		return false
	}
	if upperRatio(line) < headerUpperRatio {
		return false
	}

	seen := 0
	for j := i + 1; j < len(lines) && seen < headerLookahead; j++ {
		next := strings.TrimSpace(lines[j])
		if next == "" {
			continue
		}
		seen++
		if upperRatio(next) < bodyUpperRatio && len(next) > bodyMinLength {
			return true
		}
	}
	return false
}

// upperRatio returns the fraction of letters that are uppercase.
// Lines without letters score zero.
func upperRatio(s string) float64 {
	letters, uppers := 0, 0
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			letters++
			uppers++
		case r >= 'a' && r <= 'z':
			letters++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(uppers) / float64(letters)
}

var nonAlnumPattern = regexp.MustCompile(`[^A-Z0-9]+`)

func normalizeTag(header string) string {
	tag := strings.ToUpper(strings.TrimSpace(header))
	tag = nonAlnumPattern.ReplaceAllString(tag, "_")
	return strings.Trim(tag, "_")
}

// buildSection materializes a section record. Content is the joined lines
// after the header through lineEnd, with the trailing newline trimmed.
func buildSection(lines []string, open openSection, lineEnd, order int) models.Section {
	if lineEnd < open.lineStart {
		lineEnd = open.lineStart
	}
	content := ""
	if open.lineStart+1 <= lineEnd {
		content = strings.TrimRight(strings.Join(lines[open.lineStart+1:lineEnd+1], "\n"), "\n")
	}
	return models.Section{
		Type:      open.tag,
		Name:      open.name,
		Order:     order,
		LineStart: open.lineStart,
		LineEnd:   lineEnd,
		Content:   content,
	}
}

func buildPreamble(lines []string, end int) *models.Section {
	if end <= 0 {
		return nil
	}
	content := strings.TrimRight(strings.Join(lines[:end], "\n"), "\n")
	if strings.TrimSpace(content) == "" {
		return nil
	}
	return &models.Section{
		Type:      models.SectionPreamble,
		Name:      "Preamble",
		Order:     0,
		LineStart: 0,
		LineEnd:   end - 1,
		Content:   content,
	}
}
