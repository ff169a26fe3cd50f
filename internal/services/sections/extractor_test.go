package sections

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wofare/edgarwatch/internal/models"
)

func TestExtract_10K_CanonicalSections(t *testing.T) {
	text := strings.Join([]string{
		"UNITED STATES SECURITIES AND EXCHANGE COMMISSION",
		"FORM 10-K",
		"ITEM 1. BUSINESS",
		"We sell phones.",
		"And tablets.",
		"ITEM 1A. RISK FACTORS",
		"Competition is fierce.",
		"ITEM 7. MANAGEMENT'S DISCUSSION AND ANALYSIS",
		"Revenue grew.",
	}, "\n")

	e := NewExtractor()
	secs := e.Extract(text, "10-K")
	require.Len(t, secs, 3)

	assert.Equal(t, models.SectionBusiness, secs[0].Type)
	assert.Equal(t, "ITEM 1. BUSINESS", secs[0].Name)
	assert.Equal(t, "We sell phones.\nAnd tablets.", secs[0].Content)
	assert.Equal(t, 2, secs[0].LineStart)
	assert.Equal(t, 4, secs[0].LineEnd)

	assert.Equal(t, models.SectionRiskFactors, secs[1].Type)
	assert.Equal(t, "Competition is fierce.", secs[1].Content)

	assert.Equal(t, models.SectionMDA, secs[2].Type)
	assert.Equal(t, "Revenue grew.", secs[2].Content)
	assert.Equal(t, 8, secs[2].LineEnd)
}

func TestExtract_KnownForm_DiscardsPreamble(t *testing.T) {
	text := "Cover page text\nMore cover\nITEM 1. BUSINESS\nBody."
	secs := NewExtractor().Extract(text, "10-K")
	require.Len(t, secs, 1)
	assert.Equal(t, models.SectionBusiness, secs[0].Type)
}

func TestExtract_KnownForm_NoHeaders(t *testing.T) {
	secs := NewExtractor().Extract("Just some text\nwith no items.", "10-K")
	assert.Empty(t, secs)
}

func TestExtract_10Q_Item1HeadersResolveByPhrase(t *testing.T) {
	// Both 10-Q ITEM 1 patterns require their full phrase, so each header
	// resolves to its own tag regardless of shared prefix.
	text := strings.Join([]string{
		"ITEM 1. FINANCIAL STATEMENTS",
		"Balance sheet follows.",
		"ITEM 1. LEGAL PROCEEDINGS",
		"None pending.",
	}, "\n")

	secs := NewExtractor().Extract(text, "10-Q")
	require.Len(t, secs, 2)
	assert.Equal(t, models.SectionFinancialStatements, secs[0].Type)
	assert.Equal(t, models.SectionLegalProceedings, secs[1].Type)
}

func TestExtract_8K_TriggeringEvents(t *testing.T) {
	text := strings.Join([]string{
		"ITEM 5.02 DEPARTURE OF DIRECTORS",
		"The CFO resigned.",
		"ITEM 8.01 OTHER EVENTS",
		"A thing happened.",
	}, "\n")

	secs := NewExtractor().Extract(text, "8-K")
	require.Len(t, secs, 2)
	for _, s := range secs {
		assert.Equal(t, models.SectionTriggeringEvents, s.Type)
	}
}

func TestExtract_CaseInsensitiveHeaders(t *testing.T) {
	secs := NewExtractor().Extract("Item 1. Business\nBody text.", "10-K")
	require.Len(t, secs, 1)
	assert.Equal(t, models.SectionBusiness, secs[0].Type)
}

func TestExtract_UnknownForm_HeuristicHeaders(t *testing.T) {
	text := strings.Join([]string{
		"Some leading narrative before any heading.",
		"RISK SUMMARY",
		"This quarter carried significant downside exposure overall.",
		"LIQUIDITY",
		"Cash position remains adequate for operations.",
	}, "\n")

	secs := NewExtractor().Extract(text, "S-1")
	require.Len(t, secs, 3)

	assert.Equal(t, models.SectionPreamble, secs[0].Type)
	assert.Equal(t, "Some leading narrative before any heading.", secs[0].Content)

	assert.Equal(t, "RISK_SUMMARY", secs[1].Type)
	assert.Equal(t, "This quarter carried significant downside exposure overall.", secs[1].Content)

	assert.Equal(t, "LIQUIDITY", secs[2].Type)
}

func TestExtract_UnknownForm_AllProseIsPreamble(t *testing.T) {
	text := "just lowercase prose\nnothing that looks like a header"
	secs := NewExtractor().Extract(text, "S-1")
	require.Len(t, secs, 1)
	assert.Equal(t, models.SectionPreamble, secs[0].Type)
}

func TestIsHeuristicHeader_RejectsUppercaseBody(t *testing.T) {
	// An uppercase line followed only by more uppercase lines is not a header.
	lines := []string{"ALL CAPS LINE", "MORE CAPS FOLLOWING HERE", "AND MORE CAPS"}
	assert.False(t, isHeuristicHeader(lines, 0))
}

func TestIsHeuristicHeader_LookaheadSkipsBlanks(t *testing.T) {
	lines := []string{"SECTION HEADER", "", "", "lowercase body prose that is long enough"}
	assert.True(t, isHeuristicHeader(lines, 0))
}

func TestUpperRatio(t *testing.T) {
	assert.Equal(t, 1.0, upperRatio("ABC"))
	assert.Equal(t, 0.0, upperRatio("abc"))
	assert.Equal(t, 0.5, upperRatio("AbCd"))
	assert.Equal(t, 0.0, upperRatio("1234 --"))
}
