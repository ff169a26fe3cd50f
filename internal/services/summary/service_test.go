package summary

import (
	"strings"
	"testing"

	"github.com/wofare/edgarwatch/internal/models"
)

func TestParseResponse(t *testing.T) {
	text := `Apple filed its annual report with stronger revenue.
Margins expanded across all segments.
- Revenue up 8% year over year
- New litigation disclosed in risk factors
* Buyback program extended
- Fourth highlight
- Fifth highlight
- Sixth highlight is dropped`

	summary, highlights := parseResponse(text)

	if !strings.Contains(summary, "annual report") || !strings.Contains(summary, "Margins expanded") {
		t.Errorf("summary = %q", summary)
	}
	if len(highlights) != 5 {
		t.Fatalf("highlights = %d, want 5 (capped)", len(highlights))
	}
	if highlights[0] != "Revenue up 8% year over year" {
		t.Errorf("first highlight = %q", highlights[0])
	}
	if highlights[2] != "Buyback program extended" {
		t.Errorf("star bullets should parse too, got %q", highlights[2])
	}
}

func TestParseResponse_NoBullets(t *testing.T) {
	summary, highlights := parseResponse("Just a plain summary sentence.")
	if summary != "Just a plain summary sentence." {
		t.Errorf("summary = %q", summary)
	}
	if len(highlights) != 0 {
		t.Errorf("highlights = %v, want none", highlights)
	}
}

func TestBuildPrompt(t *testing.T) {
	filing := &models.Filing{
		FormType:   "10-K",
		RawContent: strings.Repeat("business text ", 10),
	}
	comparison := &models.Comparison{
		KeyChanges: []string{"BUSINESS: 1 high change(s); keywords: litigation"},
	}

	prompt := buildPrompt(filing, comparison)
	if !strings.Contains(prompt, "10-K") {
		t.Error("prompt missing form type")
	}
	if !strings.Contains(prompt, "litigation") {
		t.Error("prompt missing key changes")
	}
	if !strings.Contains(prompt, "business text") {
		t.Error("prompt missing filing content")
	}
}

func TestBuildPrompt_TruncatesLongContent(t *testing.T) {
	filing := &models.Filing{
		FormType:   "10-K",
		RawContent: strings.Repeat("x", maxPromptContent+1000),
	}
	prompt := buildPrompt(filing, nil)
	if len(prompt) > maxPromptContent+500 {
		t.Errorf("prompt not truncated: %d chars", len(prompt))
	}
}
