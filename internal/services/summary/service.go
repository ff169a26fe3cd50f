// Package summary generates optional AI summaries and key highlights for
// processed filings. Failures are logged and never fail ingestion.
package summary

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/wofare/edgarwatch/internal/common"
	"github.com/wofare/edgarwatch/internal/interfaces"
	"github.com/wofare/edgarwatch/internal/models"
)

const (
	DefaultModel = "gemini-2.0-flash"

	// maxPromptContent caps the filing excerpt sent to the model.
	maxPromptContent = 30000
)

// Service implements the Summarizer interface over the Gemini API.
type Service struct {
	client *genai.Client
	model  string
	logger *common.Logger
}

// ServiceOption configures the service
type ServiceOption func(*Service)

// WithModel sets the model to use
func WithModel(model string) ServiceOption {
	return func(s *Service) {
		if model != "" {
			s.model = model
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a new summarizer.
func NewService(ctx context.Context, apiKey string, opts ...ServiceOption) (*Service, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create summarizer client: %w", err)
	}

	s := &Service{
		client: client,
		model:  DefaultModel,
		logger: common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SummarizeFiling produces a short summary paragraph and up to five key
// highlight bullets for a processed filing.
func (s *Service) SummarizeFiling(ctx context.Context, filing *models.Filing, comparison *models.Comparison) (string, []string, error) {
	prompt := buildPrompt(filing, comparison)

	result, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(prompt), nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate filing summary: %w", err)
	}

	text, err := extractText(result)
	if err != nil {
		return "", nil, err
	}

	summary, highlights := parseResponse(text)
	return summary, highlights, nil
}

// extractText pulls the text parts out of a generate content response.
func extractText(result *genai.GenerateContentResponse) (string, error) {
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content generated")
	}

	text := ""
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			text += part.Text
		}
	}
	if text == "" {
		return "", fmt.Errorf("empty summary response")
	}
	return text, nil
}

func buildPrompt(filing *models.Filing, comparison *models.Comparison) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Summarize this %s filing in 2-3 sentences for an investor, then list up to 5 key highlights as lines starting with \"- \".\n\n", filing.FormType)

	if comparison != nil && len(comparison.KeyChanges) > 0 {
		sb.WriteString("Notable changes versus the prior filing:\n")
		for _, change := range comparison.KeyChanges {
			fmt.Fprintf(&sb, "- %s\n", change)
		}
		sb.WriteString("\n")
	}

	content := filing.RawContent
	if len(content) > maxPromptContent {
		content = content[:maxPromptContent]
	}
	sb.WriteString("Filing text:\n")
	sb.WriteString(content)

	return sb.String()
}

// parseResponse splits the model output into the summary paragraph and the
// highlight bullets.
func parseResponse(text string) (string, []string) {
	var summaryLines, highlights []string

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") {
			if len(highlights) < 5 {
				highlights = append(highlights, strings.TrimSpace(trimmed[2:]))
			}
			continue
		}
		if len(highlights) == 0 {
			summaryLines = append(summaryLines, trimmed)
		}
	}

	return strings.Join(summaryLines, " "), highlights
}

// Ensure Service implements Summarizer
var _ interfaces.Summarizer = (*Service)(nil)
