package edgar

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/wofare/edgarwatch/internal/models"
)

// indexRowPattern matches one document row of a filing index page. The index
// table carries sequence, description, a linked filename, and a type column.
var indexRowPattern = regexp.MustCompile(
	`(?is)<tr[^>]*>\s*<td[^>]*>(\d*)</td>\s*<td[^>]*>(.*?)</td>\s*<td[^>]*>.*?href="([^"]+)"[^>]*>.*?</td>\s*<td[^>]*>(.*?)</td>`)

var (
	tagPattern    = regexp.MustCompile(`(?s)<[^>]*>`)
	scriptPattern = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	blockPattern  = regexp.MustCompile(`(?i)</(p|div|tr|table|h[1-6]|li)>`)
	brPattern     = regexp.MustCompile(`(?i)<br\s*/?>`)
	blankPattern  = regexp.MustCompile(`\n{3,}`)
)

// GetFilingContent fetches the filing index for (cik, accessionNo), selects
// the primary document, and returns the document list plus its extracted text.
// Primary selection: first entry whose type column is "filing", falling back
// to the first entry.
func (c *Client) GetFilingContent(ctx context.Context, cik, accessionNo string) (*models.FilingContent, error) {
	padded, err := NormalizeCIK(cik)
	if err != nil {
		return nil, err
	}
	dashed, err := NormalizeAccession(accessionNo)
	if err != nil {
		return nil, err
	}

	stripped := StripCIK(padded)
	bare := StripAccession(dashed)

	indexPath := fmt.Sprintf("/Archives/edgar/data/%s/%s/%s-index.html", stripped, bare, dashed)
	indexBody, err := c.get(ctx, indexPath)
	if err != nil {
		if nf, ok := err.(*models.FilingNotFoundError); ok {
			nf.CIK = padded
			nf.AccessionNo = dashed
		}
		return nil, err
	}

	documents := parseIndexPage(string(indexBody))
	if len(documents) == 0 {
		return nil, &models.FilingNotFoundError{CIK: padded, AccessionNo: dashed}
	}

	primary := selectPrimaryDocument(documents)
	docPath := fmt.Sprintf("/Archives/edgar/data/%s/%s/%s", stripped, bare, primary.Filename)

	docBody, err := c.get(ctx, docPath)
	if err != nil {
		if nf, ok := err.(*models.FilingNotFoundError); ok {
			nf.CIK = padded
			nf.AccessionNo = dashed
		}
		return nil, err
	}

	text, err := extractText(primary.Filename, docBody)
	if err != nil {
		return nil, fmt.Errorf("failed to extract document text: %w", err)
	}

	return &models.FilingContent{
		CIK:         padded,
		AccessionNo: dashed,
		URL:         c.baseURL + docPath,
		Documents:   documents,
		PrimaryText: text,
	}, nil
}

// parseIndexPage extracts document rows from a filing index page.
func parseIndexPage(page string) []models.FilingDocument {
	rows := indexRowPattern.FindAllStringSubmatch(page, -1)
	documents := make([]models.FilingDocument, 0, len(rows))
	for _, row := range rows {
		filename := row[3]
		// Index hrefs may be absolute archive paths; keep the basename only.
		if i := strings.LastIndex(filename, "/"); i >= 0 {
			filename = filename[i+1:]
		}
		documents = append(documents, models.FilingDocument{
			Sequence:    strings.TrimSpace(row[1]),
			Description: strings.TrimSpace(stripTags(row[2])),
			Filename:    filename,
			DocType:     strings.TrimSpace(stripTags(row[4])),
		})
	}
	return documents
}

// selectPrimaryDocument returns the first entry typed "filing", else the
// first entry. Missing or ambiguous type columns fall through to the first.
func selectPrimaryDocument(documents []models.FilingDocument) models.FilingDocument {
	for _, doc := range documents {
		if strings.EqualFold(doc.DocType, "filing") {
			return doc
		}
	}
	return documents[0]
}

// extractText converts a fetched document body to plain text. HTML documents
// are tag-stripped; PDF exhibits go through the pdf reader; anything else is
// treated as already-plain text.
func extractText(filename string, body []byte) (string, error) {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".pdf"):
		return extractPDFText(body)
	case strings.HasSuffix(lower, ".htm"), strings.HasSuffix(lower, ".html"):
		return stripTags(string(body)), nil
	default:
		return string(body), nil
	}
}

// stripTags removes markup and normalizes entities and blank runs.
func stripTags(s string) string {
	s = scriptPattern.ReplaceAllString(s, "")
	// Block-level closes become newlines so section headers keep line structure.
	s = blockPattern.ReplaceAllString(s, "\n")
	s = brPattern.ReplaceAllString(s, "\n")
	s = tagPattern.ReplaceAllString(s, "")
	s = html.UnescapeString(s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	s = strings.Join(lines, "\n")
	return strings.TrimSpace(blankPattern.ReplaceAllString(s, "\n\n"))
}

// extractPDFText pulls plain text out of a PDF exhibit.
func extractPDFText(body []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	var sb strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue // skip unreadable pages, keep the rest
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String()), nil
}
