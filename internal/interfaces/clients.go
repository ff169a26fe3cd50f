// Package interfaces defines service contracts for EdgarWatch
package interfaces

import (
	"context"
	"time"

	"github.com/wofare/edgarwatch/internal/models"
)

// EdgarClient provides access to EDGAR submissions, filing indexes, and
// document bodies.
type EdgarClient interface {
	// GetSubmissions retrieves the company header and recent filings for a CIK.
	GetSubmissions(ctx context.Context, cik string) (*models.CompanySubmissions, error)

	// GetFilings retrieves filing metadata, sorted by filed date descending.
	GetFilings(ctx context.Context, cik string, opts ...FilingOption) ([]models.FilingMeta, error)

	// GetFilingContent fetches a filing's index, selects the primary document,
	// and returns its extracted text.
	GetFilingContent(ctx context.Context, cik, accessionNo string) (*models.FilingContent, error)

	// SearchCompanies searches the ticker catalogue by name or ticker.
	SearchCompanies(ctx context.Context, query string) ([]models.TickerEntry, error)
}

// FilingOption configures filing metadata queries
type FilingOption func(*FilingParams)

// FilingParams holds filing query parameters
type FilingParams struct {
	Form   string
	After  time.Time
	Before time.Time
	Count  int
}

// WithForm restricts results to one form type.
func WithForm(form string) FilingOption {
	return func(p *FilingParams) {
		p.Form = form
	}
}

// WithAfter restricts results to filings filed after the given date.
func WithAfter(after time.Time) FilingOption {
	return func(p *FilingParams) {
		p.After = after
	}
}

// WithBefore restricts results to filings filed before the given date.
func WithBefore(before time.Time) FilingOption {
	return func(p *FilingParams) {
		p.Before = before
	}
}

// WithCount caps the number of results.
func WithCount(count int) FilingOption {
	return func(p *FilingParams) {
		p.Count = count
	}
}

// QuoteProvider is one upstream quote source in the fallback chain.
type QuoteProvider interface {
	// Name returns the provider's chain identifier (e.g. "alpha").
	Name() string

	// GetQuote retrieves a raw quote with a sparkline for the period.
	// The quote service validates and normalizes the result.
	GetQuote(ctx context.Context, symbol, period string) (*models.Quote, error)
}
