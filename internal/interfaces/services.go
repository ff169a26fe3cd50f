// Package interfaces defines service contracts for EdgarWatch
package interfaces

import (
	"context"

	"github.com/wofare/edgarwatch/internal/models"
)

// QuoteService retrieves normalized quotes across the provider chain.
type QuoteService interface {
	GetQuote(ctx context.Context, symbol string, opts models.QuoteOptions) (*models.Quote, error)
}

// Enqueuer submits jobs to the durable queue. Workflow handlers hold this
// narrow view instead of the whole job manager.
type Enqueuer interface {
	Enqueue(ctx context.Context, job *models.Job) (string, error)
}

// Dispatcher hands an outbox alert to the external delivery system
// (email/SMS/push transports live behind it). It is not required to be
// idempotent; the core supplies dedup keys and drives retries.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert *models.OutboxAlert) (*models.DispatchResult, error)
}

// Summarizer produces an optional human summary and key highlights for a
// processed filing. Failures never fail ingestion.
type Summarizer interface {
	SummarizeFiling(ctx context.Context, filing *models.Filing, comparison *models.Comparison) (summary string, highlights []string, err error)
}

// DiffEngine compares two filings of comparable form.
type DiffEngine interface {
	CompareFilings(previous, current *models.Filing) (*models.Comparison, error)
}
