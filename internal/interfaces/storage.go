// Package interfaces defines service contracts for EdgarWatch
package interfaces

import (
	"context"
	"time"

	"github.com/wofare/edgarwatch/internal/models"
)

// StorageManager coordinates all storage backends
type StorageManager interface {
	CompanyStore() CompanyStore
	FilingStore() FilingStore
	JobQueueStore() JobQueueStore
	WatchlistStore() WatchlistStore
	AlertRuleStore() AlertRuleStore
	OutboxStore() OutboxStore
	KVStore() KVStore

	// Lifecycle
	Close() error
}

// CompanyStore manages the company catalogue. Companies are never deleted.
type CompanyStore interface {
	Upsert(ctx context.Context, company *models.Company) error
	GetByCIK(ctx context.Context, cik string) (*models.Company, error)
	GetByID(ctx context.Context, id string) (*models.Company, error)
	GetBySymbol(ctx context.Context, symbol string) (*models.Company, error)
	List(ctx context.Context, activeOnly bool) ([]*models.Company, error)
	SetActive(ctx context.Context, cik string, active bool) error
	SetLastPolledAt(ctx context.Context, cik string, ts time.Time) error
}

// FilingStore persists filings together with their owned sections and diffs.
type FilingStore interface {
	SaveFiling(ctx context.Context, filing *models.Filing) error
	GetByID(ctx context.Context, id string) (*models.Filing, error)
	GetByAccession(ctx context.Context, cik, accessionNo string) (*models.Filing, error)

	// LatestBefore returns the most recent filing of the company matching one
	// of formTypes and filed strictly before the given date. Nil when none.
	LatestBefore(ctx context.Context, companyID string, formTypes []string, before time.Time) (*models.Filing, error)

	Query(ctx context.Context, opts models.FilingQueryOptions) ([]*models.Filing, error)

	// SaveProcessed atomically persists the filing (counters + IsProcessed),
	// replaces its sections, and replaces its diffs in a single transaction.
	SaveProcessed(ctx context.Context, filing *models.Filing, sections []models.Section, diffs []models.Diff) error

	GetSections(ctx context.Context, filingID string) ([]models.Section, error)
	GetDiffs(ctx context.Context, filingID string) ([]models.Diff, error)
	QueryDiffs(ctx context.Context, filingID string, opts models.DiffQueryOptions) ([]models.Diff, error)
}

// JobQueueStore manages the persistent job queue.
type JobQueueStore interface {
	// Enqueue inserts the job. When the job carries a DedupKey and a
	// non-terminal job with that key exists, the existing job's id is
	// returned and nothing is created.
	Enqueue(ctx context.Context, job *models.Job) (string, error)
	EnqueueMany(ctx context.Context, jobs []*models.Job) error

	// Claim atomically selects the highest-priority pending job whose
	// ScheduledFor is due and marks it RUNNING. Nil when nothing is pullable.
	Claim(ctx context.Context, now time.Time) (*models.Job, error)

	MarkCompleted(ctx context.Context, id string, result []byte) error
	MarkFailed(ctx context.Context, id string, errMsg string) error

	// Release returns a job to PENDING for retry, bumping RetryCount and
	// pushing ScheduledFor forward.
	Release(ctx context.Context, id string, errMsg string, scheduledFor time.Time) error

	GetByID(ctx context.Context, id string) (*models.Job, error)
	FindNonTerminalByDedupKey(ctx context.Context, dedupKey string) (*models.Job, error)
	Stats(ctx context.Context) (*models.JobStats, error)
	ListByStatus(ctx context.Context, status string, limit int) ([]*models.Job, error)

	// ResetRunning returns all RUNNING jobs to PENDING. Called on startup to
	// recover jobs that were in-flight when the process died.
	ResetRunning(ctx context.Context) (int, error)

	// ReapStale returns RUNNING jobs started before the cutoff to PENDING.
	ReapStale(ctx context.Context, cutoff time.Time) (int, error)

	PurgeTerminal(ctx context.Context, olderThan time.Time) (int, error)
}

// WatchlistStore manages user watchlists. Unique on (userID, companyID).
type WatchlistStore interface {
	Upsert(ctx context.Context, w *models.Watchlist) error
	Get(ctx context.Context, userID, companyID string) (*models.Watchlist, error)
	ListByCompany(ctx context.Context, companyID string, activeOnly bool) ([]*models.Watchlist, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Watchlist, error)
	ListActive(ctx context.Context) ([]*models.Watchlist, error)
	Delete(ctx context.Context, userID, companyID string) error
}

// AlertRuleStore manages per-user alert rules.
type AlertRuleStore interface {
	Upsert(ctx context.Context, rule *models.AlertRule) error
	ListByUser(ctx context.Context, userID string) ([]*models.AlertRule, error)
	ListEnabled(ctx context.Context, userID, alertType string) ([]*models.AlertRule, error)
	Delete(ctx context.Context, userID, alertType, method string) error
}

// OutboxStore manages the append-only alert outbox.
type OutboxStore interface {
	Append(ctx context.Context, alert *models.OutboxAlert) error
	GetByID(ctx context.Context, id string) (*models.OutboxAlert, error)
	GetByDedupKey(ctx context.Context, dedupKey string) (*models.OutboxAlert, error)

	// ListPendingByUser returns the user's pending alerts for coalescing.
	ListPendingByUser(ctx context.Context, userID, method, alertType string) ([]*models.OutboxAlert, error)

	// AppendBody appends extra text to a pending alert's body (coalescing).
	AppendBody(ctx context.Context, id string, extra string) error

	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, lastError string) error
	IncrementAttempts(ctx context.Context, id string, lastError string) error

	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.OutboxAlert, error)
	PurgeTerminal(ctx context.Context, olderThan time.Time) (int, error)
}

// KVStore holds system-level key-value state (schema markers, cursors).
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
