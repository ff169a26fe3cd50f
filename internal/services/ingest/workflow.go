// Package ingest orchestrates filing ingestion: fetch, company upsert,
// filing upsert, diff against the previous comparable filing, transactional
// persist, and alert fan-out enqueue. It also handles POLL jobs.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wofare/edgarwatch/internal/clients/edgar"
	"github.com/wofare/edgarwatch/internal/common"
	"github.com/wofare/edgarwatch/internal/interfaces"
	"github.com/wofare/edgarwatch/internal/models"
)

// Result is the INGEST job result payload.
type Result struct {
	Already         bool   `json:"already,omitempty"`
	NotFound        bool   `json:"notFound,omitempty"`
	FilingID        string `json:"filingId,omitempty"`
	Diffs           int    `json:"diffs,omitempty"`
	MaterialChanges int    `json:"materialChanges,omitempty"`
}

// PollResult is the POLL job result payload.
type PollResult struct {
	NotFound   bool `json:"notFound,omitempty"`
	NewFilings int  `json:"newFilings"`
}

// Workflow implements the INGEST and POLL job handlers.
type Workflow struct {
	edgar      interfaces.EdgarClient
	storage    interfaces.StorageManager
	engine     DiffRunner
	summarizer interfaces.Summarizer // optional
	queue      interfaces.Enqueuer
	logger     *common.Logger
	now        func() time.Time
}

// DiffRunner is the engine surface the workflow needs: comparison plus
// section extraction for persistence.
type DiffRunner interface {
	interfaces.DiffEngine
	ExtractSections(filing *models.Filing) []models.Section
}

// NewWorkflow creates the ingestion workflow. summarizer may be nil.
func NewWorkflow(
	edgarClient interfaces.EdgarClient,
	storage interfaces.StorageManager,
	engine DiffRunner,
	summarizer interfaces.Summarizer,
	queue interfaces.Enqueuer,
	logger *common.Logger,
) *Workflow {
	return &Workflow{
		edgar:      edgarClient,
		storage:    storage,
		engine:     engine,
		summarizer: summarizer,
		queue:      queue,
		logger:     logger,
		now:        time.Now,
	}
}

// comparableForms returns the form types that count as "previous comparable
// filing" for a given form. 10-Q falls back to the last 10-K.
func comparableForms(formType string) []string {
	if formType == "10-Q" {
		return []string{"10-Q", "10-K"}
	}
	return []string{formType}
}

// HandleIngest processes one INGEST job. Steps 1-6 are idempotent and
// retry-safe; step 7 (persist) is a single transaction keyed on
// (cik, accessionNo), so only the last successful run is observable.
func (w *Workflow) HandleIngest(ctx context.Context, params models.IngestParams) (*Result, error) {
	cik, err := edgar.NormalizeCIK(params.CIK)
	if err != nil {
		return nil, err
	}
	accession, err := edgar.NormalizeAccession(params.AccessionNo)
	if err != nil {
		return nil, err
	}

	filings := w.storage.FilingStore()

	// Step 1: short-circuit when already processed.
	existing, err := filings.GetByAccession(ctx, cik, accession)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.IsProcessed && !params.ForceReprocess {
		return &Result{Already: true, FilingID: existing.ID}, nil
	}

	// Step 2: fetch content and company info.
	content, err := w.edgar.GetFilingContent(ctx, cik, accession)
	if err != nil {
		var notFound *models.FilingNotFoundError
		if errors.As(err, &notFound) {
			// Terminal success: the filing is gone upstream.
			w.logger.Warn().Str("cik", cik).Str("accession", accession).Msg("Filing not found on EDGAR")
			return &Result{NotFound: true}, nil
		}
		return nil, err
	}

	subs, err := w.edgar.GetSubmissions(ctx, cik)
	if err != nil {
		return nil, err
	}

	// Step 3: upsert company.
	company := &models.Company{
		CIK:      cik,
		Name:     subs.Company.Name,
		SIC:      subs.Company.SIC,
		Industry: subs.Company.SICDescription,
		IsActive: true,
	}
	if len(subs.Company.Tickers) > 0 {
		company.Symbol = subs.Company.Tickers[0]
	}
	if err := w.storage.CompanyStore().Upsert(ctx, company); err != nil {
		return nil, err
	}

	// Step 4: create or refresh the filing record.
	filing := &models.Filing{
		CompanyID:   company.ID,
		CIK:         cik,
		AccessionNo: accession,
		FormType:    params.FormType,
		URL:         content.URL,
		RawContent:  content.PrimaryText,
	}
	if existing != nil {
		filing.ID = existing.ID
		filing.FiledDate = existing.FiledDate
		filing.ReportDate = existing.ReportDate
	}
	if filing.FormType == "" {
		filing.FormType = metaFormType(subs, accession)
	}
	if filing.FiledDate.IsZero() {
		filing.FiledDate = metaFiledDate(subs, accession, w.now())
	}
	if err := filings.SaveFiling(ctx, filing); err != nil {
		return nil, err
	}

	// Step 5: previous comparable filing.
	previous, err := filings.LatestBefore(ctx, company.ID, comparableForms(filing.FormType), filing.FiledDate)
	if err != nil {
		return nil, err
	}

	// Step 6: diff.
	comparison, err := w.engine.CompareFilings(previous, filing)
	if err != nil {
		return nil, err
	}

	secs := w.engine.ExtractSections(filing)
	diffs := make([]models.Diff, 0, len(comparison.Sections))
	for _, sc := range comparison.Sections {
		d := sc.Diff
		if previous != nil {
			d.PreviousFilingID = previous.ID
		}
		diffs = append(diffs, d)
	}

	applyCounters(filing, diffs)

	// Optional AI summary; never fails the job.
	if w.summarizer != nil {
		if summaryText, highlights, err := w.summarizer.SummarizeFiling(ctx, filing, comparison); err == nil {
			filing.Summary = summaryText
			filing.KeyHighlights = highlights
		} else {
			w.logger.Warn().Str("cik", cik).Err(err).Msg("Filing summary generation failed")
		}
	}

	// Step 7: transactional persist.
	if err := filings.SaveProcessed(ctx, filing, secs, diffs); err != nil {
		return nil, err
	}

	// Step 8: alert fan-out for material changes.
	if params.GenerateAlerts && filing.MaterialChanges > 0 && w.queue != nil {
		job := &models.Job{
			Type:       models.JobTypeAlertFanout,
			Priority:   models.PriorityHigh,
			Parameters: models.MarshalParams(models.FanoutParams{FilingID: filing.ID}),
			DedupKey:   "fanout:" + filing.ID,
			MaxRetries: 3,
		}
		if _, err := w.queue.Enqueue(ctx, job); err != nil {
			w.logger.Warn().Str("filing", filing.ID).Err(err).Msg("Failed to enqueue alert fan-out")
		}
	}

	w.logger.Info().
		Str("cik", cik).
		Str("accession", accession).
		Str("form", filing.FormType).
		Int("diffs", len(diffs)).
		Int("material", filing.MaterialChanges).
		Msg("Filing ingested")

	return &Result{
		FilingID:        filing.ID,
		Diffs:           len(diffs),
		MaterialChanges: filing.MaterialChanges,
	}, nil
}

// applyCounters recomputes the filing's aggregate counters from its diffs.
func applyCounters(filing *models.Filing, diffs []models.Diff) {
	filing.MaterialChanges = 0
	filing.RiskFactorChanges = 0
	filing.BusinessChanges = 0
	for _, d := range diffs {
		if d.IsMaterial() {
			filing.MaterialChanges++
		}
		if sectionMatches(d.Section, "RISK") {
			filing.RiskFactorChanges++
		}
		if sectionMatches(d.Section, "BUSINESS") {
			filing.BusinessChanges++
		}
	}
}

func sectionMatches(section, needle string) bool {
	return strings.Contains(strings.ToUpper(section), needle)
}

func metaFormType(subs *models.CompanySubmissions, accession string) string {
	for _, meta := range subs.Recent {
		if meta.AccessionNo == accession {
			return meta.FormType
		}
	}
	return ""
}

func metaFiledDate(subs *models.CompanySubmissions, accession string, fallback time.Time) time.Time {
	for _, meta := range subs.Recent {
		if meta.AccessionNo == accession {
			return meta.FiledDate
		}
	}
	return fallback
}

// HandlePoll processes one POLL job: fetch filings newer than the company's
// last poll cursor, enqueue one INGEST per new filing, advance the cursor.
func (w *Workflow) HandlePoll(ctx context.Context, params models.PollParams) (*PollResult, error) {
	cik, err := edgar.NormalizeCIK(params.CIK)
	if err != nil {
		return nil, err
	}

	company, err := w.storage.CompanyStore().GetByCIK(ctx, cik)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return &PollResult{NotFound: true}, nil
	}

	// First poll looks back only FreshnessFilings: older filings are not
	// backfilled beyond what the recent-submissions feed makes cheap.
	after := company.LastPolledAt
	if after.IsZero() {
		after = w.now().Add(-common.FreshnessFilings)
	}

	metas, err := w.edgar.GetFilings(ctx, cik, interfaces.WithAfter(after))
	if err != nil {
		var notFound *models.FilingNotFoundError
		if errors.As(err, &notFound) {
			return &PollResult{NotFound: true}, nil
		}
		return nil, err
	}

	jobs := make([]*models.Job, 0, len(metas))
	for _, meta := range metas {
		jobs = append(jobs, &models.Job{
			Type:     models.JobTypeIngest,
			Priority: models.PriorityNormal,
			Parameters: models.MarshalParams(models.IngestParams{
				CIK:            cik,
				AccessionNo:    meta.AccessionNo,
				FormType:       meta.FormType,
				GenerateAlerts: true,
			}),
			DedupKey:   fmt.Sprintf("ingest:%s:%s", cik, meta.AccessionNo),
			MaxRetries: 3,
		})
	}
	if len(jobs) > 0 {
		if err := w.storage.JobQueueStore().EnqueueMany(ctx, jobs); err != nil {
			return nil, err
		}
	}

	if err := w.storage.CompanyStore().SetLastPolledAt(ctx, cik, w.now()); err != nil {
		return nil, err
	}

	if len(jobs) > 0 {
		w.logger.Info().Str("cik", cik).Int("new_filings", len(jobs)).Msg("Poll found new filings")
	}

	return &PollResult{NewFilings: len(jobs)}, nil
}

// ParseIngestParams decodes the INGEST job payload.
func ParseIngestParams(raw json.RawMessage) (models.IngestParams, error) {
	var p models.IngestParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, &models.ValidationError{Field: "parameters", Reason: "invalid ingest payload"}
	}
	return p, nil
}

// ParsePollParams decodes the POLL job payload.
func ParsePollParams(raw json.RawMessage) (models.PollParams, error) {
	var p models.PollParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, &models.ValidationError{Field: "parameters", Reason: "invalid poll payload"}
	}
	return p, nil
}
