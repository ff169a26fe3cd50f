package badger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/timshannon/badgerhold/v4"

	"github.com/wofare/edgarwatch/internal/common"
	"github.com/wofare/edgarwatch/internal/models"
)

// filingStorage persists filings with their owned sections and diffs.
// Filings are keyed by "{cik}:{accessionNo}", which enforces the
// (CIK, AccessionNo) uniqueness invariant at the store level.
type filingStorage struct {
	store  *Store
	logger *common.Logger
}

// NewFilingStorage creates a FilingStore backed by BadgerHold.
func NewFilingStorage(store *Store, logger *common.Logger) *filingStorage {
	return &filingStorage{store: store, logger: logger}
}

func (s *filingStorage) SaveFiling(_ context.Context, filing *models.Filing) error {
	if filing.CIK == "" || filing.AccessionNo == "" {
		return &models.ValidationError{Field: "filing", Reason: "cik and accessionNo are required"}
	}

	key := models.FilingKey(filing.CIK, filing.AccessionNo)

	var existing models.Filing
	if err := s.store.db.Get(key, &existing); err == nil {
		filing.ID = existing.ID
		filing.CreatedAt = existing.CreatedAt
	} else {
		if filing.ID == "" {
			filing.ID = uuid.New().String()
		}
		filing.CreatedAt = time.Now()
	}
	filing.UpdatedAt = time.Now()

	if err := s.store.db.Upsert(key, filing); err != nil {
		return fmt.Errorf("failed to save filing %s: %w", key, err)
	}
	return nil
}

func (s *filingStorage) GetByID(_ context.Context, id string) (*models.Filing, error) {
	var filings []models.Filing
	if err := s.store.db.Find(&filings, badgerhold.Where("ID").Eq(id)); err != nil {
		return nil, fmt.Errorf("failed to find filing by id %s: %w", id, err)
	}
	if len(filings) == 0 {
		return nil, nil
	}
	return &filings[0], nil
}

func (s *filingStorage) GetByAccession(_ context.Context, cik, accessionNo string) (*models.Filing, error) {
	var filing models.Filing
	if err := s.store.db.Get(models.FilingKey(cik, accessionNo), &filing); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get filing %s/%s: %w", cik, accessionNo, err)
	}
	return &filing, nil
}

func (s *filingStorage) LatestBefore(_ context.Context, companyID string, formTypes []string, before time.Time) (*models.Filing, error) {
	var filings []models.Filing
	if err := s.store.db.Find(&filings, badgerhold.Where("CompanyID").Eq(companyID)); err != nil {
		return nil, fmt.Errorf("failed to find filings for company %s: %w", companyID, err)
	}

	allowed := make(map[string]bool, len(formTypes))
	for _, ft := range formTypes {
		allowed[strings.ToUpper(ft)] = true
	}

	var latest *models.Filing
	for i := range filings {
		f := &filings[i]
		if !allowed[strings.ToUpper(f.FormType)] {
			continue
		}
		if !f.FiledDate.Before(before) {
			continue
		}
		if latest == nil || f.FiledDate.After(latest.FiledDate) {
			latest = f
		}
	}
	return latest, nil
}

func (s *filingStorage) Query(ctx context.Context, opts models.FilingQueryOptions) ([]*models.Filing, error) {
	var query *badgerhold.Query
	switch {
	case opts.CIK != "":
		query = badgerhold.Where("CIK").Eq(opts.CIK)
	case opts.FormType != "":
		query = badgerhold.Where("FormType").Eq(opts.FormType)
	}

	var filings []models.Filing
	if err := s.store.db.Find(&filings, query); err != nil {
		return nil, fmt.Errorf("failed to query filings: %w", err)
	}

	filtered := filings[:0]
	for _, f := range filings {
		if opts.FormType != "" && !strings.EqualFold(f.FormType, opts.FormType) {
			continue
		}
		if !opts.DateFrom.IsZero() && f.FiledDate.Before(opts.DateFrom) {
			continue
		}
		if !opts.DateTo.IsZero() && f.FiledDate.After(opts.DateTo) {
			continue
		}
		if opts.MaterialChangesOnly && f.MaterialChanges == 0 {
			continue
		}
		filtered = append(filtered, f)
	}

	sortFilings(filtered, opts.SortBy, opts.SortOrder)

	if opts.Limit > 0 && len(filtered) > opts.Limit {
		filtered = filtered[:opts.Limit]
	}

	result := make([]*models.Filing, len(filtered))
	for i := range filtered {
		result[i] = &filtered[i]
	}
	return result, nil
}

func sortFilings(filings []models.Filing, sortBy, sortOrder string) {
	asc := strings.EqualFold(sortOrder, "asc")
	less := func(i, j int) bool {
		switch sortBy {
		case "materialChanges":
			if filings[i].MaterialChanges != filings[j].MaterialChanges {
				return filings[i].MaterialChanges < filings[j].MaterialChanges
			}
		case "companyName":
			if filings[i].CompanyID != filings[j].CompanyID {
				return filings[i].CompanyID < filings[j].CompanyID
			}
		}
		return filings[i].FiledDate.Before(filings[j].FiledDate)
	}
	if asc {
		sort.SliceStable(filings, less)
	} else {
		sort.SliceStable(filings, func(i, j int) bool { return less(j, i) })
	}
}

// SaveProcessed persists the filing with its counters, replaces its sections
// and diffs, and flips IsProcessed — all in one badger transaction. Readers
// observe either the pre-ingest snapshot or the fully processed one.
func (s *filingStorage) SaveProcessed(_ context.Context, filing *models.Filing, secs []models.Section, diffs []models.Diff) error {
	if filing.ID == "" {
		filing.ID = uuid.New().String()
	}
	key := models.FilingKey(filing.CIK, filing.AccessionNo)
	return s.saveProcessedTx(key, filing, secs, diffs, time.Now())
}

func (s *filingStorage) saveProcessedTx(key string, filing *models.Filing, secs []models.Section, diffs []models.Diff, now time.Time) error {
	db := s.store.db
	txn := db.Badger().NewTransaction(true)
	defer txn.Discard()

	// Replace owned sections.
	if err := db.TxDeleteMatching(txn, models.Section{}, badgerhold.Where("FilingID").Eq(filing.ID)); err != nil {
		return fmt.Errorf("failed to clear sections: %w", err)
	}
	for i := range secs {
		secs[i].FilingID = filing.ID
		if secs[i].ID == "" {
			secs[i].ID = fmt.Sprintf("%s:%d", filing.ID, secs[i].Order)
		}
		if err := db.TxUpsert(txn, secs[i].ID, &secs[i]); err != nil {
			return fmt.Errorf("failed to save section: %w", err)
		}
	}

	// Replace owned diffs.
	if err := db.TxDeleteMatching(txn, models.Diff{}, badgerhold.Where("FilingID").Eq(filing.ID)); err != nil {
		return fmt.Errorf("failed to clear diffs: %w", err)
	}
	for i := range diffs {
		diffs[i].FilingID = filing.ID
		if diffs[i].ID == "" {
			diffs[i].ID = fmt.Sprintf("%s:diff:%03d", filing.ID, i)
		}
		if err := db.TxUpsert(txn, diffs[i].ID, &diffs[i]); err != nil {
			return fmt.Errorf("failed to save diff: %w", err)
		}
	}

	filing.IsProcessed = true
	filing.UpdatedAt = now
	if filing.CreatedAt.IsZero() {
		filing.CreatedAt = now
	}
	if err := db.TxUpsert(txn, key, filing); err != nil {
		return fmt.Errorf("failed to save processed filing: %w", err)
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("failed to commit processed filing: %w", err)
	}

	s.logger.Debug().
		Str("filing", key).
		Int("sections", len(secs)).
		Int("diffs", len(diffs)).
		Msg("Filing processed and persisted")
	return nil
}

func (s *filingStorage) GetSections(_ context.Context, filingID string) ([]models.Section, error) {
	var secs []models.Section
	if err := s.store.db.Find(&secs, badgerhold.Where("FilingID").Eq(filingID)); err != nil {
		return nil, fmt.Errorf("failed to get sections for %s: %w", filingID, err)
	}
	sort.Slice(secs, func(i, j int) bool { return secs[i].Order < secs[j].Order })
	return secs, nil
}

func (s *filingStorage) GetDiffs(_ context.Context, filingID string) ([]models.Diff, error) {
	var diffs []models.Diff
	if err := s.store.db.Find(&diffs, badgerhold.Where("FilingID").Eq(filingID)); err != nil {
		return nil, fmt.Errorf("failed to get diffs for %s: %w", filingID, err)
	}
	sort.SliceStable(diffs, func(i, j int) bool { return diffs[i].ID < diffs[j].ID })
	return diffs, nil
}

func (s *filingStorage) QueryDiffs(ctx context.Context, filingID string, opts models.DiffQueryOptions) ([]models.Diff, error) {
	diffs, err := s.GetDiffs(ctx, filingID)
	if err != nil {
		return nil, err
	}

	filtered := diffs[:0]
	for _, d := range diffs {
		if d.MaterialityScore < opts.MaterialityThreshold {
			continue
		}
		if opts.Section != "" && !strings.EqualFold(d.Section, opts.Section) {
			continue
		}
		if opts.ChangeType != "" && d.ChangeType != opts.ChangeType {
			continue
		}
		filtered = append(filtered, d)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].MaterialityScore > filtered[j].MaterialityScore
	})
	return filtered, nil
}
