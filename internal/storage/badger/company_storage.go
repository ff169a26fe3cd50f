package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/timshannon/badgerhold/v4"

	"github.com/wofare/edgarwatch/internal/common"
	"github.com/wofare/edgarwatch/internal/models"
)

// companyStorage persists companies keyed by CIK.
type companyStorage struct {
	store  *Store
	logger *common.Logger
}

// NewCompanyStorage creates a CompanyStore backed by BadgerHold.
func NewCompanyStorage(store *Store, logger *common.Logger) *companyStorage {
	return &companyStorage{store: store, logger: logger}
}

func (s *companyStorage) Upsert(_ context.Context, company *models.Company) error {
	if company.CIK == "" {
		return &models.ValidationError{Field: "cik", Reason: "must not be empty"}
	}

	var existing models.Company
	err := s.store.db.Get(company.CIK, &existing)
	if err == nil {
		// Never overwrite a non-empty symbol or name with an empty one.
		if company.Symbol == "" {
			company.Symbol = existing.Symbol
		}
		if company.Name == "" {
			company.Name = existing.Name
		}
		company.ID = existing.ID
		company.CreatedAt = existing.CreatedAt
		company.LastPolledAt = existing.LastPolledAt
	} else {
		if company.ID == "" {
			company.ID = uuid.New().String()
		}
		company.CreatedAt = time.Now()
	}
	company.UpdatedAt = time.Now()

	if err := s.store.db.Upsert(company.CIK, company); err != nil {
		return fmt.Errorf("failed to upsert company %s: %w", company.CIK, err)
	}
	return nil
}

func (s *companyStorage) GetByCIK(_ context.Context, cik string) (*models.Company, error) {
	var company models.Company
	if err := s.store.db.Get(cik, &company); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get company %s: %w", cik, err)
	}
	return &company, nil
}

func (s *companyStorage) GetByID(_ context.Context, id string) (*models.Company, error) {
	var companies []models.Company
	if err := s.store.db.Find(&companies, badgerhold.Where("ID").Eq(id)); err != nil {
		return nil, fmt.Errorf("failed to find company by id %s: %w", id, err)
	}
	if len(companies) == 0 {
		return nil, nil
	}
	return &companies[0], nil
}

func (s *companyStorage) GetBySymbol(_ context.Context, symbol string) (*models.Company, error) {
	var companies []models.Company
	if err := s.store.db.Find(&companies, badgerhold.Where("Symbol").Eq(symbol)); err != nil {
		return nil, fmt.Errorf("failed to find company by symbol %s: %w", symbol, err)
	}
	if len(companies) == 0 {
		return nil, nil
	}
	return &companies[0], nil
}

func (s *companyStorage) List(_ context.Context, activeOnly bool) ([]*models.Company, error) {
	var companies []models.Company
	var query *badgerhold.Query
	if activeOnly {
		query = badgerhold.Where("IsActive").Eq(true)
	}
	if err := s.store.db.Find(&companies, query); err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}

	sort.Slice(companies, func(i, j int) bool { return companies[i].CIK < companies[j].CIK })

	result := make([]*models.Company, len(companies))
	for i := range companies {
		result[i] = &companies[i]
	}
	return result, nil
}

func (s *companyStorage) SetActive(ctx context.Context, cik string, active bool) error {
	company, err := s.GetByCIK(ctx, cik)
	if err != nil {
		return err
	}
	if company == nil {
		return fmt.Errorf("company %s not found", cik)
	}
	company.IsActive = active
	company.UpdatedAt = time.Now()
	if err := s.store.db.Upsert(cik, company); err != nil {
		return fmt.Errorf("failed to set company %s active=%v: %w", cik, active, err)
	}
	return nil
}

func (s *companyStorage) SetLastPolledAt(ctx context.Context, cik string, ts time.Time) error {
	company, err := s.GetByCIK(ctx, cik)
	if err != nil {
		return err
	}
	if company == nil {
		return fmt.Errorf("company %s not found", cik)
	}
	company.LastPolledAt = ts
	company.UpdatedAt = time.Now()
	if err := s.store.db.Upsert(cik, company); err != nil {
		return fmt.Errorf("failed to update last polled at for %s: %w", cik, err)
	}
	return nil
}
