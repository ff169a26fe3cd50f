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

// watchlistStorage persists watchlists keyed by "{userID}:{companyID}".
type watchlistStorage struct {
	store  *Store
	logger *common.Logger
}

// NewWatchlistStorage creates a WatchlistStore backed by BadgerHold.
func NewWatchlistStorage(store *Store, logger *common.Logger) *watchlistStorage {
	return &watchlistStorage{store: store, logger: logger}
}

func (s *watchlistStorage) Upsert(_ context.Context, w *models.Watchlist) error {
	if w.UserID == "" || w.CompanyID == "" {
		return &models.ValidationError{Field: "watchlist", Reason: "userId and companyId are required"}
	}

	key := models.WatchlistKey(w.UserID, w.CompanyID)

	var existing models.Watchlist
	if err := s.store.db.Get(key, &existing); err == nil {
		w.ID = existing.ID
		w.CreatedAt = existing.CreatedAt
	} else {
		if w.ID == "" {
			w.ID = uuid.New().String()
		}
		w.CreatedAt = time.Now()
	}
	w.UpdatedAt = time.Now()

	if err := s.store.db.Upsert(key, w); err != nil {
		return fmt.Errorf("failed to save watchlist %s: %w", key, err)
	}
	return nil
}

func (s *watchlistStorage) Get(_ context.Context, userID, companyID string) (*models.Watchlist, error) {
	var w models.Watchlist
	if err := s.store.db.Get(models.WatchlistKey(userID, companyID), &w); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get watchlist: %w", err)
	}
	return &w, nil
}

func (s *watchlistStorage) ListByCompany(_ context.Context, companyID string, activeOnly bool) ([]*models.Watchlist, error) {
	query := badgerhold.Where("CompanyID").Eq(companyID)
	if activeOnly {
		query = query.And("IsActive").Eq(true)
	}
	return s.find(query)
}

func (s *watchlistStorage) ListByUser(_ context.Context, userID string) ([]*models.Watchlist, error) {
	return s.find(badgerhold.Where("UserID").Eq(userID))
}

func (s *watchlistStorage) ListActive(_ context.Context) ([]*models.Watchlist, error) {
	return s.find(badgerhold.Where("IsActive").Eq(true))
}

func (s *watchlistStorage) find(query *badgerhold.Query) ([]*models.Watchlist, error) {
	var lists []models.Watchlist
	if err := s.store.db.Find(&lists, query); err != nil {
		return nil, fmt.Errorf("failed to list watchlists: %w", err)
	}

	sort.Slice(lists, func(i, j int) bool {
		if lists[i].UserID != lists[j].UserID {
			return lists[i].UserID < lists[j].UserID
		}
		return lists[i].CompanyID < lists[j].CompanyID
	})

	result := make([]*models.Watchlist, len(lists))
	for i := range lists {
		result[i] = &lists[i]
	}
	return result, nil
}

func (s *watchlistStorage) Delete(_ context.Context, userID, companyID string) error {
	err := s.store.db.Delete(models.WatchlistKey(userID, companyID), models.Watchlist{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete watchlist: %w", err)
	}
	return nil
}
