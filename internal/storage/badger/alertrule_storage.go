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

// alertRuleStorage persists alert rules keyed by
// "{userID}:{alertType}:{method}".
type alertRuleStorage struct {
	store  *Store
	logger *common.Logger
}

// NewAlertRuleStorage creates an AlertRuleStore backed by BadgerHold.
func NewAlertRuleStorage(store *Store, logger *common.Logger) *alertRuleStorage {
	return &alertRuleStorage{store: store, logger: logger}
}

func (s *alertRuleStorage) Upsert(_ context.Context, rule *models.AlertRule) error {
	if rule.UserID == "" || rule.AlertType == "" || rule.Method == "" {
		return &models.ValidationError{Field: "alertRule", Reason: "userId, alertType, and method are required"}
	}
	if rule.Threshold < 0 || rule.Threshold > 1 {
		return &models.ValidationError{Field: "threshold", Reason: "must be within [0,1]"}
	}

	key := models.AlertRuleKey(rule.UserID, rule.AlertType, rule.Method)

	var existing models.AlertRule
	if err := s.store.db.Get(key, &existing); err == nil {
		rule.ID = existing.ID
		rule.CreatedAt = existing.CreatedAt
	} else {
		if rule.ID == "" {
			rule.ID = uuid.New().String()
		}
		rule.CreatedAt = time.Now()
	}
	rule.UpdatedAt = time.Now()

	if err := s.store.db.Upsert(key, rule); err != nil {
		return fmt.Errorf("failed to save alert rule %s: %w", key, err)
	}
	return nil
}

func (s *alertRuleStorage) ListByUser(_ context.Context, userID string) ([]*models.AlertRule, error) {
	return s.find(badgerhold.Where("UserID").Eq(userID))
}

func (s *alertRuleStorage) ListEnabled(_ context.Context, userID, alertType string) ([]*models.AlertRule, error) {
	query := badgerhold.Where("UserID").Eq(userID).
		And("AlertType").Eq(alertType).
		And("IsEnabled").Eq(true)
	return s.find(query)
}

func (s *alertRuleStorage) find(query *badgerhold.Query) ([]*models.AlertRule, error) {
	var rules []models.AlertRule
	if err := s.store.db.Find(&rules, query); err != nil {
		return nil, fmt.Errorf("failed to list alert rules: %w", err)
	}

	sort.Slice(rules, func(i, j int) bool {
		if rules[i].AlertType != rules[j].AlertType {
			return rules[i].AlertType < rules[j].AlertType
		}
		return rules[i].Method < rules[j].Method
	})

	result := make([]*models.AlertRule, len(rules))
	for i := range rules {
		result[i] = &rules[i]
	}
	return result, nil
}

func (s *alertRuleStorage) Delete(_ context.Context, userID, alertType, method string) error {
	err := s.store.db.Delete(models.AlertRuleKey(userID, alertType, method), models.AlertRule{})
	if err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete alert rule: %w", err)
	}
	return nil
}
