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

// outboxStorage persists the append-only alert outbox keyed by alert id.
type outboxStorage struct {
	store  *Store
	logger *common.Logger
}

// NewOutboxStorage creates an OutboxStore backed by BadgerHold.
func NewOutboxStorage(store *Store, logger *common.Logger) *outboxStorage {
	return &outboxStorage{store: store, logger: logger}
}

func (s *outboxStorage) Append(_ context.Context, alert *models.OutboxAlert) error {
	if alert.UserID == "" || alert.Method == "" {
		return &models.ValidationError{Field: "alert", Reason: "userId and method are required"}
	}
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.Status == "" {
		alert.Status = models.AlertStatusPending
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}
	if alert.ScheduledFor.IsZero() {
		alert.ScheduledFor = alert.CreatedAt
	}
	if alert.MaxAttempts == 0 {
		alert.MaxAttempts = 3
	}

	if err := s.store.db.Insert(alert.ID, alert); err != nil {
		return fmt.Errorf("failed to append outbox alert: %w", err)
	}
	return nil
}

func (s *outboxStorage) get(id string) (*models.OutboxAlert, error) {
	var alert models.OutboxAlert
	if err := s.store.db.Get(id, &alert); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get outbox alert %s: %w", id, err)
	}
	return &alert, nil
}

func (s *outboxStorage) GetByID(_ context.Context, id string) (*models.OutboxAlert, error) {
	return s.get(id)
}

func (s *outboxStorage) GetByDedupKey(_ context.Context, dedupKey string) (*models.OutboxAlert, error) {
	var alerts []models.OutboxAlert
	if err := s.store.db.Find(&alerts, badgerhold.Where("DedupKey").Eq(dedupKey)); err != nil {
		return nil, fmt.Errorf("failed to find alert by dedup key: %w", err)
	}
	if len(alerts) == 0 {
		return nil, nil
	}
	return &alerts[0], nil
}

func (s *outboxStorage) ListPendingByUser(_ context.Context, userID, method, alertType string) ([]*models.OutboxAlert, error) {
	query := badgerhold.Where("UserID").Eq(userID).
		And("Status").Eq(models.AlertStatusPending)

	var alerts []models.OutboxAlert
	if err := s.store.db.Find(&alerts, query); err != nil {
		return nil, fmt.Errorf("failed to list pending alerts: %w", err)
	}

	filtered := alerts[:0]
	for _, a := range alerts {
		if method != "" && a.Method != method {
			continue
		}
		if alertType != "" && a.AlertType != alertType {
			continue
		}
		filtered = append(filtered, a)
	}

	sort.Slice(filtered, func(i, j int) bool { return filtered[i].CreatedAt.Before(filtered[j].CreatedAt) })

	result := make([]*models.OutboxAlert, len(filtered))
	for i := range filtered {
		result[i] = &filtered[i]
	}
	return result, nil
}

func (s *outboxStorage) AppendBody(_ context.Context, id string, extra string) error {
	alert, err := s.get(id)
	if err != nil {
		return err
	}
	if alert == nil {
		return fmt.Errorf("outbox alert %s not found", id)
	}
	if alert.IsTerminal() {
		return fmt.Errorf("outbox alert %s is terminal", id)
	}
	alert.Body += "\n" + extra
	if err := s.store.db.Upsert(id, alert); err != nil {
		return fmt.Errorf("failed to append alert body: %w", err)
	}
	return nil
}

func (s *outboxStorage) MarkSent(_ context.Context, id string) error {
	alert, err := s.get(id)
	if err != nil {
		return err
	}
	if alert == nil {
		return fmt.Errorf("outbox alert %s not found", id)
	}
	alert.Status = models.AlertStatusSent
	alert.SentAt = time.Now()
	alert.LastError = ""
	if err := s.store.db.Upsert(id, alert); err != nil {
		return fmt.Errorf("failed to mark alert sent: %w", err)
	}
	return nil
}

func (s *outboxStorage) MarkFailed(_ context.Context, id string, lastError string) error {
	alert, err := s.get(id)
	if err != nil {
		return err
	}
	if alert == nil {
		return fmt.Errorf("outbox alert %s not found", id)
	}
	alert.Status = models.AlertStatusFailed
	alert.LastError = lastError
	if err := s.store.db.Upsert(id, alert); err != nil {
		return fmt.Errorf("failed to mark alert failed: %w", err)
	}
	return nil
}

func (s *outboxStorage) IncrementAttempts(_ context.Context, id string, lastError string) error {
	alert, err := s.get(id)
	if err != nil {
		return err
	}
	if alert == nil {
		return fmt.Errorf("outbox alert %s not found", id)
	}
	alert.Attempts++
	alert.LastError = lastError
	if err := s.store.db.Upsert(id, alert); err != nil {
		return fmt.Errorf("failed to increment alert attempts: %w", err)
	}
	return nil
}

func (s *outboxStorage) ListDue(_ context.Context, now time.Time, limit int) ([]*models.OutboxAlert, error) {
	var alerts []models.OutboxAlert
	if err := s.store.db.Find(&alerts, badgerhold.Where("Status").Eq(models.AlertStatusPending)); err != nil {
		return nil, fmt.Errorf("failed to list due alerts: %w", err)
	}

	due := alerts[:0]
	for _, a := range alerts {
		if !a.ScheduledFor.After(now) {
			due = append(due, a)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority > due[j].Priority
		}
		return due[i].ScheduledFor.Before(due[j].ScheduledFor)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	result := make([]*models.OutboxAlert, len(due))
	for i := range due {
		result[i] = &due[i]
	}
	return result, nil
}

func (s *outboxStorage) PurgeTerminal(_ context.Context, olderThan time.Time) (int, error) {
	var alerts []models.OutboxAlert
	query := badgerhold.Where("Status").In(models.AlertStatusSent, models.AlertStatusFailed)
	if err := s.store.db.Find(&alerts, query); err != nil {
		return 0, fmt.Errorf("failed to find terminal alerts: %w", err)
	}

	count := 0
	for i := range alerts {
		if alerts[i].CreatedAt.After(olderThan) {
			continue
		}
		if err := s.store.db.Delete(alerts[i].ID, models.OutboxAlert{}); err != nil {
			return count, fmt.Errorf("failed to purge alert %s: %w", alerts[i].ID, err)
		}
		count++
	}
	return count, nil
}
