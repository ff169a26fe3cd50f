// Package alerts materializes per-user notifications from material filing
// changes and hands them to the external delivery dispatcher. Fan-out and
// delivery run as separate jobs: delivery failures never block ingestion,
// and fan-out failures never roll back alert creation.
package alerts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/wofare/edgarwatch/internal/common"
	"github.com/wofare/edgarwatch/internal/interfaces"
	"github.com/wofare/edgarwatch/internal/models"
)

// FanoutResult is the ALERT_FANOUT job result payload.
type FanoutResult struct {
	NotFound  bool `json:"notFound,omitempty"`
	Created   int  `json:"created"`
	Coalesced int  `json:"coalesced"`
	Skipped   int  `json:"skipped"`
}

// Service implements the ALERT_FANOUT job handler.
type Service struct {
	storage interfaces.StorageManager
	queue   interfaces.Enqueuer
	logger  *common.Logger
	now     func() time.Time
}

// NewService creates the fan-out service.
func NewService(storage interfaces.StorageManager, queue interfaces.Enqueuer, logger *common.Logger) *Service {
	return &Service{
		storage: storage,
		queue:   queue,
		logger:  logger,
		now:     time.Now,
	}
}

// alertDedupKey derives the outbox dedup key for (user, method, filing).
func alertDedupKey(userID, method, filingID string) string {
	sum := sha256.Sum256([]byte(userID + "|" + method + "|" + filingID))
	return hex.EncodeToString(sum[:])
}

// HandleFanout resolves watchers of the filing's company, evaluates their
// rules and quiet hours, and appends outbox alerts plus DELIVER jobs.
func (s *Service) HandleFanout(ctx context.Context, params models.FanoutParams) (*FanoutResult, error) {
	filings := s.storage.FilingStore()

	filing, err := filings.GetByID(ctx, params.FilingID)
	if err != nil {
		return nil, err
	}
	if filing == nil {
		return &FanoutResult{NotFound: true}, nil
	}

	materialDiffs, err := filings.QueryDiffs(ctx, filing.ID, models.DiffQueryOptions{MaterialityThreshold: 0.7})
	if err != nil {
		return nil, err
	}
	if len(materialDiffs) == 0 {
		return &FanoutResult{}, nil
	}

	company, err := s.storage.CompanyStore().GetByID(ctx, filing.CompanyID)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return &FanoutResult{NotFound: true}, nil
	}

	watchers, err := s.storage.WatchlistStore().ListByCompany(ctx, company.ID, true)
	if err != nil {
		return nil, err
	}

	result := &FanoutResult{}
	title, body := composeAlert(company, filing, materialDiffs)

	for _, watch := range watchers {
		if !watchesType(watch, models.AlertTypeMaterialChange) {
			result.Skipped++
			continue
		}

		rules, err := s.storage.AlertRuleStore().ListEnabled(ctx, watch.UserID, models.AlertTypeMaterialChange)
		if err != nil {
			return nil, err
		}

		for _, rule := range rules {
			created, coalesced, err := s.applyRule(ctx, rule, filing, title, body)
			if err != nil {
				s.logger.Warn().
					Str("user", rule.UserID).
					Str("filing", filing.ID).
					Err(err).
					Msg("Alert rule application failed")
				continue
			}
			if created {
				result.Created++
			}
			if coalesced {
				result.Coalesced++
			}
		}
	}

	s.logger.Info().
		Str("filing", filing.ID).
		Str("company", company.CIK).
		Int("created", result.Created).
		Int("coalesced", result.Coalesced).
		Msg("Alert fan-out complete")

	return result, nil
}

// applyRule evaluates one (user, rule) pair: quiet hours scheduling,
// frequency coalescing, outbox append, DELIVER enqueue.
func (s *Service) applyRule(ctx context.Context, rule *models.AlertRule, filing *models.Filing, title, body string) (created, coalesced bool, err error) {
	now := s.now()
	outbox := s.storage.OutboxStore()

	scheduledFor := now
	if inside, exit := quietWindowExit(now, rule.QuietHours); inside {
		scheduledFor = exit
	}

	// Non-immediate frequencies coalesce with a pending alert in the same
	// bucket instead of creating a new one.
	if bucket := coalesceBucket(rule.Frequency, now); bucket != "" {
		pending, err := outbox.ListPendingByUser(ctx, rule.UserID, rule.Method, models.AlertTypeMaterialChange)
		if err != nil {
			return false, false, err
		}
		for _, alert := range pending {
			if coalesceBucket(rule.Frequency, alert.CreatedAt) == bucket {
				if err := outbox.AppendBody(ctx, alert.ID, body); err != nil {
					return false, false, err
				}
				return false, true, nil
			}
		}
	}

	alert := &models.OutboxAlert{
		UserID:       rule.UserID,
		Method:       rule.Method,
		Recipient:    rule.Recipient,
		AlertType:    models.AlertTypeMaterialChange,
		Title:        title,
		Body:         body,
		Priority:     models.PriorityHigh,
		DedupKey:     alertDedupKey(rule.UserID, rule.Method, filing.ID),
		ScheduledFor: scheduledFor,
		CreatedAt:    now,
	}

	// The dedup key makes re-run fan-outs idempotent per (user, method, filing).
	if existing, err := outbox.GetByDedupKey(ctx, alert.DedupKey); err != nil {
		return false, false, err
	} else if existing != nil {
		return false, false, nil
	}

	if err := outbox.Append(ctx, alert); err != nil {
		return false, false, err
	}

	if s.queue != nil {
		job := &models.Job{
			Type:         models.JobTypeDeliver,
			Priority:     models.PriorityHigh,
			Parameters:   models.MarshalParams(models.DeliverParams{AlertID: alert.ID}),
			ScheduledFor: scheduledFor,
			DedupKey:     "deliver:" + alert.ID,
			MaxRetries:   alert.MaxAttempts,
		}
		if _, err := s.queue.Enqueue(ctx, job); err != nil {
			s.logger.Warn().Str("alert", alert.ID).Err(err).Msg("Failed to enqueue delivery")
		}
	}

	return true, false, nil
}

func watchesType(w *models.Watchlist, alertType string) bool {
	for _, t := range w.AlertTypes {
		if t == alertType {
			return true
		}
	}
	return false
}

// composeAlert renders the notification title and body from the filing's
// material diffs, highest score first.
func composeAlert(company *models.Company, filing *models.Filing, diffs []models.Diff) (string, string) {
	name := company.Name
	if name == "" {
		name = company.CIK
	}
	title := fmt.Sprintf("%s: material changes in %s filing", name, filing.FormType)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s filed a %s on %s with %d material change(s):\n",
		name, filing.FormType, filing.FiledDate.Format("2006-01-02"), len(diffs))

	limit := len(diffs)
	if limit > 5 {
		limit = 5
	}
	for _, d := range diffs[:limit] {
		fmt.Fprintf(&sb, "- [%.2f] %s\n", d.MaterialityScore, d.Summary)
	}
	if filing.Summary != "" {
		fmt.Fprintf(&sb, "\n%s\n", filing.Summary)
	}

	return title, sb.String()
}

// ParseFanoutParams decodes the ALERT_FANOUT job payload.
func ParseFanoutParams(raw json.RawMessage) (models.FanoutParams, error) {
	var p models.FanoutParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, &models.ValidationError{Field: "parameters", Reason: "invalid fanout payload"}
	}
	return p, nil
}
