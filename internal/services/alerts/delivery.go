package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/wofare/edgarwatch/internal/common"
	"github.com/wofare/edgarwatch/internal/interfaces"
	"github.com/wofare/edgarwatch/internal/models"
)

// DeliverResult is the DELIVER job result payload.
type DeliverResult struct {
	NotFound  bool   `json:"notFound,omitempty"`
	Skipped   bool   `json:"skipped,omitempty"`
	Delivered bool   `json:"delivered,omitempty"`
	MessageID string `json:"messageId,omitempty"`
}

// Delivery implements the DELIVER job handler: it drains outbox alerts into
// the external dispatcher, throttled by a client-side limiter. Retries are
// driven by the job queue; terminal state lands on the outbox row.
type Delivery struct {
	storage    interfaces.StorageManager
	dispatcher interfaces.Dispatcher
	logger     *common.Logger
	limiter    *rate.Limiter
	now        func() time.Time
}

// NewDelivery creates the delivery handler. dispatchesPerSecond throttles
// calls into the dispatcher.
func NewDelivery(storage interfaces.StorageManager, dispatcher interfaces.Dispatcher, dispatchesPerSecond int, logger *common.Logger) *Delivery {
	if dispatchesPerSecond <= 0 {
		dispatchesPerSecond = 5
	}
	return &Delivery{
		storage:    storage,
		dispatcher: dispatcher,
		logger:     logger,
		limiter:    rate.NewLimiter(rate.Limit(dispatchesPerSecond), dispatchesPerSecond),
		now:        time.Now,
	}
}

// HandleDeliver dispatches one outbox alert. A failed dispatch increments
// the alert's attempts and returns an error so the queue retries; once the
// attempt budget is spent the alert is marked FAILED terminally.
func (d *Delivery) HandleDeliver(ctx context.Context, params models.DeliverParams) (*DeliverResult, error) {
	outbox := d.storage.OutboxStore()

	alert, err := outbox.GetByID(ctx, params.AlertID)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return &DeliverResult{NotFound: true}, nil
	}
	if alert.IsTerminal() {
		return &DeliverResult{Skipped: true}, nil
	}

	// Not yet due (quiet hours): error into the retry path so the queue
	// reschedules rather than dropping the alert.
	if alert.ScheduledFor.After(d.now()) {
		return nil, &models.TransportError{
			Endpoint: "outbox:" + alert.ID,
			Err:      fmt.Errorf("alert not due until %s", alert.ScheduledFor.Format(time.RFC3339)),
		}
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := d.dispatcher.Dispatch(ctx, alert)
	if err != nil || result == nil || !result.Success {
		reason := "dispatch failed"
		if err != nil {
			reason = err.Error()
		} else if result != nil && result.Error != "" {
			reason = result.Error
		}

		if incErr := outbox.IncrementAttempts(ctx, alert.ID, reason); incErr != nil {
			d.logger.Warn().Str("alert", alert.ID).Err(incErr).Msg("Failed to record delivery attempt")
		}

		if alert.Attempts+1 >= alert.MaxAttempts {
			if failErr := outbox.MarkFailed(ctx, alert.ID, reason); failErr != nil {
				d.logger.Warn().Str("alert", alert.ID).Err(failErr).Msg("Failed to mark alert failed")
			}
			d.logger.Warn().
				Str("alert", alert.ID).
				Str("method", alert.Method).
				Str("reason", reason).
				Msg("Alert delivery failed terminally")
		}

		return nil, &models.TransportError{Endpoint: "dispatcher", Err: fmt.Errorf("%s", reason)}
	}

	if err := outbox.MarkSent(ctx, alert.ID); err != nil {
		return nil, err
	}

	d.logger.Debug().
		Str("alert", alert.ID).
		Str("method", alert.Method).
		Str("message_id", result.ProviderMessageID).
		Msg("Alert delivered")

	return &DeliverResult{Delivered: true, MessageID: result.ProviderMessageID}, nil
}

// ParseDeliverParams decodes the DELIVER job payload.
func ParseDeliverParams(raw json.RawMessage) (models.DeliverParams, error) {
	var p models.DeliverParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, &models.ValidationError{Field: "parameters", Reason: "invalid deliver payload"}
	}
	return p, nil
}
