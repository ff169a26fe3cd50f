package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/wofare/edgarwatch/internal/common"
	"github.com/wofare/edgarwatch/internal/interfaces"
	"github.com/wofare/edgarwatch/internal/models"
)

// PriceRefreshResult is the PRICE_REFRESH job result payload.
type PriceRefreshResult struct {
	Refreshed int `json:"refreshed"`
	Alerted   int `json:"alerted"`
	Errors    int `json:"errors"`
}

// PriceRefresh implements the PRICE_REFRESH job handler: refresh quotes for
// watched symbols and emit PRICE_CHANGE alerts past each watcher's threshold.
type PriceRefresh struct {
	storage interfaces.StorageManager
	quotes  interfaces.QuoteService
	queue   interfaces.Enqueuer
	logger  *common.Logger
	now     func() time.Time
}

// NewPriceRefresh creates the price refresh handler.
func NewPriceRefresh(storage interfaces.StorageManager, quotes interfaces.QuoteService, queue interfaces.Enqueuer, logger *common.Logger) *PriceRefresh {
	return &PriceRefresh{
		storage: storage,
		quotes:  quotes,
		queue:   queue,
		logger:  logger,
		now:     time.Now,
	}
}

// HandlePriceRefresh refreshes quotes for the requested symbols (or all
// actively watched companies when none given) and fans out threshold alerts.
func (p *PriceRefresh) HandlePriceRefresh(ctx context.Context, params models.PriceRefreshParams) (*PriceRefreshResult, error) {
	targets, err := p.resolveTargets(ctx, params.Symbols)
	if err != nil {
		return nil, err
	}

	result := &PriceRefreshResult{}
	for symbol, watchers := range targets {
		quote, err := p.quotes.GetQuote(ctx, symbol, models.QuoteOptions{AllowStale: true})
		if err != nil {
			p.logger.Warn().Str("symbol", symbol).Err(err).Msg("Price refresh quote failed")
			result.Errors++
			continue
		}
		result.Refreshed++

		for _, watch := range watchers {
			if watch.PriceChangeThreshold <= 0 {
				continue
			}
			if math.Abs(quote.ChangePercent) < watch.PriceChangeThreshold {
				continue
			}
			created, err := p.emitPriceAlert(ctx, watch, symbol, quote)
			if err != nil {
				p.logger.Warn().
					Str("symbol", symbol).
					Str("user", watch.UserID).
					Err(err).
					Msg("Price alert emit failed")
				continue
			}
			result.Alerted += created
		}
	}

	return result, nil
}

// resolveTargets maps each target symbol to the active watchlists that carry
// a PRICE_CHANGE subscription for it.
func (p *PriceRefresh) resolveTargets(ctx context.Context, symbols []string) (map[string][]*models.Watchlist, error) {
	watchers, err := p.storage.WatchlistStore().ListActive(ctx)
	if err != nil {
		return nil, err
	}

	requested := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		requested[s] = true
	}

	targets := make(map[string][]*models.Watchlist)
	for _, watch := range watchers {
		if !watchesType(watch, models.AlertTypePriceChange) {
			continue
		}
		company, err := p.storage.CompanyStore().GetByID(ctx, watch.CompanyID)
		if err != nil {
			return nil, err
		}
		if company == nil || company.Symbol == "" {
			continue
		}
		if len(requested) > 0 && !requested[company.Symbol] {
			continue
		}
		targets[company.Symbol] = append(targets[company.Symbol], watch)
	}
	return targets, nil
}

func (p *PriceRefresh) emitPriceAlert(ctx context.Context, watch *models.Watchlist, symbol string, quote *models.Quote) (int, error) {
	rules, err := p.storage.AlertRuleStore().ListEnabled(ctx, watch.UserID, models.AlertTypePriceChange)
	if err != nil {
		return 0, err
	}

	direction := "up"
	if quote.ChangePercent < 0 {
		direction = "down"
	}
	title := fmt.Sprintf("%s moved %s %.2f%%", symbol, direction, math.Abs(quote.ChangePercent))
	body := fmt.Sprintf("%s is at %.2f (%+.2f%%, previous close %.2f).",
		symbol, quote.Current, quote.ChangePercent, quote.PreviousClose)

	outbox := p.storage.OutboxStore()
	now := p.now()

	created := 0
	for _, rule := range rules {
		scheduledFor := now
		if inside, exit := quietWindowExit(now, rule.QuietHours); inside {
			scheduledFor = exit
		}

		// One price alert per (user, method, symbol, day).
		dedup := alertDedupKey(rule.UserID, rule.Method, symbol+":"+now.Format("2006-01-02"))
		if existing, err := outbox.GetByDedupKey(ctx, dedup); err != nil {
			return created, err
		} else if existing != nil {
			continue
		}

		alert := &models.OutboxAlert{
			UserID:       rule.UserID,
			Method:       rule.Method,
			Recipient:    rule.Recipient,
			AlertType:    models.AlertTypePriceChange,
			Title:        title,
			Body:         body,
			Priority:     models.PriorityNormal,
			DedupKey:     dedup,
			ScheduledFor: scheduledFor,
		}
		if err := outbox.Append(ctx, alert); err != nil {
			return created, err
		}
		created++

		if p.queue != nil {
			job := &models.Job{
				Type:         models.JobTypeDeliver,
				Priority:     models.PriorityNormal,
				Parameters:   models.MarshalParams(models.DeliverParams{AlertID: alert.ID}),
				ScheduledFor: scheduledFor,
				DedupKey:     "deliver:" + alert.ID,
				MaxRetries:   alert.MaxAttempts,
			}
			if _, err := p.queue.Enqueue(ctx, job); err != nil {
				p.logger.Warn().Str("alert", alert.ID).Err(err).Msg("Failed to enqueue price alert delivery")
			}
		}
	}
	return created, nil
}

// ParsePriceRefreshParams decodes the PRICE_REFRESH job payload.
func ParsePriceRefreshParams(raw json.RawMessage) (models.PriceRefreshParams, error) {
	var p models.PriceRefreshParams
	if len(raw) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, &models.ValidationError{Field: "parameters", Reason: "invalid price refresh payload"}
	}
	return p, nil
}
