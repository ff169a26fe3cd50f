package alerts

import (
	"context"
	"errors"
	"testing"

	"github.com/wofare/edgarwatch/internal/common"
	"github.com/wofare/edgarwatch/internal/models"
)

type stubQuotes struct {
	quotes map[string]*models.Quote
}

func (s *stubQuotes) GetQuote(_ context.Context, symbol string, _ models.QuoteOptions) (*models.Quote, error) {
	q, ok := s.quotes[symbol]
	if !ok {
		return nil, errors.New("no quote")
	}
	return q, nil
}

func TestHandlePriceRefresh_AlertsOverThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Watcher subscribed to price changes at a 5% threshold.
	if err := f.storage.WatchlistStore().Upsert(ctx, &models.Watchlist{
		UserID:               "u1",
		CompanyID:            f.company.ID,
		AlertTypes:           []string{models.AlertTypePriceChange},
		PriceChangeThreshold: 5,
		IsActive:             true,
	}); err != nil {
		t.Fatalf("watchlist upsert: %v", err)
	}
	if err := f.storage.AlertRuleStore().Upsert(ctx, &models.AlertRule{
		UserID:    "u1",
		AlertType: models.AlertTypePriceChange,
		Method:    models.MethodPush,
		IsEnabled: true,
		Frequency: models.FrequencyImmediate,
	}); err != nil {
		t.Fatalf("rule upsert: %v", err)
	}

	quotes := &stubQuotes{quotes: map[string]*models.Quote{
		"AAPL": {Symbol: "AAPL", Current: 90, PreviousClose: 100, ChangePercent: -10},
	}}
	handler := NewPriceRefresh(f.storage, quotes, f.queue, common.NewSilentLogger())

	result, err := handler.HandlePriceRefresh(ctx, models.PriceRefreshParams{})
	if err != nil {
		t.Fatalf("HandlePriceRefresh: %v", err)
	}
	if result.Refreshed != 1 || result.Alerted != 1 {
		t.Fatalf("result = %+v, want 1 refreshed and 1 alerted", result)
	}

	pending, _ := f.storage.OutboxStore().ListPendingByUser(ctx, "u1", models.MethodPush, models.AlertTypePriceChange)
	if len(pending) != 1 {
		t.Fatalf("pending price alerts = %d, want 1", len(pending))
	}

	// A second refresh the same day dedupes.
	result, err = handler.HandlePriceRefresh(ctx, models.PriceRefreshParams{})
	if err != nil {
		t.Fatalf("second HandlePriceRefresh: %v", err)
	}
	if result.Alerted != 0 {
		t.Errorf("second run alerted = %d, want 0 (same-day dedup)", result.Alerted)
	}
}

func TestHandlePriceRefresh_UnderThresholdNoAlert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.storage.WatchlistStore().Upsert(ctx, &models.Watchlist{
		UserID:               "u1",
		CompanyID:            f.company.ID,
		AlertTypes:           []string{models.AlertTypePriceChange},
		PriceChangeThreshold: 5,
		IsActive:             true,
	})

	quotes := &stubQuotes{quotes: map[string]*models.Quote{
		"AAPL": {Symbol: "AAPL", Current: 101, PreviousClose: 100, ChangePercent: 1},
	}}
	handler := NewPriceRefresh(f.storage, quotes, f.queue, common.NewSilentLogger())

	result, err := handler.HandlePriceRefresh(ctx, models.PriceRefreshParams{})
	if err != nil {
		t.Fatalf("HandlePriceRefresh: %v", err)
	}
	if result.Alerted != 0 {
		t.Errorf("alerted = %d, want 0", result.Alerted)
	}
}
