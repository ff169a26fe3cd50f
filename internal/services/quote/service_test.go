package quote

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/wofare/edgarwatch/internal/common"
	"github.com/wofare/edgarwatch/internal/interfaces"
	"github.com/wofare/edgarwatch/internal/models"
)

// --- Mocks ---

type mockProvider struct {
	name  string
	quote *models.Quote
	err   error
	calls int
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) GetQuote(_ context.Context, symbol, _ string) (*models.Quote, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	q := *m.quote
	q.Symbol = symbol
	return &q, nil
}

func goodQuote(price float64) *models.Quote {
	return &models.Quote{
		Current:       price,
		Open:          price - 1,
		High:          price + 1,
		Low:           price - 2,
		PreviousClose: price - 0.5,
		Change:        0.5,
		ChangePercent: 0.3,
		Volume:        1000,
		LastUpdated:   time.Now(),
		Sparkline:     []float64{price - 2, price - 1, price},
	}
}

func newTestService(providers ...interfaces.QuoteProvider) *Service {
	return NewService(providers, common.NewSilentLogger(),
		WithProviderRate(1000), // keep tests fast
	)
}

// --- Tests ---

func TestGetQuote_PrimarySuccess(t *testing.T) {
	alpha := &mockProvider{name: "alpha", quote: goodQuote(100)}
	svc := newTestService(alpha)

	q, err := svc.GetQuote(context.Background(), "AAPL", models.QuoteOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Provider != "alpha" {
		t.Errorf("provider = %q, want alpha", q.Provider)
	}
	if q.FallbackUsed {
		t.Error("fallback should not be used for primary success")
	}
	if q.PrimaryError != "" {
		t.Errorf("primary error = %q, want empty", q.PrimaryError)
	}
}

func TestGetQuote_FailoverToSecondProvider(t *testing.T) {
	alpha := &mockProvider{name: "alpha", err: errors.New("alpha is down")}
	finnhub := &mockProvider{name: "finnhub", quote: goodQuote(200)}
	svc := newTestService(alpha, finnhub)

	q, err := svc.GetQuote(context.Background(), "AAPL", models.QuoteOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Provider != "finnhub" {
		t.Errorf("provider = %q, want finnhub", q.Provider)
	}
	if !q.FallbackUsed {
		t.Error("fallback flag not set")
	}
	if !strings.Contains(q.PrimaryError, "alpha") {
		t.Errorf("primary error %q does not mention alpha", q.PrimaryError)
	}
	if len(q.ProviderChain) != 2 {
		t.Fatalf("provider chain = %d entries, want 2", len(q.ProviderChain))
	}
	if q.ProviderChain[0].Success || !q.ProviderChain[1].Success {
		t.Errorf("provider chain = %+v", q.ProviderChain)
	}
}

// For any prefix of failing providers, the returned quote carries the first
// succeeding provider and fallbackUsed = (k > 0).
func TestGetQuote_FallbackProperty(t *testing.T) {
	for k := 0; k < 4; k++ {
		var providers []interfaces.QuoteProvider
		names := []string{"alpha", "finnhub", "yahoo", "iex"}
		for i, name := range names {
			if i < k {
				providers = append(providers, &mockProvider{name: name, err: errors.New("down")})
			} else {
				providers = append(providers, &mockProvider{name: name, quote: goodQuote(50)})
			}
		}
		svc := newTestService(providers...)

		q, err := svc.GetQuote(context.Background(), "TSLA", models.QuoteOptions{SkipCache: true})
		if err != nil {
			t.Fatalf("k=%d: unexpected error: %v", k, err)
		}
		if q.Provider != names[k] {
			t.Errorf("k=%d: provider = %q, want %q", k, q.Provider, names[k])
		}
		if q.FallbackUsed != (k > 0) {
			t.Errorf("k=%d: fallbackUsed = %v", k, q.FallbackUsed)
		}
	}
}

func TestGetQuote_CacheHit(t *testing.T) {
	alpha := &mockProvider{name: "alpha", quote: goodQuote(100)}
	svc := newTestService(alpha)
	ctx := context.Background()

	if _, err := svc.GetQuote(ctx, "AAPL", models.QuoteOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.GetQuote(ctx, "AAPL", models.QuoteOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alpha.calls != 1 {
		t.Errorf("provider calls = %d, want 1 (second call should hit cache)", alpha.calls)
	}
}

func TestGetQuote_SkipCacheBypasses(t *testing.T) {
	alpha := &mockProvider{name: "alpha", quote: goodQuote(100)}
	svc := newTestService(alpha)
	ctx := context.Background()

	svc.GetQuote(ctx, "AAPL", models.QuoteOptions{})
	svc.GetQuote(ctx, "AAPL", models.QuoteOptions{SkipCache: true})
	if alpha.calls != 2 {
		t.Errorf("provider calls = %d, want 2", alpha.calls)
	}
}

func TestGetQuote_StaleFallback(t *testing.T) {
	alpha := &mockProvider{name: "alpha", quote: goodQuote(100)}
	svc := newTestService(alpha)
	ctx := context.Background()

	// Prime the cache at T0.
	if _, err := svc.GetQuote(ctx, "TSLA", models.QuoteOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Move past TTL and break the provider.
	later := time.Now().Add(svc.ttl + time.Second)
	svc.cache.now = func() time.Time { return later }
	svc.now = func() time.Time { return later }
	alpha.err = errors.New("provider exploded")
	alpha.quote = nil

	q, err := svc.GetQuote(ctx, "TSLA", models.QuoteOptions{AllowStale: true})
	if err != nil {
		t.Fatalf("expected stale quote, got error: %v", err)
	}
	if !q.Stale {
		t.Error("stale flag not set")
	}
	if q.StaleAge < time.Second {
		t.Errorf("stale age = %v, want >= 1s", q.StaleAge)
	}
}

func TestGetQuote_AllProvidersFailNoStale(t *testing.T) {
	alpha := &mockProvider{name: "alpha", err: errors.New("down")}
	finnhub := &mockProvider{name: "finnhub", err: errors.New("down too")}
	svc := newTestService(alpha, finnhub)

	_, err := svc.GetQuote(context.Background(), "NVDA", models.QuoteOptions{})
	var unavailable *models.AllProvidersUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected AllProvidersUnavailableError, got %v", err)
	}
	if len(unavailable.Attempted) != 2 {
		t.Errorf("attempted = %v, want both providers", unavailable.Attempted)
	}
}

func TestGetQuote_ForceProvider(t *testing.T) {
	alpha := &mockProvider{name: "alpha", quote: goodQuote(100)}
	finnhub := &mockProvider{name: "finnhub", quote: goodQuote(200)}
	svc := newTestService(alpha, finnhub)

	q, err := svc.GetQuote(context.Background(), "AAPL", models.QuoteOptions{ForceProvider: "finnhub"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Provider != "finnhub" {
		t.Errorf("provider = %q, want finnhub", q.Provider)
	}
	if alpha.calls != 0 {
		t.Errorf("alpha should not be called when finnhub is forced, calls = %d", alpha.calls)
	}

	if _, err := svc.GetQuote(context.Background(), "AAPL", models.QuoteOptions{ForceProvider: "nope"}); err == nil {
		t.Error("expected error for unknown forced provider")
	}
}

func TestGetQuote_RejectsMalformedResponses(t *testing.T) {
	// Non-positive price on the first provider, implausible change on the
	// second: the chain must continue past both to the third.
	bad1 := goodQuote(100)
	bad1.Current = 0
	bad2 := goodQuote(100)
	bad2.ChangePercent = 80

	svc := newTestService(
		&mockProvider{name: "alpha", quote: bad1},
		&mockProvider{name: "finnhub", quote: bad2},
		&mockProvider{name: "yahoo", quote: goodQuote(100)},
	)

	q, err := svc.GetQuote(context.Background(), "AAPL", models.QuoteOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Provider != "yahoo" {
		t.Errorf("provider = %q, want yahoo", q.Provider)
	}
}

func TestGetQuote_EmptySymbol(t *testing.T) {
	svc := newTestService(&mockProvider{name: "alpha", quote: goodQuote(1)})
	_, err := svc.GetQuote(context.Background(), "", models.QuoteOptions{})
	if models.KindOf(err) != models.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNormalizeSparkline_Truncates(t *testing.T) {
	q := &models.Quote{Sparkline: make([]float64, 500)}
	normalizeSparkline(q, models.Period1Y)
	if len(q.Sparkline) != 365 {
		t.Errorf("sparkline length = %d, want 365", len(q.Sparkline))
	}

	q = &models.Quote{Sparkline: []float64{1, 2, 3}}
	normalizeSparkline(q, models.Period1M)
	if len(q.Sparkline) != 3 {
		t.Errorf("short sparkline should pass through, got %d", len(q.Sparkline))
	}
}

func TestRenderSparklinePNG(t *testing.T) {
	q := goodQuote(100)
	png, err := RenderSparklinePNG(q)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if len(png) == 0 {
		t.Fatal("empty png")
	}
	// PNG magic bytes
	if png[0] != 0x89 || png[1] != 'P' || png[2] != 'N' || png[3] != 'G' {
		t.Error("output is not a png")
	}

	if _, err := RenderSparklinePNG(&models.Quote{Sparkline: []float64{1}}); err == nil {
		t.Error("expected error for single-point sparkline")
	}
}
