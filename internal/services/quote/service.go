// Package quote provides normalized quote retrieval across an ordered
// provider chain with caching, circuit breaking, and stale-data fallback.
package quote

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wofare/edgarwatch/internal/common"
	"github.com/wofare/edgarwatch/internal/interfaces"
	"github.com/wofare/edgarwatch/internal/models"
	"github.com/wofare/edgarwatch/internal/ratelimit"
)

const (
	DefaultTTL             = common.FreshnessQuote
	DefaultProviderTimeout = 5 * time.Second
	DefaultProviderRate    = 5 // requests per second per provider

	// maxChangePercent rejects provider responses as malformed.
	maxChangePercent = 50
)

// Service implements QuoteService over an ordered provider chain. Each
// provider attempt passes through its own limiter bucket, a per-provider
// timeout, and a circuit breaker.
type Service struct {
	providers []interfaces.QuoteProvider
	breakers  map[string]*gobreaker.CircuitBreaker
	limiter   *ratelimit.Limiter
	cache     *quoteCache
	logger    *common.Logger

	ttl             time.Duration
	providerTimeout time.Duration
	providerRate    int
	now             func() time.Time // injectable clock for testing
}

// ServiceOption configures the service.
type ServiceOption func(*Service)

// WithTTL sets the per-symbol cache TTL.
func WithTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) { s.ttl = ttl }
}

// WithProviderTimeout sets the per-provider attempt timeout.
func WithProviderTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) { s.providerTimeout = timeout }
}

// WithProviderRate sets the per-provider requests-per-second ceiling.
func WithProviderRate(rps int) ServiceOption {
	return func(s *Service) { s.providerRate = rps }
}

// WithLimiter sets a shared rate limiter.
func WithLimiter(limiter *ratelimit.Limiter) ServiceOption {
	return func(s *Service) { s.limiter = limiter }
}

// NewService creates a quote service over providers in chain order.
func NewService(providers []interfaces.QuoteProvider, logger *common.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		providers:       providers,
		breakers:        make(map[string]*gobreaker.CircuitBreaker, len(providers)),
		limiter:         ratelimit.New(),
		cache:           newQuoteCache(),
		logger:          logger,
		ttl:             DefaultTTL,
		providerTimeout: DefaultProviderTimeout,
		providerRate:    DefaultProviderRate,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, p := range providers {
		s.breakers[p.Name()] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "quote:" + p.Name(),
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		})
	}

	return s
}

// GetQuote retrieves a quote for the symbol. Provider order: cache (unless
// skipped), then each provider in chain order, then the stale cache when
// allowed. Every provider response is validated before use.
func (s *Service) GetQuote(ctx context.Context, symbol string, opts models.QuoteOptions) (*models.Quote, error) {
	if symbol == "" {
		return nil, &models.ValidationError{Field: "symbol", Reason: "must not be empty"}
	}
	if opts.Period == "" {
		opts.Period = models.Period1M
	}

	chain := s.chainFor(opts.ForceProvider)
	if len(chain) == 0 {
		return nil, &models.ValidationError{Field: "forceProvider", Reason: "unknown provider " + opts.ForceProvider}
	}

	if !opts.SkipCache {
		if cached, _, fresh := s.cache.Get(symbol); fresh {
			s.logger.Debug().Str("symbol", symbol).Msg("Quote cache hit")
			return cached, nil
		}
	}

	var attempts []models.ProviderAttempt
	var primaryError string

	for idx, provider := range chain {
		quote, err := s.attempt(ctx, provider, symbol, opts.Period)
		if err != nil {
			if idx == 0 {
				primaryError = fmt.Sprintf("%s: %v", provider.Name(), err)
			}
			attempts = append(attempts, models.ProviderAttempt{
				Provider: provider.Name(),
				Success:  false,
				Error:    err.Error(),
			})
			s.logger.Warn().
				Str("symbol", symbol).
				Str("provider", provider.Name()).
				Err(err).
				Msg("Quote provider attempt failed")
			continue
		}

		attempts = append(attempts, models.ProviderAttempt{Provider: provider.Name(), Success: true})

		quote.Provider = provider.Name()
		quote.FallbackUsed = idx > 0
		quote.PrimaryError = primaryError
		quote.ProviderChain = attempts
		normalizeSparkline(quote, opts.Period)

		s.cache.Put(symbol, quote, s.ttl)
		return quote, nil
	}

	// Every provider failed: stale fallback when permitted.
	if opts.AllowStale {
		if cached, age, _ := s.cache.Get(symbol); cached != nil {
			s.logger.Warn().
				Str("symbol", symbol).
				Dur("age", age).
				Msg("All quote providers failed, serving stale cache")
			cached.Stale = true
			cached.StaleAge = s.now().Sub(cached.LastUpdated)
			cached.ProviderChain = attempts
			cached.PrimaryError = primaryError
			return cached, nil
		}
	}

	attempted := make([]string, len(attempts))
	for i, a := range attempts {
		attempted[i] = a.Provider
	}
	return nil, &models.AllProvidersUnavailableError{Symbol: symbol, Attempted: attempted}
}

// chainFor returns the provider chain, pinned to one provider when forced.
func (s *Service) chainFor(forceProvider string) []interfaces.QuoteProvider {
	if forceProvider == "" {
		return s.providers
	}
	for _, p := range s.providers {
		if p.Name() == forceProvider {
			return []interfaces.QuoteProvider{p}
		}
	}
	return nil
}

// attempt runs one provider call behind its bucket, timeout, and breaker,
// then validates the response.
func (s *Service) attempt(ctx context.Context, provider interfaces.QuoteProvider, symbol, period string) (*models.Quote, error) {
	bucket := "quote:" + provider.Name()
	if err := s.limiter.Acquire(ctx, bucket, s.providerRate, time.Second); err != nil {
		return nil, err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	result, err := s.breakers[provider.Name()].Execute(func() (interface{}, error) {
		return provider.GetQuote(attemptCtx, symbol, period)
	})
	if err != nil {
		return nil, err
	}

	quote := result.(*models.Quote)
	if err := validateQuote(provider.Name(), quote); err != nil {
		return nil, err
	}
	return quote, nil
}

// validateQuote rejects malformed provider responses before caching.
func validateQuote(provider string, q *models.Quote) error {
	if q == nil {
		return &models.ProviderError{Provider: provider, Reason: "nil quote"}
	}
	if q.Current <= 0 {
		return &models.ProviderError{Provider: provider, Reason: fmt.Sprintf("non-positive price %.4f", q.Current)}
	}
	if math.Abs(q.ChangePercent) > maxChangePercent {
		return &models.ProviderError{Provider: provider, Reason: fmt.Sprintf("implausible change %.2f%%", q.ChangePercent)}
	}
	if q.LastUpdated.IsZero() {
		q.LastUpdated = time.Now()
	}
	return nil
}

// normalizeSparkline trims an oversize series to the period's point count.
// Providers may downsample; short series pass through unchanged.
func normalizeSparkline(q *models.Quote, period string) {
	points := models.SparklinePoints(period)
	if len(q.Sparkline) > points {
		q.Sparkline = q.Sparkline[len(q.Sparkline)-points:]
	}
}

// PruneCache drops cache entries older than the retention window.
func (s *Service) PruneCache(retention time.Duration) int {
	return s.cache.Prune(retention)
}

// Ensure Service implements QuoteService
var _ interfaces.QuoteService = (*Service)(nil)
