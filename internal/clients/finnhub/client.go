// Package finnhub provides a quote client for the Finnhub API.
package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/wofare/edgarwatch/internal/common"
	"github.com/wofare/edgarwatch/internal/interfaces"
	"github.com/wofare/edgarwatch/internal/models"
)

const (
	DefaultBaseURL = "https://finnhub.io/api/v1"
	DefaultTimeout = 10 * time.Second
)

// Client implements the QuoteProvider interface for Finnhub.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	now        func() time.Time
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a new Finnhub client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     common.NewSilentLogger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the provider chain identifier.
func (c *Client) Name() string { return models.ProviderFinnhub }

func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	params.Set("token", c.apiKey)
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &models.TransportError{Endpoint: "finnhub" + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &models.TransportError{Endpoint: "finnhub" + path, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return &models.ProviderError{Provider: c.Name(), Reason: fmt.Sprintf("decode failed: %v", err)}
	}
	return nil
}

// quoteResponse is Finnhub's /quote shape.
type quoteResponse struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
	Timestamp     int64   `json:"t"`
}

// candleResponse is Finnhub's /stock/candle shape.
type candleResponse struct {
	Closes []float64 `json:"c"`
	Status string    `json:"s"`
}

// GetQuote retrieves a quote plus a daily-candle sparkline for the period.
func (c *Client) GetQuote(ctx context.Context, symbol, period string) (*models.Quote, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var qr quoteResponse
	if err := c.get(ctx, "/quote", params, &qr); err != nil {
		return nil, err
	}
	if qr.Current == 0 && qr.PreviousClose == 0 {
		return nil, &models.ProviderError{Provider: c.Name(), Reason: "empty quote"}
	}

	quote := &models.Quote{
		Symbol:        symbol,
		Current:       qr.Current,
		Open:          qr.Open,
		High:          qr.High,
		Low:           qr.Low,
		PreviousClose: qr.PreviousClose,
		Change:        qr.Change,
		ChangePercent: qr.ChangePercent,
		LastUpdated:   time.Unix(qr.Timestamp, 0),
	}
	if qr.Timestamp == 0 {
		quote.LastUpdated = c.now()
	}

	if spark, err := c.candleSparkline(ctx, symbol, period); err == nil {
		quote.Sparkline = spark
	} else {
		c.logger.Debug().Str("symbol", symbol).Err(err).Msg("Finnhub candle fetch failed")
	}

	return quote, nil
}

func (c *Client) candleSparkline(ctx context.Context, symbol, period string) ([]float64, error) {
	points := models.SparklinePoints(period)
	to := c.now()
	// Trading days are sparser than calendar days; over-fetch and trim.
	from := to.AddDate(0, 0, -(points*7)/5-3)

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("resolution", "D")
	params.Set("from", fmt.Sprintf("%d", from.Unix()))
	params.Set("to", fmt.Sprintf("%d", to.Unix()))

	var cr candleResponse
	if err := c.get(ctx, "/stock/candle", params, &cr); err != nil {
		return nil, err
	}
	if cr.Status != "ok" {
		return nil, &models.ProviderError{Provider: c.Name(), Reason: "candle status " + cr.Status}
	}

	closes := cr.Closes
	if len(closes) > points {
		closes = closes[len(closes)-points:]
	}
	return closes, nil
}

// Ensure Client implements QuoteProvider
var _ interfaces.QuoteProvider = (*Client)(nil)
