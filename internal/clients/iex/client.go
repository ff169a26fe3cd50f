// Package iex provides a quote client for the IEX Cloud API.
package iex

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
	DefaultBaseURL = "https://cloud.iexapis.com/stable"
	DefaultTimeout = 10 * time.Second
)

// Client implements the QuoteProvider interface for IEX Cloud.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
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

// NewClient creates a new IEX Cloud client
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the provider chain identifier.
func (c *Client) Name() string { return models.ProviderIEX }

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	params := url.Values{}
	params.Set("token", c.apiKey)
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &models.TransportError{Endpoint: "iex" + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &models.ProviderError{Provider: c.Name(), Reason: "unknown symbol"}
	}
	if resp.StatusCode != http.StatusOK {
		return &models.TransportError{Endpoint: "iex" + path, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return &models.ProviderError{Provider: c.Name(), Reason: fmt.Sprintf("decode failed: %v", err)}
	}
	return nil
}

// quoteResponse is IEX's /stock/{symbol}/quote shape.
type quoteResponse struct {
	Symbol        string  `json:"symbol"`
	LatestPrice   float64 `json:"latestPrice"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	PreviousClose float64 `json:"previousClose"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"` // fractional, e.g. 0.0123
	Volume        int64   `json:"latestVolume"`
	MarketCap     float64 `json:"marketCap"`
	LatestUpdate  int64   `json:"latestUpdate"` // epoch millis
}

type chartBar struct {
	Close float64 `json:"close"`
}

func chartRange(period string) string {
	switch period {
	case models.Period1D:
		return "1d"
	case models.Period1W:
		return "5d"
	case models.Period1M:
		return "1m"
	case models.Period3M:
		return "3m"
	case models.Period1Y:
		return "1y"
	default:
		return "1m"
	}
}

// GetQuote retrieves a quote plus a chart sparkline for the period.
func (c *Client) GetQuote(ctx context.Context, symbol, period string) (*models.Quote, error) {
	var qr quoteResponse
	if err := c.get(ctx, fmt.Sprintf("/stock/%s/quote", url.PathEscape(symbol)), &qr); err != nil {
		return nil, err
	}

	quote := &models.Quote{
		Symbol:        symbol,
		Current:       qr.LatestPrice,
		Open:          qr.Open,
		High:          qr.High,
		Low:           qr.Low,
		PreviousClose: qr.PreviousClose,
		Change:        qr.Change,
		ChangePercent: qr.ChangePercent * 100,
		Volume:        qr.Volume,
		MarketCap:     qr.MarketCap,
		LastUpdated:   time.UnixMilli(qr.LatestUpdate),
	}
	if qr.LatestUpdate == 0 {
		quote.LastUpdated = time.Now()
	}

	var bars []chartBar
	path := fmt.Sprintf("/stock/%s/chart/%s", url.PathEscape(symbol), chartRange(period))
	if err := c.get(ctx, path, &bars); err == nil {
		points := models.SparklinePoints(period)
		closes := make([]float64, 0, len(bars))
		for _, b := range bars {
			closes = append(closes, b.Close)
		}
		if len(closes) > points {
			closes = closes[len(closes)-points:]
		}
		quote.Sparkline = closes
	} else {
		c.logger.Debug().Str("symbol", symbol).Err(err).Msg("IEX chart fetch failed")
	}

	return quote, nil
}

// Ensure Client implements QuoteProvider
var _ interfaces.QuoteProvider = (*Client)(nil)
