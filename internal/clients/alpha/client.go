// Package alpha provides a quote client for the Alpha Vantage API.
package alpha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/wofare/edgarwatch/internal/common"
	"github.com/wofare/edgarwatch/internal/interfaces"
	"github.com/wofare/edgarwatch/internal/models"
)

const (
	DefaultBaseURL = "https://www.alphavantage.co"
	DefaultTimeout = 10 * time.Second
)

// Client implements the QuoteProvider interface for Alpha Vantage.
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

// NewClient creates a new Alpha Vantage client
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
func (c *Client) Name() string { return models.ProviderAlpha }

func (c *Client) get(ctx context.Context, params url.Values, result interface{}) error {
	params.Set("apikey", c.apiKey)
	reqURL := fmt.Sprintf("%s/query?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &models.TransportError{Endpoint: "alphavantage", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &models.TransportError{Endpoint: "alphavantage: " + string(body), StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return &models.ProviderError{Provider: c.Name(), Reason: fmt.Sprintf("decode failed: %v", err)}
	}
	return nil
}

// globalQuoteResponse carries Alpha Vantage's string-typed quote fields.
type globalQuoteResponse struct {
	GlobalQuote struct {
		Symbol        string `json:"01. symbol"`
		Open          string `json:"02. open"`
		High          string `json:"03. high"`
		Low           string `json:"04. low"`
		Price         string `json:"05. price"`
		Volume        string `json:"06. volume"`
		PreviousClose string `json:"08. previous close"`
		Change        string `json:"09. change"`
		ChangePercent string `json:"10. change percent"`
	} `json:"Global Quote"`
}

type dailySeriesResponse struct {
	Series map[string]struct {
		Close string `json:"4. close"`
	} `json:"Time Series (Daily)"`
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// GetQuote retrieves a quote plus a daily-close sparkline for the period.
func (c *Client) GetQuote(ctx context.Context, symbol, period string) (*models.Quote, error) {
	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)

	var gq globalQuoteResponse
	if err := c.get(ctx, params, &gq); err != nil {
		return nil, err
	}
	if gq.GlobalQuote.Symbol == "" {
		return nil, &models.ProviderError{Provider: c.Name(), Reason: "empty global quote"}
	}

	pct := gq.GlobalQuote.ChangePercent
	if len(pct) > 0 && pct[len(pct)-1] == '%' {
		pct = pct[:len(pct)-1]
	}

	quote := &models.Quote{
		Symbol:        symbol,
		Current:       parseFloat(gq.GlobalQuote.Price),
		Open:          parseFloat(gq.GlobalQuote.Open),
		High:          parseFloat(gq.GlobalQuote.High),
		Low:           parseFloat(gq.GlobalQuote.Low),
		PreviousClose: parseFloat(gq.GlobalQuote.PreviousClose),
		Change:        parseFloat(gq.GlobalQuote.Change),
		ChangePercent: parseFloat(pct),
		Volume:        int64(parseFloat(gq.GlobalQuote.Volume)),
		LastUpdated:   time.Now(),
	}

	if spark, err := c.dailySparkline(ctx, symbol, period); err == nil {
		quote.Sparkline = spark
	} else {
		c.logger.Debug().Str("symbol", symbol).Err(err).Msg("Alpha sparkline fetch failed")
	}

	return quote, nil
}

// dailySparkline fetches the daily series and returns the trailing closes,
// oldest first.
func (c *Client) dailySparkline(ctx context.Context, symbol, period string) ([]float64, error) {
	params := url.Values{}
	params.Set("function", "TIME_SERIES_DAILY")
	params.Set("symbol", symbol)
	params.Set("outputsize", "compact")

	var ds dailySeriesResponse
	if err := c.get(ctx, params, &ds); err != nil {
		return nil, err
	}

	dates := make([]string, 0, len(ds.Series))
	for d := range ds.Series {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	points := models.SparklinePoints(period)
	if len(dates) > points {
		dates = dates[len(dates)-points:]
	}

	closes := make([]float64, 0, len(dates))
	for _, d := range dates {
		closes = append(closes, parseFloat(ds.Series[d].Close))
	}
	return closes, nil
}

// Ensure Client implements QuoteProvider
var _ interfaces.QuoteProvider = (*Client)(nil)
