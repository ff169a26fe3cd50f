// Package yahoo provides a quote client for the Yahoo Finance chart API.
package yahoo

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
	DefaultBaseURL = "https://query1.finance.yahoo.com"
	DefaultTimeout = 10 * time.Second
)

// Client implements the QuoteProvider interface for Yahoo Finance.
// One chart call yields both the quote header and the close series.
type Client struct {
	baseURL    string
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

// NewClient creates a new Yahoo client. No API key is required.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the provider chain identifier.
func (c *Client) Name() string { return models.ProviderYahoo }

// chartResponse is the subset of Yahoo's v8 chart payload the adapter reads.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				PreviousClose      float64 `json:"chartPreviousClose"`
				RegularMarketTime  int64   `json:"regularMarketTime"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func rangeForPeriod(period string) (string, string) {
	switch period {
	case models.Period1D:
		return "1d", "5m"
	case models.Period1W:
		return "5d", "1d"
	case models.Period1M:
		return "1mo", "1d"
	case models.Period3M:
		return "3mo", "1d"
	case models.Period1Y:
		return "1y", "1d"
	default:
		return "1mo", "1d"
	}
}

// GetQuote retrieves a quote and sparkline from one chart call.
func (c *Client) GetQuote(ctx context.Context, symbol, period string) (*models.Quote, error) {
	rng, interval := rangeForPeriod(period)
	params := url.Values{}
	params.Set("range", rng)
	params.Set("interval", interval)

	reqURL := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(symbol), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; edgarwatch)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &models.TransportError{Endpoint: "yahoo chart", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &models.TransportError{Endpoint: "yahoo chart", StatusCode: resp.StatusCode}
	}

	var cr chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, &models.ProviderError{Provider: c.Name(), Reason: fmt.Sprintf("decode failed: %v", err)}
	}
	if cr.Chart.Error != nil {
		return nil, &models.ProviderError{Provider: c.Name(), Reason: cr.Chart.Error.Description}
	}
	if len(cr.Chart.Result) == 0 || len(cr.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, &models.ProviderError{Provider: c.Name(), Reason: "empty chart result"}
	}

	result := cr.Chart.Result[0]
	bars := result.Indicators.Quote[0]

	quote := &models.Quote{
		Symbol:        symbol,
		Current:       result.Meta.RegularMarketPrice,
		PreviousClose: result.Meta.PreviousClose,
		LastUpdated:   time.Unix(result.Meta.RegularMarketTime, 0),
	}
	if result.Meta.RegularMarketTime == 0 {
		quote.LastUpdated = time.Now()
	}

	if quote.PreviousClose > 0 {
		quote.Change = quote.Current - quote.PreviousClose
		quote.ChangePercent = quote.Change / quote.PreviousClose * 100
	}

	// Session open/high/low/volume come from the bar series.
	for _, o := range bars.Open {
		if o > 0 {
			quote.Open = o
			break
		}
	}
	for _, h := range bars.High {
		if h > quote.High {
			quote.High = h
		}
	}
	for _, lo := range bars.Low {
		if lo > 0 && (quote.Low == 0 || lo < quote.Low) {
			quote.Low = lo
		}
	}
	for _, v := range bars.Volume {
		quote.Volume += v
	}

	points := models.SparklinePoints(period)
	closes := make([]float64, 0, len(bars.Close))
	for _, cl := range bars.Close {
		if cl > 0 {
			closes = append(closes, cl)
		}
	}
	if len(closes) > points {
		closes = closes[len(closes)-points:]
	}
	quote.Sparkline = closes

	return quote, nil
}

// Ensure Client implements QuoteProvider
var _ interfaces.QuoteProvider = (*Client)(nil)
