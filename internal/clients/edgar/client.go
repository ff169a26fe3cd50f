// Package edgar provides a polite client for the SEC EDGAR submission APIs.
package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/wofare/edgarwatch/internal/common"
	"github.com/wofare/edgarwatch/internal/interfaces"
	"github.com/wofare/edgarwatch/internal/models"
	"github.com/wofare/edgarwatch/internal/ratelimit"
)

const (
	DefaultBaseURL   = "https://data.sec.gov"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 10 // requests per second
	DefaultRetries   = 3

	// RateBucket is the shared limiter bucket for all EDGAR traffic.
	RateBucket = "edgar"
)

// Client implements the EdgarClient interface. All requests flow through the
// shared "edgar" limiter bucket and carry the mandatory descriptive
// User-Agent.
type Client struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *ratelimit.Limiter
	rateLimit  int
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error

	tickerMu    sync.Mutex
	tickerCache []models.TickerEntry
	tickerAt    time.Time
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithLimiter sets a shared rate limiter (per-process EDGAR throttling).
func WithLimiter(limiter *ratelimit.Limiter) ClientOption {
	return func(c *Client) {
		c.limiter = limiter
	}
}

// WithRateLimit sets the requests-per-second ceiling
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.rateLimit = requestsPerSecond
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithMaxRetries sets the retry budget for 429/5xx responses.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// NewClient creates a new EDGAR client. userAgent is mandatory and must
// identify the application and a contact email.
func NewClient(userAgent string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter:    ratelimit.New(),
		rateLimit:  DefaultRateLimit,
		maxRetries: DefaultRetries,
		logger:     common.NewSilentLogger(),
		sleep:      sleepCtx,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NormalizeCIK strips non-digits and zero-pads to 10 digits.
// Returns ErrInvalidCIK when nothing numeric remains or the result is too long.
func NormalizeCIK(cik string) (string, error) {
	var digits strings.Builder
	for _, r := range cik {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := strings.TrimLeft(digits.String(), "0")
	if digits.Len() == 0 || len(d) > 10 {
		return "", models.ErrInvalidCIK
	}
	if d == "" {
		d = "0"
	}
	return fmt.Sprintf("%010s", d), nil
}

// StripCIK returns the leading-zero-stripped CIK for archive paths.
func StripCIK(cik string) string {
	s := strings.TrimLeft(cik, "0")
	if s == "" {
		return "0"
	}
	return s
}

// NormalizeAccession returns the dashed canonical accession form
// NNNNNNNNNN-NN-NNNNNN. Input may be dashed or bare.
func NormalizeAccession(accession string) (string, error) {
	bare := strings.ReplaceAll(accession, "-", "")
	if len(bare) != 18 {
		return "", &models.ValidationError{Field: "accessionNo", Reason: "must be 18 digits"}
	}
	if _, err := strconv.ParseUint(bare, 10, 64); err != nil {
		return "", &models.ValidationError{Field: "accessionNo", Reason: "must be numeric"}
	}
	return bare[:10] + "-" + bare[10:12] + "-" + bare[12:], nil
}

// StripAccession returns the dashless accession form for archive paths.
func StripAccession(accession string) string {
	return strings.ReplaceAll(accession, "-", "")
}

// get performs a rate-limited GET with retry on 429/5xx.
// Retry delay is max(server Retry-After, 2^attempt seconds).
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	endpoint := c.baseURL + path

	var lastStatus int
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Acquire(ctx, RateBucket, c.rateLimit, time.Second); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)

		c.logger.Debug().Str("url", endpoint).Int("attempt", attempt).Msg("EDGAR request")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &models.TransportError{Endpoint: path, Err: err}
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			if readErr != nil {
				return nil, &models.TransportError{Endpoint: path, Err: readErr}
			}
			return body, nil
		case resp.StatusCode == http.StatusNotFound:
			return nil, &models.FilingNotFoundError{CIK: "", AccessionNo: path}
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastStatus = resp.StatusCode
			if attempt == c.maxRetries {
				break
			}
			delay := time.Duration(1<<uint(attempt)) * time.Second
			if ra := parseRetryAfter(resp.Header.Get("Retry-After")); ra > delay {
				delay = ra
			}
			c.logger.Warn().
				Str("url", endpoint).
				Int("status", resp.StatusCode).
				Dur("delay", delay).
				Msg("EDGAR retryable response, backing off")
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		default:
			return nil, &models.TransportError{Endpoint: path, StatusCode: resp.StatusCode}
		}
		break
	}

	if lastStatus == http.StatusTooManyRequests {
		return nil, &models.RateLimitError{Endpoint: path, Attempts: c.maxRetries + 1}
	}
	return nil, &models.TransportError{Endpoint: path, StatusCode: lastStatus}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// submissionsResponse mirrors EDGAR's /submissions payload. Recent filings
// arrive as parallel arrays that GetSubmissions pivots into records.
type submissionsResponse struct {
	CIK            string   `json:"cik"`
	Name           string   `json:"name"`
	SIC            string   `json:"sic"`
	SICDescription string   `json:"sicDescription"`
	Tickers        []string `json:"tickers"`
	Exchanges      []string `json:"exchanges"`
	Filings        struct {
		Recent struct {
			AccessionNumber []string `json:"accessionNumber"`
			FilingDate      []string `json:"filingDate"`
			ReportDate      []string `json:"reportDate"`
			Form            []string `json:"form"`
			PrimaryDocument []string `json:"primaryDocument"`
			Size            []int64  `json:"size"`
		} `json:"recent"`
	} `json:"filings"`
}

// GetSubmissions retrieves the company header plus recent filings for a CIK.
func (c *Client) GetSubmissions(ctx context.Context, cik string) (*models.CompanySubmissions, error) {
	padded, err := NormalizeCIK(cik)
	if err != nil {
		return nil, err
	}

	body, err := c.get(ctx, fmt.Sprintf("/submissions/CIK%s.json", padded))
	if err != nil {
		return nil, err
	}

	var resp submissionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode submissions: %w", err)
	}

	result := &models.CompanySubmissions{
		Company: models.CompanyInfo{
			CIK:            padded,
			Name:           resp.Name,
			SIC:            resp.SIC,
			SICDescription: resp.SICDescription,
			Tickers:        resp.Tickers,
			Exchanges:      resp.Exchanges,
		},
	}

	recent := resp.Filings.Recent
	n := len(recent.AccessionNumber)
	result.Recent = make([]models.FilingMeta, 0, n)
	for i := 0; i < n; i++ {
		meta := models.FilingMeta{
			AccessionNo: recent.AccessionNumber[i],
		}
		if i < len(recent.Form) {
			meta.FormType = recent.Form[i]
		}
		if i < len(recent.FilingDate) {
			meta.FiledDate, _ = time.Parse("2006-01-02", recent.FilingDate[i])
		}
		if i < len(recent.ReportDate) && recent.ReportDate[i] != "" {
			meta.ReportDate, _ = time.Parse("2006-01-02", recent.ReportDate[i])
		}
		if i < len(recent.PrimaryDocument) {
			meta.PrimaryDocument = recent.PrimaryDocument[i]
		}
		if i < len(recent.Size) {
			meta.Size = recent.Size[i]
		}
		result.Recent = append(result.Recent, meta)
	}

	return result, nil
}

// GetFilings retrieves filing metadata for a CIK, filtered and sorted by
// filed date descending.
func (c *Client) GetFilings(ctx context.Context, cik string, opts ...interfaces.FilingOption) ([]models.FilingMeta, error) {
	params := &interfaces.FilingParams{}
	for _, opt := range opts {
		opt(params)
	}

	subs, err := c.GetSubmissions(ctx, cik)
	if err != nil {
		return nil, err
	}

	filtered := make([]models.FilingMeta, 0, len(subs.Recent))
	for _, meta := range subs.Recent {
		if params.Form != "" && !strings.EqualFold(meta.FormType, params.Form) {
			continue
		}
		if !params.After.IsZero() && !meta.FiledDate.After(params.After) {
			continue
		}
		if !params.Before.IsZero() && !meta.FiledDate.Before(params.Before) {
			continue
		}
		filtered = append(filtered, meta)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].FiledDate.After(filtered[j].FiledDate)
	})

	if params.Count > 0 && len(filtered) > params.Count {
		filtered = filtered[:params.Count]
	}

	return filtered, nil
}

// tickerCatalogueEntry is one entry of the /files/company_tickers.json
// payload, which is a map of index strings to entries.
type tickerCatalogueEntry struct {
	CIK    int64  `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

// SearchCompanies searches the ticker catalogue by substring on name or
// ticker. The catalogue is cached in-process for 24 hours.
func (c *Client) SearchCompanies(ctx context.Context, query string) ([]models.TickerEntry, error) {
	catalogue, err := c.tickerCatalogue(ctx)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, &models.ValidationError{Field: "query", Reason: "must not be empty"}
	}

	var matches []models.TickerEntry
	for _, entry := range catalogue {
		if strings.Contains(strings.ToLower(entry.Name), q) ||
			strings.Contains(strings.ToLower(entry.Ticker), q) {
			matches = append(matches, entry)
		}
	}
	return matches, nil
}

func (c *Client) tickerCatalogue(ctx context.Context) ([]models.TickerEntry, error) {
	c.tickerMu.Lock()
	defer c.tickerMu.Unlock()

	if c.tickerCache != nil && common.IsFresh(c.tickerAt, common.FreshnessTickerCatalog) {
		return c.tickerCache, nil
	}

	body, err := c.get(ctx, "/files/company_tickers.json")
	if err != nil {
		return nil, err
	}

	var raw map[string]tickerCatalogueEntry
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode ticker catalogue: %w", err)
	}

	entries := make([]models.TickerEntry, 0, len(raw))
	for _, e := range raw {
		entries = append(entries, models.TickerEntry{
			CIK:    fmt.Sprintf("%010d", e.CIK),
			Name:   e.Title,
			Ticker: e.Ticker,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CIK < entries[j].CIK })

	c.tickerCache = entries
	c.tickerAt = time.Now()
	return entries, nil
}

// Ensure Client implements EdgarClient
var _ interfaces.EdgarClient = (*Client)(nil)
