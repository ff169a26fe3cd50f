package models

import "time"

// Quote providers in default chain order.
const (
	ProviderAlpha   = "alpha"
	ProviderFinnhub = "finnhub"
	ProviderYahoo   = "yahoo"
	ProviderIEX     = "iex"
)

// Sparkline periods.
const (
	Period1D = "1D"
	Period1W = "1W"
	Period1M = "1M"
	Period3M = "3M"
	Period1Y = "1Y"
)

// SparklinePoints returns the expected sparkline length for a period.
// 1D uses 5-minute bars across the 6.5-hour trading session.
func SparklinePoints(period string) int {
	switch period {
	case Period1D:
		return 78
	case Period1W:
		return 7
	case Period1M:
		return 30
	case Period3M:
		return 90
	case Period1Y:
		return 365
	default:
		return 30
	}
}

// ProviderAttempt records one provider call in the fallback chain.
type ProviderAttempt struct {
	Provider string `json:"provider"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// Quote is the normalized quote record returned by the price adapter,
// regardless of which provider produced it.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Current       float64   `json:"current"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	PreviousClose float64   `json:"previous_close"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Volume        int64     `json:"volume"`
	MarketCap     float64   `json:"market_cap,omitempty"`
	LastUpdated   time.Time `json:"last_updated"`
	Sparkline     []float64 `json:"sparkline,omitempty"`

	Provider      string            `json:"provider"`
	FallbackUsed  bool              `json:"fallback_used"`
	PrimaryError  string            `json:"primary_error,omitempty"`
	Stale         bool              `json:"stale,omitempty"`
	StaleAge      time.Duration     `json:"stale_age,omitempty"`
	ProviderChain []ProviderAttempt `json:"provider_chain,omitempty"`
}

// QuoteOptions configures one GetQuote call.
type QuoteOptions struct {
	Period        string
	ForceProvider string
	SkipCache     bool
	AllowStale    bool
}
