package models

// CompanyInfo is the company header from the EDGAR submissions feed.
type CompanyInfo struct {
	CIK            string   `json:"cik"` // 10-digit zero-padded
	Name           string   `json:"name"`
	SIC            string   `json:"sic"`
	SICDescription string   `json:"sic_description"`
	Tickers        []string `json:"tickers,omitempty"`
	Exchanges      []string `json:"exchanges,omitempty"`
}

// CompanySubmissions pairs the company header with its recent filings,
// pivoted out of EDGAR's parallel-array payload.
type CompanySubmissions struct {
	Company CompanyInfo  `json:"company"`
	Recent  []FilingMeta `json:"recent"`
}

// FilingDocument is one entry from a filing's index page.
type FilingDocument struct {
	Sequence    string `json:"sequence"`
	Description string `json:"description"`
	DocType     string `json:"doc_type"`
	Filename    string `json:"filename"`
}

// FilingContent is a fetched filing: its document list and the extracted
// text of the primary document.
type FilingContent struct {
	CIK         string           `json:"cik"`
	AccessionNo string           `json:"accession_no"`
	URL         string           `json:"url"`
	Documents   []FilingDocument `json:"documents"`
	PrimaryText string           `json:"primary_text"`
}

// TickerEntry is one row of the EDGAR ticker catalogue.
type TickerEntry struct {
	CIK    string `json:"cik"`
	Name   string `json:"name"`
	Ticker string `json:"ticker,omitempty"`
}
