package models

import "time"

// Filing represents one EDGAR submission for a company.
// Unique on (CIK, AccessionNo). Immutable once IsProcessed is true except for
// recomputed counters on a forced reprocess.
type Filing struct {
	ID           string    `json:"id" badgerhold:"unique"`
	CompanyID    string    `json:"company_id" badgerhold:"index"`
	CIK          string    `json:"cik" badgerhold:"index"`
	AccessionNo  string    `json:"accession_no"` // dashed canonical form
	FormType     string    `json:"form_type" badgerhold:"index"`
	FiledDate    time.Time `json:"filed_date"`
	ReportDate   time.Time `json:"report_date,omitempty"`
	URL          string    `json:"url"`
	RawContent   string    `json:"raw_content"`
	Summary      string    `json:"summary,omitempty"`
	KeyHighlights []string `json:"key_highlights,omitempty"`

	// Aggregate counters over owned Diffs. MaterialChanges counts diffs with
	// score >= 0.7; the section-name counters count diffs in matching sections.
	MaterialChanges   int `json:"material_changes"`
	RiskFactorChanges int `json:"risk_factor_changes"`
	BusinessChanges   int `json:"business_changes"`

	IsProcessed bool      `json:"is_processed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FilingKey returns the storage key for a filing: "{cik}:{accessionNo}".
// The key enforces (CIK, AccessionNo) uniqueness at the store level.
func FilingKey(cik, accessionNo string) string {
	return cik + ":" + accessionNo
}

// Section is a logical child of a Filing, re-derived on reprocess.
type Section struct {
	ID        string `json:"id" badgerhold:"unique"`
	FilingID  string `json:"filing_id" badgerhold:"index"`
	Type      string `json:"type"` // canonical tag, e.g. RISK_FACTORS
	Name      string `json:"name"`
	Order     int    `json:"order"`
	LineStart int    `json:"line_start"`
	LineEnd   int    `json:"line_end"`
	Content   string `json:"content"`
}

// Canonical section tags.
const (
	SectionBusiness            = "BUSINESS"
	SectionRiskFactors         = "RISK_FACTORS"
	SectionProperties          = "PROPERTIES"
	SectionLegalProceedings    = "LEGAL_PROCEEDINGS"
	SectionSelectedFinancial   = "SELECTED_FINANCIAL"
	SectionMDA                 = "MD_A"
	SectionFinancialStatements = "FINANCIAL_STATEMENTS"
	SectionControls            = "CONTROLS"
	SectionTriggeringEvents    = "TRIGGERING_EVENTS"
	SectionExhibits            = "EXHIBITS"
	SectionPreamble            = "PREAMBLE"
)

// FilingMeta is a lightweight filing descriptor from the EDGAR
// recent-submissions feed, before content is fetched.
type FilingMeta struct {
	AccessionNo     string    `json:"accession_no"` // dashed form
	FormType        string    `json:"form_type"`
	FiledDate       time.Time `json:"filed_date"`
	ReportDate      time.Time `json:"report_date,omitempty"`
	PrimaryDocument string    `json:"primary_document,omitempty"`
	Size            int64     `json:"size,omitempty"`
}

// FilingQueryOptions filters and sorts the filings read path.
type FilingQueryOptions struct {
	Ticker              string
	CIK                 string
	FormType            string
	DateFrom            time.Time
	DateTo              time.Time
	MaterialChangesOnly bool
	SortBy              string // "filedDate" (default), "materialChanges", "companyName"
	SortOrder           string // "desc" (default), "asc"
	Limit               int
}
