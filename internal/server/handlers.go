package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wofare/edgarwatch/internal/common"
	"github.com/wofare/edgarwatch/internal/models"
	"github.com/wofare/edgarwatch/internal/services/quote"
)

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": common.GetVersion()})
}

// handleVersion handles GET /api/version.
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
	})
}

// handleJobStats handles GET /api/jobs/stats.
func (s *Server) handleJobStats(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	if s.stats == nil {
		WriteError(w, http.StatusServiceUnavailable, "job manager not running")
		return
	}
	stats, err := s.stats.Stats(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// handleOverview handles GET /api/overview/{symbol}: quote plus company and
// latest-filings projection.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	symbol := strings.TrimPrefix(r.URL.Path, "/api/overview/")
	if symbol == "" {
		WriteError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	opts := models.QuoteOptions{
		Period:     r.URL.Query().Get("period"),
		AllowStale: true,
		SkipCache:  r.URL.Query().Get("refresh") == "true",
	}

	q, err := s.quotes.GetQuote(r.Context(), symbol, opts)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}

	overview := map[string]any{"quote": q}

	if company, err := s.storage.CompanyStore().GetBySymbol(r.Context(), symbol); err == nil && company != nil {
		overview["company"] = company
		// Degradation signal: the poll cursor going stale means the filings
		// projection may lag EDGAR.
		overview["filingsCurrent"] = common.IsFresh(company.LastPolledAt, common.FreshnessPollCursor)
		filings, err := s.storage.FilingStore().Query(r.Context(), models.FilingQueryOptions{
			CIK:   company.CIK,
			Limit: 5,
		})
		if err == nil {
			overview["recentFilings"] = filingSummaries(filings)
		}
	}

	WriteJSON(w, http.StatusOK, overview)
}

// handleSparkline handles GET /api/sparkline/{symbol}: a rendered PNG.
func (s *Server) handleSparkline(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	symbol := strings.TrimPrefix(r.URL.Path, "/api/sparkline/")
	if symbol == "" {
		WriteError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	q, err := s.quotes.GetQuote(r.Context(), symbol, models.QuoteOptions{
		Period:     r.URL.Query().Get("period"),
		AllowStale: true,
	})
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}

	png, err := quote.RenderSparklinePNG(q)
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// filingSummary is the list projection of a filing.
type filingSummary struct {
	ID              string    `json:"id"`
	CIK             string    `json:"cik"`
	AccessionNo     string    `json:"accession_no"`
	FormType        string    `json:"form_type"`
	FiledDate       time.Time `json:"filed_date"`
	URL             string    `json:"url"`
	Summary         string    `json:"summary,omitempty"`
	MaterialChanges int       `json:"material_changes"`
	IsProcessed     bool      `json:"is_processed"`
}

func filingSummaries(filings []*models.Filing) []filingSummary {
	out := make([]filingSummary, len(filings))
	for i, f := range filings {
		out[i] = filingSummary{
			ID:              f.ID,
			CIK:             f.CIK,
			AccessionNo:     f.AccessionNo,
			FormType:        f.FormType,
			FiledDate:       f.FiledDate,
			URL:             f.URL,
			Summary:         f.Summary,
			MaterialChanges: f.MaterialChanges,
			IsProcessed:     f.IsProcessed,
		}
	}
	return out
}

// handleFilings handles GET /api/filings with the list filters.
func (s *Server) handleFilings(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()

	opts := models.FilingQueryOptions{
		CIK:                 q.Get("cik"),
		FormType:            q.Get("formType"),
		MaterialChangesOnly: q.Get("materialChangesOnly") == "true",
		SortBy:              q.Get("sortBy"),
		SortOrder:           q.Get("sortOrder"),
	}
	if ticker := q.Get("ticker"); ticker != "" && opts.CIK == "" {
		company, err := s.storage.CompanyStore().GetBySymbol(r.Context(), ticker)
		if err != nil || company == nil {
			WriteJSON(w, http.StatusOK, []filingSummary{})
			return
		}
		opts.CIK = company.CIK
	}
	if from := q.Get("dateFrom"); from != "" {
		opts.DateFrom, _ = time.Parse("2006-01-02", from)
	}
	if to := q.Get("dateTo"); to != "" {
		opts.DateTo, _ = time.Parse("2006-01-02", to)
	}
	if limit := q.Get("limit"); limit != "" {
		opts.Limit, _ = strconv.Atoi(limit)
	}
	if opts.Limit <= 0 || opts.Limit > 200 {
		opts.Limit = 50
	}

	filings, err := s.storage.FilingStore().Query(r.Context(), opts)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, filingSummaries(filings))
}

// handleFilingDiff handles GET /api/filings/diff?cik=&accessionNo= with
// materialityThreshold, section, and changeType filters.
func (s *Server) handleFilingDiff(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()

	cik := q.Get("cik")
	accession := q.Get("accessionNo")
	if cik == "" || accession == "" {
		WriteError(w, http.StatusBadRequest, "cik and accessionNo are required")
		return
	}

	filing, err := s.storage.FilingStore().GetByAccession(r.Context(), cik, accession)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if filing == nil {
		WriteError(w, http.StatusNotFound, "filing not found")
		return
	}

	opts := models.DiffQueryOptions{
		Section:    q.Get("section"),
		ChangeType: q.Get("changeType"),
	}
	if t := q.Get("materialityThreshold"); t != "" {
		threshold, err := strconv.ParseFloat(t, 64)
		if err != nil || threshold < 0 || threshold > 1 {
			WriteError(w, http.StatusBadRequest, "materialityThreshold must be within [0,1]")
			return
		}
		opts.MaterialityThreshold = threshold
	}

	diffs, err := s.storage.FilingStore().QueryDiffs(r.Context(), filing.ID, opts)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"filing": filingSummaries([]*models.Filing{filing})[0],
		"diffs":  diffs,
	})
}

// handleCompanies handles GET /api/companies.
func (s *Server) handleCompanies(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	companies, err := s.storage.CompanyStore().List(r.Context(), r.URL.Query().Get("activeOnly") == "true")
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, companies)
}

// handleAlertRules handles GET/PUT/DELETE /api/alerts/rules.
func (s *Server) handleAlertRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		userID := r.URL.Query().Get("userId")
		if userID == "" {
			WriteError(w, http.StatusBadRequest, "userId is required")
			return
		}
		rules, err := s.storage.AlertRuleStore().ListByUser(r.Context(), userID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, rules)

	case http.MethodPut, http.MethodPost:
		var rule models.AlertRule
		if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid rule payload")
			return
		}
		if err := s.storage.AlertRuleStore().Upsert(r.Context(), &rule); err != nil {
			writeTaxonomyError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, rule)

	case http.MethodDelete:
		q := r.URL.Query()
		err := s.storage.AlertRuleStore().Delete(r.Context(), q.Get("userId"), q.Get("alertType"), q.Get("method"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]bool{"deleted": true})

	default:
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleWatchlists handles GET/PUT/DELETE /api/alerts/watchlists.
func (s *Server) handleWatchlists(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		userID := r.URL.Query().Get("userId")
		if userID == "" {
			WriteError(w, http.StatusBadRequest, "userId is required")
			return
		}
		lists, err := s.storage.WatchlistStore().ListByUser(r.Context(), userID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, lists)

	case http.MethodPut, http.MethodPost:
		var watchlist models.Watchlist
		if err := json.NewDecoder(r.Body).Decode(&watchlist); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid watchlist payload")
			return
		}
		if err := s.storage.WatchlistStore().Upsert(r.Context(), &watchlist); err != nil {
			writeTaxonomyError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, watchlist)

	case http.MethodDelete:
		q := r.URL.Query()
		err := s.storage.WatchlistStore().Delete(r.Context(), q.Get("userId"), q.Get("companyId"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]bool{"deleted": true})

	default:
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// writeTaxonomyError maps the error taxonomy onto HTTP status codes.
func writeTaxonomyError(w http.ResponseWriter, err error) {
	switch models.KindOf(err) {
	case models.KindValidation:
		WriteError(w, http.StatusBadRequest, err.Error())
	case models.KindNotFound:
		WriteError(w, http.StatusNotFound, err.Error())
	case models.KindUnavailable:
		WriteError(w, http.StatusServiceUnavailable, err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
