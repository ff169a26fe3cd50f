package server

import "net/http"

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/jobs/stats", s.handleJobStats)

	// Market data
	mux.HandleFunc("/api/overview/", s.handleOverview)
	mux.HandleFunc("/api/sparkline/", s.handleSparkline)

	// Filings
	mux.HandleFunc("/api/filings", s.handleFilings)
	mux.HandleFunc("/api/filings/diff", s.handleFilingDiff)

	// Companies
	mux.HandleFunc("/api/companies", s.handleCompanies)

	// Alert settings
	mux.HandleFunc("/api/alerts/rules", s.handleAlertRules)
	mux.HandleFunc("/api/alerts/watchlists", s.handleWatchlists)
}
