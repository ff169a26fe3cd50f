// Package server exposes the read-path HTTP projections: ticker overview,
// filings list, filing diff view, and alert-settings CRUD. Authentication
// and sessions are external collaborators and not handled here.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/wofare/edgarwatch/internal/common"
	"github.com/wofare/edgarwatch/internal/interfaces"
	"github.com/wofare/edgarwatch/internal/models"
)

// Server wraps the HTTP mux over the read-path services.
type Server struct {
	storage interfaces.StorageManager
	quotes  interfaces.QuoteService
	stats   StatsSource
	logger  *common.Logger
	config  *common.Config

	httpServer *http.Server
}

// StatsSource exposes queue statistics for the job stats endpoint.
type StatsSource interface {
	Stats(ctx context.Context) (*models.JobStats, error)
}

// NewServer creates the read-path server.
func NewServer(
	storage interfaces.StorageManager,
	quotes interfaces.QuoteService,
	stats StatsSource,
	config *common.Config,
	logger *common.Logger,
) *Server {
	return &Server{
		storage: storage,
		quotes:  quotes,
		stats:   stats,
		config:  config,
		logger:  logger,
	}
}

// Handler builds the HTTP mux with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return mux
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
