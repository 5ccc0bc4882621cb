// Package server exposes the scheduling engine over a small JSON HTTP API:
// schedule CRUD (updates re-arm), next-fire queries, work order completion
// and engagement, and a status endpoint.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fernwall/mainspring/logger"
	"github.com/fernwall/mainspring/scheduling"
	"github.com/fernwall/mainspring/trigger"
	"github.com/fernwall/mainspring/version"
)

// Server hosts the HTTP API and owns the trigger ticker's lifecycle.
type Server struct {
	db      *sql.DB
	service *scheduling.Service
	ticker  *trigger.Ticker

	httpServer *http.Server
	log        *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a server. The ticker may be nil in tests that only exercise
// handlers.
func New(db *sql.DB, service *scheduling.Service, ticker *trigger.Ticker, port int, log *zap.SugaredLogger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		db:      db,
		service: service,
		ticker:  ticker,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}

	mux := http.NewServeMux()
	s.routes(mux)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins the ticker and serves HTTP until Shutdown. It blocks.
func (s *Server) Start() error {
	if s.ticker != nil {
		s.ticker.Start()
	}

	s.log.Infow("Mainspring server listening",
		"addr", s.httpServer.Addr,
		"version", version.Version)

	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains HTTP connections, then stops the ticker so no fire is
// dispatched into a torn-down stack.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	err := s.httpServer.Shutdown(ctx)
	if s.ticker != nil {
		s.ticker.Stop()
	}

	logger.Cleanup()
	return err
}
