// Package server provides the HTTP API for medsage.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/medsage/internal/config"
	"github.com/hyperjump/medsage/internal/indexer"
	"github.com/hyperjump/medsage/internal/rag"
	"github.com/hyperjump/medsage/internal/storage"
	"go.uber.org/zap"
)

// Server is the HTTP server for the medsage API.
type Server struct {
	engine   *rag.Engine
	ingestor *indexer.Ingestor
	ledger   storage.Storage
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine *rag.Engine,
	ingestor *indexer.Ingestor,
	ledger storage.Storage,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine:   engine,
		ingestor: ingestor,
		ledger:   ledger,
		config:   cfg,
		logger:   logger,
	}
}

// requestTimeout bounds a whole request, including model calls made during upload.
const requestTimeout = 120 * time.Second

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Compress(5))
			r.Post("/ask", s.handleAsk)
			r.Post("/consult", s.handleConsult)
			r.Post("/clear", s.handleClear)
			r.Get("/documents", s.handleListDocuments)
			r.Get("/status", s.handleStatus)
		})
	})
	return r
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
}

// Start listens on Addr and blocks until the server stops. It returns http.ErrServerClosed
// after Stop.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.Addr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      requestTimeout + 10*time.Second,
	}
	s.logger.Info("medsage API listening", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
