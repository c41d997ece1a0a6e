// Package server provides the HTTP API for rtmgen.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/reqtrace/rtmgen/internal/config"
	"github.com/reqtrace/rtmgen/internal/pipeline"
	"github.com/reqtrace/rtmgen/internal/progress"
)

// uploadedFile is one stored spreadsheet awaiting generation runs.
type uploadedFile struct {
	Path     string
	FileName string
}

// Server is the HTTP server for the rtmgen API.
type Server struct {
	pipeline *pipeline.Pipeline
	tracker  *progress.Tracker
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server

	mu    sync.RWMutex
	files map[string]*uploadedFile
}

// NewServer creates a server with the given dependencies.
func NewServer(p *pipeline.Pipeline, tracker *progress.Tracker, cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		pipeline: p,
		tracker:  tracker,
		config:   cfg,
		logger:   logger,
		files:    make(map[string]*uploadedFile),
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/files", s.handleUpload)
	r.Get("/api/v1/files/{id}/sheets", s.handleSheets)
	r.Get("/api/v1/files/{id}/estimate", s.handleEstimate)
	r.Post("/api/v1/files/{id}/rtm", s.handleGenerate)
	r.Get("/api/v1/progress/{jobID}", s.handleProgress)
	r.Delete("/api/v1/progress/{jobID}", s.handleProgressDelete)
	r.Get("/api/v1/rtm/{jobID}/download", s.handleDownload)
	r.Get("/health", s.handleHealth)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) storeFile(id string, f *uploadedFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = f
}

func (s *Server) lookupFile(id string) (*uploadedFile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[id]
	return f, ok
}
