// Package server exposes the card graph engine over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sanonone/cardgraph/pkg/engine"
)

// Options configure a Server.
type Options struct {
	Addr           string
	AuthToken      string
	RebuildTimeout time.Duration
	Logger         *slog.Logger
}

// Server holds the HTTP interface and the engine options used for rebuilds.
type Server struct {
	Engine *engine.Engine

	httpServer  *http.Server
	taskManager *TaskManager
	authToken   string
	timeout     time.Duration
	logger      *slog.Logger

	mu        sync.RWMutex
	latest    *engine.Result
	latestSeq uint64
}

// NewServer wires the routes around eng.
func NewServer(eng *engine.Engine, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Engine:      eng,
		taskManager: NewTaskManager(),
		authToken:   opts.AuthToken,
		timeout:     opts.RebuildTimeout,
		logger:      logger,
	}

	mux := http.NewServeMux()
	s.registerHTTPHandlers(mux)

	// Chain middlewares: Recovery -> Logging -> Auth -> Mux.
	// Recovery must be outer-most to catch everything.
	var handler http.Handler = mux
	handler = s.authMiddleware(handler)
	handler = s.LoggingMiddleware(handler)
	handler = s.RecoveryMiddleware(handler)

	rootMux := http.NewServeMux()
	rootMux.HandleFunc("GET /healthz", s.handleHealthz)
	rootMux.Handle("GET /metrics", promhttp.Handler())
	rootMux.Handle("/", handler)
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           rootMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server startup failed: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server and cancels any running rebuild.
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown of HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}
	s.taskManager.CancelAll()
}

// setLatest keeps the result of the most recently started rebuild that
// completed.
func (s *Server) setLatest(seq uint64, res *engine.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq >= s.latestSeq {
		s.latest, s.latestSeq = res, seq
	}
}

func (s *Server) getLatest() *engine.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}
