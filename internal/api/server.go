package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/goodtune/playgate/internal/playtime"
	"github.com/goodtune/playgate/internal/storage"
)

// Config holds the API server configuration.
type Config struct {
	ListenAddr      string
	AllowedOrigins  []string
	RateLimit       int
	RateLimitWindow time.Duration
	ApplicationID   string // default for usage queries
	DateLayout      string
}

// Server is the HTTP API that page sessions use to drive their trackers.
type Server struct {
	config      Config
	registry    *playtime.Registry
	usage       storage.UsageReporter
	rateLimiter *RateLimiter
	server      *http.Server
	router      *mux.Router
	handler     http.Handler
	listener    net.Listener
	logger      zerolog.Logger
}

// NewServer creates a new API server. usage may be nil when the ledger
// backend keeps no per-day totals.
func NewServer(cfg Config, registry *playtime.Registry, usage storage.UsageReporter, logger zerolog.Logger) *Server {
	if cfg.DateLayout == "" {
		cfg.DateLayout = playtime.DefaultDateLayout
	}

	s := &Server{
		config:   cfg,
		registry: registry,
		usage:    usage,
		router:   mux.NewRouter(),
		logger:   logger.With().Str("component", "api").Logger(),
	}

	if cfg.RateLimit > 0 {
		window := cfg.RateLimitWindow
		if window == 0 {
			window = time.Minute
		}
		s.rateLimiter = NewRateLimiter(cfg.RateLimit, window)
	}

	s.setupRoutes()

	s.handler = s.router
	if len(cfg.AllowedOrigins) > 0 {
		// Preflights never reach the router
		s.handler = newCORS(cfg.AllowedOrigins).Handler(s.router)
	}

	s.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Use(LoggingMiddleware(s.logger))
	if s.rateLimiter != nil {
		s.router.Use(RateLimitMiddleware(s.rateLimiter))
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	s.router.HandleFunc("/api/sessions", s.handleOpenSession).Methods("POST")
	s.router.HandleFunc("/api/sessions/{id}", s.handleGetSession).Methods("GET")
	s.router.HandleFunc("/api/sessions/{id}", s.handleCloseSession).Methods("DELETE")
	s.router.HandleFunc("/api/sessions/{id}/game", s.handleGameState).Methods("PUT")
	s.router.HandleFunc("/api/sessions/{id}/start", s.handleStart).Methods("POST")
	s.router.HandleFunc("/api/sessions/{id}/stop", s.handleStop).Methods("POST")
	s.router.HandleFunc("/api/sessions/{id}/strict", s.handleStrictMode).Methods("PUT")

	s.router.HandleFunc("/api/usage/{date}", s.handleDailyUsage).Methods("GET")
}

// Handler returns the server's root handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// SetListener sets a pre-existing listener (for systemd socket activation).
func (s *Server) SetListener(listener net.Listener) {
	s.listener = listener
}

// Start starts the API server.
func (s *Server) Start() error {
	if s.listener != nil {
		s.logger.Info().
			Str("addr", s.listener.Addr().String()).
			Msg("Starting API server with socket-activated listener")

		go func() {
			if err := s.server.Serve(s.listener); err != nil && err != http.ErrServerClosed {
				s.logger.Error().Err(err).Msg("API server error")
			}
		}()
		return nil
	}

	s.logger.Info().Str("addr", s.config.ListenAddr).Msg("Starting API server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()

	return nil
}

// Stop gracefully stops the API server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping API server")

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}

	return nil
}
