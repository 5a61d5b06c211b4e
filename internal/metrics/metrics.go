package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Session metrics
	SessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "playgate_sessions_started_total",
			Help: "Total local play sessions started",
		},
	)

	SessionStartsRefused = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playgate_session_starts_refused_total",
			Help: "Session starts refused by the tracker",
		},
		[]string{"reason"},
	)

	TrackersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "playgate_trackers_active",
			Help: "Number of live playtime trackers",
		},
	)

	SessionsAbandoned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "playgate_sessions_abandoned_total",
			Help: "Sessions closed after their page stopped calling the API",
		},
	)

	QuotaExpirations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playgate_quota_expirations_total",
			Help: "Times a tracker observed the daily quota running out",
		},
		[]string{"trigger"},
	)

	// Ledger metrics
	LedgerOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playgate_ledger_operations_total",
			Help: "Ledger reads and writes by outcome",
		},
		[]string{"operation", "result"},
	)

	LedgerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "playgate_ledger_duration_seconds",
			Help:    "Ledger call duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	// Usage metrics
	PlaytimeSecondsFlushed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "playgate_playtime_seconds_flushed_total",
			Help: "Total play seconds flushed to the ledger",
		},
	)

	DailyRollovers = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "playgate_daily_rollovers_total",
			Help: "Daily reset runs that reloaded live trackers",
		},
	)

	// API metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playgate_http_requests_total",
			Help: "Total API requests processed",
		},
		[]string{"method", "route", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		SessionsStarted,
		SessionStartsRefused,
		TrackersActive,
		SessionsAbandoned,
		QuotaExpirations,
		LedgerOperations,
		LedgerDuration,
		PlaytimeSecondsFlushed,
		DailyRollovers,
		RequestsTotal,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
