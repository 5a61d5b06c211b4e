package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/goodtune/playgate/internal/api"
	"github.com/goodtune/playgate/internal/config"
	"github.com/goodtune/playgate/internal/metrics"
	"github.com/goodtune/playgate/internal/playfab"
	"github.com/goodtune/playgate/internal/playtime"
	"github.com/goodtune/playgate/internal/storage"
	"github.com/goodtune/playgate/internal/storage/redis"
	"github.com/goodtune/playgate/internal/systemd"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start playgate server",
	Long:  `Start the playgate API server, daily reset scheduler and metrics endpoint.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting playgate")

	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	backend, err := openLedger(cfg.Ledger)
	if err != nil {
		return fmt.Errorf("failed to initialize ledger: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close ledger")
		}
	}()

	if cfg.Ledger.ApplicationID == "" {
		logger.Warn().Msg("ledger.application_id is not set; sessions must supply one or ledger calls are skipped")
	}

	logger.Info().
		Str("backend", cfg.Ledger.Backend).
		Str("application_id", cfg.Ledger.ApplicationID).
		Msg("Ledger initialized")

	registry, err := playtime.NewRegistry(backend.Ledger(), playtime.RegistryConfig{
		Tracker:       trackerConfig(cfg.Playtime),
		MaxSessions:   cfg.Playtime.MaxSessions,
		ApplicationID: cfg.Ledger.ApplicationID,
		CloseTimeout:  parseDuration(cfg.Playtime.SaveTimeout, playtime.DefaultSaveTimeout),
		LoadTimeout:   parseDuration(cfg.Playtime.SaveTimeout, playtime.DefaultSaveTimeout),

		InactivityTimeout: parseDuration(cfg.Playtime.InactivityTimeout, playtime.DefaultInactivityTimeout),
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracker registry: %w", err)
	}

	logger.Info().
		Int64("daily_quota_seconds", cfg.Playtime.DailyQuotaSeconds).
		Bool("strict_mode", cfg.Playtime.StrictMode).
		Int("max_sessions", cfg.Playtime.MaxSessions).
		Str("inactivity_timeout", cfg.Playtime.InactivityTimeout).
		Msg("Tracker registry initialized")

	resetHour, resetMinute := cfg.Playtime.ResetClock()
	resetScheduler, err := playtime.NewResetScheduler(registry, resetHour, resetMinute, nil, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize reset scheduler: %w", err)
	}
	resetScheduler.Start()

	apiServer := api.NewServer(api.Config{
		ListenAddr:      fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.HTTPPort),
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		RateLimit:       cfg.Server.RateLimit,
		RateLimitWindow: parseDuration(cfg.Server.RateLimitWindow, time.Minute),
		ApplicationID:   cfg.Ledger.ApplicationID,
		DateLayout:      cfg.Playtime.DateLayout,
	}, registry, backend.Usage(), logger)

	if sdListeners.Activated && sdListeners.API != nil {
		apiServer.SetListener(sdListeners.API)
	}

	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	var metricsServer *metrics.Server
	if cfg.Server.MetricsPort > 0 {
		metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
		metricsServer = metrics.NewServer(metricsAddr, logger)

		if sdListeners.Activated && sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}

		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}

		logger.Info().Msgf("Metrics: http://%s/metrics", metricsAddr)
	}

	logger.Info().Msgf("API: http://%s:%d/api/sessions", cfg.Server.BindAddress, cfg.Server.HTTPPort)
	logger.Info().Msg("playgate startup complete")

	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	}

	watchdogCtx, stopWatchdog := context.WithCancel(context.Background())
	defer stopWatchdog()
	go systemd.RunWatchdog(watchdogCtx, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			// Force a rollover, e.g. after the host clock or timezone changed
			logger.Info().Msg("SIGHUP received, reloading live trackers")
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			n := registry.Rollover(ctx)
			cancel()
			logger.Info().Int("trackers_reloaded", n).Msg("Live trackers reloaded")
			continue
		}

		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received, gracefully stopping")
		break
	}

	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), parseDuration(cfg.Server.ShutdownTimeout, 15*time.Second))
	defer cancel()

	resetScheduler.Stop()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error stopping API server")
	}

	// Flush running sessions before the ledger closes
	if err := registry.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Not every session flushed before shutdown")
	}

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping metrics server")
		}
	}

	logger.Info().Msg("playgate stopped")

	return nil
}

// ledgerBackend couples a ledger store with its optional usage index.
type ledgerBackend struct {
	ledger storage.LedgerStore
	usage  storage.UsageReporter
	close  func() error
}

func (b *ledgerBackend) Ledger() storage.LedgerStore {
	return b.ledger
}

// Usage is nil when the backend keeps no per-day totals
func (b *ledgerBackend) Usage() storage.UsageReporter {
	return b.usage
}

func (b *ledgerBackend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

func openLedger(cfg config.LedgerConfig) (*ledgerBackend, error) {
	switch cfg.Backend {
	case "", "playfab":
		client := playfab.NewClient(playfab.Config{
			BaseURL: cfg.PlayFab.BaseURL,
			Timeout: parseDuration(cfg.PlayFab.Timeout, playfab.DefaultTimeout),
		})
		return &ledgerBackend{ledger: client}, nil

	case "redis":
		store, err := redis.Open(cfg.Redis)
		if err != nil {
			return nil, err
		}
		backend := &ledgerBackend{ledger: store.Ledger(), close: store.Close}
		if usage, ok := store.Ledger().(storage.UsageReporter); ok {
			backend.usage = usage
		}
		return backend, nil

	default:
		return nil, fmt.Errorf("unsupported ledger backend: %s (expected playfab or redis)", cfg.Backend)
	}
}

func trackerConfig(cfg config.PlaytimeConfig) playtime.Config {
	return playtime.Config{
		DailyQuotaSeconds: cfg.DailyQuotaSeconds,
		StrictMode:        cfg.StrictMode,
		DateLayout:        cfg.DateLayout,
		SaveTimeout:       parseDuration(cfg.SaveTimeout, playtime.DefaultSaveTimeout),
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
