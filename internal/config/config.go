package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Playtime PlaytimeConfig `mapstructure:"playtime"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig defines server ports and addresses
type ServerConfig struct {
	BindAddress     string   `mapstructure:"bind_address"`
	HTTPPort        int      `mapstructure:"http_port"`
	MetricsPort     int      `mapstructure:"metrics_port"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	RateLimit       int      `mapstructure:"rate_limit"`        // Requests per window per client
	RateLimitWindow string   `mapstructure:"rate_limit_window"`
	ShutdownTimeout string   `mapstructure:"shutdown_timeout"`
}

// PlaytimeConfig defines the daily quota and tracker behaviour
type PlaytimeConfig struct {
	DailyQuotaSeconds int64  `mapstructure:"daily_quota_seconds"`
	StrictMode        bool   `mapstructure:"strict_mode"`
	DateLayout        string `mapstructure:"date_layout"`
	DailyResetTime    string `mapstructure:"daily_reset_time"`
	SaveTimeout       string `mapstructure:"save_timeout"`
	MaxSessions       int    `mapstructure:"max_sessions"`
	InactivityTimeout string `mapstructure:"inactivity_timeout"` // "0s" disables
}

// LedgerConfig selects and configures the playtime ledger backend
type LedgerConfig struct {
	Backend       string        `mapstructure:"backend"` // "playfab" or "redis"
	ApplicationID string        `mapstructure:"application_id"`
	PlayFab       PlayFabConfig `mapstructure:"playfab"`
	Redis         RedisConfig   `mapstructure:"redis"`
}

// PlayFabConfig defines the PlayFab Client API connection
type PlayFabConfig struct {
	BaseURL string `mapstructure:"base_url"` // Defaults to https://{application_id}.playfabapi.com
	Timeout string `mapstructure:"timeout"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables.
// A .env file in the working directory is applied to the environment first.
func Load(configPath string) (*Config, error) {
	// Missing .env is normal outside development
	_ = godotenv.Load()

	v := viper.New()

	SetDefaults(v)

	v.SetConfigFile(configPath)
	v.SetEnvPrefix("PLAYGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The web front end exported the quota under these names
	if err := v.BindEnv("playtime.daily_quota_seconds",
		"PLAYGATE_PLAYTIME_DAILY_QUOTA_SECONDS",
		"NEXT_PUBLIC_DAILY_PLAYTIME_LIMIT",
		"DAILY_PLAYTIME_LIMIT",
	); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, use defaults and environment variables
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.bind_address", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.rate_limit", 600)
	v.SetDefault("server.rate_limit_window", "1m")
	v.SetDefault("server.shutdown_timeout", "15s")

	// Playtime defaults
	v.SetDefault("playtime.daily_quota_seconds", 3600)
	v.SetDefault("playtime.strict_mode", true)
	// Same format as Date.toDateString, so records the web front end wrote
	// stay valid for the current day
	v.SetDefault("playtime.date_layout", "Mon Jan 02 2006")
	v.SetDefault("playtime.daily_reset_time", "00:00")
	v.SetDefault("playtime.save_timeout", "10s")
	v.SetDefault("playtime.max_sessions", 10000)
	v.SetDefault("playtime.inactivity_timeout", "2m")

	// Ledger defaults
	v.SetDefault("ledger.backend", "playfab")
	v.SetDefault("ledger.application_id", "")
	v.SetDefault("ledger.playfab.base_url", "")
	v.SetDefault("ledger.playfab.timeout", "10s")
	v.SetDefault("ledger.redis.host", "localhost")
	v.SetDefault("ledger.redis.port", 6379)
	v.SetDefault("ledger.redis.db", 0)
	v.SetDefault("ledger.redis.pool_size", 10)
	v.SetDefault("ledger.redis.min_idle_conns", 2)
	v.SetDefault("ledger.redis.dial_timeout", "5s")
	v.SetDefault("ledger.redis.read_timeout", "3s")
	v.SetDefault("ledger.redis.write_timeout", "3s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", cfg.Server.HTTPPort)
	}
	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}
	if cfg.Server.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative: %d", cfg.Server.RateLimit)
	}
	if _, err := time.ParseDuration(cfg.Server.RateLimitWindow); err != nil {
		return fmt.Errorf("invalid rate_limit_window: %w", err)
	}
	if _, err := time.ParseDuration(cfg.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}

	if cfg.Playtime.DailyQuotaSeconds < 0 {
		return fmt.Errorf("daily_quota_seconds must not be negative: %d", cfg.Playtime.DailyQuotaSeconds)
	}
	if cfg.Playtime.DateLayout == "" {
		return fmt.Errorf("date_layout is required")
	}
	if _, err := time.Parse("15:04", cfg.Playtime.DailyResetTime); err != nil {
		return fmt.Errorf("invalid daily_reset_time %q (expected HH:MM): %w", cfg.Playtime.DailyResetTime, err)
	}
	if _, err := time.ParseDuration(cfg.Playtime.SaveTimeout); err != nil {
		return fmt.Errorf("invalid save_timeout: %w", err)
	}
	if cfg.Playtime.MaxSessions <= 0 {
		return fmt.Errorf("max_sessions must be positive: %d", cfg.Playtime.MaxSessions)
	}
	inactivity, err := time.ParseDuration(cfg.Playtime.InactivityTimeout)
	if err != nil {
		return fmt.Errorf("invalid inactivity_timeout: %w", err)
	}
	if inactivity < 0 {
		return fmt.Errorf("inactivity_timeout must not be negative: %s", inactivity)
	}

	switch cfg.Ledger.Backend {
	case "playfab":
		if _, err := time.ParseDuration(cfg.Ledger.PlayFab.Timeout); err != nil {
			return fmt.Errorf("invalid ledger.playfab.timeout: %w", err)
		}
	case "redis":
		if cfg.Ledger.Redis.Host == "" {
			return fmt.Errorf("ledger.redis.host is required for the redis backend")
		}
	default:
		return fmt.Errorf("unsupported ledger backend: %s (expected playfab or redis)", cfg.Ledger.Backend)
	}

	return nil
}

// ResetClock parses the daily reset time into hour and minute
func (c PlaytimeConfig) ResetClock() (hour, minute int) {
	t, err := time.Parse("15:04", c.DailyResetTime)
	if err != nil {
		return 0, 0
	}
	return t.Hour(), t.Minute()
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
