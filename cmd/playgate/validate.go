package main

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/goodtune/playgate/internal/config"
)

var (
	validateDump bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the playgate configuration file for syntax and semantic errors.`,
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateDump, "dump", false, "Dump full configuration with defaults highlighted")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration validation failed: %v\n", err)
		return err
	}

	unknownKeys, err := findUnknownKeys(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "⚠️  Warning: Could not check for unknown keys: %v\n", err)
	}

	_, _ = fmt.Fprintf(os.Stdout, "✅ Configuration is valid: %s\n", configPath)

	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)
		fmt.Fprintln(os.Stdout)
		_, _ = red.Fprintf(os.Stdout, "⚠️  WARNING: Found %d unknown configuration key(s):\n", len(unknownKeys))
		for _, key := range unknownKeys {
			_, _ = red.Fprintf(os.Stdout, "   - %s\n", key)
		}
		fmt.Fprintln(os.Stdout, "\nThese keys will be ignored and may indicate typos or deprecated settings.")
	}

	if cfg.Ledger.ApplicationID == "" {
		yellow := color.New(color.FgYellow, color.Bold)
		_, _ = yellow.Fprintln(os.Stdout, "⚠️  ledger.application_id is empty; every session must supply its own")
	}

	if validateDump {
		_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
		_, _ = fmt.Fprintln(os.Stdout, "FULL CONFIGURATION (values different from defaults are highlighted)")
		_, _ = fmt.Fprintln(os.Stdout, strings.Repeat("=", 80))

		dumpConfig(cfg, getDefaultConfig(), unknownKeys)
	}

	return nil
}

// getDefaultConfig creates a configuration with default values
func getDefaultConfig() *config.Config {
	v := viper.New()
	config.SetDefaults(v)

	var cfg config.Config
	_ = v.Unmarshal(&cfg)

	return &cfg
}

// findUnknownKeys loads the config file and checks for unknown keys
func findUnknownKeys(configPath string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	validKeys := getValidKeys()

	unknown := []string{}
	for _, key := range v.AllKeys() {
		if !validKeys[key] {
			unknown = append(unknown, key)
		}
	}

	return unknown, nil
}

// getValidKeys returns every key that has a default, plus keys that
// deliberately have none.
func getValidKeys() map[string]bool {
	v := viper.New()
	config.SetDefaults(v)

	keys := map[string]bool{
		"ledger.redis.password": true,
	}
	for _, key := range v.AllKeys() {
		keys[key] = true
	}

	return keys
}

// dumpConfig dumps configuration with color highlighting for non-default values
func dumpConfig(cfg, defaultCfg *config.Config, unknownKeys []string) {
	yellow := color.New(color.FgYellow, color.Bold)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan, color.Bold)

	_, _ = cyan.Println("\n[server]")
	dumpField("  bind_address", cfg.Server.BindAddress, defaultCfg.Server.BindAddress, yellow, green)
	dumpField("  http_port", cfg.Server.HTTPPort, defaultCfg.Server.HTTPPort, yellow, green)
	dumpField("  metrics_port", cfg.Server.MetricsPort, defaultCfg.Server.MetricsPort, yellow, green)
	dumpField("  allowed_origins", cfg.Server.AllowedOrigins, defaultCfg.Server.AllowedOrigins, yellow, green)
	dumpField("  rate_limit", cfg.Server.RateLimit, defaultCfg.Server.RateLimit, yellow, green)
	dumpField("  rate_limit_window", cfg.Server.RateLimitWindow, defaultCfg.Server.RateLimitWindow, yellow, green)
	dumpField("  shutdown_timeout", cfg.Server.ShutdownTimeout, defaultCfg.Server.ShutdownTimeout, yellow, green)

	_, _ = cyan.Println("\n[playtime]")
	dumpField("  daily_quota_seconds", cfg.Playtime.DailyQuotaSeconds, defaultCfg.Playtime.DailyQuotaSeconds, yellow, green)
	dumpField("  strict_mode", cfg.Playtime.StrictMode, defaultCfg.Playtime.StrictMode, yellow, green)
	dumpField("  date_layout", cfg.Playtime.DateLayout, defaultCfg.Playtime.DateLayout, yellow, green)
	dumpField("  daily_reset_time", cfg.Playtime.DailyResetTime, defaultCfg.Playtime.DailyResetTime, yellow, green)
	dumpField("  save_timeout", cfg.Playtime.SaveTimeout, defaultCfg.Playtime.SaveTimeout, yellow, green)
	dumpField("  max_sessions", cfg.Playtime.MaxSessions, defaultCfg.Playtime.MaxSessions, yellow, green)
	dumpField("  inactivity_timeout", cfg.Playtime.InactivityTimeout, defaultCfg.Playtime.InactivityTimeout, yellow, green)

	_, _ = cyan.Println("\n[ledger]")
	dumpField("  backend", cfg.Ledger.Backend, defaultCfg.Ledger.Backend, yellow, green)
	dumpField("  application_id", cfg.Ledger.ApplicationID, defaultCfg.Ledger.ApplicationID, yellow, green)
	_, _ = cyan.Println("  [ledger.playfab]")
	dumpField("    base_url", cfg.Ledger.PlayFab.BaseURL, defaultCfg.Ledger.PlayFab.BaseURL, yellow, green)
	dumpField("    timeout", cfg.Ledger.PlayFab.Timeout, defaultCfg.Ledger.PlayFab.Timeout, yellow, green)
	_, _ = cyan.Println("  [ledger.redis]")
	dumpField("    host", cfg.Ledger.Redis.Host, defaultCfg.Ledger.Redis.Host, yellow, green)
	dumpField("    port", cfg.Ledger.Redis.Port, defaultCfg.Ledger.Redis.Port, yellow, green)
	dumpField("    password", redactPassword(cfg.Ledger.Redis.Password), redactPassword(defaultCfg.Ledger.Redis.Password), yellow, green)
	dumpField("    db", cfg.Ledger.Redis.DB, defaultCfg.Ledger.Redis.DB, yellow, green)
	dumpField("    pool_size", cfg.Ledger.Redis.PoolSize, defaultCfg.Ledger.Redis.PoolSize, yellow, green)
	dumpField("    min_idle_conns", cfg.Ledger.Redis.MinIdleConns, defaultCfg.Ledger.Redis.MinIdleConns, yellow, green)
	dumpField("    dial_timeout", cfg.Ledger.Redis.DialTimeout, defaultCfg.Ledger.Redis.DialTimeout, yellow, green)
	dumpField("    read_timeout", cfg.Ledger.Redis.ReadTimeout, defaultCfg.Ledger.Redis.ReadTimeout, yellow, green)
	dumpField("    write_timeout", cfg.Ledger.Redis.WriteTimeout, defaultCfg.Ledger.Redis.WriteTimeout, yellow, green)

	_, _ = cyan.Println("\n[logging]")
	dumpField("  level", cfg.Logging.Level, defaultCfg.Logging.Level, yellow, green)
	dumpField("  format", cfg.Logging.Format, defaultCfg.Logging.Format, yellow, green)

	if len(unknownKeys) > 0 {
		red := color.New(color.FgRed, color.Bold)

		_, _ = cyan.Println("\n[UNKNOWN KEYS - These will be ignored!]")
		for _, key := range unknownKeys {
			_, _ = red.Printf("  %s = (unknown key - check for typos)\n", key)
		}
	}

	_, _ = fmt.Fprintln(os.Stdout, "\n"+strings.Repeat("=", 80))
}

// dumpField prints a field with color if it differs from default
func dumpField(name string, value, defaultValue interface{}, modifiedColor, defaultColor *color.Color) {
	isDefault := reflect.DeepEqual(value, defaultValue)

	valueStr := fmt.Sprintf("%v", value)

	if isDefault {
		_, _ = defaultColor.Printf("%s = %s\n", name, valueStr)
	} else {
		_, _ = modifiedColor.Printf("%s = %s  (modified from default: %v)\n", name, valueStr, defaultValue)
	}
}

// redactPassword redacts password if not empty
func redactPassword(password string) string {
	if password == "" {
		return ""
	}
	return "***REDACTED***"
}
