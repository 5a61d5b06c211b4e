package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/goodtune/playgate/internal/config"
	"github.com/goodtune/playgate/internal/playtime"
	"github.com/goodtune/playgate/internal/storage"
)

var (
	checkApplicationID string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Inspect ledger state interactively",
	Long:  `Inspect what playgate would decide for a player, or list a day's recorded usage.`,
}

var checkPlayerCmd = &cobra.Command{
	Use:   "player [flags] CREDENTIAL",
	Short: "Show a player's remaining playtime for today",
	Long:  `Read the player's ledger record the same way a new session would and show the resulting quota state.`,
	Example: `  playgate -c config.yaml check player 5F2A...SESSIONTICKET
  playgate check player --application-id ABCD 5F2A...SESSIONTICKET`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckPlayer,
}

var checkUsageCmd = &cobra.Command{
	Use:     "usage [flags] DATE",
	Short:   "List recorded playtime for a day",
	Long:    `List per-player totals for a day. Requires a ledger backend that keeps daily usage (redis).`,
	Example: `  playgate check usage 2024-03-15`,
	Args:    cobra.ExactArgs(1),
	RunE:    runCheckUsage,
}

func init() {
	checkPlayerCmd.Flags().StringVar(&checkApplicationID, "application-id", "", "Application (title) id - defaults to ledger.application_id")
	checkUsageCmd.Flags().StringVar(&checkApplicationID, "application-id", "", "Application (title) id - defaults to ledger.application_id")

	checkCmd.AddCommand(checkPlayerCmd)
	checkCmd.AddCommand(checkUsageCmd)
	rootCmd.AddCommand(checkCmd)
}

func runCheckPlayer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Create a quiet logger for check mode
	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	backend, err := openLedger(cfg.Ledger)
	if err != nil {
		return fmt.Errorf("failed to initialize ledger: %w", err)
	}
	defer backend.Close()

	key := storage.LedgerKey{
		Credential:    args[0],
		ApplicationID: applicationIDOrDefault(cfg),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// A tracker is never started here, so closing it writes nothing
	tracker := playtime.NewTracker(backend.Ledger(), key, nil, trackerConfig(cfg.Playtime), logger)
	defer tracker.Close(ctx)

	loadErr := tracker.Load(ctx)
	printPlayerResult(key, tracker.Snapshot(), loadErr)

	return loadErr
}

func runCheckUsage(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	day, err := time.Parse("2006-01-02", args[0])
	if err != nil {
		return fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", args[0])
	}
	date := day.Format(cfg.Playtime.DateLayout)

	backend, err := openLedger(cfg.Ledger)
	if err != nil {
		return fmt.Errorf("failed to initialize ledger: %w", err)
	}
	defer backend.Close()

	if backend.Usage() == nil {
		return fmt.Errorf("ledger backend %q does not keep daily usage", cfg.Ledger.Backend)
	}

	applicationID := applicationIDOrDefault(cfg)
	if applicationID == "" {
		return fmt.Errorf("an application id is required (--application-id or ledger.application_id)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	usage, err := backend.Usage().ListDailyUsage(ctx, date, applicationID)
	if err != nil {
		return fmt.Errorf("failed to list usage: %w", err)
	}

	printUsageResult(date, applicationID, cfg.Playtime.DailyQuotaSeconds, usage)
	return nil
}

func applicationIDOrDefault(cfg *config.Config) string {
	if checkApplicationID != "" {
		return checkApplicationID
	}
	return cfg.Ledger.ApplicationID
}

// printPlayerResult prints the player check result with colors
func printPlayerResult(key storage.LedgerKey, snap playtime.Snapshot, loadErr error) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	fmt.Println()
	_, _ = cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	_, _ = cyan.Println("PLAYTIME CHECK")
	_, _ = cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("Application: %s\n", key.ApplicationID)
	fmt.Printf("Date:        %s\n", snap.Date)
	fmt.Printf("Quota:       %s\n", formatSeconds(snap.DailyQuotaSeconds))
	fmt.Printf("Used today:  %s\n", formatSeconds(snap.CommittedSeconds))
	fmt.Printf("Strict mode: %v\n", snap.StrictMode)
	fmt.Println()

	if loadErr != nil {
		_, _ = yellow.Printf("Ledger:      UNAVAILABLE (%v)\n", loadErr)
		fmt.Println("             → A new session would start with the full quota")
		fmt.Println()
	}

	_, _ = cyan.Print("Decision:    ")
	if snap.Expired {
		_, _ = red.Println("EXPIRED")
		fmt.Println("             → Play sessions will be refused until the next day")
	} else {
		_, _ = green.Printf("ALLOWED (%s remaining)\n", formatSeconds(snap.RemainingSeconds))
	}
	fmt.Println()
}

// printUsageResult prints a day's totals, flagging players at the quota
func printUsageResult(date, applicationID string, quota int64, usage []storage.DailyUsage) {
	cyan := color.New(color.FgCyan, color.Bold)
	red := color.New(color.FgRed)

	fmt.Println()
	_, _ = cyan.Printf("Usage for %s (%s): %d player(s)\n", date, applicationID, len(usage))
	fmt.Println()

	for _, u := range usage {
		line := fmt.Sprintf("  %-40s %s", u.PlayerID, formatSeconds(u.TotalSeconds))
		if u.TotalSeconds >= quota {
			_, _ = red.Println(line + "  (quota reached)")
			continue
		}
		fmt.Println(line)
	}
	fmt.Println()
}

func formatSeconds(seconds int64) string {
	return (time.Duration(seconds) * time.Second).String()
}
