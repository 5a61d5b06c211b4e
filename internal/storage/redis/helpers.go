package redis

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/goodtune/playgate/internal/storage"
)

const keyPrefix = "playgate"

// ledgerKey returns the hash holding one player's playtime record
func ledgerKey(key storage.LedgerKey) string {
	return fmt.Sprintf("%s:ledger:%s:%s", keyPrefix, key.ApplicationID, key.Credential)
}

// usageKey returns the per-day usage hash for an application
func usageKey(date, applicationID string) string {
	return fmt.Sprintf("%s:usage:daily:%s:%s", keyPrefix, date, applicationID)
}

// parseDailyUsage converts a usage hash (player -> seconds) to DailyUsage entries
func parseDailyUsage(date, applicationID string, data map[string]string) ([]storage.DailyUsage, error) {
	usages := make([]storage.DailyUsage, 0, len(data))
	for playerID, raw := range data {
		seconds, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse total for %s: %w", playerID, err)
		}
		usages = append(usages, storage.DailyUsage{
			Date:          date,
			ApplicationID: applicationID,
			PlayerID:      playerID,
			TotalSeconds:  seconds,
		})
	}

	sort.Slice(usages, func(i, j int) bool {
		return usages[i].PlayerID < usages[j].PlayerID
	})

	return usages, nil
}
