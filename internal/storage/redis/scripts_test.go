package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a miniredis instance for testing Lua scripts
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, mr
}

func TestPutRecordScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()
	defer mr.Close()

	ctx := context.Background()

	tests := []struct {
		name    string
		player  string
		seconds string
		date    string
	}{
		{name: "first write", player: "player-1", seconds: "40", date: "2024-01-15"},
		{name: "overwrite same day", player: "player-1", seconds: "95", date: "2024-01-15"},
		{name: "new day", player: "player-1", seconds: "10", date: "2024-01-16"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := "playgate:ledger:ABCD:" + tt.player
			usage := "playgate:usage:daily:" + tt.date + ":ABCD"

			result := client.Eval(ctx, putRecordScript, []string{ledger, usage},
				tt.seconds, tt.date, tt.player, usageRetentionSeconds)
			if result.Err() != nil {
				t.Fatalf("Script execution failed: %v", result.Err())
			}

			data := client.HGetAll(ctx, ledger).Val()
			if data["playtime_seconds"] != tt.seconds {
				t.Errorf("Expected playtime_seconds=%s, got %s", tt.seconds, data["playtime_seconds"])
			}
			if data["playtime_date"] != tt.date {
				t.Errorf("Expected playtime_date=%s, got %s", tt.date, data["playtime_date"])
			}

			total := client.HGet(ctx, usage, tt.player).Val()
			if total != tt.seconds {
				t.Errorf("Expected usage total %s, got %s", tt.seconds, total)
			}

			ttl := client.TTL(ctx, usage).Val()
			if ttl <= 0 {
				t.Errorf("Expected TTL to be set on usage index, got %v", ttl)
			}

			// The ledger record itself never expires
			if ledgerTTL := client.TTL(ctx, ledger).Val(); ledgerTTL > 0 {
				t.Errorf("Expected no TTL on ledger record, got %v", ledgerTTL)
			}
		})
	}
}
