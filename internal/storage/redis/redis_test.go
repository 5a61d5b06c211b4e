package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/goodtune/playgate/internal/config"
	"github.com/goodtune/playgate/internal/storage"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	// miniredis.Addr() is "host:port", so Port stays zero
	cfg := config.RedisConfig{
		Host:         mr.Addr(),
		Port:         0,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 1,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
	}

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open Redis store: %v", err)
	}

	return store, mr
}

func TestOpen_InvalidTimeout(t *testing.T) {
	_, err := Open(config.RedisConfig{Host: "127.0.0.1", DialTimeout: "soon"})
	if err == nil {
		t.Fatal("Expected error for invalid dial_timeout")
	}
}

func TestLedgerStore_GetRecordNotFound(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	_, err := store.Ledger().GetRecord(context.Background(), storage.LedgerKey{
		Credential:    "player-1",
		ApplicationID: "ABCD",
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestLedgerStore_PutAndGetRecord(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	ledger := store.Ledger()
	key := storage.LedgerKey{Credential: "player-1", ApplicationID: "ABCD"}

	if err := ledger.PutRecord(ctx, key, storage.PlaytimeRecord{Seconds: 40, Date: "2024-01-15"}); err != nil {
		t.Fatalf("PutRecord failed: %v", err)
	}

	record, err := ledger.GetRecord(ctx, key)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if record.Seconds != 40 {
		t.Errorf("Expected Seconds 40, got %d", record.Seconds)
	}
	if record.Date != "2024-01-15" {
		t.Errorf("Expected Date 2024-01-15, got %s", record.Date)
	}

	// Overwrite replaces both fields
	if err := ledger.PutRecord(ctx, key, storage.PlaytimeRecord{Seconds: 5, Date: "2024-01-16"}); err != nil {
		t.Fatalf("Second PutRecord failed: %v", err)
	}

	record, err = ledger.GetRecord(ctx, key)
	if err != nil {
		t.Fatalf("Second GetRecord failed: %v", err)
	}
	if record.Seconds != 5 || record.Date != "2024-01-16" {
		t.Errorf("Expected {5 2024-01-16}, got {%d %s}", record.Seconds, record.Date)
	}
}

func TestLedgerStore_KeysAreScopedByApplication(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	ledger := store.Ledger()

	_ = ledger.PutRecord(ctx, storage.LedgerKey{Credential: "player-1", ApplicationID: "ABCD"},
		storage.PlaytimeRecord{Seconds: 60, Date: "2024-01-15"})

	_, err := ledger.GetRecord(ctx, storage.LedgerKey{Credential: "player-1", ApplicationID: "WXYZ"})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound for other application, got %v", err)
	}
}

func TestLedgerStore_MalformedRecord(t *testing.T) {
	store, mr := setupTestStore(t)
	defer func() { _ = store.Close() }()

	mr.HSet("playgate:ledger:ABCD:player-1", "playtime_seconds", "lots", "playtime_date", "2024-01-15")

	_, err := store.Ledger().GetRecord(context.Background(), storage.LedgerKey{
		Credential:    "player-1",
		ApplicationID: "ABCD",
	})
	if err == nil {
		t.Fatal("Expected parse error for malformed seconds")
	}
}

func TestLedgerStore_ListDailyUsage(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	ledger := store.Ledger()

	reporter, ok := ledger.(storage.UsageReporter)
	if !ok {
		t.Fatal("Expected Redis ledger to implement UsageReporter")
	}

	date := "2024-01-15"
	_ = ledger.PutRecord(ctx, storage.LedgerKey{Credential: "player-2", ApplicationID: "ABCD"},
		storage.PlaytimeRecord{Seconds: 120, Date: date})
	_ = ledger.PutRecord(ctx, storage.LedgerKey{Credential: "player-1", ApplicationID: "ABCD"},
		storage.PlaytimeRecord{Seconds: 60, Date: date})
	_ = ledger.PutRecord(ctx, storage.LedgerKey{Credential: "player-1", ApplicationID: "ABCD"},
		storage.PlaytimeRecord{Seconds: 90, Date: date})
	_ = ledger.PutRecord(ctx, storage.LedgerKey{Credential: "player-3", ApplicationID: "ABCD"},
		storage.PlaytimeRecord{Seconds: 30, Date: "2024-01-16"})

	usages, err := reporter.ListDailyUsage(ctx, date, "ABCD")
	if err != nil {
		t.Fatalf("ListDailyUsage failed: %v", err)
	}

	if len(usages) != 2 {
		t.Fatalf("Expected 2 usage entries, got %d", len(usages))
	}
	if usages[0].PlayerID != "player-1" || usages[0].TotalSeconds != 90 {
		t.Errorf("Expected player-1 with 90s, got %s with %ds", usages[0].PlayerID, usages[0].TotalSeconds)
	}
	if usages[1].PlayerID != "player-2" || usages[1].TotalSeconds != 120 {
		t.Errorf("Expected player-2 with 120s, got %s with %ds", usages[1].PlayerID, usages[1].TotalSeconds)
	}

	empty, err := reporter.ListDailyUsage(ctx, "2023-12-31", "ABCD")
	if err != nil {
		t.Fatalf("ListDailyUsage for empty day failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("Expected no entries, got %d", len(empty))
	}
}
