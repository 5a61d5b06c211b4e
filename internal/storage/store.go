package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Ledger() LedgerStore
}

// LedgerStore reads and writes the per-user playtime record.
//
// Implementations must write both record fields together; a partially
// written record is never observable. A missing record is reported as
// ErrNotFound.
type LedgerStore interface {
	GetRecord(ctx context.Context, key LedgerKey) (*PlaytimeRecord, error)
	PutRecord(ctx context.Context, key LedgerKey, record PlaytimeRecord) error
}

// UsageReporter is implemented by ledger backends that keep per-day totals.
type UsageReporter interface {
	ListDailyUsage(ctx context.Context, date, applicationID string) ([]DailyUsage, error)
}
