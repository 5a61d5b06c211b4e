package playtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/playgate/internal/metrics"
	"github.com/goodtune/playgate/internal/storage"
)

// Load reads today's committed seconds from the ledger. Only the first call
// contacts the ledger. On failure the tracker keeps the full daily quota and
// the error is returned for logging only.
func (t *Tracker) Load(ctx context.Context) error {
	t.mu.Lock()
	if t.loaded {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	return t.reload(ctx, "load")
}

// Reload re-reads the ledger record. A new calendar day resets the committed
// total and clears the previous day's expiry even when the read fails.
func (t *Tracker) Reload(ctx context.Context) error {
	return t.reload(ctx, "reload")
}

func (t *Tracker) reload(ctx context.Context, operation string) error {
	if !t.key.Valid() {
		t.mu.Lock()
		t.loaded = true
		t.rolloverLocked()
		t.mu.Unlock()

		metrics.LedgerOperations.WithLabelValues(operation, "not_configured").Inc()
		t.logger.Error().Err(ErrNotConfigured).Msg("Skipping playtime ledger load")
		return ErrNotConfigured
	}

	start := time.Now()
	record, err := t.ledger.GetRecord(ctx, t.key)
	metrics.LedgerDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	if errors.Is(err, storage.ErrNotFound) {
		record = &storage.PlaytimeRecord{}
		err = nil
	}
	if err != nil {
		t.mu.Lock()
		t.loaded = true
		t.rolloverLocked()
		t.mu.Unlock()

		metrics.LedgerOperations.WithLabelValues(operation, "error").Inc()
		t.logger.Warn().Err(err).Msg("Failed to load playtime ledger, assuming full quota")
		return fmt.Errorf("failed to load playtime ledger: %w", err)
	}
	metrics.LedgerOperations.WithLabelValues(operation, "success").Inc()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.rolloverLocked()
	today := t.day
	if record.Date != today {
		t.committed = 0
	} else {
		t.committed = record.Seconds
	}
	t.loaded = true

	wasExpired := t.expired
	t.recomputeLocked()
	if t.expired && !wasExpired {
		metrics.QuotaExpirations.WithLabelValues(operation).Inc()
	}
	if t.remaining <= 0 && t.strict {
		t.stopLocked("quota_exhausted")
	}

	t.logger.Info().
		Str("date", today).
		Str("record_date", record.Date).
		Int64("committed_seconds", t.committed).
		Int64("remaining_seconds", t.remaining).
		Bool("expired", t.expired).
		Msg("Playtime ledger loaded")

	return nil
}

func (t *Tracker) startFlusherLocked() {
	if t.flushing {
		return
	}
	t.flushing = true
	t.flushWG.Add(1)
	go t.flushLoop()
}

// flushLoop drains queued flushes one save at a time
func (t *Tracker) flushLoop() {
	defer t.flushWG.Done()

	for {
		t.mu.Lock()
		if !t.pendingFlush {
			t.flushing = false
			t.mu.Unlock()
			return
		}
		seconds := t.pendingSeconds
		t.pendingSeconds = 0
		t.pendingFlush = false
		t.inflightSeconds = seconds
		t.mu.Unlock()

		t.save(seconds)
	}
}

// save adds seconds to the committed total, capped at the quota, and writes
// the total with today's date. Failures leave the committed total unchanged
// and are not retried.
func (t *Tracker) save(seconds int64) {
	if !t.key.Valid() {
		t.mu.Lock()
		t.inflightSeconds = 0
		t.recomputeLocked()
		t.mu.Unlock()

		metrics.LedgerOperations.WithLabelValues("save", "not_configured").Inc()
		t.logger.Error().
			Err(ErrNotConfigured).
			Int64("seconds", seconds).
			Msg("Skipping playtime ledger save")
		return
	}

	t.mu.Lock()
	// A record from an earlier day counts as zero
	t.rolloverLocked()
	total := t.committed + seconds
	if total > t.quota {
		total = t.quota
	}
	record := storage.PlaytimeRecord{Seconds: total, Date: t.day}
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), t.saveTimeout)
	defer cancel()

	start := time.Now()
	err := t.ledger.PutRecord(ctx, t.key, record)
	metrics.LedgerDuration.WithLabelValues("save").Observe(time.Since(start).Seconds())

	t.mu.Lock()
	defer t.mu.Unlock()

	t.inflightSeconds = 0
	if err != nil {
		t.recomputeLocked()
		metrics.LedgerOperations.WithLabelValues("save", "error").Inc()
		t.logger.Warn().
			Err(err).
			Int64("seconds", seconds).
			Int64("total_seconds", total).
			Msg("Failed to save playtime, committed total unchanged")
		return
	}

	metrics.LedgerOperations.WithLabelValues("save", "success").Inc()
	metrics.PlaytimeSecondsFlushed.Add(float64(seconds))

	if t.day != record.Date {
		// The day rolled over while the save was in flight
		t.recomputeLocked()
		return
	}
	t.committed = total

	wasExpired := t.expired
	t.recomputeLocked()

	t.logger.Debug().
		Int64("seconds", seconds).
		Int64("total_seconds", total).
		Int64("remaining_seconds", t.remaining).
		Msg("Playtime saved")

	if t.quota-total <= 0 {
		t.expired = true
		if !wasExpired {
			metrics.QuotaExpirations.WithLabelValues("flush").Inc()
		}
		t.stopLocked("quota_exhausted")
	}
}
