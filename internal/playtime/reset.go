package playtime

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/goodtune/playgate/internal/metrics"
)

// Rolloverer reloads live trackers when the calendar day changes
type Rolloverer interface {
	Rollover(ctx context.Context) int
}

// ResetScheduler triggers the daily rollover
type ResetScheduler struct {
	target   Rolloverer
	hour     int
	minute   int
	clock    clockwork.Clock
	logger   zerolog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	stopChan chan struct{}
	done     chan struct{}
}

// NewResetScheduler creates a scheduler that rolls trackers over daily at
// hour:minute in the clock's location.
func NewResetScheduler(target Rolloverer, hour, minute int, clock clockwork.Clock, logger zerolog.Logger) (*ResetScheduler, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, fmt.Errorf("invalid reset time %02d:%02d", hour, minute)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	ctx, cancel := context.WithCancel(context.Background())

	rs := &ResetScheduler{
		target:   target,
		hour:     hour,
		minute:   minute,
		clock:    clock,
		logger:   logger.With().Str("component", "reset-scheduler").Logger(),
		ctx:      ctx,
		cancel:   cancel,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}

	return rs, nil
}

// Start begins the reset scheduler
func (rs *ResetScheduler) Start() {
	go rs.run()
	rs.logger.Info().
		Str("reset_time", fmt.Sprintf("%02d:%02d", rs.hour, rs.minute)).
		Msg("Daily playtime reset scheduler started")
}

// Stop stops the reset scheduler, abandons a rollover in progress and waits
// for the loop to exit
func (rs *ResetScheduler) Stop() {
	rs.cancel()
	close(rs.stopChan)
	<-rs.done
	rs.logger.Info().Msg("Daily playtime reset scheduler stopped")
}

// run is the main scheduler loop
func (rs *ResetScheduler) run() {
	defer close(rs.done)

	for {
		now := rs.clock.Now()
		nextReset := rs.calculateNextReset(now)
		waitDuration := nextReset.Sub(now)

		rs.logger.Debug().
			Time("next_reset", nextReset).
			Dur("wait_duration", waitDuration).
			Msg("Scheduled next daily reset")

		select {
		case <-rs.clock.After(waitDuration):
			rs.performReset()
		case <-rs.stopChan:
			return
		}
	}
}

// calculateNextReset returns the first reset instant strictly after now
func (rs *ResetScheduler) calculateNextReset(now time.Time) time.Time {
	todayReset := time.Date(
		now.Year(), now.Month(), now.Day(),
		rs.hour, rs.minute, 0, 0,
		now.Location(),
	)

	if !now.Before(todayReset) {
		return todayReset.AddDate(0, 0, 1)
	}

	return todayReset
}

// performReset reloads every tracker. Reload deadlines are per tracker, set
// by the target.
func (rs *ResetScheduler) performReset() {
	reloaded := rs.target.Rollover(rs.ctx)
	metrics.DailyRollovers.Inc()

	rs.logger.Info().
		Int("trackers_reloaded", reloaded).
		Msg("Daily playtime reset complete")
}
