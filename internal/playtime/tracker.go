package playtime

import (
	"context"
	"sync"
	"time"

	"github.com/goodtune/playgate/internal/metrics"
	"github.com/goodtune/playgate/internal/storage"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Tracker enforces the daily playtime quota for one page session.
//
// All state transitions happen under mu. Ledger calls run without the lock
// and at most one save is in flight; seconds from a stop that happens while
// a save is running are queued into a single follow-up flush.
type Tracker struct {
	ledger      storage.LedgerStore
	key         storage.LedgerKey
	signal      *GameSignal
	unsubscribe func()
	clock       clockwork.Clock
	quota       int64
	dateLayout  string
	saveTimeout time.Duration
	logger      zerolog.Logger

	mu        sync.Mutex
	strict    bool
	active    bool
	startedAt time.Time
	elapsed   int64
	committed int64
	remaining int64
	expired   bool
	day       string
	loaded    bool
	closed    bool

	ticker   clockwork.Ticker
	tickStop chan struct{}

	flushing        bool
	pendingFlush    bool
	pendingSeconds  int64
	inflightSeconds int64
	flushWG         sync.WaitGroup
}

// NewTracker creates a tracker bound to a ledger record and a game signal.
// A nil signal gets a private one that stays unloaded until set.
func NewTracker(ledger storage.LedgerStore, key storage.LedgerKey, signal *GameSignal, config Config, logger zerolog.Logger) *Tracker {
	if signal == nil {
		signal = NewGameSignal()
	}
	clock := config.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	layout := config.DateLayout
	if layout == "" {
		layout = DefaultDateLayout
	}
	saveTimeout := config.SaveTimeout
	if saveTimeout <= 0 {
		saveTimeout = DefaultSaveTimeout
	}
	quota := config.DailyQuotaSeconds
	if quota < 0 {
		quota = 0
	}

	t := &Tracker{
		ledger:      ledger,
		key:         key,
		signal:      signal,
		clock:       clock,
		quota:       quota,
		dateLayout:  layout,
		saveTimeout: saveTimeout,
		logger: logger.With().
			Str("component", "playtime-tracker").
			Str("application_id", key.ApplicationID).
			Logger(),
		strict: config.StrictMode,
	}

	t.day = t.today()
	t.recomputeLocked()
	t.unsubscribe = signal.Subscribe(t.onGameSignal)

	return t
}

// onGameSignal follows the signal's current value rather than the delivered
// one, so out-of-order notifications still converge.
func (t *Tracker) onGameSignal(bool) {
	if t.signal.Loaded() {
		t.Start()
	} else {
		t.Stop()
	}
}

// Start begins a local play session. It reports whether a session was started;
// it is a no-op when a session is already running, the quota is exhausted or
// the game view is not loaded.
func (t *Tracker) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startLocked()
}

func (t *Tracker) startLocked() bool {
	if t.active {
		return false
	}
	t.rolloverLocked()

	var reason string
	switch {
	case t.closed:
		reason = "closed"
	case t.expired:
		reason = "expired"
	case !t.signal.Loaded():
		reason = "game_not_loaded"
	}
	if reason != "" {
		metrics.SessionStartsRefused.WithLabelValues(reason).Inc()
		t.logger.Debug().Str("reason", reason).Msg("Session start refused")
		return false
	}

	t.active = true
	t.startedAt = t.clock.Now()
	t.elapsed = 0

	stop := make(chan struct{})
	ticker := t.clock.NewTicker(TickInterval)
	t.ticker = ticker
	t.tickStop = stop
	go t.runTicker(ticker, stop)

	metrics.SessionsStarted.Inc()
	t.logger.Info().
		Int64("remaining_seconds", t.remaining).
		Msg("Play session started")

	return true
}

// Stop ends the running session and queues a flush of its elapsed seconds.
// It reports whether a session was running.
func (t *Tracker) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopLocked("stopped")
}

// StopAt ends the running session as if it had stopped at the given instant.
// Time after at is not counted. Used for pages that went away without saying so.
func (t *Tracker) StopAt(at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopAtLocked(at, "inactive")
}

func (t *Tracker) stopLocked(reason string) bool {
	return t.stopAtLocked(t.clock.Now(), reason)
}

func (t *Tracker) stopAtLocked(at time.Time, reason string) bool {
	if !t.active {
		return false
	}
	if now := t.clock.Now(); at.After(now) {
		at = now
	}

	close(t.tickStop)
	t.ticker.Stop()
	t.tickStop = nil
	t.ticker = nil

	var elapsed int64
	if !t.startedAt.IsZero() {
		elapsed = t.elapsedSince(at)
		t.pendingSeconds += elapsed
		t.pendingFlush = true
		t.startFlusherLocked()
	}

	t.active = false
	t.startedAt = time.Time{}
	t.elapsed = 0
	t.recomputeLocked()

	t.logger.Info().
		Str("reason", reason).
		Int64("elapsed_seconds", elapsed).
		Int64("remaining_seconds", t.remaining).
		Msg("Play session stopped")

	return true
}

func (t *Tracker) runTicker(ticker clockwork.Ticker, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			t.tick(stop)
		}
	}
}

func (t *Tracker) tick(generation chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// A tick raced with Stop; the session it belongs to is gone
	if !t.active || t.tickStop != generation {
		return
	}

	t.rolloverLocked()
	t.elapsed = t.elapsedSince(t.clock.Now())
	wasExpired := t.expired
	t.recomputeLocked()

	if t.remaining > 0 {
		return
	}
	if !wasExpired {
		metrics.QuotaExpirations.WithLabelValues("tick").Inc()
		t.logger.Info().
			Int64("elapsed_seconds", t.elapsed).
			Bool("strict_mode", t.strict).
			Msg("Daily playtime quota exhausted")
	}
	if t.strict {
		t.stopLocked("quota_exhausted")
	}
}

// SetStrictMode toggles self-stopping at zero remaining time. Enabling it on
// an exhausted running session stops the session.
func (t *Tracker) SetStrictMode(strict bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.strict = strict
	if strict && t.active && t.remaining <= 0 {
		t.stopLocked("quota_exhausted")
	}
}

// Snapshot returns a copy of the current session state as of today
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rolloverLocked()

	snap := Snapshot{
		SessionActive:     t.active,
		ElapsedSeconds:    t.elapsed,
		CommittedSeconds:  t.committed,
		RemainingSeconds:  t.remaining,
		Expired:           t.expired,
		StrictMode:        t.strict,
		DailyQuotaSeconds: t.quota,
		GameLoaded:        t.signal.Loaded(),
		Date:              t.day,
	}
	if !t.startedAt.IsZero() {
		started := t.startedAt
		snap.StartedAt = &started
	}

	switch {
	case t.active:
		snap.State = StateRunning
	case t.expired:
		snap.State = StateExpired
	default:
		snap.State = StateIdle
	}

	return snap
}

// Signal returns the game signal driving this tracker
func (t *Tracker) Signal() *GameSignal {
	return t.signal
}

// Close unsubscribes from the game signal, stops any running session and
// waits for outstanding flushes or ctx to finish.
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		t.unsubscribe()
		t.stopLocked("closed")
	}
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.flushWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// recomputeLocked derives remaining time from the committed total plus any
// seconds not yet persisted. Expired is sticky until the calendar day rolls
// over.
func (t *Tracker) recomputeLocked() {
	used := t.committed + t.inflightSeconds + t.pendingSeconds + t.elapsed
	t.remaining = t.quota - used
	if t.remaining < 0 {
		t.remaining = 0
	}
	if t.remaining <= 0 {
		t.expired = true
	}
}

// rolloverLocked moves the tracker onto today when the calendar date has
// passed its day. Yesterday's committed total and expiry no longer apply;
// seconds not yet saved count against the new day.
func (t *Tracker) rolloverLocked() bool {
	today := t.today()
	if t.day == today {
		return false
	}

	previous := t.day
	t.day = today
	t.committed = 0
	t.expired = false
	t.recomputeLocked()

	t.logger.Info().
		Str("previous_date", previous).
		Str("date", today).
		Int64("remaining_seconds", t.remaining).
		Msg("Calendar day rolled over")

	return true
}

func (t *Tracker) elapsedSince(now time.Time) int64 {
	d := now.Sub(t.startedAt)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

func (t *Tracker) today() string {
	return t.clock.Now().Format(t.dateLayout)
}
