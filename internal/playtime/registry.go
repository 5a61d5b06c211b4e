package playtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/goodtune/playgate/internal/metrics"
	"github.com/goodtune/playgate/internal/storage"
)

// Session is a live tracker together with the signal the page drives.
type Session struct {
	ID       string
	Key      storage.LedgerKey
	Tracker  *Tracker
	OpenedAt time.Time

	mu       sync.Mutex
	lastSeen time.Time
}

// LastSeen returns the time of the page's most recent API call
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.After(s.lastSeen) {
		s.lastSeen = now
	}
}

// RegistryConfig holds registry configuration
type RegistryConfig struct {
	Tracker       Config
	MaxSessions   int
	ApplicationID string // used when a session does not name one
	CloseTimeout  time.Duration
	LoadTimeout   time.Duration // per tracker during Rollover

	// InactivityTimeout closes sessions whose page has not called the API
	// for this long. Zero disables the sweep.
	InactivityTimeout time.Duration
}

// Registry holds the live trackers, bounded by an LRU. Evicted sessions are
// torn down in the background.
type Registry struct {
	ledger storage.LedgerStore
	config RegistryConfig
	cache  *lru.Cache[string, *Session]
	clock  clockwork.Clock
	logger zerolog.Logger

	stopSweep chan struct{}
	sweepDone chan struct{}
	stopOnce  sync.Once
}

// NewRegistry creates a new tracker registry and starts the inactivity sweep
// when one is configured.
func NewRegistry(ledger storage.LedgerStore, config RegistryConfig, logger zerolog.Logger) (*Registry, error) {
	if config.MaxSessions <= 0 {
		return nil, fmt.Errorf("max sessions must be positive: %d", config.MaxSessions)
	}
	if config.CloseTimeout <= 0 {
		config.CloseTimeout = DefaultSaveTimeout
	}
	if config.LoadTimeout <= 0 {
		config.LoadTimeout = DefaultSaveTimeout
	}
	if config.InactivityTimeout < 0 {
		return nil, fmt.Errorf("inactivity timeout must not be negative: %s", config.InactivityTimeout)
	}

	clock := config.Tracker.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
		config.Tracker.Clock = clock
	}

	r := &Registry{
		ledger:    ledger,
		config:    config,
		clock:     clock,
		logger:    logger.With().Str("component", "playtime-registry").Logger(),
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}

	cache, err := lru.NewWithEvict[string, *Session](config.MaxSessions, r.onEvict)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	r.cache = cache

	if config.InactivityTimeout > 0 {
		interval := config.InactivityTimeout / 2
		if interval < TickInterval {
			interval = TickInterval
		}
		go r.sweepInactiveSessions(clock.NewTicker(interval))
	} else {
		close(r.sweepDone)
	}

	return r, nil
}

func (r *Registry) onEvict(id string, session *Session) {
	metrics.TrackersActive.Dec()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.config.CloseTimeout)
		defer cancel()
		if err := session.Tracker.Close(ctx); err != nil {
			r.logger.Warn().Err(err).Str("session_id", id).Msg("Tracker teardown did not finish")
		}
	}()
}

// Open creates a tracker for the given credential and performs its single
// ledger load. A failed load is logged and the session still opens.
func (r *Registry) Open(ctx context.Context, key storage.LedgerKey) *Session {
	if key.ApplicationID == "" {
		key.ApplicationID = r.config.ApplicationID
	}

	id := uuid.NewString()
	logger := r.logger.With().Str("session_id", id).Logger()
	tracker := NewTracker(r.ledger, key, NewGameSignal(), r.config.Tracker, logger)

	now := r.clock.Now()
	session := &Session{
		ID:       id,
		Key:      key,
		Tracker:  tracker,
		OpenedAt: now,
		lastSeen: now,
	}

	r.cache.Add(id, session)
	metrics.TrackersActive.Inc()

	if err := tracker.Load(ctx); err != nil {
		logger.Warn().Err(err).Msg("Session opened without ledger data")
	}

	logger.Info().Msg("Session opened")
	return session
}

// Get returns a live session and records the call as page activity.
func (r *Registry) Get(id string) (*Session, error) {
	session, ok := r.cache.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	session.touch(r.clock.Now())
	return session, nil
}

// Close tears down a session and waits for its final flush.
func (r *Registry) Close(ctx context.Context, id string) error {
	session, ok := r.cache.Peek(id)
	if !ok {
		return ErrSessionNotFound
	}

	err := session.Tracker.Close(ctx)
	r.cache.Remove(id)

	r.logger.Info().Str("session_id", id).Msg("Session closed")
	return err
}

// Rollover reloads every live tracker so that each observes the current date.
// Each reload gets its own timeout. It returns the number of trackers
// reloaded successfully.
func (r *Registry) Rollover(ctx context.Context) int {
	reloaded := 0
	for _, id := range r.cache.Keys() {
		session, ok := r.cache.Peek(id)
		if !ok {
			continue
		}

		loadCtx, cancel := context.WithTimeout(ctx, r.config.LoadTimeout)
		err := session.Tracker.Reload(loadCtx)
		cancel()

		if err != nil {
			r.logger.Warn().Err(err).Str("session_id", id).Msg("Failed to reload tracker")
			continue
		}
		reloaded++
	}
	return reloaded
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	return r.cache.Len()
}

// Shutdown stops the inactivity sweep, closes every live session and waits
// for their flushes.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.stopOnce.Do(func() { close(r.stopSweep) })
	<-r.sweepDone

	var firstErr error
	for _, id := range r.cache.Keys() {
		session, ok := r.cache.Peek(id)
		if !ok {
			continue
		}
		if err := session.Tracker.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.cache.Purge()
	return firstErr
}

// sweepInactiveSessions periodically closes sessions whose page went away
// without stopping the game or closing the session.
func (r *Registry) sweepInactiveSessions(ticker clockwork.Ticker) {
	defer close(r.sweepDone)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopSweep:
			return
		case <-ticker.Chan():
			r.closeInactive(r.clock.Now())
		}
	}
}

// closeInactive stops every session idle for longer than the inactivity
// timeout. Play is counted only up to the page's last API call.
func (r *Registry) closeInactive(now time.Time) int {
	closed := 0
	for _, id := range r.cache.Keys() {
		session, ok := r.cache.Peek(id)
		if !ok {
			continue
		}

		lastSeen := session.LastSeen()
		if now.Sub(lastSeen) <= r.config.InactivityTimeout {
			continue
		}

		session.Tracker.StopAt(lastSeen)
		// Eviction closes the tracker and waits for its flush in the background
		r.cache.Remove(id)
		metrics.SessionsAbandoned.Inc()
		closed++

		r.logger.Info().
			Str("session_id", id).
			Dur("inactive", now.Sub(lastSeen)).
			Msg("Closed inactive session")
	}
	return closed
}
