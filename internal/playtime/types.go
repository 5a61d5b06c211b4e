package playtime

import (
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// TickInterval is the granularity of the local session clock
	TickInterval = time.Second

	// DefaultDateLayout formats the ledger date (string-compared)
	DefaultDateLayout = "2006-01-02"

	// LegacyDateLayout matches dates the web front end wrote with
	// Date.toDateString, e.g. "Fri Mar 15 2024".
	LegacyDateLayout = "Mon Jan 02 2006"

	// DefaultInactivityTimeout is how long a session may go without an API
	// call before the registry treats its page as gone
	DefaultInactivityTimeout = 2 * time.Minute

	// DefaultSaveTimeout bounds a single ledger call
	DefaultSaveTimeout = 10 * time.Second
)

var (
	// ErrNotConfigured is returned when the ledger credential or application id is missing.
	ErrNotConfigured = errors.New("playtime: ledger credential or application id missing")

	// ErrSessionNotFound is returned for unknown or evicted session ids.
	ErrSessionNotFound = errors.New("playtime: session not found")
)

// State is the tracker's position in the daily state machine.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateExpired State = "expired"
)

// Config holds tracker configuration
type Config struct {
	DailyQuotaSeconds int64
	StrictMode        bool
	DateLayout        string
	SaveTimeout       time.Duration
	Clock             clockwork.Clock
}

// Snapshot is a point-in-time copy of a tracker's session state
type Snapshot struct {
	State             State      `json:"state"`
	SessionActive     bool       `json:"session_active"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	ElapsedSeconds    int64      `json:"elapsed_seconds"`
	CommittedSeconds  int64      `json:"committed_seconds"`
	RemainingSeconds  int64      `json:"remaining_seconds"`
	Expired           bool       `json:"expired"`
	StrictMode        bool       `json:"strict_mode"`
	DailyQuotaSeconds int64      `json:"daily_quota_seconds"`
	GameLoaded        bool       `json:"game_loaded"`
	Date              string     `json:"date"`
}
