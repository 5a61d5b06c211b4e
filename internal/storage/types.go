package storage

import (
	"fmt"
	"strconv"
)

// Field names of the externally persisted playtime record.
const (
	FieldPlaytimeSeconds = "playtime_seconds"
	FieldPlaytimeDate    = "playtime_date"
)

// LedgerKey identifies a ledger record. Credential is opaque: a PlayFab
// session ticket, or a player id for self-hosted backends.
type LedgerKey struct {
	Credential    string `json:"-"`
	ApplicationID string `json:"application_id"`
}

// Valid reports whether both parts of the key are present.
func (k LedgerKey) Valid() bool {
	return k.Credential != "" && k.ApplicationID != ""
}

// PlaytimeRecord is the seconds-used-today counter and the date it applies to.
type PlaytimeRecord struct {
	Seconds int64  `json:"playtime_seconds"`
	Date    string `json:"playtime_date"`
}

// Fields renders the record in its wire form, where both values are strings.
func (r PlaytimeRecord) Fields() map[string]string {
	return map[string]string{
		FieldPlaytimeSeconds: strconv.FormatInt(r.Seconds, 10),
		FieldPlaytimeDate:    r.Date,
	}
}

// ParseRecord converts wire fields into a PlaytimeRecord. Absent fields
// mean zero seconds and no date.
func ParseRecord(fields map[string]string) (*PlaytimeRecord, error) {
	record := &PlaytimeRecord{Date: fields[FieldPlaytimeDate]}

	raw, ok := fields[FieldPlaytimeSeconds]
	if !ok || raw == "" {
		return record, nil
	}

	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", FieldPlaytimeSeconds, err)
	}
	if seconds < 0 {
		seconds = 0
	}
	record.Seconds = seconds

	return record, nil
}

// DailyUsage is one player's recorded total for a date.
type DailyUsage struct {
	Date          string `json:"date"`
	ApplicationID string `json:"application_id"`
	PlayerID      string `json:"player_id"`
	TotalSeconds  int64  `json:"total_seconds"`
}
