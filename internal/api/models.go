package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/goodtune/playgate/internal/playtime"
	"github.com/goodtune/playgate/internal/storage"
)

var validate = validator.New()

// OpenSessionRequest opens a tracker for a signed-in player.
type OpenSessionRequest struct {
	Credential    string `json:"credential" validate:"required"`
	ApplicationID string `json:"application_id" validate:"omitempty,alphanum,max=32"`
}

// GameStateRequest reports whether the game view is loaded.
type GameStateRequest struct {
	Loaded *bool `json:"loaded" validate:"required"`
}

// StrictModeRequest toggles strict mode.
type StrictModeRequest struct {
	Strict *bool `json:"strict" validate:"required"`
}

// SessionResponse is a tracker snapshot with its session metadata.
type SessionResponse struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	OpenedAt      time.Time `json:"opened_at"`
	playtime.Snapshot
}

// ActionResponse reports whether a start or stop changed anything.
type ActionResponse struct {
	Changed bool            `json:"changed"`
	Session SessionResponse `json:"session"`
}

// UsageResponse lists per-player totals for a day.
type UsageResponse struct {
	Date          string               `json:"date"`
	ApplicationID string               `json:"application_id"`
	Players       []storage.DailyUsage `json:"players"`
	Count         int                  `json:"count"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message,omitempty"`
	Code    int      `json:"code"`
	Fields  []string `json:"fields,omitempty"`
}

func newSessionResponse(session *playtime.Session) SessionResponse {
	return SessionResponse{
		ID:            session.ID,
		ApplicationID: session.Key.ApplicationID,
		OpenedAt:      session.OpenedAt,
		Snapshot:      session.Tracker.Snapshot(),
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, `{"error":"Internal Server Error","message":"Failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// decodeAndValidate reads a JSON body into dst and runs its validation tags.
// It writes the error response itself and reports whether to continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}

	if err := validate.Struct(dst); err != nil {
		resp := ErrorResponse{
			Error:   http.StatusText(http.StatusBadRequest),
			Message: "Validation failed",
			Code:    http.StatusBadRequest,
		}
		if fieldErrors, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range fieldErrors {
				resp.Fields = append(resp.Fields, fe.Field()+" failed "+fe.Tag())
			}
		}
		writeJSON(w, http.StatusBadRequest, resp)
		return false
	}

	return true
}
