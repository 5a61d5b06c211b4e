package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/goodtune/playgate/internal/playtime"
	"github.com/goodtune/playgate/internal/storage"
)

const usageDateLayout = "2006-01-02"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"active_sessions": s.registry.Len(),
	})
}

// handleOpenSession creates a tracker and performs its ledger load.
func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req OpenSessionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	session := s.registry.Open(r.Context(), storage.LedgerKey{
		Credential:    req.Credential,
		ApplicationID: req.ApplicationID,
	})

	writeJSON(w, http.StatusCreated, newSessionResponse(session))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(session))
}

// handleGameState drives the game-loaded signal. A change starts or stops
// the local clock through the tracker's subscription.
func (s *Server) handleGameState(w http.ResponseWriter, r *http.Request) {
	session, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	var req GameStateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	changed := session.Tracker.Signal().Set(*req.Loaded)

	writeJSON(w, http.StatusOK, ActionResponse{
		Changed: changed,
		Session: newSessionResponse(session),
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	session, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	started := session.Tracker.Start()

	writeJSON(w, http.StatusOK, ActionResponse{
		Changed: started,
		Session: newSessionResponse(session),
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	session, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	stopped := session.Tracker.Stop()

	writeJSON(w, http.StatusOK, ActionResponse{
		Changed: stopped,
		Session: newSessionResponse(session),
	})
}

func (s *Server) handleStrictMode(w http.ResponseWriter, r *http.Request) {
	session, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	var req StrictModeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	session.Tracker.SetStrictMode(*req.Strict)

	writeJSON(w, http.StatusOK, newSessionResponse(session))
}

// handleCloseSession stops the tracker and waits for its final flush.
func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.registry.Close(r.Context(), id); err != nil {
		if errors.Is(err, playtime.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		s.logger.Warn().Err(err).Str("session_id", id).Msg("Session closed before final flush finished")
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDailyUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		writeError(w, http.StatusNotImplemented, "Ledger backend does not keep daily usage")
		return
	}

	// URLs carry ISO dates; the ledger keys days by its own layout
	day, err := time.Parse(usageDateLayout, mux.Vars(r)["date"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (expected YYYY-MM-DD)")
		return
	}
	date := day.Format(s.config.DateLayout)

	applicationID := r.URL.Query().Get("application_id")
	if applicationID == "" {
		applicationID = s.config.ApplicationID
	}
	if applicationID == "" {
		writeError(w, http.StatusBadRequest, "application_id is required")
		return
	}

	players, err := s.usage.ListDailyUsage(r.Context(), date, applicationID)
	if err != nil {
		s.logger.Error().Err(err).Str("date", date).Msg("Failed to list daily usage")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve usage")
		return
	}
	if players == nil {
		players = []storage.DailyUsage{}
	}

	writeJSON(w, http.StatusOK, UsageResponse{
		Date:          date,
		ApplicationID: applicationID,
		Players:       players,
		Count:         len(players),
	})
}

func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*playtime.Session, bool) {
	id := mux.Vars(r)["id"]

	session, err := s.registry.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return nil, false
	}
	return session, true
}
