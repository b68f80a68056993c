package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"media-server/internal/hls"
	"media-server/internal/mediatypes"
	"media-server/internal/metrics"
	"media-server/internal/transcoder"
)

const maxPlaybackBody = 4 << 10

// GetSegmentPlaylist is the entry point of segmented playback. The first
// call for a session creates it.
// GET /video/{sessionId}/{time}/{quality}?path=...
func (h *Handlers) GetSegmentPlaylist(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if !h.supervisor.IsEnabled() || h.sessions == nil {
		writeError(w, r, transcoder.ErrTranscodingDisabled)
		return
	}

	t, err := strconv.ParseFloat(vars["time"], 64)
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid time %q", errBadRequest, vars["time"]))
		return
	}
	if _, err := transcoder.LookupQuality(vars["quality"]); err != nil {
		writeError(w, r, err)
		return
	}

	// path may be left out once the session exists
	var path string
	if raw := r.URL.Query().Get("path"); raw != "" {
		if path, err = h.resolvePath(raw); err != nil {
			writeError(w, r, err)
			return
		}
	}

	// Generation is not tied to the request: a player that gives up still
	// leaves the segments behind for its retry.
	playlist, err := h.sessions.Playlist(r.Context(), vars["sessionId"], path, t, vars["quality"])
	if err != nil {
		writeError(w, r, err)
		return
	}

	metrics.DeliveryDecisions.WithLabelValues("segmented").Inc()

	w.Header().Set("Content-Type", mediatypes.MPEGURL)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Length", strconv.Itoa(len(playlist)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(playlist)
}

// UpdatePlaybackState records the player position for a session.
// POST /playback-state/{sessionId}
func (h *Handlers) UpdatePlaybackState(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]

	var state hls.PlaybackState
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPlaybackBody)).Decode(&state); err != nil {
		writeError(w, r, fmt.Errorf("%w: invalid body: %w", errBadRequest, err))
		return
	}

	sessions, err := h.sessionManager()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := sessions.UpdatePlayback(sessionID, state); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSONStatus(w, "ok")
}

// CloseSession stops a session and deletes its segments.
// DELETE /video/{sessionId}
func (h *Handlers) CloseSession(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessionManager()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := sessions.CloseSession(mux.Vars(r)["sessionId"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, "closed")
}

// ListSessions returns a snapshot of every live session.
// GET /api/sessions
func (h *Handlers) ListSessions(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.sessions == nil {
		writeJSON(w, []hls.SessionInfo{})
		return
	}
	writeJSON(w, h.sessions.Sessions())
}

// GetSession returns one session.
// GET /api/sessions/{sessionId}
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.sessionManager()
	if err != nil {
		writeError(w, r, err)
		return
	}
	info, err := sessions.Session(mux.Vars(r)["sessionId"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, info)
}

// sessionManager is nil when the segment directory could not be created.
func (h *Handlers) sessionManager() (*hls.SessionManager, error) {
	if h.sessions == nil {
		return nil, transcoder.ErrTranscodingDisabled
	}
	return h.sessions, nil
}
