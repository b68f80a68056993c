package handlers

import (
	"net/http"

	"media-server/internal/logging"
)

// ClearTranscodeCache closes every segment session and empties the segment
// and preview caches.
// POST /api/transcode/clear
func (h *Handlers) ClearTranscodeCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var segmentBytes, previewBytes int64
	var err error
	if h.sessions != nil {
		segmentBytes, err = h.sessions.ClearCache()
		if err != nil {
			logging.Error("Failed to clear segment cache: %v", err)
			http.Error(w, "Failed to clear transcode cache", http.StatusInternalServerError)
			return
		}
	}

	if h.previews != nil && h.previews.IsEnabled() {
		previewBytes, err = h.previews.ClearCache()
		if err != nil {
			logging.Error("Failed to clear preview cache: %v", err)
			http.Error(w, "Failed to clear preview cache", http.StatusInternalServerError)
			return
		}
	}

	freedBytes := segmentBytes + previewBytes
	logging.Info("Transcode cache cleared, freed %d bytes", freedBytes)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]interface{}{
		"success":      true,
		"freedBytes":   freedBytes,
		"segmentBytes": segmentBytes,
		"previewBytes": previewBytes,
	})
}
