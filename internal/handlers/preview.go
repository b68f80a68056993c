package handlers

import (
	"fmt"
	"net/http"
	"strconv"
)

// GetPreview returns a JPEG frame of a video.
// GET /preview?path=...&time=...&width=...
func (h *Handlers) GetPreview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	path, err := h.resolvePath(q.Get("path"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	t, err := parseSeconds(q.Get("time"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	width := 0
	if raw := q.Get("width"); raw != "" {
		width, err = strconv.Atoi(raw)
		if err != nil || width < 0 {
			writeError(w, r, fmt.Errorf("%w: invalid width %q", errBadRequest, raw))
			return
		}
	}

	data, err := h.previews.GetPreview(r.Context(), path, t, width)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}
