package handlers

import (
	"errors"
	"io/fs"
	"net/http"

	"media-server/internal/hls"
	"media-server/internal/logging"
	"media-server/internal/media"
	"media-server/internal/streaming"
	"media-server/internal/transcoder"
)

var (
	// errBadRequest marks request parameters that failed validation.
	errBadRequest = errors.New("bad request")
	// errMissingPath is a request that names no media file at all.
	errMissingPath = errors.New("path parameter is required")
)

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, transcoder.ErrInvalidQuality),
		errors.Is(err, transcoder.ErrTranscodingDisabled),
		errors.Is(err, hls.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, errMissingPath),
		errors.Is(err, hls.ErrSessionNotFound),
		errors.Is(err, hls.ErrSegmentNotFound),
		errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, streaming.ErrRangeNotSatisfiable):
		return http.StatusRequestedRangeNotSatisfiable
	case errors.Is(err, media.ErrPreviewsDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err to the client. Server-side failures are logged
// with the full chain and answered with a generic message. An error after
// the response body started aborts the connection instead, since the
// status line is already gone.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, transcoder.ErrResponseStarted) {
		logging.Warn("Aborting %s %s: %v", r.Method, r.URL.Path, err)
		panic(http.ErrAbortHandler)
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.Error("%s %s failed: %v", r.Method, r.URL.Path, err)
		writeJSONError(w, http.StatusText(status), status)
		return
	}

	logging.Debug("%s %s rejected with %d: %v", r.Method, r.URL.Path, status, err)
	message := err.Error()
	if errors.Is(err, fs.ErrNotExist) {
		// Keep filesystem paths out of responses
		message = "file not found"
	}
	writeJSONError(w, message, status)
}
