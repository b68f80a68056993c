package handlers

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"math"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"media-server/internal/filesystem"
	"media-server/internal/logging"
)

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, map[string]string{"error": message})
}

// writeJSONStatus writes a simple status response as JSON.
func writeJSONStatus(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": status})
}

// resolvePath maps a client-supplied path onto a regular file inside the
// media directory. Relative paths are taken from the media root; absolute
// paths must already point inside it.
func (h *Handlers) resolvePath(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", errMissingPath
	}

	full := raw
	if !filepath.IsAbs(full) {
		full = filepath.Join(h.mediaDir, full)
	}
	full = filepath.Clean(full)

	if !isSubPath(h.mediaDir, full) {
		return "", fmt.Errorf("%w: path outside media directory", errBadRequest)
	}

	info, err := filesystem.StatWithRetry(full, filesystem.DefaultRetryConfig())
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory: %w", raw, fs.ErrNotExist)
	}
	return full, nil
}

func isSubPath(parent, child string) bool {
	parent, err := filepath.Abs(parent)
	if err != nil {
		return false
	}
	child, err = filepath.Abs(child)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// parseSeconds reads a non-negative time offset; empty means zero.
func parseSeconds(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: invalid time %q", errBadRequest, raw)
	}
	return v, nil
}
