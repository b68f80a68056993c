package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"media-server/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

const pingTimeout = 2 * time.Second

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	// Engine state
	TranscodingEnabled bool   `json:"transcodingEnabled"`
	PreviewsEnabled    bool   `json:"previewsEnabled"`
	ActiveSessions     int    `json:"activeSessions"`
	ActiveEncoders     int    `json:"activeEncoders"`
	MaxEncoders        int    `json:"maxEncoders"`
	EventSubscribers   int    `json:"eventSubscribers"`
	ProbeStoreError    string `json:"probeStoreError,omitempty"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service. A failing probe
// store degrades the service but does not stop playback.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:       statusHealthy,
		Ready:        true,
		Version:      startup.Version,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	if h.supervisor != nil {
		response.TranscodingEnabled = h.supervisor.IsEnabled()
		response.ActiveEncoders = h.supervisor.Active()
		response.MaxEncoders = h.supervisor.MaxEncoders()
	}
	if h.previews != nil {
		response.PreviewsEnabled = h.previews.IsEnabled()
	}
	if h.sessions != nil {
		response.ActiveSessions = len(h.sessions.Sessions())
	}
	if h.hub != nil {
		response.EventSubscribers = h.hub.Clients()
	}

	if err := h.ping(r.Context()); err != nil {
		response.Status = statusDegraded
		response.ProbeStoreError = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	writeJSON(w, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when the probe store answers
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := h.ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]string{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	w.WriteHeader(http.StatusOK)
	writeJSON(w, map[string]string{
		"status": "ready",
	})
}

func (h *Handlers) ping(ctx context.Context) error {
	if h.db == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return h.db.Ping(ctx)
}

// GetVersion returns the application version and build information
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, startup.GetBuildInfo())
}
