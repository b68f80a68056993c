package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"media-server/internal/events"
	"media-server/internal/handlers"
	"media-server/internal/metrics"
	"media-server/internal/startup"
	"media-server/internal/transcoder"
)

func newTestRouter(t *testing.T, segmentDir string) http.Handler {
	t.Helper()

	cfg := &startup.Config{MediaDir: t.TempDir()}
	h := handlers.New(cfg, handlers.Dependencies{
		Supervisor: transcoder.NewSupervisor("ffmpeg", 1, false, nil),
	})
	return setupRouter(h, events.NewHub(), segmentDir)
}

func TestSetupRouterRoutes(t *testing.T) {
	cfg := &startup.Config{MediaDir: t.TempDir()}
	h := handlers.New(cfg, handlers.Dependencies{
		Supervisor: transcoder.NewSupervisor("ffmpeg", 1, false, nil),
	})
	router := setupRouter(h, events.NewHub(), t.TempDir())

	routes, err := startup.GetRoutes(router)
	if err != nil {
		t.Fatalf("GetRoutes() error = %v", err)
	}

	registered := make(map[string]bool, len(routes))
	for _, r := range routes {
		registered[r.Method+" "+r.Path] = true
	}

	want := []string{
		"GET /health",
		"GET /livez",
		"GET /readyz",
		"GET /version",
		"GET /metadata",
		"GET /preview",
		"GET /video/{sessionId}/{time}/{quality}",
		"DELETE /video/{sessionId}",
		"POST /playback-state/{sessionId}",
		"GET /api/sessions",
		"GET /api/sessions/{sessionId}",
		"POST /api/transcode/clear",
		"GET /ws",
	}
	for _, route := range want {
		if !registered[route] {
			t.Errorf("route %q not registered", route)
		}
	}
}

func TestRouterHealthEndpoints(t *testing.T) {
	router := newTestRouter(t, t.TempDir())

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/livez", http.StatusOK},
		{http.MethodHead, "/livez", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusOK},
		{http.MethodGet, "/version", http.StatusOK},
		{http.MethodPost, "/health", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, http.NoBody))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRouterWithoutSessionManager(t *testing.T) {
	router := newTestRouter(t, t.TempDir())

	t.Run("list is empty", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions", http.NoBody))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var list []json.RawMessage
		if err := json.NewDecoder(w.Body).Decode(&list); err != nil || len(list) != 0 {
			t.Errorf("body = %q, err = %v", w.Body.String(), err)
		}
	})

	t.Run("segment playlist is refused", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/video/s1/0/720p?path=a.mkv", http.NoBody))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("close is refused", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/video/s1", http.NoBody))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestValidSegmentName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"s1_720p_3.m3u8", true},
		{"s1_720p_3_0.ts", true},
		{"s1_720p_3.encoding.m3u8", false},
		{"", false},
		{"../probe.db", false},
		{"sub/s1_720p_3_0.ts", false},
		{`sub\s1.ts`, false},
		{"probe.db", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := validSegmentName(tt.name); got != tt.want {
				t.Errorf("validSegmentName(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestSegmentHandler(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"s1_720p_3.m3u8":          "#EXTM3U\n",
		"s1_720p_3_0.ts":          "0123456789",
		"s1_720p_3.encoding.m3u8": "#EXTM3U\n",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	router := newTestRouter(t, dir)

	tests := []struct {
		name        string
		path        string
		rangeHeader string
		wantStatus  int
		wantBody    string
		wantCache   string
	}{
		{"playlist", "/hls_segments/s1_720p_3.m3u8", "", http.StatusOK, "#EXTM3U\n", "no-cache"},
		{"segment", "/hls_segments/s1_720p_3_0.ts", "", http.StatusOK, "0123456789", "public, max-age=3600"},
		{"segment range", "/hls_segments/s1_720p_3_0.ts", "bytes=2-4", http.StatusPartialContent, "234", "public, max-age=3600"},
		{"working playlist hidden", "/hls_segments/s1_720p_3.encoding.m3u8", "", http.StatusNotFound, "", ""},
		{"missing", "/hls_segments/s1_720p_4_0.ts", "", http.StatusNotFound, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
			if tt.rangeHeader != "" {
				req.Header.Set("Range", tt.rangeHeader)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
			if got := w.Header().Get("Cache-Control"); got != tt.wantCache {
				t.Errorf("Cache-Control = %q, want %q", got, tt.wantCache)
			}
		})
	}
}

func TestSessionConfig(t *testing.T) {
	cfg := sessionConfig(&startup.Config{
		SegmentDir:         "/cache/hls_segments",
		SegmentDuration:    6 * time.Second,
		PreloadLimit:       10,
		PreloadInterval:    2 * time.Second,
		SessionIdleTimeout: time.Hour,
	})

	if cfg.SegmentDir != "/cache/hls_segments" || cfg.PublicPrefix != segmentURLPrefix {
		t.Errorf("dirs = %q, %q", cfg.SegmentDir, cfg.PublicPrefix)
	}
	if cfg.SegmentDuration != 6*time.Second || cfg.PreloadLimit != 10 {
		t.Errorf("segment settings = %v, %d", cfg.SegmentDuration, cfg.PreloadLimit)
	}
	if cfg.PreloadInterval != 2*time.Second || cfg.IdleTimeout != time.Hour {
		t.Errorf("timers = %v, %v", cfg.PreloadInterval, cfg.IdleTimeout)
	}
	if cfg.PreloadBatch <= 0 || cfg.InitialSegments <= 0 {
		t.Errorf("defaults not kept: batch %d, initial %d", cfg.PreloadBatch, cfg.InitialSegments)
	}
}

func TestServerTimeouts(t *testing.T) {
	srv := newServer(":0", http.NotFoundHandler())
	if srv.WriteTimeout != 0 {
		t.Errorf("WriteTimeout = %v, streams need no write deadline", srv.WriteTimeout)
	}
	if srv.ReadTimeout <= 0 || srv.IdleTimeout <= 0 || srv.ReadHeaderTimeout <= 0 {
		t.Errorf("read/idle timeouts must be positive: %v %v %v", srv.ReadTimeout, srv.IdleTimeout, srv.ReadHeaderTimeout)
	}

	m := newMetricsServer(":0")
	if m.WriteTimeout <= 0 || m.ReadTimeout <= 0 {
		t.Errorf("metrics timeouts = %v, %v", m.ReadTimeout, m.WriteTimeout)
	}
}

func TestMetricsServerServesRegistry(t *testing.T) {
	metrics.SetAppInfo("test", "abc", "go")

	w := httptest.NewRecorder()
	newMetricsServer(":0").Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if len(w.Body.Bytes()) == 0 {
		t.Error("empty metrics body")
	}
}
