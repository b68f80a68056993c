package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"media-server/internal/codec"
	"media-server/internal/database"
	"media-server/internal/events"
	"media-server/internal/filesystem"
	"media-server/internal/handlers"
	"media-server/internal/hls"
	"media-server/internal/logging"
	"media-server/internal/media"
	"media-server/internal/metrics"
	"media-server/internal/middleware"
	"media-server/internal/probe"
	"media-server/internal/startup"
	"media-server/internal/streaming"
	"media-server/internal/transcoder"
	"media-server/internal/workers"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	shutdownTimeout   = 30 * time.Second
	metricsInterval   = time.Minute
	probeStoreTick    = time.Hour
	probeRetention    = 30 * 24 * time.Hour
	segmentURLPrefix  = "/hls_segments/"
	encodingExtension = ".encoding.m3u8"
)

func main() {
	startTime := time.Now()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	filesystem.SetVolumes(filesystem.NewVolumes("media", config.MediaDir, "cache", config.CacheDir))

	// Probe store
	dbStart := time.Now()
	db, err := database.New(context.Background(), config.ProbeDBPath)
	if err != nil {
		startup.LogFatal("Failed to initialize probe store: %v", err)
	}
	rows, err := db.CountProbes(context.Background())
	if err != nil {
		logging.Warn("Failed to count cached probe results: %v", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart), rows)

	prober := probe.New(config.FFprobePath, config.ProbeTimeout, db)

	// Encoders
	startup.LogTranscoderInit(config.FFmpegPath, config.TranscodingEnabled)
	encoders, err := codec.DetectEncoders(context.Background(), config.FFmpegPath)
	if err != nil {
		logging.Warn("Encoder detection failed, using baseline encoders: %v", err)
		encoders = codec.NewEncoders()
	}
	selector := codec.NewSelector(encoders, config.HWEncoder, "")
	supervisor := transcoder.NewSupervisor(config.FFmpegPath, workers.Encoders(config.MaxEncoders), config.TranscodingEnabled, nil)
	startup.LogEncoderSelection(encoders.Len(), selector.VideoEncoder(), selector.AudioEncoder(), supervisor.MaxEncoders())

	// Segments left by a previous run have no session to belong to.
	stale, err := transcoder.ClearDirectory(config.SegmentDir)
	if err != nil {
		logging.Warn("Failed to clear stale segments: %v", err)
	}
	startup.LogSessionManagerInit(config.SegmentDuration, config.PreloadLimit, stale)

	hub := events.NewHub()
	go hub.Run()

	sessions, err := hls.NewSessionManager(sessionConfig(config), supervisor, prober, selector, hub)
	switch {
	case err == nil:
		sessions.Start()
	case config.TranscodingEnabled:
		startup.LogFatal("Failed to initialize session manager: %v", err)
	default:
		logging.Warn("Segmented playback unavailable: %v", err)
	}

	previews := media.NewPreviewGenerator(config.FFmpegPath, config.PreviewDir, config.PreviewsEnabled)
	startup.LogPreviewInit(previews.IsEnabled())

	// Metrics
	metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)
	metrics.InitializeMetrics()
	var stats metrics.StatsProvider
	if sessions != nil {
		stats = sessions
	}
	collector := metrics.NewCollector(stats, metricsInterval)
	collector.Start()

	stopMaintenance := make(chan struct{})
	go maintainProbeStore(db, stopMaintenance)

	h := handlers.New(config, handlers.Dependencies{
		Supervisor: supervisor,
		Sessions:   sessions,
		Prober:     prober,
		Selector:   selector,
		Previews:   previews,
		DB:         db,
		Hub:        hub,
	})

	router := setupRouter(h, hub, config.SegmentDir)
	startup.LogHTTPRoutes(router, config.LogStaticFiles, config.LogHealthChecks)

	router.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogStaticFiles = config.LogStaticFiles
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	loggingConfig.SkipPaths = append(loggingConfig.SkipPaths, "/ws")
	handler := middleware.Logger(loggingConfig)(router)

	srv := newServer(":"+config.Port, handler)

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsSrv = newMetricsServer(":" + config.MetricsPort)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	go handleShutdown(shutdownDeps{
		srv:        srv,
		metricsSrv: metricsSrv,
		sessions:   sessions,
		supervisor: supervisor,
		hub:        hub,
		collector:  collector,
		db:         db,
		stop:       stopMaintenance,
	})

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
}

func sessionConfig(config *startup.Config) hls.Config {
	cfg := hls.DefaultConfig(config.SegmentDir)
	cfg.PublicPrefix = segmentURLPrefix
	cfg.SegmentDuration = config.SegmentDuration
	cfg.PreloadLimit = config.PreloadLimit
	cfg.PreloadInterval = config.PreloadInterval
	cfg.IdleTimeout = config.SessionIdleTimeout
	return cfg
}

// newServer has no write timeout: streams last as long as playback does.
func newServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}
}

func newMetricsServer(addr string) *http.Server {
	m := http.NewServeMux()
	m.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:         addr,
		Handler:      m,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
}

func setupRouter(h *handlers.Handlers, hub http.Handler, segmentDir string) *mux.Router {
	r := mux.NewRouter()

	// Health check and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	// Playback
	r.HandleFunc("/video", h.StreamVideo).Methods("GET", "HEAD")
	r.HandleFunc("/metadata", h.GetMetadata).Methods("GET")
	r.HandleFunc("/preview", h.GetPreview).Methods("GET")
	r.HandleFunc("/video/{sessionId}/{time}/{quality}", h.GetSegmentPlaylist).Methods("GET")
	r.HandleFunc("/video/{sessionId}", h.CloseSession).Methods("DELETE")
	r.HandleFunc("/playback-state/{sessionId}", h.UpdatePlaybackState).Methods("POST")

	// Session administration
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sessions", h.ListSessions).Methods("GET")
	api.HandleFunc("/sessions/{sessionId}", h.GetSession).Methods("GET")
	api.HandleFunc("/transcode/clear", h.ClearTranscodeCache).Methods("POST")

	// Session events
	r.Handle("/ws", hub).Methods("GET")

	r.PathPrefix(segmentURLPrefix).Handler(segmentHandler(segmentDir)).Methods("GET", "HEAD")

	return r
}

// segmentHandler serves playlists and parts written by the session manager.
// Only flat names are accepted and ffmpeg's working playlists stay hidden.
func segmentHandler(dir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, segmentURLPrefix)
		if !validSegmentName(name) {
			http.NotFound(w, r)
			return
		}

		if strings.HasSuffix(name, ".m3u8") {
			w.Header().Set("Cache-Control", "no-cache")
		} else {
			w.Header().Set("Cache-Control", "public, max-age=3600")
		}

		if err := streaming.ServeFile(w, r, filepath.Join(dir, name)); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				w.Header().Del("Cache-Control")
				http.NotFound(w, r)
				return
			}
			logging.Error("Failed to serve segment %s: %v", name, err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}
}

func validSegmentName(name string) bool {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return false
	}
	if strings.HasSuffix(name, encodingExtension) {
		return false
	}
	return strings.HasSuffix(name, ".m3u8") || strings.HasSuffix(name, ".ts")
}

// maintainProbeStore drops stale probe results and refreshes store gauges.
func maintainProbeStore(db *database.Database, stop <-chan struct{}) {
	ticker := time.NewTicker(probeStoreTick)
	defer ticker.Stop()

	db.UpdateDBMetrics()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			n, err := db.PruneProbes(ctx, time.Now().Add(-probeRetention))
			cancel()
			if err != nil {
				logging.Warn("Failed to prune probe results: %v", err)
			} else if n > 0 {
				logging.Info("Pruned %d stale probe results", n)
			}
			db.UpdateDBMetrics()
		case <-stop:
			return
		}
	}
}

type shutdownDeps struct {
	srv        *http.Server
	metricsSrv *http.Server
	sessions   *hls.SessionManager
	supervisor *transcoder.Supervisor
	hub        *events.Hub
	collector  *metrics.Collector
	db         *database.Database
	stop       chan struct{}
}

func handleShutdown(d shutdownDeps) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Open streams are cut by stopping their encoders, so the supervisor
	// goes down before the server waits for handlers to return.
	if d.sessions != nil {
		startup.LogShutdownStep("Stopping session manager")
		d.sessions.Close()
		startup.LogShutdownStepComplete("Session manager stopped")
	}

	startup.LogShutdownStep("Stopping encoders")
	d.supervisor.Cleanup()
	startup.LogShutdownStepComplete("Encoders stopped")

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := d.srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if d.metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := d.metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	d.hub.Close()
	d.collector.Stop()
	close(d.stop)

	startup.LogShutdownStep("Closing probe store")
	if err := d.db.Close(); err != nil {
		logging.Warn("Probe store close error: %v", err)
	} else {
		startup.LogShutdownStepComplete("Probe store closed")
	}

	startup.LogShutdownComplete()
}
