package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_server_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_server_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_server_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Probe metrics
var (
	ProbeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_server_probe_total",
			Help: "Total number of ffprobe invocations by outcome",
		},
		[]string{"status"}, // "success", "timeout", "error"
	)

	ProbeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_server_probe_duration_seconds",
			Help:    "ffprobe invocation duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	ProbeCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_server_probe_cache_hits_total",
			Help: "Probe results served from cache by tier",
		},
		[]string{"tier"}, // "memory", "database"
	)

	ProbeCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_server_probe_cache_misses_total",
			Help: "Probe lookups that required running ffprobe",
		},
	)

	ProbeStoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_server_probe_store_errors_total",
			Help: "Errors from the persistent probe store by operation",
		},
		[]string{"operation"},
	)
)

// Probe store (SQLite) metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_server_db_query_total",
			Help: "Total number of probe store queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_server_db_query_duration_seconds",
			Help:    "Probe store query duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_server_db_connections_open",
			Help: "Open connections to the probe store",
		},
	)

	DBProbeRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_server_db_probe_rows",
			Help: "Probe results persisted in the probe store",
		},
	)
)

// Classifier and delivery decisions
var (
	DeliveryDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_server_delivery_decisions_total",
			Help: "How requests were served: direct, progressive or segmented",
		},
		[]string{"mode"},
	)

	DirectBytesServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_server_direct_bytes_served_total",
			Help: "Bytes written by the direct file server",
		},
	)

	RangeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_server_range_requests_total",
			Help: "Direct file requests by range outcome",
		},
		[]string{"result"}, // "full", "partial", "unsatisfiable"
	)
)

// Encoder metrics
var (
	EncoderJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_server_encoder_jobs_total",
			Help: "Total number of encoder invocations",
		},
		[]string{"mode", "status"}, // mode: "progressive", "segment"
	)

	EncoderJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_server_encoder_job_duration_seconds",
			Help:    "Encoder invocation duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"mode"},
	)

	EncoderJobsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_server_encoder_jobs_in_progress",
			Help: "Number of encoder processes currently running",
		},
	)

	EncoderSlotWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_server_encoder_slot_wait_seconds",
			Help:    "Time spent waiting for a free encoder slot",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60},
		},
	)
)

// Segment session metrics
var (
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_server_active_sessions",
			Help: "Number of segmented playback sessions in memory",
		},
	)

	ActivePreloadLoops = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_server_active_preload_loops",
			Help: "Number of running preload loops",
		},
	)

	SegmentsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_server_segments_generated_total",
			Help: "Total number of segments generated by trigger",
		},
		[]string{"trigger"}, // "request", "preload", "regenerate"
	)

	SegmentsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_server_segments_evicted_total",
			Help: "Total number of segments evicted from disk",
		},
	)

	PreloadCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_server_preload_cycles_total",
			Help: "Preload loop cycles by outcome",
		},
		[]string{"result"}, // "generated", "idle", "busy", "error"
	)

	SegmentCacheBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_server_segment_cache_bytes",
			Help: "Total size of the segment output directory in bytes",
		},
	)

	SegmentCacheFiles = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_server_segment_cache_files",
			Help: "Number of files in the segment output directory",
		},
	)
)

// Preview metrics
var (
	PreviewGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_server_preview_generations_total",
			Help: "Preview frame generations by status",
		},
		[]string{"status"},
	)

	PreviewCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_server_preview_cache_hits_total",
			Help: "Preview frames served from the disk cache",
		},
	)
)

// Filesystem retry metrics
var (
	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_server_filesystem_retry_attempts_total",
			Help: "Retries performed after stale NFS file handles",
		},
		[]string{"operation", "volume"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_server_filesystem_retry_failures_total",
			Help: "Operations that still failed after all retries",
		},
		[]string{"operation", "volume"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_server_filesystem_stale_errors_total",
			Help: "ESTALE errors observed",
		},
		[]string{"operation", "volume"},
	)
)

// Event hub metrics
var (
	EventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_server_event_subscribers",
			Help: "Connected websocket event subscribers",
		},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_server_events_dropped_total",
			Help: "Events dropped because a subscriber or the hub was saturated",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_server_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
