// Package startup handles application initialization, configuration loading,
// and startup/shutdown logging.
//
// # Configuration
//
// All configuration is loaded from environment variables via [LoadConfig]:
//
//   - MEDIA_DIR: Root of the media library (default: /media)
//   - CACHE_DIR: Segments, previews and the probe store live here (default: /cache)
//   - PORT: HTTP server port (default: 8080)
//   - METRICS_PORT: Prometheus metrics server port (default: 9090)
//   - METRICS_ENABLED: Enable or disable metrics server (default: true)
//   - FFMPEG_PATH, FFPROBE_PATH: Encoder and prober binaries (default: ffmpeg, ffprobe)
//   - MAX_ENCODERS: Concurrent encoder processes, 0 sizes from CPU count (default: 0)
//   - PROBE_TIMEOUT: Deadline for a single probe (default: 10s)
//   - HW_ENCODER: Preferred hardware video encoder (default: h264_nvenc)
//   - SEGMENT_DURATION: Length of one HLS segment (default: 4s)
//   - PRELOAD_LIMIT: Segments kept ahead of the playhead (default: 15)
//   - PRELOAD_INTERVAL: Preload loop tick (default: 1s)
//   - SESSION_IDLE_TIMEOUT: Close sessions idle this long, 0 disables (default: 0)
//   - LOG_LEVEL: Logging level - debug, info, warn, error (default: info)
//   - LOG_STATIC_FILES: Log segment file requests (default: false)
//   - LOG_HEALTH_CHECKS: Log health check requests (default: true)
//
// # Directory Setup
//
// The cache directory must be writable because it holds the probe store.
// The segment and preview directories beneath it are optional: when they
// cannot be written, transcoding or previews are disabled and only direct
// play keeps working.
//
// # Build Information
//
// Build-time variables are injected via ldflags and exposed via [GetBuildInfo].
package startup
