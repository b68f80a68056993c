// Package main provides the entry point for the Media Server streaming engine.
//
// Media Server delivers video files from a media library to browser players.
// Files that a browser can decode are served as-is with byte-range support.
// Everything else is transcoded with FFmpeg, either as one progressive
// fragmented MP4 stream or as on-demand HLS segments that are preloaded
// ahead of the playhead and evicted behind it.
//
// # Application Lifecycle
//
// The application follows a structured initialization sequence:
//
//  1. Configuration Loading: Reads environment variables and validates directories
//  2. Probe Store: Opens the SQLite cache of ffprobe results
//  3. Encoder Detection: Asks FFmpeg which encoders it was built with and
//     picks the hardware encoder when available
//  4. Component Initialization:
//     - Encoder Supervisor: Bounds concurrent FFmpeg processes
//     - Session Manager: Owns HLS segment sessions (stale segments are cleared first)
//     - Event Hub: Pushes session events to WebSocket subscribers
//     - Preview Generator: Extracts scrub preview frames
//     - Metrics Collector: Gathers Prometheus metrics
//  5. HTTP Server Setup: Configures routes, middleware, and starts server
//  6. Graceful Shutdown: Handles SIGINT/SIGTERM, stops all components cleanly
//
// # Background Services
//
//   - Preload loops: One per active session and quality, encodes ahead of playback
//   - Session reaper: Closes idle sessions when SESSION_IDLE_TIMEOUT is set
//   - Probe store maintenance: Prunes old probe results hourly
//   - Metrics Collector: Updates session and cache gauges every minute
//
// # HTTP Server
//
// The application runs two HTTP servers:
//
//  1. Main Server (default port 8080):
//     - /video: direct play or progressive transcode
//     - /video/{sessionId}/{time}/{quality}: segmented playback playlists
//     - /hls_segments/: segment and playlist files
//     - /metadata, /preview: track listing and scrub frames
//     - /api/sessions, /api/transcode/clear: administration
//     - /ws: session events
//
//  2. Metrics Server (default port 9090, optional):
//     - Prometheus metrics endpoint (/metrics)
//
// # Graceful Shutdown
//
//  1. Stop the session manager (preload loops exit)
//  2. Stop all encoders, which ends open streams
//  3. Shutdown main HTTP server (30s timeout)
//  4. Shutdown metrics server (if running)
//  5. Close event subscribers and the metrics collector
//  6. Close the probe store
//
// Segment files are left on disk at shutdown and removed on the next start.
//
// # Build Requirements
//
// CGO is required for SQLite. FFmpeg and ffprobe must be on PATH or named
// through FFMPEG_PATH and FFPROBE_PATH.
//
//	go build -o media-server ./cmd/media-server
//
// # Related Packages
//
//   - [media-server/internal/codec]: Codec compatibility and encoder selection
//   - [media-server/internal/handlers]: HTTP request handlers
//   - [media-server/internal/hls]: Segment session manager
//   - [media-server/internal/probe]: ffprobe wrapper with result caching
//   - [media-server/internal/startup]: Configuration and initialization
//   - [media-server/internal/streaming]: Direct file serving with Range support
//   - [media-server/internal/transcoder]: FFmpeg supervision and progressive transcode
package main
