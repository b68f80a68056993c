// Package handlers provides the HTTP handlers of the streaming engine.
//
// It includes handlers for:
//   - Progressive playback with direct play for compatible files
//   - Segmented (HLS) session playlists and playback-state reports
//   - Stream metadata and preview frames
//   - Cache maintenance, health checks and version information
//
// Engine errors are mapped to status codes in one place, see writeError.
package handlers
