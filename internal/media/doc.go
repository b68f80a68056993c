// Package media renders preview frames of video files.
//
// The PreviewGenerator extracts a single frame with FFmpeg at a requested
// time, scales it down to the requested width and stores the JPEG in a disk
// cache keyed by path, size, modification time, timestamp and width.
// Concurrent requests for the same preview share one extraction.
package media
