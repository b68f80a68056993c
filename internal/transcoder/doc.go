// Package transcoder supervises ffmpeg.
//
// A Supervisor builds the argument list for a Job (seek, optional duration,
// quality ladder scaling and bitrate, per-stream copy or encoder choice, and
// an HLS or fragmented-MP4 sink), runs the process through a Runner and
// forwards its stderr to debug logs. A weighted semaphore caps how many
// encoders run at once across all sessions. A non-zero exit is reported as
// ErrEncodeFailure with the last lines of ffmpeg output attached.
//
// StreamProgressive pipes an encode straight into an HTTP response with no
// intermediate file; seeking means starting a new request.
//
// The quality ladder is fixed: 360p, 480p, 720p and 1080p, plus "original",
// which keeps the source resolution and copies every compatible stream.
package transcoder
