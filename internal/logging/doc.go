// Package logging provides a simple leveled logging interface for the
// media server.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information, including encoder stderr
//   - INFO: General operational messages
//   - WARN: Warning conditions
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is configured via the LOG_LEVEL environment variable, or
// forced to debug with DEBUG=true.
//
// LineWriter adapts line-oriented subprocess output (ffmpeg, ffprobe) into
// debug log entries and remembers the last few lines for error messages.
package logging
