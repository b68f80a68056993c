package logging

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

var (
	currentLevel LogLevel
	levelOnce    sync.Once
)

// initLevel initializes the log level from environment variables
func initLevel() {
	levelOnce.Do(func() {
		currentLevel = ParseLevel(os.Getenv("LOG_LEVEL"))

		if debug := os.Getenv("DEBUG"); debug != "" {
			switch strings.ToLower(debug) {
			case "1", "true", "yes", "on":
				currentLevel = LevelDebug
			}
		}
	})
}

// ParseLevel converts a level name into a LogLevel. Unknown names map to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetLevel overrides the level read from the environment.
func SetLevel(level LogLevel) {
	initLevel()
	currentLevel = level
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	initLevel()
	return currentLevel
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...interface{}) {
	if GetLevel() <= LevelDebug {
		log.Printf("[DEBUG] "+format, args...)
	}
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	if GetLevel() <= LevelInfo {
		log.Printf("[INFO] "+format, args...)
	}
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	if GetLevel() <= LevelWarn {
		log.Printf("[WARN] "+format, args...)
	}
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	if GetLevel() <= LevelError {
		log.Printf("[ERROR] "+format, args...)
	}
}

// Fatal logs an error message and exits
func Fatal(format string, args ...interface{}) {
	log.Fatalf("[FATAL] "+format, args...)
}

// LineWriter is an io.WriteCloser that logs every complete line written to
// it at debug level under a fixed prefix. It is used to forward subprocess
// stderr into the application log without surfacing it to HTTP clients.
type LineWriter struct {
	prefix string
	pr     *io.PipeReader
	pw     *io.PipeWriter
	done   chan struct{}

	mu   sync.Mutex
	tail []string
}

// maxTailLines bounds how many trailing lines a LineWriter keeps for error reports.
const maxTailLines = 8

// NewLineWriter starts a LineWriter. Close must be called to release the
// background reader.
func NewLineWriter(prefix string) *LineWriter {
	pr, pw := io.Pipe()
	lw := &LineWriter{
		prefix: prefix,
		pr:     pr,
		pw:     pw,
		done:   make(chan struct{}),
	}
	go lw.drain()
	return lw
}

func (lw *LineWriter) drain() {
	defer close(lw.done)

	scanner := bufio.NewScanner(lw.pr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		Debug("[%s] %s", lw.prefix, line)

		lw.mu.Lock()
		lw.tail = append(lw.tail, line)
		if len(lw.tail) > maxTailLines {
			lw.tail = lw.tail[len(lw.tail)-maxTailLines:]
		}
		lw.mu.Unlock()
	}
	// Keep consuming so writers never block after a scanner error.
	_, _ = io.Copy(io.Discard, lw.pr)
}

// Write implements io.Writer.
func (lw *LineWriter) Write(p []byte) (int, error) {
	return lw.pw.Write(p)
}

// Close flushes pending lines and waits for the reader to finish.
func (lw *LineWriter) Close() error {
	err := lw.pw.Close()
	<-lw.done
	return err
}

// Tail returns the last lines seen, joined by " | ".
func (lw *LineWriter) Tail() string {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return strings.Join(lw.tail, " | ")
}

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}
