package filesystem

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"media-server/internal/logging"
	"media-server/internal/metrics"
)

// Volumes maps configured root directories to metric labels.
// The first root that contains a path wins, so register nested roots first.
type Volumes struct {
	roots []volumeRoot
}

type volumeRoot struct {
	prefix string
	label  string
}

// NewVolumes builds a label table from (label, dir) pairs such as
// NewVolumes("media", cfg.MediaDir, "cache", cfg.CacheDir).
func NewVolumes(pairs ...string) *Volumes {
	v := &Volumes{}
	for i := 0; i+1 < len(pairs); i += 2 {
		dir := pairs[i+1]
		if dir == "" {
			continue
		}
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
		v.roots = append(v.roots, volumeRoot{
			prefix: strings.TrimSuffix(dir, "/") + "/",
			label:  pairs[i],
		})
	}
	return v
}

// Label returns the volume label for path, or "unknown".
func (v *Volumes) Label(path string) string {
	if v == nil {
		return "unknown"
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "unknown"
	}
	for _, r := range v.roots {
		if strings.HasPrefix(abs+"/", r.prefix) {
			return r.label
		}
	}
	return "unknown"
}

var defaultVolumes *Volumes

// SetVolumes installs the package-level volume table. Call once at startup.
func SetVolumes(v *Volumes) {
	defaultVolumes = v
}

// RetryConfig configures retry behavior for filesystem operations
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns defaults suited to NFS-backed media libraries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

// isStale reports whether err is an NFS stale file handle (ESTALE).
func isStale(err error) bool {
	var errno syscall.Errno
	return errors.As(err, &errno) && errno == syscall.ESTALE
}

func withRetry[T any](op, path string, cfg RetryConfig, fn func() (T, error)) (T, error) {
	volume := defaultVolumes.Label(path)
	backoff := cfg.InitialBackoff

	var zero T
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		v, err := fn()
		if err == nil {
			if attempt > 0 {
				logging.Info("%s succeeded on retry %d for %s", op, attempt, path)
			}
			return v, nil
		}
		if !isStale(err) {
			return zero, err
		}

		lastErr = err
		metrics.FilesystemStaleErrors.WithLabelValues(op, volume).Inc()

		if attempt < cfg.MaxRetries {
			metrics.FilesystemRetryAttempts.WithLabelValues(op, volume).Inc()
			logging.Debug("%s stale file handle for %s, retrying in %v (attempt %d/%d)",
				op, path, backoff, attempt+1, cfg.MaxRetries)
			time.Sleep(backoff)
			backoff = min(backoff*2, cfg.MaxBackoff)
		}
	}

	logging.Warn("%s failed after %d retries for %s: %v", op, cfg.MaxRetries, path, lastErr)
	metrics.FilesystemRetryFailures.WithLabelValues(op, volume).Inc()
	return zero, lastErr
}

// StatWithRetry is os.Stat with retries on stale NFS handles.
func StatWithRetry(path string, cfg RetryConfig) (os.FileInfo, error) {
	return withRetry("stat", path, cfg, func() (os.FileInfo, error) {
		return os.Stat(path)
	})
}

// OpenWithRetry is os.Open with retries on stale NFS handles.
func OpenWithRetry(path string, cfg RetryConfig) (*os.File, error) {
	return withRetry("open", path, cfg, func() (*os.File, error) {
		return os.Open(path)
	})
}
