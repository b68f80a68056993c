package probe

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"media-server/internal/filesystem"
	"media-server/internal/logging"
	"media-server/internal/metrics"
)

// DefaultTimeout bounds a single ffprobe invocation.
const DefaultTimeout = 10 * time.Second

// Key identifies one version of a file for persistent caching.
type Key struct {
	Path    string
	Size    int64
	ModTime int64 // unix nanoseconds
}

// Store persists probe results across restarts. A miss returns ok=false.
type Store interface {
	GetProbe(ctx context.Context, key Key) (Result, bool, error)
	PutProbe(ctx context.Context, key Key, res Result) error
}

type execFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return out, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
	}
	return out, err
}

// Prober runs ffprobe and caches what it learns for the life of the process.
// Concurrent probes of the same path share one ffprobe invocation.
type Prober struct {
	binary  string
	timeout time.Duration
	store   Store
	run     execFunc

	mu    sync.RWMutex
	cache map[string]Result
	group singleflight.Group
}

// New creates a Prober. An empty binary means "ffprobe" on PATH; a zero
// timeout means DefaultTimeout; store may be nil.
func New(binary string, timeout time.Duration, store Store) *Prober {
	if strings.TrimSpace(binary) == "" {
		binary = "ffprobe"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Prober{
		binary:  binary,
		timeout: timeout,
		store:   store,
		run:     runCommand,
		cache:   make(map[string]Result),
	}
}

// Probe returns stream metadata for path. It never fails: any error,
// including a timeout, yields UnknownResult. Unknown results are not
// cached so the next request probes again.
func (p *Prober) Probe(ctx context.Context, path string) Result {
	p.mu.RLock()
	res, ok := p.cache[path]
	p.mu.RUnlock()
	if ok {
		metrics.ProbeCacheHits.WithLabelValues("memory").Inc()
		return res
	}

	v, _, _ := p.group.Do(path, func() (interface{}, error) {
		return p.load(context.WithoutCancel(ctx), path), nil
	})
	return v.(Result)
}

func (p *Prober) load(ctx context.Context, path string) Result {
	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		logging.Warn("Probe skipped for %s: %v", path, err)
		metrics.ProbeTotal.WithLabelValues("error").Inc()
		return UnknownResult()
	}
	key := Key{Path: path, Size: info.Size(), ModTime: info.ModTime().UnixNano()}

	if p.store != nil {
		res, ok, err := p.store.GetProbe(ctx, key)
		switch {
		case err != nil:
			logging.Warn("Probe store lookup failed for %s: %v", path, err)
			metrics.ProbeStoreErrors.WithLabelValues("get").Inc()
		case ok:
			metrics.ProbeCacheHits.WithLabelValues("database").Inc()
			p.remember(path, res)
			return res
		}
	}

	metrics.ProbeCacheMisses.Inc()
	res := p.exec(ctx, path)
	if res.Unknown {
		return res
	}

	p.remember(path, res)
	if p.store != nil {
		if err := p.store.PutProbe(ctx, key, res); err != nil {
			logging.Warn("Probe store write failed for %s: %v", path, err)
			metrics.ProbeStoreErrors.WithLabelValues("put").Inc()
		}
	}
	return res
}

func (p *Prober) exec(ctx context.Context, path string) Result {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	out, err := p.run(ctx, p.binary,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	metrics.ProbeDuration.Observe(time.Since(start).Seconds())

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		logging.Warn("ffprobe timed out after %v for %s", p.timeout, path)
		metrics.ProbeTotal.WithLabelValues("timeout").Inc()
		return UnknownResult()
	}
	if err != nil {
		logging.Warn("ffprobe failed for %s: %v", path, err)
		metrics.ProbeTotal.WithLabelValues("error").Inc()
		return UnknownResult()
	}

	res, err := parseProbeOutput(out)
	if err != nil {
		logging.Warn("ffprobe output parse failed for %s: %v", path, err)
		metrics.ProbeTotal.WithLabelValues("error").Inc()
		return UnknownResult()
	}

	metrics.ProbeTotal.WithLabelValues("success").Inc()
	logging.Debug("Probed %s: duration=%.2fs video=%s audio=%s", path, res.Duration, res.VideoCodec(), res.AudioCodec())
	return res
}

func (p *Prober) remember(path string, res Result) {
	p.mu.Lock()
	p.cache[path] = res
	p.mu.Unlock()
}

// Forget drops the cached result for path.
func (p *Prober) Forget(path string) {
	p.mu.Lock()
	delete(p.cache, path)
	p.mu.Unlock()
}

// CacheSize returns the number of results held in memory.
func (p *Prober) CacheSize() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.cache)
}
