package media

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // MD5 used for cache key generation, not security
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	// Frame decoders
	_ "image/png"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/singleflight"

	"media-server/internal/filesystem"
	"media-server/internal/logging"
	"media-server/internal/metrics"
)

const (
	// DefaultPreviewWidth is used when the caller does not ask for a width.
	DefaultPreviewWidth = 320
	// MaxPreviewWidth bounds requested widths.
	MaxPreviewWidth = 1280

	frameTimeout   = 15 * time.Second
	cacheSizeTTL   = 2 * time.Minute
	previewQuality = 80
)

// ErrPreviewsDisabled is returned when preview generation is turned off.
var ErrPreviewsDisabled = errors.New("previews disabled")

// FrameExtractor returns one encoded still frame of path at t seconds.
type FrameExtractor func(ctx context.Context, ffmpegPath, path string, t float64) ([]byte, error)

// PreviewGenerator renders still frames of video files as JPEG and caches
// them on disk.
type PreviewGenerator struct {
	ffmpegPath string
	cacheDir   string
	enabled    bool
	extract    FrameExtractor
	group      singleflight.Group

	lastCacheUpdate atomic.Int64
	cachedSize      atomic.Int64
	cachedCount     atomic.Int64
}

// NewPreviewGenerator creates a generator that writes into cacheDir.
func NewPreviewGenerator(ffmpegPath, cacheDir string, enabled bool) *PreviewGenerator {
	if enabled {
		logging.Debug("PreviewGenerator: enabled, cache dir: %s", cacheDir)
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			logging.Warn("PreviewGenerator: failed to create cache dir: %v", err)
		}
	} else {
		logging.Debug("PreviewGenerator: disabled")
	}
	return &PreviewGenerator{
		ffmpegPath: ffmpegPath,
		cacheDir:   cacheDir,
		enabled:    enabled,
		extract:    extractFrame,
	}
}

// IsEnabled reports whether previews can be generated.
func (p *PreviewGenerator) IsEnabled() bool {
	return p.enabled
}

// GetPreview returns a JPEG frame of path at t seconds scaled to width.
func (p *PreviewGenerator) GetPreview(ctx context.Context, path string, t float64, width int) ([]byte, error) {
	if !p.enabled {
		return nil, ErrPreviewsDisabled
	}
	if width <= 0 {
		width = DefaultPreviewWidth
	}
	width = min(width, MaxPreviewWidth)
	t = max(t, 0)

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, fmt.Errorf("file not accessible: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("file not accessible: %s: %w", path, fs.ErrNotExist)
	}

	key := fmt.Sprintf("%x.jpg", md5.Sum([]byte(fmt.Sprintf("%s|%d|%d|%d|%d", //nolint:gosec // cache key only
		path, info.Size(), info.ModTime().UnixNano(), int64(t*1000), width))))
	cachePath := filepath.Join(p.cacheDir, key)

	if data, err := os.ReadFile(cachePath); err == nil {
		metrics.PreviewCacheHits.Inc()
		logging.Debug("Preview cache hit: %s @ %.2fs", path, t)
		return data, nil
	}

	v, err, _ := p.group.Do(key, func() (interface{}, error) {
		return p.generate(context.WithoutCancel(ctx), path, t, width, cachePath)
	})
	if err != nil {
		metrics.PreviewGenerationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	return v.([]byte), nil
}

func (p *PreviewGenerator) generate(ctx context.Context, path string, t float64, width int, cachePath string) ([]byte, error) {
	if data, err := os.ReadFile(cachePath); err == nil {
		return data, nil
	}

	logging.Debug("Preview generating: %s @ %.2fs (width %d)", path, t, width)

	ctx, cancel := context.WithTimeout(ctx, frameTimeout)
	defer cancel()

	frame, err := p.extract(ctx, p.ffmpegPath, path, t)
	if err != nil {
		return nil, fmt.Errorf("preview generation failed: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}

	if img.Bounds().Dx() > width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: previewQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}

	if err := os.WriteFile(cachePath, buf.Bytes(), 0o644); err != nil {
		logging.Warn("Failed to cache preview %s: %v", cachePath, err)
	} else {
		logging.Debug("Preview cached: %s", cachePath)
	}
	metrics.PreviewGenerationsTotal.WithLabelValues("success").Inc()

	return buf.Bytes(), nil
}

// extractFrame grabs a PNG frame with ffmpeg. Seeking past the last
// keyframe yields no output, so it retries from the start of the file.
func extractFrame(ctx context.Context, ffmpegPath, path string, t float64) ([]byte, error) {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if t > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.3f", t))
	}
	args = append(args, "-i", path, "-frames:v", "1", "-f", "image2pipe", "-vcodec", "png", "-")

	out, err := runFFmpeg(ctx, ffmpegPath, args)
	if (err != nil || len(out) == 0) && t > 0 && ctx.Err() == nil {
		logging.Debug("FFmpeg frame at %.2fs failed for %s: %v, retrying from start", t, path, err)
		return extractFrame(ctx, ffmpegPath, path, 0)
	}
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output for %s", path)
	}
	return out, nil
}

func runFFmpeg(ctx context.Context, ffmpegPath string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// GetCacheSize returns the bytes and file count of the preview cache.
// Results are reused for two minutes.
func (p *PreviewGenerator) GetCacheSize() (int64, int, error) {
	if time.Now().Unix()-p.lastCacheUpdate.Load() < int64(cacheSizeTTL.Seconds()) {
		return p.cachedSize.Load(), int(p.cachedCount.Load()), nil
	}

	entries, err := os.ReadDir(p.cacheDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, 0, nil
		}
		return 0, 0, err
	}

	var size int64
	count := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jpg") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		size += info.Size()
		count++
	}

	p.cachedSize.Store(size)
	p.cachedCount.Store(int64(count))
	p.lastCacheUpdate.Store(time.Now().Unix())
	return size, count, nil
}

// ClearCache deletes every cached preview and returns the bytes freed.
func (p *PreviewGenerator) ClearCache() (int64, error) {
	entries, err := os.ReadDir(p.cacheDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read preview cache: %w", err)
	}

	var freed int64
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jpg") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if err := os.Remove(filepath.Join(p.cacheDir, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		freed += info.Size()
	}

	p.lastCacheUpdate.Store(0)
	logging.Info("Cleared preview cache: freed %d bytes", freed)
	return freed, errors.Join(errs...)
}
