package transcoder

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"media-server/internal/codec"
)

// fakeRunner stands in for ffmpeg. It records every invocation and runs fn
// if set.
type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	fn    func(ctx context.Context, args []string, stdout, stderr io.Writer) error
}

func (f *fakeRunner) Run(ctx context.Context, _ string, args []string, stdout, stderr io.Writer) error {
	f.mu.Lock()
	f.calls = append(f.calls, args)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, args, stdout, stderr)
	}
	return nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func argValue(args []string, flag string) (string, bool) {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1], true
		}
	}
	return "", false
}

func TestLookupQuality(t *testing.T) {
	tests := []struct {
		name    string
		want    QualityProfile
		wantErr bool
	}{
		{"360p", QualityProfile{"360p", 640, 360, "800k", "96k"}, false},
		{"480p", QualityProfile{"480p", 854, 480, "1400k", "128k"}, false},
		{"720p", QualityProfile{"720p", 1280, 720, "2800k", "128k"}, false},
		{"1080P", QualityProfile{"1080p", 1920, 1080, "5000k", "192k"}, false},
		{"original", QualityProfile{Name: Original}, false},
		{"4k", QualityProfile{}, true},
		{"", QualityProfile{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LookupQuality(tt.name)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidQuality) {
					t.Errorf("expected ErrInvalidQuality, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("LookupQuality(%q) = %+v, want %+v", tt.name, got, tt.want)
			}
		})
	}
}

func TestQualitiesOrdered(t *testing.T) {
	var names []string
	for _, q := range Qualities() {
		names = append(names, q.Name)
	}
	if got := strings.Join(names, ","); got != "360p,480p,720p,1080p,original" {
		t.Errorf("Qualities() = %s", got)
	}
}

func TestBuildArgsProgressiveProfile(t *testing.T) {
	q, _ := LookupQuality("720p")
	args := BuildArgs(Job{
		Mode:    ModeProgressive,
		Input:   "/media/film.mkv",
		Start:   90.5,
		Quality: q,
		Codecs:  codec.Selection{Video: "libx264", Audio: "aac"},
	})

	checks := map[string]string{
		"-ss":      "90.500",
		"-i":       "/media/film.mkv",
		"-c:v":     "libx264",
		"-preset":  "veryfast",
		"-b:v":     "2800k",
		"-maxrate": "2800k",
		"-bufsize": "5600k",
		"-c:a":     "aac",
		"-b:a":     "128k",
		"-f":       "mp4",
		"-vf":      "scale=w=1280:h=720:force_original_aspect_ratio=decrease:force_divisible_by=2",
	}
	for flag, want := range checks {
		if got, ok := argValue(args, flag); !ok || got != want {
			t.Errorf("%s = %q, want %q (args %v)", flag, got, want, args)
		}
	}

	if args[len(args)-1] != "pipe:1" {
		t.Errorf("last arg = %q, want pipe:1", args[len(args)-1])
	}
	if idx, _ := indexOf(args, "-ss"); idx > mustIndex(t, args, "-i") {
		t.Error("-ss should precede -i for input seeking")
	}
	if _, ok := argValue(args, "-t"); ok {
		t.Error("progressive job without duration should not pass -t")
	}
}

func indexOf(args []string, flag string) (int, bool) {
	for i, a := range args {
		if a == flag {
			return i, true
		}
	}
	return -1, false
}

func mustIndex(t *testing.T, args []string, flag string) int {
	t.Helper()
	i, ok := indexOf(args, flag)
	if !ok {
		t.Fatalf("flag %s missing from %v", flag, args)
	}
	return i
}

func TestBuildArgsOriginalCopy(t *testing.T) {
	args := BuildArgs(Job{
		Mode:    ModeProgressive,
		Input:   "/media/film.mp4",
		Quality: QualityProfile{Name: Original},
		Codecs:  codec.Selection{Video: codec.Copy, Audio: "aac"},
	})

	if _, ok := argValue(args, "-ss"); ok {
		t.Error("start 0 should not seek")
	}
	if v, _ := argValue(args, "-c:v"); v != "copy" {
		t.Errorf("-c:v = %q, want copy", v)
	}
	for _, flag := range []string{"-vf", "-b:v", "-preset", "-pix_fmt"} {
		if _, ok := argValue(args, flag); ok {
			t.Errorf("copied video should not set %s", flag)
		}
	}
	if v, _ := argValue(args, "-b:a"); v != "192k" {
		t.Errorf("-b:a = %q, want 192k default for original", v)
	}
}

func TestBuildArgsSegment(t *testing.T) {
	q, _ := LookupQuality("480p")
	args := BuildArgs(Job{
		Mode:            ModeSegment,
		Input:           "/media/show.avi",
		Start:           40,
		Duration:        8,
		Quality:         q,
		Codecs:          codec.Selection{Video: "h264_nvenc", Audio: "aac"},
		PlaylistPath:    "/cache/hls_segments/s1_480p_10.m3u8",
		SegmentPattern:  "/cache/hls_segments/s1_480p_10_%d.ts",
		SegmentDuration: 4,
	})

	checks := map[string]string{
		"-ss":                   "40.000",
		"-t":                    "8.000",
		"-c:v":                  "h264_nvenc",
		"-preset":               "p4",
		"-f":                    "hls",
		"-hls_time":             "4.000",
		"-hls_list_size":        "0",
		"-hls_segment_filename": "/cache/hls_segments/s1_480p_10_%d.ts",
		"-output_ts_offset":     "40.000",
		"-force_key_frames":     "expr:gte(t,n_forced*4.000)",
	}
	for flag, want := range checks {
		if got, ok := argValue(args, flag); !ok || got != want {
			t.Errorf("%s = %q, want %q", flag, got, want)
		}
	}
	if args[len(args)-1] != "/cache/hls_segments/s1_480p_10.m3u8" {
		t.Errorf("last arg = %q, want playlist path", args[len(args)-1])
	}
}

func TestDoubleRate(t *testing.T) {
	tests := map[string]string{
		"800k":  "1600k",
		"5000k": "10000k",
		"2M":    "4M",
		"1000":  "2000",
		"abc":   "abc",
	}
	for in, want := range tests {
		if got := doubleRate(in); got != want {
			t.Errorf("doubleRate(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSupervisorRunSuccess(t *testing.T) {
	runner := &fakeRunner{fn: func(_ context.Context, _ []string, _, stderr io.Writer) error {
		_, _ = io.WriteString(stderr, "frame=10\n")
		return nil
	}}
	s := NewSupervisor("/usr/bin/ffmpeg", 2, true, runner)

	if err := s.Run(context.Background(), Job{Label: "t", Mode: ModeSegment, Input: "in"}, nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if runner.callCount() != 1 {
		t.Errorf("runner called %d times, want 1", runner.callCount())
	}
	if s.Active() != 0 {
		t.Errorf("Active() = %d after completion", s.Active())
	}
}

func TestSupervisorRunFailure(t *testing.T) {
	runner := &fakeRunner{fn: func(_ context.Context, _ []string, _, stderr io.Writer) error {
		_, _ = io.WriteString(stderr, "Invalid data found when processing input\n")
		return errors.New("exit status 1")
	}}
	s := NewSupervisor("", 1, true, runner)

	err := s.Run(context.Background(), Job{Label: "s1/720p", Mode: ModeSegment}, nil)
	if !errors.Is(err, ErrEncodeFailure) {
		t.Fatalf("expected ErrEncodeFailure, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Errorf("error should carry encoder output, got %v", err)
	}
}

func TestSupervisorDisabled(t *testing.T) {
	runner := &fakeRunner{}
	s := NewSupervisor("", 1, false, runner)

	if err := s.Run(context.Background(), Job{}, nil); !errors.Is(err, ErrTranscodingDisabled) {
		t.Errorf("expected ErrTranscodingDisabled, got %v", err)
	}
	if runner.callCount() != 0 {
		t.Error("disabled supervisor should not run the encoder")
	}
}

func TestSupervisorBoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	runner := &fakeRunner{fn: func(context.Context, []string, io.Writer, io.Writer) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return nil
	}}
	s := NewSupervisor("", 2, true, runner)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Run(context.Background(), Job{Mode: ModeSegment}, nil); err != nil {
				t.Errorf("Run failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
	if runner.callCount() != 6 {
		t.Errorf("runner called %d times, want 6", runner.callCount())
	}
}

func TestSupervisorCleanupCancelsJobs(t *testing.T) {
	started := make(chan struct{})
	runner := &fakeRunner{fn: func(ctx context.Context, _ []string, _, _ io.Writer) error {
		close(started)
		<-ctx.Done()
		return errors.New("signal: killed")
	}}
	s := NewSupervisor("", 1, true, runner)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), Job{Label: "x", Mode: ModeSegment}, nil) }()

	<-started
	if s.Active() != 1 {
		t.Errorf("Active() = %d, want 1", s.Active())
	}
	s.Cleanup()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Cleanup did not stop the encoder")
	}
}

func TestStreamProgressiveSuccess(t *testing.T) {
	runner := &fakeRunner{fn: func(_ context.Context, _ []string, stdout, _ io.Writer) error {
		_, err := io.WriteString(stdout, "fragmented-mp4-bytes")
		return err
	}}
	s := NewSupervisor("", 1, true, runner)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/video", nil)
	q, _ := LookupQuality("360p")

	err := s.StreamProgressive(w, r, ProgressiveRequest{Path: "/media/a.mkv", Quality: q, Codecs: codec.Selection{Video: "libx264", Audio: "aac"}})
	if err != nil {
		t.Fatalf("StreamProgressive failed: %v", err)
	}
	if w.Body.String() != "fragmented-mp4-bytes" {
		t.Errorf("body = %q", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "video/mp4" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestStreamProgressiveFailureBeforeFirstByte(t *testing.T) {
	runner := &fakeRunner{fn: func(context.Context, []string, io.Writer, io.Writer) error {
		return errors.New("exit status 1")
	}}
	s := NewSupervisor("", 1, true, runner)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/video", nil)

	err := s.StreamProgressive(w, r, ProgressiveRequest{Path: "/media/a.mkv", Quality: QualityProfile{Name: Original}})
	if !errors.Is(err, ErrEncodeFailure) {
		t.Fatalf("expected ErrEncodeFailure, got %v", err)
	}
	if errors.Is(err, ErrResponseStarted) {
		t.Error("no bytes were sent, error should not be ErrResponseStarted")
	}
	if w.Body.Len() != 0 {
		t.Errorf("body should be empty, got %d bytes", w.Body.Len())
	}
}

func TestStreamProgressiveFailureAfterFirstByte(t *testing.T) {
	runner := &fakeRunner{fn: func(_ context.Context, _ []string, stdout, _ io.Writer) error {
		_, _ = io.WriteString(stdout, "partial")
		return errors.New("exit status 1")
	}}
	s := NewSupervisor("", 1, true, runner)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/video", nil)

	err := s.StreamProgressive(w, r, ProgressiveRequest{Path: "/media/a.mkv", Quality: QualityProfile{Name: Original}})
	if !errors.Is(err, ErrResponseStarted) || !errors.Is(err, ErrEncodeFailure) {
		t.Fatalf("expected ErrResponseStarted wrapping ErrEncodeFailure, got %v", err)
	}
}

func TestStreamProgressiveClientGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &fakeRunner{fn: func(runCtx context.Context, _ []string, stdout, _ io.Writer) error {
		_, _ = io.WriteString(stdout, "first")
		cancel()
		<-runCtx.Done()
		return errors.New("signal: killed")
	}}
	s := NewSupervisor("", 1, true, runner)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/video", nil).WithContext(ctx)

	if err := s.StreamProgressive(w, r, ProgressiveRequest{Path: "/media/a.mkv", Quality: QualityProfile{Name: Original}}); err != nil {
		t.Errorf("client disconnect should not be an error, got %v", err)
	}
}

func TestClearDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.ts"), make([]byte, 100), 0o644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "nested")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "b.ts"), make([]byte, 50), 0o644); err != nil {
		t.Fatal(err)
	}

	freed, err := ClearDirectory(dir)
	if err != nil {
		t.Fatalf("ClearDirectory failed: %v", err)
	}
	if freed != 150 {
		t.Errorf("freed = %d, want 150", freed)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("directory still has %d entries", len(entries))
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("directory itself should remain: %v", err)
	}
}

func TestClearDirectoryMissing(t *testing.T) {
	if freed, err := ClearDirectory(filepath.Join(t.TempDir(), "nope")); err != nil || freed != 0 {
		t.Errorf("ClearDirectory(missing) = %d, %v", freed, err)
	}
	if freed, err := ClearDirectory(""); err != nil || freed != 0 {
		t.Errorf("ClearDirectory(\"\") = %d, %v", freed, err)
	}
}
