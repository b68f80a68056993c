package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const sampleOutput = `{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080,
     "disposition": {"default": 1}},
    {"index": 1, "codec_type": "audio", "codec_name": "ac3",
     "tags": {"language": "eng", "title": "Surround"}, "disposition": {"default": 1}},
    {"index": 2, "codec_type": "audio", "codec_name": "AAC", "tags": {"LANGUAGE": "fra"}},
    {"index": 3, "codec_type": "subtitle", "codec_name": "subrip", "tags": {"language": "spa"}},
    {"index": 4, "codec_type": "attachment", "codec_name": "ttf"}
  ],
  "format": {"format_name": "matroska,webm", "duration": "5400.250000", "bit_rate": "8000000"}
}`

func TestParseProbeOutput(t *testing.T) {
	res, err := parseProbeOutput([]byte(sampleOutput))
	if err != nil {
		t.Fatalf("parseProbeOutput failed: %v", err)
	}

	if res.Duration != 5400.25 {
		t.Errorf("Duration = %v, want 5400.25", res.Duration)
	}
	if res.BitRate != 8000000 {
		t.Errorf("BitRate = %d, want 8000000", res.BitRate)
	}
	if res.FormatName != "matroska,webm" {
		t.Errorf("FormatName = %q", res.FormatName)
	}
	if len(res.Streams) != 4 {
		t.Fatalf("expected 4 streams (attachment dropped), got %d", len(res.Streams))
	}

	tests := []struct {
		i        int
		typ      string
		index    int
		codec    string
		language string
	}{
		{0, StreamVideo, 0, "h264", ""},
		{1, StreamAudio, 0, "ac3", "eng"},
		{2, StreamAudio, 1, "aac", "fra"},
		{3, StreamSubtitle, 0, "subrip", "spa"},
	}
	for _, tt := range tests {
		s := res.Streams[tt.i]
		if s.Type != tt.typ || s.Index != tt.index || s.Codec != tt.codec || s.Language != tt.language {
			t.Errorf("stream %d = %+v, want type=%s index=%d codec=%s lang=%s",
				tt.i, s, tt.typ, tt.index, tt.codec, tt.language)
		}
	}

	if res.Streams[0].Width != 1920 || res.Streams[0].Height != 1080 {
		t.Errorf("video dimensions = %dx%d", res.Streams[0].Width, res.Streams[0].Height)
	}
	if res.Streams[1].Title != "Surround" || !res.Streams[1].Default {
		t.Errorf("audio stream 0 = %+v", res.Streams[1])
	}
	if res.VideoCodec() != "h264" || res.AudioCodec() != "ac3" {
		t.Errorf("VideoCodec/AudioCodec = %q/%q", res.VideoCodec(), res.AudioCodec())
	}
	if got := len(res.Tracks(StreamAudio)); got != 2 {
		t.Errorf("audio tracks = %d, want 2", got)
	}
}

func TestParseProbeOutputInvalid(t *testing.T) {
	if _, err := parseProbeOutput([]byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestParseProbeOutputMissingFormat(t *testing.T) {
	res, err := parseProbeOutput([]byte(`{"streams": [{"codec_type": "audio", "codec_name": "mp3"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if res.Duration != 0 || res.HasVideo() || !res.HasAudio() {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestUnknownResult(t *testing.T) {
	res := UnknownResult()
	if !res.Unknown || res.HasVideo() || res.HasAudio() {
		t.Errorf("UnknownResult() = %+v", res)
	}
}

type memStore struct {
	mu   sync.Mutex
	data map[Key]Result
	puts int
}

func (m *memStore) GetProbe(_ context.Context, key Key) (Result, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.data[key]
	return r, ok, nil
}

func (m *memStore) PutProbe(_ context.Context, key Key, res Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[Key]Result{}
	}
	m.data[key] = res
	m.puts++
	return nil
}

func mediaFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "movie.mkv")
	if err := os.WriteFile(path, []byte("fake"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProberCachesSuccess(t *testing.T) {
	path := mediaFile(t)
	var calls atomic.Int32

	p := New("", 0, nil)
	p.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		calls.Add(1)
		if name != "ffprobe" {
			t.Errorf("binary = %q, want ffprobe", name)
		}
		if args[len(args)-1] != path {
			t.Errorf("last arg = %q, want %q", args[len(args)-1], path)
		}
		return []byte(sampleOutput), nil
	}

	first := p.Probe(context.Background(), path)
	second := p.Probe(context.Background(), path)

	if first.Unknown || second.Unknown {
		t.Fatal("expected known results")
	}
	if calls.Load() != 1 {
		t.Errorf("ffprobe invoked %d times, want 1", calls.Load())
	}
	if p.CacheSize() != 1 {
		t.Errorf("CacheSize = %d, want 1", p.CacheSize())
	}

	p.Forget(path)
	p.Probe(context.Background(), path)
	if calls.Load() != 2 {
		t.Errorf("ffprobe invoked %d times after Forget, want 2", calls.Load())
	}
}

func TestProberFailureIsUnknownAndNotCached(t *testing.T) {
	path := mediaFile(t)
	var calls atomic.Int32

	p := New("ffprobe", time.Second, nil)
	p.run = func(context.Context, string, ...string) ([]byte, error) {
		calls.Add(1)
		return nil, errors.New("exit status 1")
	}

	if res := p.Probe(context.Background(), path); !res.Unknown {
		t.Errorf("expected Unknown result, got %+v", res)
	}
	p.Probe(context.Background(), path)
	if calls.Load() != 2 {
		t.Errorf("unknown result should not be cached; calls = %d", calls.Load())
	}
}

func TestProberGarbageOutputIsUnknown(t *testing.T) {
	p := New("ffprobe", time.Second, nil)
	p.run = func(context.Context, string, ...string) ([]byte, error) {
		return []byte("<<garbage>>"), nil
	}

	if res := p.Probe(context.Background(), mediaFile(t)); !res.Unknown {
		t.Errorf("expected Unknown result, got %+v", res)
	}
}

func TestProberTimeout(t *testing.T) {
	p := New("ffprobe", 20*time.Millisecond, nil)
	p.run = func(ctx context.Context, _ string, _ ...string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	start := time.Now()
	res := p.Probe(context.Background(), mediaFile(t))
	if !res.Unknown {
		t.Errorf("expected Unknown result on timeout, got %+v", res)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("probe took %v, timeout not enforced", elapsed)
	}
}

func TestProberMissingFile(t *testing.T) {
	p := New("ffprobe", time.Second, nil)
	p.run = func(context.Context, string, ...string) ([]byte, error) {
		t.Error("ffprobe should not run for a missing file")
		return nil, nil
	}

	if res := p.Probe(context.Background(), filepath.Join(t.TempDir(), "gone.mkv")); !res.Unknown {
		t.Errorf("expected Unknown result, got %+v", res)
	}
}

func TestProberSharesConcurrentProbes(t *testing.T) {
	path := mediaFile(t)
	release := make(chan struct{})
	var calls atomic.Int32

	p := New("ffprobe", time.Second, nil)
	p.run = func(context.Context, string, ...string) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte(sampleOutput), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res := p.Probe(context.Background(), path); res.Unknown {
				t.Error("expected known result")
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("ffprobe invoked %d times for concurrent probes, want 1", calls.Load())
	}
}

func TestProberUsesStore(t *testing.T) {
	path := mediaFile(t)
	store := &memStore{}
	var calls atomic.Int32

	fake := func(context.Context, string, ...string) ([]byte, error) {
		calls.Add(1)
		return []byte(sampleOutput), nil
	}

	p1 := New("ffprobe", time.Second, store)
	p1.run = fake
	p1.Probe(context.Background(), path)

	if store.puts != 1 {
		t.Fatalf("expected result to be persisted, puts = %d", store.puts)
	}

	// A fresh prober, as after a restart, should read the stored result.
	p2 := New("ffprobe", time.Second, store)
	p2.run = fake
	res := p2.Probe(context.Background(), path)

	if res.Unknown || res.Duration != 5400.25 {
		t.Errorf("unexpected stored result %+v", res)
	}
	if calls.Load() != 1 {
		t.Errorf("ffprobe invoked %d times, want 1", calls.Load())
	}
}
