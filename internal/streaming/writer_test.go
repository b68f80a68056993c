package streaming

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// stallingWriter blocks every Write until release is closed.
type stallingWriter struct {
	header  http.Header
	release chan struct{}
}

func (s *stallingWriter) Header() http.Header { return s.header }
func (s *stallingWriter) WriteHeader(int)     {}
func (s *stallingWriter) Write(p []byte) (int, error) {
	<-s.release
	return len(p), nil
}

func TestDefaultTimeoutWriterConfig(t *testing.T) {
	config := DefaultTimeoutWriterConfig()

	if config.WriteTimeout != 30*time.Second {
		t.Errorf("Expected WriteTimeout=30s, got %v", config.WriteTimeout)
	}
	if config.IdleTimeout != 60*time.Second {
		t.Errorf("Expected IdleTimeout=60s, got %v", config.IdleTimeout)
	}
	if config.MaxDuration != 0 {
		t.Errorf("Expected MaxDuration=0 (unlimited), got %v", config.MaxDuration)
	}
	if config.ChunkSize != 64*1024 {
		t.Errorf("Expected ChunkSize=64KB, got %d", config.ChunkSize)
	}
}

func TestTimeoutWriterWrite(t *testing.T) {
	w := httptest.NewRecorder()
	tw := NewTimeoutWriter(context.Background(), w, DefaultTimeoutWriterConfig())
	defer tw.Close()

	data := []byte("test data")
	n, err := tw.Write(data)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != len(data) {
		t.Errorf("Expected to write %d bytes, wrote %d", len(data), n)
	}
	if tw.Written() != int64(len(data)) {
		t.Errorf("Written() = %d, want %d", tw.Written(), len(data))
	}
	if w.Body.String() != "test data" {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestTimeoutWriterChunkedWrites(t *testing.T) {
	w := httptest.NewRecorder()
	config := DefaultTimeoutWriterConfig()
	config.ChunkSize = 4

	tw := NewTimeoutWriter(context.Background(), w, config)
	defer tw.Close()

	data := []byte("0123456789")
	n, err := tw.Write(data)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != len(data) || !bytes.Equal(w.Body.Bytes(), data) {
		t.Errorf("wrote %d bytes, body %q", n, w.Body.String())
	}
	if !w.Flushed {
		t.Error("expected chunked writes to flush")
	}
}

func TestTimeoutWriterClose(t *testing.T) {
	tw := NewTimeoutWriter(context.Background(), httptest.NewRecorder(), DefaultTimeoutWriterConfig())

	if err := tw.Close(); err != nil {
		t.Errorf("Close() returned error: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Errorf("Second Close() returned error: %v", err)
	}

	if _, err := tw.Write([]byte("data")); !errors.Is(err, ErrStreamCanceled) {
		t.Errorf("Expected ErrStreamCanceled, got %v", err)
	}
}

func TestTimeoutWriterContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tw := NewTimeoutWriter(ctx, httptest.NewRecorder(), DefaultTimeoutWriterConfig())
	defer tw.Close()

	cancel()

	if _, err := tw.Write([]byte("data")); !errors.Is(err, ErrClientGone) {
		t.Errorf("Expected ErrClientGone, got %v", err)
	}
}

func TestTimeoutWriterWriteTimeout(t *testing.T) {
	sw := &stallingWriter{header: http.Header{}, release: make(chan struct{})}
	defer close(sw.release)

	config := TimeoutWriterConfig{WriteTimeout: 20 * time.Millisecond}
	tw := NewTimeoutWriter(context.Background(), sw, config)
	defer tw.Close()

	if _, err := tw.Write([]byte("data")); !errors.Is(err, ErrWriteTimeout) {
		t.Errorf("Expected ErrWriteTimeout, got %v", err)
	}
	if tw.Written() != 0 {
		t.Errorf("Written() = %d after timeout, want 0", tw.Written())
	}
}

func TestTimeoutWriterMaxDuration(t *testing.T) {
	config := TimeoutWriterConfig{WriteTimeout: time.Second, MaxDuration: time.Millisecond}
	tw := NewTimeoutWriter(context.Background(), httptest.NewRecorder(), config)
	defer tw.Close()

	time.Sleep(5 * time.Millisecond)

	if _, err := tw.Write([]byte("late")); !errors.Is(err, ErrWriteTimeout) {
		t.Errorf("Expected ErrWriteTimeout, got %v", err)
	}
}

func TestTimeoutWriterIdleTimeout(t *testing.T) {
	config := TimeoutWriterConfig{WriteTimeout: time.Second, IdleTimeout: 20 * time.Millisecond}
	tw := NewTimeoutWriter(context.Background(), httptest.NewRecorder(), config)
	defer tw.Close()

	time.Sleep(80 * time.Millisecond)

	if _, err := tw.Write([]byte("data")); !errors.Is(err, ErrStreamCanceled) {
		t.Errorf("Expected ErrStreamCanceled after idle timeout, got %v", err)
	}
}

func TestStreamWithTimeout(t *testing.T) {
	w := httptest.NewRecorder()
	payload := strings.Repeat("x", 200*1024)

	n, err := StreamWithTimeout(context.Background(), w, strings.NewReader(payload), DefaultTimeoutWriterConfig())
	if err != nil {
		t.Fatalf("StreamWithTimeout failed: %v", err)
	}
	if n != int64(len(payload)) {
		t.Errorf("n = %d, want %d", n, len(payload))
	}
	if w.Body.Len() != len(payload) {
		t.Errorf("body length = %d, want %d", w.Body.Len(), len(payload))
	}
}

func TestSentinelErrorsAreDistinct(t *testing.T) {
	errs := []error{ErrWriteTimeout, ErrClientGone, ErrStreamCanceled, ErrRangeNotSatisfiable}
	for i := range errs {
		for j := range errs {
			if i != j && errors.Is(errs[i], errs[j]) {
				t.Errorf("%v should not match %v", errs[i], errs[j])
			}
		}
	}
}

func BenchmarkTimeoutWriterWrite(b *testing.B) {
	w := httptest.NewRecorder()
	tw := NewTimeoutWriter(context.Background(), w, DefaultTimeoutWriterConfig())
	defer tw.Close()

	data := make([]byte, 1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = tw.Write(data)
	}
}
