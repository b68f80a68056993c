package transcoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"media-server/internal/codec"
	"media-server/internal/logging"
	"media-server/internal/mediatypes"
	"media-server/internal/streaming"
)

// ErrResponseStarted wraps an encoder failure that happened after bytes were
// already sent; the only remaining option is to abort the connection.
var ErrResponseStarted = errors.New("response already started")

// ProgressiveRequest is a single-pass transcode from Start to the end of Path.
type ProgressiveRequest struct {
	Path    string
	Start   float64
	Quality QualityProfile
	Codecs  codec.Selection
}

// sink forwards encoder stdout to the client and remembers the first write
// error so a disconnect is not mistaken for an encoder failure.
type sink struct {
	w      io.Writer
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
}

func (s *sink) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	if err != nil {
		s.mu.Lock()
		if s.err == nil {
			s.err = err
		}
		s.mu.Unlock()
		s.cancel()
	}
	return n, err
}

func (s *sink) writeErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// StreamProgressive pipes a fragmented MP4 encode into the response as it is
// produced. A client disconnect kills the encoder and returns nil. An
// encoder failure before the first byte returns an ErrEncodeFailure the
// caller can turn into a 500; after the first byte it is wrapped in
// ErrResponseStarted.
func (s *Supervisor) StreamProgressive(w http.ResponseWriter, r *http.Request, req ProgressiveRequest) error {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	config := streaming.DefaultTimeoutWriterConfig()
	config.ChunkSize = 256 * 1024

	tw := streaming.NewTimeoutWriter(ctx, w, config)
	defer func() {
		if err := tw.Close(); err != nil {
			logging.Warn("Failed to close timeout writer: %v", err)
		}
	}()

	h := w.Header()
	h.Set("Content-Type", mediatypes.FragmentedMP4)
	h.Set("Cache-Control", "no-store")
	h.Set("X-Content-Type-Options", "nosniff")

	out := &sink{w: tw, cancel: cancel}
	job := Job{
		Label:   fmt.Sprintf("progressive %s@%s", req.Quality.Name, formatSeconds(req.Start)),
		Mode:    ModeProgressive,
		Input:   req.Path,
		Start:   req.Start,
		Quality: req.Quality,
		Codecs:  req.Codecs,
	}

	err := s.Run(ctx, job, out)
	written, duration := tw.Stats()

	if werr := out.writeErr(); werr != nil || r.Context().Err() != nil {
		logging.Debug("Progressive stream of %s ended by client after %d bytes in %v: %v", req.Path, written, duration, werr)
		return nil
	}
	if err == nil {
		logging.Debug("Progressive stream of %s completed: %d bytes in %v", req.Path, written, duration)
		return nil
	}
	if written > 0 {
		return fmt.Errorf("%w after %d bytes: %w", ErrResponseStarted, written, err)
	}
	return err
}
