package transcoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"

	"media-server/internal/logging"
	"media-server/internal/metrics"
)

// Sentinel errors for encoder supervision.
var (
	// ErrEncodeFailure is returned when ffmpeg exits non-zero.
	ErrEncodeFailure = errors.New("encode failure")

	// ErrTranscodingDisabled is returned when the segment directory is not
	// writable and the server runs without an encoder.
	ErrTranscodingDisabled = errors.New("transcoding required but disabled")
)

// Runner starts an encoder process and waits for it. Implementations must
// stop the process when ctx is canceled.
type Runner interface {
	Run(ctx context.Context, name string, args []string, stdout, stderr io.Writer) error
}

// ExecRunner runs the encoder with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args []string, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second
	return cmd.Run()
}

// Supervisor runs encoder processes, bounded globally by a semaphore.
// Mutual exclusion per session and quality is the caller's job.
type Supervisor struct {
	ffmpegPath string
	enabled    bool
	runner     Runner
	slots      *semaphore.Weighted
	maxSlots   int

	mu     sync.Mutex
	nextID int64
	active map[int64]*activeJob
}

type activeJob struct {
	label   string
	mode    string
	started time.Time
	cancel  context.CancelFunc
}

// NewSupervisor creates a Supervisor allowing maxEncoders concurrent
// processes. A nil runner uses ExecRunner.
func NewSupervisor(ffmpegPath string, maxEncoders int, enabled bool, runner Runner) *Supervisor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if maxEncoders < 1 {
		maxEncoders = 1
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Supervisor{
		ffmpegPath: ffmpegPath,
		enabled:    enabled,
		runner:     runner,
		slots:      semaphore.NewWeighted(int64(maxEncoders)),
		maxSlots:   maxEncoders,
		active:     make(map[int64]*activeJob),
	}
}

// IsEnabled returns whether transcoding is enabled.
func (s *Supervisor) IsEnabled() bool {
	return s.enabled
}

// MaxEncoders returns the global process cap.
func (s *Supervisor) MaxEncoders() int {
	return s.maxSlots
}

// Run executes job and blocks until the encoder exits. stdout receives the
// encoded stream in progressive mode and may be nil in segment mode.
// Stderr is forwarded to debug logs.
func (s *Supervisor) Run(ctx context.Context, job Job, stdout io.Writer) error {
	if !s.enabled {
		return ErrTranscodingDisabled
	}

	waitStart := time.Now()
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for encoder slot: %w", err)
	}
	defer s.slots.Release(1)
	metrics.EncoderSlotWaitDuration.Observe(time.Since(waitStart).Seconds())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	id := s.track(job, cancel)
	defer s.untrack(id)

	args := BuildArgs(job)
	logging.Debug("Starting encoder [%s] %s: %s %v", job.Label, job.Mode, s.ffmpegPath, args)

	stderr := logging.NewLineWriter("ffmpeg " + job.Label)

	metrics.EncoderJobsInProgress.Inc()
	start := time.Now()
	runErr := s.runner.Run(ctx, s.ffmpegPath, args, stdout, stderr)
	elapsed := time.Since(start)
	metrics.EncoderJobsInProgress.Dec()
	metrics.EncoderJobDuration.WithLabelValues(job.Mode).Observe(elapsed.Seconds())

	if err := stderr.Close(); err != nil {
		logging.Warn("Failed to close encoder log for %s: %v", job.Label, err)
	}

	switch {
	case runErr == nil:
		metrics.EncoderJobsTotal.WithLabelValues(job.Mode, "success").Inc()
		logging.Debug("Encoder [%s] finished in %v", job.Label, elapsed)
		return nil
	case ctx.Err() != nil:
		metrics.EncoderJobsTotal.WithLabelValues(job.Mode, "canceled").Inc()
		logging.Debug("Encoder [%s] canceled after %v", job.Label, elapsed)
		return ctx.Err()
	default:
		metrics.EncoderJobsTotal.WithLabelValues(job.Mode, "error").Inc()
		if tail := stderr.Tail(); tail != "" {
			return fmt.Errorf("%w: %s: %v: %s", ErrEncodeFailure, job.Label, runErr, tail)
		}
		return fmt.Errorf("%w: %s: %v", ErrEncodeFailure, job.Label, runErr)
	}
}

func (s *Supervisor) track(job Job, cancel context.CancelFunc) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.active[s.nextID] = &activeJob{
		label:   job.Label,
		mode:    job.Mode,
		started: time.Now(),
		cancel:  cancel,
	}
	return s.nextID
}

func (s *Supervisor) untrack(id int64) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

// Active returns the number of running encoder processes.
func (s *Supervisor) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Cleanup stops all running encoder processes.
func (s *Supervisor) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range s.active {
		logging.Info("Stopping %s encoder for %s (running %v)", job.mode, job.label, time.Since(job.started).Round(time.Second))
		job.cancel()
	}
}
