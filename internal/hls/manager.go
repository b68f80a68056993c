package hls

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"media-server/internal/codec"
	"media-server/internal/events"
	"media-server/internal/filesystem"
	"media-server/internal/logging"
	"media-server/internal/metrics"
	"media-server/internal/probe"
	"media-server/internal/transcoder"
)

var (
	// ErrSessionNotFound is returned for an unknown or closed session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSegmentNotFound is returned for a time past the end of the media.
	ErrSegmentNotFound = errors.New("segment not found")

	// ErrInvalidRequest is returned for a malformed session ID or time.
	ErrInvalidRequest = errors.New("invalid segment request")
)

// Generation triggers, used as metric labels.
const (
	triggerRequest    = "request"
	triggerPreload    = "preload"
	triggerRegenerate = "regenerate"
)

// Encoder runs one encoder job to completion.
type Encoder interface {
	Run(ctx context.Context, job transcoder.Job, stdout io.Writer) error
}

// Prober describes media files.
type Prober interface {
	Probe(ctx context.Context, path string) probe.Result
}

// Config holds the session manager settings.
type Config struct {
	// SegmentDir receives playlists and segment parts.
	SegmentDir string
	// PublicPrefix is the URL path SegmentDir is served under.
	PublicPrefix string

	SegmentDuration time.Duration
	InitialSegments int
	PreloadLimit    int
	PreloadInterval time.Duration
	// PreloadBatch caps how many segments one preload cycle encodes.
	PreloadBatch int

	// IdleTimeout closes sessions without activity. Zero disables reaping.
	IdleTimeout time.Duration
}

// DefaultConfig returns the stock segment settings for dir.
func DefaultConfig(dir string) Config {
	return Config{
		SegmentDir:      dir,
		PublicPrefix:    "/hls_segments/",
		SegmentDuration: 4 * time.Second,
		InitialSegments: 2,
		PreloadLimit:    15,
		PreloadInterval: time.Second,
		PreloadBatch:    5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig(c.SegmentDir)
	if c.PublicPrefix == "" {
		c.PublicPrefix = d.PublicPrefix
	}
	if !strings.HasSuffix(c.PublicPrefix, "/") {
		c.PublicPrefix += "/"
	}
	if c.SegmentDuration <= 0 {
		c.SegmentDuration = d.SegmentDuration
	}
	if c.InitialSegments <= 0 {
		c.InitialSegments = d.InitialSegments
	}
	if c.PreloadLimit <= 0 {
		c.PreloadLimit = d.PreloadLimit
	}
	if c.PreloadInterval <= 0 {
		c.PreloadInterval = d.PreloadInterval
	}
	if c.PreloadBatch <= 0 {
		c.PreloadBatch = d.PreloadBatch
	}
	return c
}

// SessionManager owns all segmented playback sessions.
type SessionManager struct {
	cfg      Config
	encoder  Encoder
	prober   Prober
	selector *codec.Selector
	notifier events.Notifier
	store    *sessionStore

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	loops  atomic.Int32

	closeOnce sync.Once
}

// NewSessionManager creates the segment directory and returns a manager.
// Generation runs on the manager's own context, so a client that goes away
// never cancels an encode other viewers may be waiting on.
func NewSessionManager(cfg Config, encoder Encoder, prober Prober, selector *codec.Selector, notifier events.Notifier) (*SessionManager, error) {
	if cfg.SegmentDir == "" {
		return nil, errors.New("segment directory is required")
	}
	cfg = cfg.withDefaults()
	if err := os.MkdirAll(cfg.SegmentDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating segment directory: %w", err)
	}
	if notifier == nil {
		notifier = events.Nop{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &SessionManager{
		cfg:      cfg,
		encoder:  encoder,
		prober:   prober,
		selector: selector,
		notifier: notifier,
		store:    newSessionStore(),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Config returns the effective configuration.
func (m *SessionManager) Config() Config {
	return m.cfg
}

// Start launches the idle reaper when an idle timeout is configured.
func (m *SessionManager) Start() {
	if m.cfg.IdleTimeout <= 0 {
		return
	}
	interval := min(m.cfg.IdleTimeout/2, time.Minute)
	m.wg.Add(1)
	go m.reapLoop(interval)
}

// Close stops every session and the reaper. Segment files are left in place.
func (m *SessionManager) Close() {
	m.closeOnce.Do(func() {
		m.cancel()
		m.wg.Wait()
		for _, s := range m.store.all() {
			if m.store.remove(s) {
				s.close()
			}
		}
		logging.Info("Session manager stopped")
	})
}

// Playlist returns the media playlist starting at the segment that covers
// t seconds, generating segments as needed. A session is created on first
// use; path is required then and optional afterwards. Reusing a session ID
// with a different path restarts the session.
func (m *SessionManager) Playlist(ctx context.Context, sessionID, path string, t float64, quality string) ([]byte, error) {
	profile, err := transcoder.LookupQuality(quality)
	if err != nil {
		return nil, err
	}
	if !ValidSessionID(sessionID) {
		return nil, fmt.Errorf("%w: session id %q", ErrInvalidRequest, sessionID)
	}
	if t < 0 || math.IsNaN(t) || math.IsInf(t, 0) {
		return nil, fmt.Errorf("%w: time %v", ErrInvalidRequest, t)
	}

	sess, err := m.session(ctx, sessionID, path)
	if err != nil {
		return nil, err
	}

	idx := SegmentIndex(t, m.cfg.SegmentDuration)
	if last := m.maxIndex(sess); last >= 0 && idx > last {
		return nil, fmt.Errorf("%w: %s at %.3fs is past the end", ErrSegmentNotFound, sessionID, t)
	}

	q := profile.Name
	sess.touch(t, q)
	qs := sess.state(q)

	if idx > sess.lastGenerated(qs) {
		if err := m.generateAhead(sess, profile, qs, idx); err != nil {
			return nil, err
		}
		m.ensurePreload(sess, profile)
	}

	name := filepath.Join(m.cfg.SegmentDir, PlaylistName(sessionID, q, idx))
	data, err := os.ReadFile(name)
	if errors.Is(err, fs.ErrNotExist) {
		data, err = m.regenerate(sess, profile, qs, idx)
		if err == nil {
			m.ensurePreload(sess, profile)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("reading playlist for %s/%s segment %d: %w", sessionID, q, idx, err)
	}
	return data, nil
}

// generateAhead produces the initial batch at idx unless a concurrent caller
// already did while this one waited for the pair lock.
func (m *SessionManager) generateAhead(sess *Session, profile transcoder.QualityProfile, qs *qualityState, idx int) error {
	qs.gen.Lock()
	defer qs.gen.Unlock()

	if idx <= sess.lastGenerated(qs) {
		return nil
	}
	count := m.clampCount(sess, idx, m.cfg.InitialSegments)
	if err := m.generate(sess, profile, qs, idx, count, triggerRequest); err != nil {
		return err
	}
	sess.setLast(qs, idx+count-1)
	return nil
}

// regenerate recreates an evicted or skipped segment on demand.
func (m *SessionManager) regenerate(sess *Session, profile transcoder.QualityProfile, qs *qualityState, idx int) ([]byte, error) {
	qs.gen.Lock()
	defer qs.gen.Unlock()

	name := filepath.Join(m.cfg.SegmentDir, PlaylistName(sess.ID, profile.Name, idx))
	if data, err := os.ReadFile(name); err == nil {
		return data, nil
	}

	count := m.clampCount(sess, idx, m.cfg.InitialSegments)
	if err := m.generate(sess, profile, qs, idx, count, triggerRegenerate); err != nil {
		return nil, err
	}
	sess.advance(qs, idx+count-1)
	return os.ReadFile(name)
}

// generate encodes count segments starting at first and writes one playlist
// per segment index. The caller holds qs.gen.
func (m *SessionManager) generate(sess *Session, profile transcoder.QualityProfile, qs *qualityState, first, count int, trigger string) error {
	if sess.ctx.Err() != nil {
		return fmt.Errorf("%w: %s closed", ErrSessionNotFound, sess.ID)
	}

	sess.setGenerating(qs, true)
	defer sess.setGenerating(qs, false)

	q := profile.Name
	label := sess.ID + "/" + q
	segDur := m.cfg.SegmentDuration.Seconds()
	raw := filepath.Join(m.cfg.SegmentDir, encodingPlaylistName(sess.ID, q, first))
	defer os.Remove(raw)

	codecs := m.selector.ForProfile()
	if profile.IsOriginal() {
		codecs = m.selector.ForOriginal(codec.Classify(sess.Info))
	}

	job := transcoder.Job{
		Label:           label,
		Mode:            transcoder.ModeSegment,
		Input:           sess.Path,
		Start:           float64(first) * segDur,
		Duration:        float64(count) * segDur,
		Quality:         profile,
		Codecs:          codecs,
		PlaylistPath:    raw,
		SegmentPattern:  filepath.Join(m.cfg.SegmentDir, partPattern(sess.ID, q, first)),
		SegmentDuration: segDur,
	}

	start := time.Now()
	if err := m.encoder.Run(sess.ctx, job, nil); err != nil {
		if sess.ctx.Err() != nil {
			return fmt.Errorf("%w: %s closed during generation", ErrSessionNotFound, sess.ID)
		}
		m.notifier.Notify(events.Event{
			Type: events.GenerationFailed, SessionID: sess.ID, Quality: q,
			First: first, Count: count, Message: err.Error(), Time: time.Now(),
		})
		return fmt.Errorf("generating %s segments %d-%d: %w", label, first, first+count-1, err)
	}

	parts, err := readParts(raw)
	if err != nil {
		return fmt.Errorf("%w: %s segments %d-%d: %w", transcoder.ErrEncodeFailure, label, first, first+count-1, err)
	}

	for k := range count {
		// Copied video may yield fewer parts than segments.
		from := min(k, len(parts)-1)
		data, err := encodePlaylist(parts[from:], first+k, m.cfg.PublicPrefix)
		if err != nil {
			return fmt.Errorf("encoding playlist %s segment %d: %w", label, first+k, err)
		}
		name := filepath.Join(m.cfg.SegmentDir, PlaylistName(sess.ID, q, first+k))
		if err := writeFileAtomic(name, data); err != nil {
			return fmt.Errorf("writing playlist %s segment %d: %w", label, first+k, err)
		}
	}

	metrics.SegmentsGenerated.WithLabelValues(trigger).Add(float64(count))
	m.notifier.Notify(events.Event{
		Type: events.SegmentGenerated, SessionID: sess.ID, Quality: q,
		First: first, Count: count, Time: time.Now(),
	})
	logging.Debug("Generated %s segments %d-%d (%s) in %v", label, first, first+count-1, trigger, time.Since(start).Round(time.Millisecond))
	return nil
}

// session returns the session for id, creating it when path is given.
func (m *SessionManager) session(ctx context.Context, id, path string) (*Session, error) {
	if sess, ok := m.store.get(id); ok {
		if path == "" || path == sess.Path {
			return sess, nil
		}
		logging.Info("Session %s switched to %s, restarting", id, path)
		m.closeSession(sess, true)
	}
	if path == "" {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if m.ctx.Err() != nil {
		return nil, fmt.Errorf("%w: manager stopped", ErrSessionNotFound)
	}

	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, fmt.Errorf("media file %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("media file %s: %w", path, fs.ErrNotExist)
	}

	res := m.prober.Probe(ctx, path)
	candidate := newSession(m.ctx, id, path, res)
	sess, created := m.store.putIfAbsent(candidate)
	if !created {
		candidate.cancel()
	} else {
		logging.Info("Session %s created for %s (duration %.1fs)", id, path, res.Duration)
		m.notifier.Notify(events.Event{Type: events.SessionCreated, SessionID: id, Time: time.Now()})
	}
	return sess, nil
}

// maxIndex is the last segment index of the session's media, or -1 when
// the duration is unknown.
func (m *SessionManager) maxIndex(sess *Session) int {
	if sess.Info.Unknown || sess.Info.Duration <= 0 {
		return -1
	}
	n := int(math.Ceil(sess.Info.Duration/m.cfg.SegmentDuration.Seconds())) - 1
	return max(n, 0)
}

func (m *SessionManager) clampCount(sess *Session, first, count int) int {
	if last := m.maxIndex(sess); last >= 0 {
		count = min(count, last-first+1)
	}
	return max(count, 1)
}

// PlaybackState is what a player reports about its position.
type PlaybackState struct {
	IsPlaying   bool    `json:"isPlaying"`
	CurrentTime float64 `json:"currentTime"`
	Quality     string  `json:"quality"`
}

// UpdatePlayback records the player position and keeps the preload loop for
// the reported quality running while the player is playing.
func (m *SessionManager) UpdatePlayback(sessionID string, st PlaybackState) error {
	sess, ok := m.store.get(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	profile, err := transcoder.LookupQuality(st.Quality)
	if err != nil {
		return err
	}
	if st.CurrentTime < 0 || math.IsNaN(st.CurrentTime) || math.IsInf(st.CurrentTime, 0) {
		return fmt.Errorf("%w: time %v", ErrInvalidRequest, st.CurrentTime)
	}

	sess.setPlayback(st.IsPlaying, st.CurrentTime, profile.Name)
	if st.IsPlaying {
		m.ensurePreload(sess, profile)
	}
	return nil
}

// CloseSession stops a session and deletes its segment files.
func (m *SessionManager) CloseSession(sessionID string) error {
	sess, ok := m.store.get(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	m.closeSession(sess, true)
	return nil
}

func (m *SessionManager) closeSession(sess *Session, removeFiles bool) {
	if !m.store.remove(sess) {
		return
	}
	sess.close()

	if removeFiles {
		if n, err := m.removeFiles(sess.ID + "_"); err != nil {
			logging.Warn("Failed to remove segments of session %s: %v", sess.ID, err)
		} else {
			logging.Debug("Removed %d segment files of session %s", n, sess.ID)
		}
	}
	logging.Info("Session %s closed", sess.ID)
	m.notifier.Notify(events.Event{Type: events.SessionClosed, SessionID: sess.ID, Time: time.Now()})
}

func (m *SessionManager) removeFiles(prefix string) (int, error) {
	entries, err := os.ReadDir(m.cfg.SegmentDir)
	if err != nil {
		return 0, err
	}
	removed := 0
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		if err := os.Remove(filepath.Join(m.cfg.SegmentDir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// ClearCache closes every session and empties the segment directory.
func (m *SessionManager) ClearCache() (int64, error) {
	for _, s := range m.store.all() {
		m.closeSession(s, false)
	}
	freed, err := transcoder.ClearDirectory(m.cfg.SegmentDir)
	if err != nil {
		return freed, fmt.Errorf("clearing segment cache: %w", err)
	}
	return freed, nil
}

// Session returns a snapshot of one session.
func (m *SessionManager) Session(sessionID string) (SessionInfo, error) {
	sess, ok := m.store.get(sessionID)
	if !ok {
		return SessionInfo{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return sess.snapshot(), nil
}

// Sessions returns snapshots of all sessions.
func (m *SessionManager) Sessions() []SessionInfo {
	all := m.store.all()
	out := make([]SessionInfo, 0, len(all))
	for _, s := range all {
		out = append(out, s.snapshot())
	}
	return out
}

// GetStats implements metrics.StatsProvider.
func (m *SessionManager) GetStats() metrics.Stats {
	stats := metrics.Stats{
		ActiveSessions: m.store.len(),
		PreloadLoops:   int(m.loops.Load()),
	}
	entries, err := os.ReadDir(m.cfg.SegmentDir)
	if err != nil {
		return stats
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		stats.SegmentCacheFiles++
		stats.SegmentCacheBytes += info.Size()
	}
	return stats
}

func (m *SessionManager) reapLoop(interval time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case now := <-ticker.C:
			m.reapIdle(now)
		}
	}
}

func (m *SessionManager) reapIdle(now time.Time) {
	for _, s := range m.store.all() {
		if idle := now.Sub(s.idleSince()); idle > m.cfg.IdleTimeout {
			logging.Info("Session %s idle for %v, closing", s.ID, idle.Round(time.Second))
			m.closeSession(s, true)
		}
	}
}
