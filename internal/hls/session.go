package hls

import (
	"context"
	"sort"
	"sync"
	"time"

	"media-server/internal/probe"
)

// qualityState tracks generation for one (session, quality) pair. The
// fields other than gen are guarded by the owning Session's mu.
type qualityState struct {
	// gen serialises encoder runs for the pair.
	gen sync.Mutex

	last       int
	generating bool
	preloading bool
}

// Session is one viewer's segmented playback of a single file.
type Session struct {
	ID      string
	Path    string
	Info    probe.Result
	Created time.Time

	ctx    context.Context
	cancel context.CancelFunc
	loops  sync.WaitGroup

	mu           sync.Mutex
	closed       bool
	currentTime  float64
	isPlaying    bool
	quality      string
	lastActivity time.Time
	qualities    map[string]*qualityState
}

func newSession(parent context.Context, id, path string, info probe.Result) *Session {
	ctx, cancel := context.WithCancel(parent)
	now := time.Now()
	return &Session{
		ID:           id,
		Path:         path,
		Info:         info,
		Created:      now,
		ctx:          ctx,
		cancel:       cancel,
		lastActivity: now,
		qualities:    make(map[string]*qualityState),
	}
}

func (s *Session) state(quality string) *qualityState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked(quality)
}

func (s *Session) stateLocked(quality string) *qualityState {
	qs, ok := s.qualities[quality]
	if !ok {
		qs = &qualityState{last: -1}
		s.qualities[quality] = qs
	}
	return qs
}

// touch records a segment request at time t.
func (s *Session) touch(t float64, quality string) {
	s.mu.Lock()
	s.currentTime = t
	s.quality = quality
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) setPlayback(playing bool, t float64, quality string) {
	s.mu.Lock()
	s.isPlaying = playing
	s.currentTime = t
	s.quality = quality
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) playhead() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentTime
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) lastGenerated(qs *qualityState) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return qs.last
}

func (s *Session) setLast(qs *qualityState, idx int) {
	s.mu.Lock()
	qs.last = idx
	s.mu.Unlock()
}

func (s *Session) advance(qs *qualityState, idx int) {
	s.mu.Lock()
	qs.last = max(qs.last, idx)
	s.mu.Unlock()
}

func (s *Session) setGenerating(qs *qualityState, v bool) {
	s.mu.Lock()
	qs.generating = v
	s.mu.Unlock()
}

// startPreload claims the preload loop for quality. It reports false when a
// loop already runs or the session is closed.
func (s *Session) startPreload(quality string) (*qualityState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	qs := s.stateLocked(quality)
	if qs.preloading {
		return nil, false
	}
	qs.preloading = true
	s.loops.Add(1)
	return qs, true
}

// stopPreload releases the loop for quality unless the viewer is playing it.
func (s *Session) stopPreload(quality string, qs *qualityState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed && s.isPlaying && s.quality == quality {
		return false
	}
	qs.preloading = false
	return true
}

func (s *Session) releasePreload(qs *qualityState) {
	s.mu.Lock()
	qs.preloading = false
	s.mu.Unlock()
}

// close cancels the session and waits for its preload loops and any
// in-flight generation to finish.
func (s *Session) close() {
	s.mu.Lock()
	s.closed = true
	states := make([]*qualityState, 0, len(s.qualities))
	for _, qs := range s.qualities {
		states = append(states, qs)
	}
	s.mu.Unlock()

	s.cancel()
	s.loops.Wait()
	for _, qs := range states {
		qs.gen.Lock()
		qs.gen.Unlock() //nolint:staticcheck // waits for a running generation
	}
}

// QualityInfo is the generation state of one quality of a session.
type QualityInfo struct {
	Quality       string `json:"quality"`
	LastGenerated int    `json:"lastGenerated"`
	Generating    bool   `json:"generating"`
	Preloading    bool   `json:"preloading"`
}

// SessionInfo is a snapshot of a session.
type SessionInfo struct {
	ID           string        `json:"id"`
	Path         string        `json:"path"`
	Duration     float64       `json:"duration"`
	CurrentTime  float64       `json:"currentTime"`
	IsPlaying    bool          `json:"isPlaying"`
	Quality      string        `json:"quality"`
	Created      time.Time     `json:"created"`
	LastActivity time.Time     `json:"lastActivity"`
	Qualities    []QualityInfo `json:"qualities"`
}

func (s *Session) snapshot() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := SessionInfo{
		ID:           s.ID,
		Path:         s.Path,
		Duration:     s.Info.Duration,
		CurrentTime:  s.currentTime,
		IsPlaying:    s.isPlaying,
		Quality:      s.quality,
		Created:      s.Created,
		LastActivity: s.lastActivity,
		Qualities:    make([]QualityInfo, 0, len(s.qualities)),
	}
	for name, qs := range s.qualities {
		info.Qualities = append(info.Qualities, QualityInfo{
			Quality:       name,
			LastGenerated: qs.last,
			Generating:    qs.generating,
			Preloading:    qs.preloading,
		})
	}
	sort.Slice(info.Qualities, func(i, j int) bool { return info.Qualities[i].Quality < info.Qualities[j].Quality })
	return info
}

// sessionStore is the concurrency-safe session registry.
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*Session)}
}

func (st *sessionStore) get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

// putIfAbsent stores s unless id is taken and returns the stored session.
func (st *sessionStore) putIfAbsent(s *Session) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if existing, ok := st.sessions[s.ID]; ok {
		return existing, false
	}
	st.sessions[s.ID] = s
	return s, true
}

// remove deletes id only while it still maps to s.
func (st *sessionStore) remove(s *Session) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.sessions[s.ID] != s {
		return false
	}
	delete(st.sessions, s.ID)
	return true
}

func (st *sessionStore) all() []*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	return out
}

func (st *sessionStore) len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
