package hls

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"media-server/internal/events"
	"media-server/internal/logging"
	"media-server/internal/metrics"
	"media-server/internal/transcoder"
)

// ensurePreload starts the look-ahead loop for the pair unless one runs.
func (m *SessionManager) ensurePreload(sess *Session, profile transcoder.QualityProfile) {
	qs, ok := sess.startPreload(profile.Name)
	if !ok {
		return
	}
	m.loops.Add(1)
	go m.preloadLoop(sess, profile, qs)
}

// preloadLoop keeps the pair PreloadLimit segments ahead of the playhead.
// It exits once the window is full and the viewer is no longer playing
// this quality, or when the session closes.
func (m *SessionManager) preloadLoop(sess *Session, profile transcoder.QualityProfile, qs *qualityState) {
	defer sess.loops.Done()
	defer m.loops.Add(-1)

	label := sess.ID + "/" + profile.Name
	logging.Debug("Preload loop started for %s", label)

	ticker := time.NewTicker(m.cfg.PreloadInterval)
	defer ticker.Stop()

	for {
		if m.preloadCycle(sess, profile, qs) && sess.stopPreload(profile.Name, qs) {
			logging.Debug("Preload loop for %s finished", label)
			return
		}

		select {
		case <-sess.ctx.Done():
			sess.releasePreload(qs)
			return
		case <-ticker.C:
		}
	}
}

// preloadCycle runs one look-ahead step and reports whether the window
// ahead of the playhead is complete.
func (m *SessionManager) preloadCycle(sess *Session, profile transcoder.QualityProfile, qs *qualityState) bool {
	if !qs.gen.TryLock() {
		metrics.PreloadCycles.WithLabelValues("busy").Inc()
		return false
	}
	defer qs.gen.Unlock()

	q := profile.Name
	cur := SegmentIndex(sess.playhead(), m.cfg.SegmentDuration)
	target := cur + m.cfg.PreloadLimit
	if end := m.maxIndex(sess); end >= 0 {
		target = min(target, end)
	}

	last := sess.lastGenerated(qs)
	if last > target {
		// The playhead moved back: drop what lies beyond the window and
		// resume from the first gap after the playhead. Playlists that
		// reference the dropped parts go first so none is left dangling.
		m.dropReferencing(sess, q, target)
		m.evict(sess, q, func(idx int) bool { return idx > target })
		last = m.contiguousEnd(sess.ID, q, cur, target)
		sess.setLast(qs, last)
	}
	m.evict(sess, q, func(idx int) bool { return idx < cur-m.cfg.PreloadLimit })

	start := max(last+1, cur)
	if start > target {
		metrics.PreloadCycles.WithLabelValues("idle").Inc()
		return true
	}
	count := min(target-start+1, m.cfg.PreloadBatch)

	if err := m.generate(sess, profile, qs, start, count, triggerPreload); err != nil {
		if sess.ctx.Err() == nil {
			metrics.PreloadCycles.WithLabelValues("error").Inc()
			logging.Warn("Preload for %s/%s failed, retrying next cycle: %v", sess.ID, q, err)
		}
		return false
	}
	sess.advance(qs, start+count-1)
	metrics.PreloadCycles.WithLabelValues("generated").Inc()
	return start+count-1 >= target
}

// contiguousEnd returns the highest index i in [cur-1, target] such that the
// playlists for cur..i are all on disk.
func (m *SessionManager) contiguousEnd(sessionID, quality string, cur, target int) int {
	i := cur - 1
	for i < target {
		name := filepath.Join(m.cfg.SegmentDir, PlaylistName(sessionID, quality, i+1))
		if _, err := os.Stat(name); err != nil {
			break
		}
		i++
	}
	return i
}

// dropReferencing removes the pair's playlists at or below target that
// list a part holding a segment beyond target.
func (m *SessionManager) dropReferencing(sess *Session, quality string, target int) int {
	prefix := pairPrefix(sess.ID, quality)
	entries, err := os.ReadDir(m.cfg.SegmentDir)
	if err != nil {
		logging.Warn("Failed to list segment directory: %v", err)
		return 0
	}

	dropped := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".m3u8") {
			continue
		}
		idx, ok := segmentIndexOf(name, prefix)
		if !ok || idx > target {
			continue
		}
		full := filepath.Join(m.cfg.SegmentDir, name)
		parts, err := readParts(full)
		if err != nil {
			continue
		}
		if !slices.ContainsFunc(parts, func(p part) bool {
			pi, ok := segmentIndexOf(p.name, prefix)
			return ok && pi > target
		}) {
			continue
		}
		if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.Warn("Failed to drop %s: %v", name, err)
			continue
		}
		dropped++
	}

	if dropped > 0 {
		metrics.SegmentsEvicted.Add(float64(dropped))
		logging.Debug("Dropped %d playlists of %s/%s reaching past segment %d", dropped, sess.ID, quality, target)
	}
	return dropped
}

// evict removes the pair's playlists and parts whose segment index matches
// drop and returns the number of playlists removed.
func (m *SessionManager) evict(sess *Session, quality string, drop func(idx int) bool) int {
	prefix := pairPrefix(sess.ID, quality)
	entries, err := os.ReadDir(m.cfg.SegmentDir)
	if err != nil {
		logging.Warn("Failed to list segment directory: %v", err)
		return 0
	}

	evicted := 0
	first, lastIdx := -1, -1
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		idx, ok := segmentIndexOf(e.Name(), prefix)
		if !ok || !drop(idx) {
			continue
		}
		err := os.Remove(filepath.Join(m.cfg.SegmentDir, e.Name()))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.Warn("Failed to evict %s: %v", e.Name(), err)
			continue
		}
		if strings.HasSuffix(e.Name(), ".m3u8") {
			evicted++
			if first < 0 || idx < first {
				first = idx
			}
			lastIdx = max(lastIdx, idx)
		}
	}

	if evicted > 0 {
		metrics.SegmentsEvicted.Add(float64(evicted))
		m.notifier.Notify(events.Event{
			Type: events.SegmentEvicted, SessionID: sess.ID, Quality: quality,
			First: first, Count: evicted, Time: time.Now(),
		})
		logging.Debug("Evicted %d segments of %s/%s (%d-%d)", evicted, sess.ID, quality, first, lastIdx)
	}
	return evicted
}
