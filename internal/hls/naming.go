package hls

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Session IDs end up in file names. Underscores are excluded because they
// separate the name fields.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.-]{0,127}$`)

// ValidSessionID reports whether id can be used as a session identifier.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id) && !strings.Contains(id, "..")
}

// SegmentIndex returns the index of the segment covering t seconds.
func SegmentIndex(t float64, segmentDuration time.Duration) int {
	if t <= 0 || segmentDuration <= 0 {
		return 0
	}
	return int(math.Floor(t / segmentDuration.Seconds()))
}

func pairPrefix(sessionID, quality string) string {
	return sessionID + "_" + quality + "_"
}

// PlaylistName is the file name of the playlist that starts at segment idx.
func PlaylistName(sessionID, quality string, idx int) string {
	return fmt.Sprintf("%s_%s_%d.m3u8", sessionID, quality, idx)
}

// partPattern is the ffmpeg output pattern for the parts of the batch that
// starts at first. Part k of that batch holds segment first+k. Stream copy
// can only cut at source keyframes, so for the original quality that
// mapping is approximate and parts may be longer than one segment.
func partPattern(sessionID, quality string, first int) string {
	return fmt.Sprintf("%s_%s_%d_%%d.ts", sessionID, quality, first)
}

// encodingPlaylistName is where ffmpeg writes its own playlist. It is never
// served and is removed once the per-segment playlists are written.
func encodingPlaylistName(sessionID, quality string, first int) string {
	return fmt.Sprintf("%s_%s_%d.encoding.m3u8", sessionID, quality, first)
}

// segmentIndexOf returns the segment index a file of the given pair holds.
// Files of other pairs and temporary files report false.
func segmentIndexOf(name, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok {
		return 0, false
	}

	if s, ok := strings.CutSuffix(rest, ".m3u8"); ok {
		idx, err := strconv.Atoi(s)
		if err != nil || idx < 0 {
			return 0, false
		}
		return idx, true
	}

	if s, ok := strings.CutSuffix(rest, ".ts"); ok {
		firstStr, partStr, found := strings.Cut(s, "_")
		if !found {
			return 0, false
		}
		first, err := strconv.Atoi(firstStr)
		if err != nil || first < 0 {
			return 0, false
		}
		part, err := strconv.Atoi(partStr)
		if err != nil || part < 0 {
			return 0, false
		}
		return first + part, true
	}

	return 0, false
}
