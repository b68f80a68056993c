package transcoder

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidQuality is returned for a quality name outside the catalog.
var ErrInvalidQuality = errors.New("invalid quality")

// Original is the pseudo-quality that keeps resolution and bitrate and lets
// the codec classifier decide per stream between copy and re-encode.
const Original = "original"

// QualityProfile is one rung of the fixed transcoding ladder.
type QualityProfile struct {
	Name         string `json:"name"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	VideoBitrate string `json:"videoBitrate,omitempty"`
	AudioBitrate string `json:"audioBitrate,omitempty"`
}

// IsOriginal reports whether q is the pass-through pseudo-profile.
func (q QualityProfile) IsOriginal() bool {
	return q.Name == Original
}

var profiles = map[string]QualityProfile{
	"360p":  {Name: "360p", Width: 640, Height: 360, VideoBitrate: "800k", AudioBitrate: "96k"},
	"480p":  {Name: "480p", Width: 854, Height: 480, VideoBitrate: "1400k", AudioBitrate: "128k"},
	"720p":  {Name: "720p", Width: 1280, Height: 720, VideoBitrate: "2800k", AudioBitrate: "128k"},
	"1080p": {Name: "1080p", Width: 1920, Height: 1080, VideoBitrate: "5000k", AudioBitrate: "192k"},
}

// LookupQuality resolves a quality name, including "original".
func LookupQuality(name string) (QualityProfile, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == Original {
		return QualityProfile{Name: Original}, nil
	}
	if q, ok := profiles[name]; ok {
		return q, nil
	}
	return QualityProfile{}, fmt.Errorf("%w: %q", ErrInvalidQuality, name)
}

// Qualities lists the catalog from lowest to highest, then "original".
func Qualities() []QualityProfile {
	out := make([]QualityProfile, 0, len(profiles)+1)
	for _, q := range profiles {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Height < out[j].Height })
	return append(out, QualityProfile{Name: Original})
}
