package codec

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"media-server/internal/logging"
)

// Baseline encoders every ffmpeg build ships.
const (
	BaselineVideo = "libx264"
	BaselineAudio = "aac"
	Copy          = "copy"
)

// Encoders is the set of encoders the local ffmpeg build reports.
type Encoders struct {
	names map[string]bool
}

// NewEncoders builds a set from a list of encoder names.
func NewEncoders(names ...string) *Encoders {
	e := &Encoders{names: make(map[string]bool, len(names))}
	for _, n := range names {
		e.names[n] = true
	}
	return e
}

// Has reports whether an encoder is available. A nil set has nothing.
func (e *Encoders) Has(name string) bool {
	return e != nil && e.names[name]
}

// Len returns the number of encoders in the set.
func (e *Encoders) Len() int {
	if e == nil {
		return 0
	}
	return len(e.names)
}

// ParseEncoders reads the output of "ffmpeg -encoders -hide_banner".
// The table starts after a "------" separator; each row is a six-character
// capability column (V/A/S first) followed by the encoder name.
func ParseEncoders(output []byte) *Encoders {
	e := NewEncoders()
	inList := false

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "------") {
			inList = true
			continue
		}
		if !inList {
			continue
		}

		line = strings.TrimLeft(line, " ")
		if len(line) < 8 {
			continue
		}
		if line[0] != 'V' && line[0] != 'A' && line[0] != 'S' {
			continue
		}

		if fields := strings.Fields(line[6:]); len(fields) > 0 {
			e.names[fields[0]] = true
		}
	}
	return e
}

// DetectEncoders asks ffmpeg which encoders it was built with.
func DetectEncoders(ctx context.Context, ffmpegPath string) (*Encoders, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, ffmpegPath, "-encoders", "-hide_banner").Output()
	if err != nil {
		return nil, fmt.Errorf("list ffmpeg encoders: %w", err)
	}

	enc := ParseEncoders(out)
	logging.Debug("ffmpeg reports %d encoders", enc.Len())
	return enc, nil
}

// Selection is the pair of codec arguments passed to the encoder.
type Selection struct {
	Video string
	Audio string
}

// Selector picks encoders: a preferred one when the local build has it,
// otherwise the baseline.
type Selector struct {
	encoders       *Encoders
	preferredVideo string
	preferredAudio string
}

// NewSelector creates a Selector. Empty preferences fall back to baseline.
func NewSelector(encoders *Encoders, preferredVideo, preferredAudio string) *Selector {
	return &Selector{
		encoders:       encoders,
		preferredVideo: preferredVideo,
		preferredAudio: preferredAudio,
	}
}

// VideoEncoder returns the encoder used when video must be re-encoded.
func (s *Selector) VideoEncoder() string {
	if s != nil && s.preferredVideo != "" && s.encoders.Has(s.preferredVideo) {
		return s.preferredVideo
	}
	return BaselineVideo
}

// AudioEncoder returns the encoder used when audio must be re-encoded.
func (s *Selector) AudioEncoder() string {
	if s != nil && s.preferredAudio != "" && s.encoders.Has(s.preferredAudio) {
		return s.preferredAudio
	}
	return BaselineAudio
}

// ForOriginal copies each compatible stream and re-encodes the rest.
func (s *Selector) ForOriginal(c Compatibility) Selection {
	sel := Selection{Video: Copy, Audio: Copy}
	if !c.Video {
		sel.Video = s.VideoEncoder()
	}
	if !c.Audio {
		sel.Audio = s.AudioEncoder()
	}
	return sel
}

// ForProfile re-encodes both streams, as scaling and bitrate caps require.
func (s *Selector) ForProfile() Selection {
	return Selection{Video: s.VideoEncoder(), Audio: s.AudioEncoder()}
}
