package codec

import (
	"strings"

	"media-server/internal/probe"
)

// Codecs browsers play natively. ffprobe reports H.265 as "hevc".
var (
	compatibleVideo = map[string]bool{
		"h264": true,
		"h265": true,
		"hevc": true,
		"vp8":  true,
		"vp9":  true,
		"av1":  true,
	}

	compatibleAudio = map[string]bool{
		"aac":    true,
		"mp3":    true,
		"opus":   true,
		"vorbis": true,
	}
)

// Compatibility says which streams of a file can be sent without re-encoding.
type Compatibility struct {
	Video bool `json:"videoCompatible"`
	Audio bool `json:"audioCompatible"`
}

// Full reports whether the file can be served byte-for-byte.
func (c Compatibility) Full() bool {
	return c.Video && c.Audio
}

// IsCompatibleVideo reports whether a video codec name is in the allow-list.
func IsCompatibleVideo(name string) bool {
	return compatibleVideo[strings.ToLower(name)]
}

// IsCompatibleAudio reports whether an audio codec name is in the allow-list.
func IsCompatibleAudio(name string) bool {
	return compatibleAudio[strings.ToLower(name)]
}

// Classify decides per stream whether res can be copied. An unknown or empty
// result is incompatible on both streams. A missing stream type counts as
// compatible, so an audio-only file with mp3 is fully compatible.
func Classify(res probe.Result) Compatibility {
	if res.Unknown || len(res.Streams) == 0 {
		return Compatibility{}
	}

	c := Compatibility{Video: true, Audio: true}
	if res.HasVideo() {
		c.Video = IsCompatibleVideo(res.VideoCodec())
	}
	if res.HasAudio() {
		c.Audio = IsCompatibleAudio(res.AudioCodec())
	}
	return c
}
