package probe

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Stream types reported by ffprobe.
const (
	StreamVideo    = "video"
	StreamAudio    = "audio"
	StreamSubtitle = "subtitle"
)

// Stream describes one elementary stream of a container.
// Index counts streams of the same type, so the second audio track has Index 1.
type Stream struct {
	Index    int    `json:"index"`
	Type     string `json:"type"`
	Codec    string `json:"codec"`
	Language string `json:"language,omitempty"`
	Title    string `json:"title,omitempty"`
	Default  bool   `json:"default,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// Result is what the Prober learned about a file. When Unknown is true the
// other fields are zero and callers must treat every stream as incompatible.
type Result struct {
	Unknown    bool     `json:"unknown,omitempty"`
	Duration   float64  `json:"duration"`
	BitRate    int64    `json:"bitRate,omitempty"`
	FormatName string   `json:"formatName,omitempty"`
	Streams    []Stream `json:"streams"`
}

// UnknownResult is returned whenever probing fails or times out.
func UnknownResult() Result {
	return Result{Unknown: true}
}

// Tracks returns the streams of one type in container order.
func (r Result) Tracks(streamType string) []Stream {
	var out []Stream
	for _, s := range r.Streams {
		if s.Type == streamType {
			out = append(out, s)
		}
	}
	return out
}

func (r Result) first(streamType string) (Stream, bool) {
	for _, s := range r.Streams {
		if s.Type == streamType {
			return s, true
		}
	}
	return Stream{}, false
}

// VideoCodec returns the codec of the first video stream, or "".
func (r Result) VideoCodec() string {
	s, _ := r.first(StreamVideo)
	return s.Codec
}

// AudioCodec returns the codec of the first audio stream, or "".
func (r Result) AudioCodec() string {
	s, _ := r.first(StreamAudio)
	return s.Codec
}

// HasVideo reports whether the container has a video stream.
func (r Result) HasVideo() bool {
	_, ok := r.first(StreamVideo)
	return ok
}

// HasAudio reports whether the container has an audio stream.
func (r Result) HasAudio() bool {
	_, ok := r.first(StreamAudio)
	return ok
}

// probePayload is the subset of ffprobe JSON output we parse.
type probePayload struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType   string            `json:"codec_type"`
	CodecName   string            `json:"codec_name"`
	Width       int               `json:"width"`
	Height      int               `json:"height"`
	Tags        map[string]string `json:"tags"`
	Disposition struct {
		Default int `json:"default"`
	} `json:"disposition"`
}

type probeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
}

func parseProbeOutput(data []byte) (Result, error) {
	var payload probePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Result{}, err
	}

	res := Result{
		FormatName: payload.Format.FormatName,
		Streams:    make([]Stream, 0, len(payload.Streams)),
	}

	counts := map[string]int{}
	for _, ps := range payload.Streams {
		switch ps.CodecType {
		case StreamVideo, StreamAudio, StreamSubtitle:
		default:
			continue
		}

		s := Stream{
			Index:    counts[ps.CodecType],
			Type:     ps.CodecType,
			Codec:    strings.ToLower(ps.CodecName),
			Language: strings.TrimSpace(getTag(ps.Tags, "language")),
			Title:    strings.TrimSpace(getTag(ps.Tags, "title")),
			Default:  ps.Disposition.Default == 1,
		}
		if ps.CodecType == StreamVideo {
			s.Width, s.Height = ps.Width, ps.Height
		}
		counts[ps.CodecType]++
		res.Streams = append(res.Streams, s)
	}

	if d, err := strconv.ParseFloat(payload.Format.Duration, 64); err == nil && d > 0 {
		res.Duration = d
	}
	if br, err := strconv.ParseInt(payload.Format.BitRate, 10, 64); err == nil && br > 0 {
		res.BitRate = br
	}

	return res, nil
}

// getTag looks a tag up case-insensitively; Matroska muxers write "LANGUAGE".
func getTag(tags map[string]string, key string) string {
	if v, ok := tags[key]; ok {
		return v
	}
	for k, v := range tags {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
