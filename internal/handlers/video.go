package handlers

import (
	"fmt"
	"net/http"
	"regexp"

	"media-server/internal/codec"
	"media-server/internal/logging"
	"media-server/internal/metrics"
	"media-server/internal/probe"
	"media-server/internal/streaming"
	"media-server/internal/transcoder"
)

var bitratePattern = regexp.MustCompile(`^[1-9][0-9]{0,5}[kKmM]?$`)

// StreamVideo serves a file progressively.
// GET /video?path=...&start=...&quality=...&bitrate=...
//
// quality=original sends the file untouched when every stream is
// compatible and otherwise copies what it can. Any other quality forces a
// transcode at that profile, optionally capped at bitrate.
func (h *Handlers) StreamVideo(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	path, err := h.resolvePath(q.Get("path"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	start, err := parseSeconds(q.Get("start"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	quality := q.Get("quality")
	if quality == "" {
		quality = transcoder.Original
	}
	profile, err := transcoder.LookupQuality(quality)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if bitrate := q.Get("bitrate"); bitrate != "" {
		if !bitratePattern.MatchString(bitrate) {
			writeError(w, r, fmt.Errorf("%w: invalid bitrate %q", errBadRequest, bitrate))
			return
		}
		if !profile.IsOriginal() {
			profile.VideoBitrate = bitrate
		}
	}

	var codecs codec.Selection
	if profile.IsOriginal() {
		compat := codec.Classify(h.prober.Probe(r.Context(), path))
		if compat.Full() {
			metrics.DeliveryDecisions.WithLabelValues("direct").Inc()
			logging.Debug("Direct play: %s", path)
			if err := streaming.ServeFile(w, r, path); err != nil {
				writeError(w, r, err)
			}
			return
		}
		codecs = h.selector.ForOriginal(compat)
	} else {
		codecs = h.selector.ForProfile()
	}

	if !h.supervisor.IsEnabled() {
		writeError(w, r, transcoder.ErrTranscodingDisabled)
		return
	}

	metrics.DeliveryDecisions.WithLabelValues("progressive").Inc()
	logging.Debug("Progressive transcode: %s @ %.2fs (%s, video %s, audio %s)",
		path, start, profile.Name, codecs.Video, codecs.Audio)

	err = h.supervisor.StreamProgressive(w, r, transcoder.ProgressiveRequest{
		Path:    path,
		Start:   start,
		Quality: profile,
		Codecs:  codecs,
	})
	if err != nil {
		writeError(w, r, err)
	}
}

// TrackInfo describes one audio or subtitle track.
type TrackInfo struct {
	Index    int    `json:"index"`
	Codec    string `json:"codec"`
	Language string `json:"language,omitempty"`
	Title    string `json:"title,omitempty"`
	Default  bool   `json:"default,omitempty"`
}

// Resolution is the size of the first video stream.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// MetadataResponse is returned by GetMetadata.
type MetadataResponse struct {
	Duration        float64             `json:"duration"`
	BitRate         int64               `json:"bitRate,omitempty"`
	Unknown         bool                `json:"unknown,omitempty"`
	Compatibility   codec.Compatibility `json:"compatibility"`
	AudioTracks     []TrackInfo         `json:"audioTracks"`
	SubtitleTracks  []TrackInfo         `json:"subtitleTracks"`
	Qualities       []string            `json:"qualities"`
	VideoResolution *Resolution         `json:"videoResolution,omitempty"`
}

// GetMetadata returns duration and track languages of a file.
// GET /metadata?path=...
func (h *Handlers) GetMetadata(w http.ResponseWriter, r *http.Request) {
	path, err := h.resolvePath(r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	res := h.prober.Probe(r.Context(), path)

	response := MetadataResponse{
		Duration:       res.Duration,
		BitRate:        res.BitRate,
		Unknown:        res.Unknown,
		Compatibility:  codec.Classify(res),
		AudioTracks:    tracks(res, probe.StreamAudio),
		SubtitleTracks: tracks(res, probe.StreamSubtitle),
	}
	for _, p := range transcoder.Qualities() {
		response.Qualities = append(response.Qualities, p.Name)
	}
	if v := res.Tracks(probe.StreamVideo); len(v) > 0 && v[0].Width > 0 {
		response.VideoResolution = &Resolution{Width: v[0].Width, Height: v[0].Height}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, response)
}

func tracks(res probe.Result, streamType string) []TrackInfo {
	out := []TrackInfo{}
	for _, s := range res.Tracks(streamType) {
		out = append(out, TrackInfo{
			Index:    s.Index,
			Codec:    s.Codec,
			Language: s.Language,
			Title:    s.Title,
			Default:  s.Default,
		})
	}
	return out
}
