package transcoder

import (
	"strconv"
	"strings"

	"media-server/internal/codec"
)

// Encoder output modes.
const (
	ModeProgressive = "progressive"
	ModeSegment     = "segment"
)

// Job describes one encoder invocation.
type Job struct {
	// Label identifies the job in logs, e.g. "s1/720p".
	Label string
	Mode  string

	Input    string
	Start    float64 // seek offset in seconds
	Duration float64 // 0 encodes to the end of the input

	Quality QualityProfile
	Codecs  codec.Selection

	// Segment mode only.
	PlaylistPath    string
	SegmentPattern  string
	SegmentDuration float64
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

// BuildArgs returns the ffmpeg argument list for job, without the binary.
func BuildArgs(job Job) []string {
	args := []string{"-hide_banner", "-nostdin", "-loglevel", "warning"}

	if job.Start > 0 {
		args = append(args, "-ss", formatSeconds(job.Start))
	}
	args = append(args, "-i", job.Input)
	if job.Duration > 0 {
		args = append(args, "-t", formatSeconds(job.Duration))
	}

	args = append(args, "-map", "0:v:0?", "-map", "0:a:0?", "-sn", "-dn")
	args = appendVideoArgs(args, job)
	args = appendAudioArgs(args, job)

	switch job.Mode {
	case ModeSegment:
		args = append(args,
			"-f", "hls",
			"-hls_time", formatSeconds(job.SegmentDuration),
			"-hls_list_size", "0",
			"-hls_playlist_type", "vod",
			"-hls_segment_filename", job.SegmentPattern,
			"-output_ts_offset", formatSeconds(job.Start),
			job.PlaylistPath,
		)
	default:
		args = append(args,
			"-movflags", "frag_keyframe+empty_moov+default_base_moof",
			"-f", "mp4",
			"pipe:1",
		)
	}

	return args
}

func appendVideoArgs(args []string, job Job) []string {
	enc := job.Codecs.Video
	if enc == "" {
		enc = codec.BaselineVideo
	}
	args = append(args, "-c:v", enc)
	if enc == codec.Copy {
		// No forced keyframes here: the hls muxer cuts copied video at the
		// source keyframes, so parts only roughly follow -hls_time.
		return args
	}

	args = append(args, encoderPresetArgs(enc)...)

	q := job.Quality
	if !q.IsOriginal() && q.Height > 0 {
		args = append(args, "-vf",
			"scale=w="+strconv.Itoa(q.Width)+":h="+strconv.Itoa(q.Height)+
				":force_original_aspect_ratio=decrease:force_divisible_by=2")
	}
	if q.VideoBitrate != "" {
		args = append(args, "-b:v", q.VideoBitrate, "-maxrate", q.VideoBitrate, "-bufsize", doubleRate(q.VideoBitrate))
	}

	args = append(args, "-pix_fmt", "yuv420p")
	if job.Mode == ModeSegment && job.SegmentDuration > 0 {
		// Keyframes on segment boundaries so every part starts decodable.
		args = append(args, "-force_key_frames", "expr:gte(t,n_forced*"+formatSeconds(job.SegmentDuration)+")")
	}
	return args
}

func appendAudioArgs(args []string, job Job) []string {
	enc := job.Codecs.Audio
	if enc == "" {
		enc = codec.BaselineAudio
	}
	args = append(args, "-c:a", enc)
	if enc == codec.Copy {
		return args
	}

	bitrate := job.Quality.AudioBitrate
	if bitrate == "" {
		bitrate = "192k"
	}
	return append(args, "-b:a", bitrate, "-ac", "2")
}

// encoderPresetArgs returns speed settings understood by each encoder family.
func encoderPresetArgs(enc string) []string {
	switch {
	case enc == "libx264" || enc == "libx265":
		return []string{"-preset", "veryfast"}
	case strings.HasSuffix(enc, "_nvenc"):
		return []string{"-preset", "p4"}
	case strings.HasSuffix(enc, "_qsv"):
		return []string{"-preset", "veryfast"}
	default:
		return nil
	}
}

// doubleRate turns "2800k" into "5600k" for -bufsize.
func doubleRate(rate string) string {
	unit := ""
	num := rate
	if n := len(rate); n > 0 && (rate[n-1] < '0' || rate[n-1] > '9') {
		unit, num = rate[n-1:], rate[:n-1]
	}
	v, err := strconv.Atoi(num)
	if err != nil {
		return rate
	}
	return strconv.Itoa(v*2) + unit
}
