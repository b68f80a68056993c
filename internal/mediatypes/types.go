package mediatypes

import (
	"path/filepath"
	"strings"
)

// Kind classifies a file by what the streaming engine can do with it.
type Kind string

const (
	// KindVideo is a container with at least a video stream.
	KindVideo Kind = "video"
	// KindAudio is an audio-only container.
	KindAudio Kind = "audio"
	// KindPlaylist is an HLS playlist produced by the segment manager.
	KindPlaylist Kind = "playlist"
	// KindSegment is an HLS media chunk produced by the segment manager.
	KindSegment Kind = "segment"
	// KindOther is anything else.
	KindOther Kind = "other"
)

// MPEGURL is the content type of HLS playlists.
const MPEGURL = "application/vnd.apple.mpegurl"

// FragmentedMP4 is the content type of progressive transcode output.
const FragmentedMP4 = "video/mp4"

var kinds = map[string]Kind{
	".mp4":  KindVideo,
	".m4v":  KindVideo,
	".mkv":  KindVideo,
	".webm": KindVideo,
	".avi":  KindVideo,
	".mov":  KindVideo,
	".wmv":  KindVideo,
	".flv":  KindVideo,
	".mpeg": KindVideo,
	".mpg":  KindVideo,
	".3gp":  KindVideo,
	".ogv":  KindVideo,

	".mp3":  KindAudio,
	".m4a":  KindAudio,
	".aac":  KindAudio,
	".flac": KindAudio,
	".ogg":  KindAudio,
	".opus": KindAudio,
	".wav":  KindAudio,

	".m3u8": KindPlaylist,
	".ts":   KindSegment,
}

// MimeTypes maps lowercase extensions (with the leading dot) to MIME types.
var MimeTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".wmv":  "video/x-ms-wmv",
	".flv":  "video/x-flv",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".3gp":  "video/3gpp",
	".ogv":  "video/ogg",

	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".wav":  "audio/wav",

	".m3u8": MPEGURL,
	".ts":   "video/mp2t",
	".jpg":  "image/jpeg",
}

// GetKind returns the Kind for an extension such as ".mkv".
func GetKind(ext string) Kind {
	if k, ok := kinds[strings.ToLower(ext)]; ok {
		return k
	}
	return KindOther
}

// GetMimeType returns the MIME type for an extension such as ".mkv".
// Unknown extensions map to application/octet-stream.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[strings.ToLower(ext)]; ok {
		return mime
	}
	return "application/octet-stream"
}

// ForPath returns the MIME type for a file path.
func ForPath(path string) string {
	return GetMimeType(filepath.Ext(path))
}

// IsPlayable reports whether the path names an audio or video container.
func IsPlayable(path string) bool {
	k := GetKind(filepath.Ext(path))
	return k == KindVideo || k == KindAudio
}
