// Package codec decides whether a probed file can be sent to a browser as is
// and, when it cannot, which ffmpeg encoders to use.
//
// Classify checks the first video and audio streams against fixed
// allow-lists (h264, h265/hevc, vp8, vp9, av1 for video; aac, mp3, opus,
// vorbis for audio). Streams are judged independently so the caller can copy
// one and re-encode the other.
//
// Selector prefers a configured encoder (for example h264_nvenc) when the
// local ffmpeg lists it under -encoders and falls back to libx264 and aac.
package codec
