// Package hls manages segmented playback sessions.
//
// A session belongs to one viewer and one media file. The file is cut into
// fixed-length segments; the segment covering time t has index
// floor(t / SegmentDuration). For each (session, quality) pair the manager
// tracks the highest index generated so far.
//
// # Request path
//
// Playlist looks up the segment for the requested time. When that index is
// beyond what has been generated, the manager takes the pair's generation
// lock, encodes InitialSegments segments starting there and starts the
// preload loop. Concurrent requests for the same pair wait on the lock and
// then reuse the result. Segments that were evicted are regenerated on
// demand.
//
// Each encoder batch writes its parts as {sid}_{q}_{first}_{part}.ts. After
// the encoder exits, one playlist per segment index is written as
// {sid}_{q}_{idx}.m3u8, listing the parts from idx to the end of the batch
// with URIs under Config.PublicPrefix.
//
// # Preload
//
// The preload loop runs once per second. Each cycle keeps the pair
// PreloadLimit segments ahead of the playhead and deletes segments more than
// PreloadLimit behind it. A cycle that finds a generation already running
// skips its turn. The loop stops when the window is full and the viewer is
// not playing that quality, or when the session closes.
//
// Generation never runs on a request context: a viewer going away must not
// abort an encode another request is waiting on.
package hls
