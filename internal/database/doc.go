// Package database persists ffprobe results in SQLite.
//
// Each row is keyed by the file path and remembers the size and
// modification time the file had when it was probed; a lookup only hits when
// both still match, so replacing a file invalidates its row. Database
// satisfies probe.Store.
//
// The database runs in WAL mode and lives at CACHE_DIR/probe.db. It is a
// cache: deleting it only costs a re-probe of each file on first playback.
package database
