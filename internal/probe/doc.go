// Package probe inspects media files with ffprobe.
//
// Probe never returns an error. A missing file, a non-zero exit, output that
// is not JSON, or an invocation that exceeds the timeout (10s by default)
// all yield a Result with Unknown set, which the codec classifier treats as
// incompatible so the file is transcoded rather than sent raw.
//
// Successful results are kept in memory for the life of the process and,
// when a Store is configured, persisted keyed by path, size and modification
// time so a restart does not re-probe an unchanged library.
package probe
