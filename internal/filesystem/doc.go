/*
Package filesystem wraps os.Stat and os.Open with retries for NFS stale file
handle errors (ESTALE).

Media libraries are frequently mounted over NFS. A file served by the direct
file server or probed by ffprobe can briefly report ESTALE after the server
side changes; retrying with exponential backoff (50ms, 100ms, 200ms by
default, capped at 500ms) usually succeeds. All other errors are returned
immediately.

Stale errors, retries and final failures are counted per operation and per
volume. Volumes are labelled from the configured directories:

	filesystem.SetVolumes(filesystem.NewVolumes("media", cfg.MediaDir, "cache", cfg.CacheDir))

	f, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
*/
package filesystem
