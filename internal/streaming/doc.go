/*
Package streaming delivers bytes to HTTP clients: raw files with Range
support, and arbitrary readers such as an encoder's stdout.

# Direct file serving

ServeFile answers a request for a file on disk. Without a Range header it
responds 200 with the whole file. With "bytes=start-end", "bytes=start-" or
"bytes=-suffix" it responds 206 with Content-Range and exactly that window;
the end is clamped to the file size. A range that starts past the end of the
file, or a header that cannot be parsed, gets 416 with an unsatisfied
Content-Range that names only the file size.

	if err := streaming.ServeFile(w, r, path); err != nil {
		// only errors from before the response started reach here,
		// plus stream failures that can no longer be reported
	}

A client that disconnects mid-transfer closes the file and is not reported
as an error.

# Timeout-protected writes

StreamWithTimeout and TimeoutWriter wrap an http.ResponseWriter so a client
that stops reading cannot pin a file handle or an encoder process:

  - WriteTimeout bounds each write
  - IdleTimeout bounds the gap between successful writes
  - MaxDuration bounds the whole response
  - ChunkSize splits large writes and flushes after each one

Errors are reported with sentinels that callers match with errors.Is:
ErrClientGone (request context canceled), ErrWriteTimeout and
ErrStreamCanceled. TimeoutWriter.Written tells a caller whether the response
has already started, which decides between a 500 and aborting the
connection.
*/
package streaming
