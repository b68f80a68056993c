package streaming

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"media-server/internal/filesystem"
	"media-server/internal/logging"
	"media-server/internal/mediatypes"
	"media-server/internal/metrics"
)

// ErrRangeNotSatisfiable is returned by ParseRange for malformed ranges and
// ranges that do not overlap the file.
var ErrRangeNotSatisfiable = errors.New("range not satisfiable")

// ByteRange is an inclusive window [Start, End] of a file.
type ByteRange struct {
	Start int64
	End   int64
}

// Length returns the number of bytes in the window.
func (br ByteRange) Length() int64 {
	return br.End - br.Start + 1
}

// ContentRange formats the Content-Range header value for a file of size bytes.
func (br ByteRange) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", br.Start, br.End, size)
}

// ParseRange parses a Range header against a file of the given size.
// Supported forms are "bytes=start-end", "bytes=start-" and "bytes=-suffix".
// An end beyond the file is clamped to size-1. Only the first range of a
// multi-range header is honored.
func ParseRange(header string, size int64) (ByteRange, error) {
	rangeSet, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok {
		return ByteRange{}, fmt.Errorf("%w: unsupported unit in %q", ErrRangeNotSatisfiable, header)
	}
	if first, _, multi := strings.Cut(rangeSet, ","); multi {
		rangeSet = first
	}

	startStr, endStr, ok := strings.Cut(strings.TrimSpace(rangeSet), "-")
	if !ok {
		return ByteRange{}, fmt.Errorf("%w: malformed range %q", ErrRangeNotSatisfiable, header)
	}
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	if size <= 0 {
		return ByteRange{}, fmt.Errorf("%w: empty file", ErrRangeNotSatisfiable)
	}

	if startStr == "" {
		suffix, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || suffix <= 0 {
			return ByteRange{}, fmt.Errorf("%w: malformed suffix %q", ErrRangeNotSatisfiable, header)
		}
		suffix = min(suffix, size)
		return ByteRange{Start: size - suffix, End: size - 1}, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return ByteRange{}, fmt.Errorf("%w: malformed start %q", ErrRangeNotSatisfiable, header)
	}

	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			return ByteRange{}, fmt.Errorf("%w: malformed end %q", ErrRangeNotSatisfiable, header)
		}
		end = min(end, size-1)
	}

	if start >= size || start > end {
		return ByteRange{}, fmt.Errorf("%w: %d-%d outside %d bytes", ErrRangeNotSatisfiable, start, end, size)
	}

	return ByteRange{Start: start, End: end}, nil
}

// ServeFile writes the file at path to w, honoring a single-range Range
// header. Errors returned before any header is written (missing file,
// directory, open failure) are left to the caller to report; once the
// response has started, a client disconnect is absorbed and nil returned.
func ServeFile(w http.ResponseWriter, r *http.Request, path string) error {
	info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s: %w", path, os.ErrNotExist)
	}

	file, err := filesystem.OpenWithRetry(path, filesystem.DefaultRetryConfig())
	if err != nil {
		return err
	}
	defer file.Close()

	size := info.Size()
	h := w.Header()
	h.Set("Content-Type", mediatypes.ForPath(path))
	h.Set("Accept-Ranges", "bytes")
	h.Set("Last-Modified", info.ModTime().UTC().Format(http.TimeFormat))

	window := ByteRange{Start: 0, End: size - 1}
	status := http.StatusOK

	if header := r.Header.Get("Range"); header != "" {
		window, err = ParseRange(header, size)
		if err != nil {
			logging.Debug("Rejecting range %q for %s: %v", header, path, err)
			metrics.RangeRequestsTotal.WithLabelValues("unsatisfiable").Inc()
			h.Del("Last-Modified")
			h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return nil
		}
		status = http.StatusPartialContent
		h.Set("Content-Range", window.ContentRange(size))
		metrics.RangeRequestsTotal.WithLabelValues("partial").Inc()
	} else {
		metrics.RangeRequestsTotal.WithLabelValues("full").Inc()
	}

	length := max(window.Length(), 0)
	h.Set("Content-Length", strconv.FormatInt(length, 10))

	if window.Start > 0 {
		if _, err := file.Seek(window.Start, io.SeekStart); err != nil {
			return fmt.Errorf("seek %s: %w", path, err)
		}
	}

	w.WriteHeader(status)
	if r.Method == http.MethodHead || length == 0 {
		return nil
	}

	n, err := StreamWithTimeout(r.Context(), w, io.LimitReader(file, length), DefaultTimeoutWriterConfig())
	metrics.DirectBytesServed.Add(float64(n))

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrClientGone):
		logging.Debug("Client disconnected after %d/%d bytes of %s", n, length, path)
		return nil
	default:
		return fmt.Errorf("stream %s after %d bytes: %w", path, n, err)
	}
}
