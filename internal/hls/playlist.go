package hls

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/grafov/m3u8"
)

var errNoSegments = errors.New("playlist has no segments")

type part struct {
	name     string
	duration float64
}

// readParts decodes an encoder playlist and returns its segments with the
// directory stripped from each URI.
func readParts(playlistPath string) ([]part, error) {
	f, err := os.Open(playlistPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pl, listType, err := m3u8.DecodeFrom(bufio.NewReader(f), false)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Base(playlistPath), err)
	}
	media, ok := pl.(*m3u8.MediaPlaylist)
	if listType != m3u8.MEDIA || !ok {
		return nil, fmt.Errorf("%s is not a media playlist", filepath.Base(playlistPath))
	}

	var parts []part
	for _, seg := range media.Segments {
		if seg == nil {
			continue
		}
		uri := strings.ReplaceAll(strings.TrimSpace(seg.URI), "\\", "/")
		if uri == "" {
			continue
		}
		parts = append(parts, part{name: path.Base(uri), duration: seg.Duration})
	}
	if len(parts) == 0 {
		return nil, errNoSegments
	}
	return parts, nil
}

// encodePlaylist builds a closed VOD playlist whose media sequence is seq and
// whose segment URIs live under prefix.
func encodePlaylist(parts []part, seq int, prefix string) ([]byte, error) {
	if len(parts) == 0 {
		return nil, errNoSegments
	}

	pl, err := m3u8.NewMediaPlaylist(0, uint(len(parts)))
	if err != nil {
		return nil, err
	}
	pl.MediaType = m3u8.VOD
	pl.SeqNo = uint64(seq)

	var target float64
	for _, p := range parts {
		if err := pl.Append(prefix+p.name, p.duration, ""); err != nil {
			return nil, err
		}
		target = max(target, p.duration)
	}
	pl.TargetDuration = target
	pl.Close()

	return pl.Encode().Bytes(), nil
}

// writeFileAtomic replaces name so readers never observe a partial file.
func writeFileAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), filepath.Base(name)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, name); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
