// Package mediatypes holds the extension tables shared by the streaming
// packages: which files are playable media and which Content-Type each one
// is served with.
//
// It has no dependencies so any package can import it without creating
// cycles.
//
//	w.Header().Set("Content-Type", mediatypes.ForPath(path)) // "video/x-matroska"
//
//	if !mediatypes.IsPlayable(path) {
//	    // reject
//	}
package mediatypes
