// Package pointer encodes and decodes slash-delimited data paths
// ("/user/name") into ordered key segments.
//
// Paths follow the JSON-Pointer-like convention used on the sync wire:
// a single leading or trailing slash is stripped, segments are taken
// verbatim with no percent-decoding or escape handling. The root path
// ("" or "/") is a distinguished case — Split reports it via ErrRoot so
// callers can reject root-level replacement explicitly instead of
// treating it as an empty segment list that happens to work.
package pointer

import (
	"errors"
	"strings"
)

// ErrRoot is returned by Split for the root path ("" or "/").
var ErrRoot = errors.New("pointer: root path has no segments")

// ErrEmptySegment is returned when a path contains an empty segment
// ("/a//b"). Empty keys are never valid addresses in a data model.
var ErrEmptySegment = errors.New("pointer: empty path segment")

// Split decodes a path into its ordered key segments.
func Split(path string) ([]string, error) {
	trimmed := strings.TrimPrefix(path, "/")
	trimmed = strings.TrimSuffix(trimmed, "/")
	if trimmed == "" {
		return nil, ErrRoot
	}
	segs := strings.Split(trimmed, "/")
	for _, s := range segs {
		if s == "" {
			return nil, ErrEmptySegment
		}
	}
	return segs, nil
}

// Join encodes segments back into a slash-delimited path with a leading
// slash. Join(Split(p)) is identity for every valid non-root path.
func Join(segs []string) string {
	return "/" + strings.Join(segs, "/")
}

// IsRoot reports whether path addresses the root of a data model.
func IsRoot(path string) bool {
	return path == "" || path == "/"
}
