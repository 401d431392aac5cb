/*
 * SPDX-License-Identifier: Apache-2.0
 */

// Package pos0 defines the provenance identity of a byte read from an image.
package pos0

import "fmt"

// T is the (path, offset) identity of a byte. Path is empty for raw-image
// reads and set to a filename for directory-tree reads and nested carves.
// T is a value type: comparisons and copies are always safe.
type T struct {
	Path   string
	Offset uint64
}

// New returns a root position at the given offset with no path component.
func New(offset uint64) T {
	return T{Offset: offset}
}

// NewPath returns a position rooted at path, at the given offset within it.
func NewPath(path string, offset uint64) T {
	return T{Path: path, Offset: offset}
}

// Shift returns a copy of p advanced by delta bytes within the same path.
func (p T) Shift(delta uint64) T {
	return T{Path: p.Path, Offset: p.Offset + delta}
}

// String renders the position the way feature recorders print it: plain
// offsets for raw reads, "path-offset" for path-scoped ones.
func (p T) String() string {
	if p.Path == "" {
		return fmt.Sprintf("%d", p.Offset)
	}
	return fmt.Sprintf("%s-%d", p.Path, p.Offset)
}

// Less reports whether p sorts before o, ordering by path first, then offset.
// Used only by tests that want a deterministic ordering; the dispatcher makes
// no ordering guarantee between recorders.
func (p T) Less(o T) bool {
	if p.Path != o.Path {
		return p.Path < o.Path
	}
	return p.Offset < o.Offset
}
