/*
 * SPDX-License-Identifier: Apache-2.0
 */

// Package bserr defines the error-kind sentinels shared across the image
// abstraction and scanner framework, compared with errors.Is and wrapped
// with github.com/pkg/errors at every boundary crossing.
package bserr

import "github.com/pkg/errors"

// Sentinel error kinds. Comments below note which are fatal to a scan and
// which are swallowed locally by the caller that recognizes them.
var (
	// NoSuchFile: path missing or not openable.
	NoSuchFile = errors.New("no such file")
	// Unsupported: format recognized but built without support, or an
	// operation the source variant does not implement (e.g. Directory.Pread).
	Unsupported = errors.New("unsupported")
	// InvalidInput: misuse, such as a directory of segmented-image parts
	// opened with recurse, or an inconsistent split-image naming pattern.
	InvalidInput = errors.New("invalid input")
	// ReadError: short read or I/O failure mid-stream.
	ReadError = errors.New("read error")
	// EndOfImage: not an error at the boundary; the normal iterator terminator.
	EndOfImage = errors.New("end of image")
	// OutOfRange: typed read past a PageBuffer's end. Always local to a
	// scanner's per-candidate validation; never propagates past it.
	OutOfRange = errors.New("out of range")
	// RangeException is OutOfRange's alias used by the typed-read facade,
	// kept distinct so callers can grep their own call site's intent.
	RangeException = OutOfRange
)

// Wrap attaches a sentinel kind to an underlying cause with a caller-supplied
// message, the way convention wraps with errors.Wrapf at every layer.
func Wrap(kind error, msg string, cause error) error {
	if cause == nil {
		return errors.Wrap(kind, msg)
	}
	return errors.Wrapf(kind, "%s: %s", msg, cause)
}

// Is reports whether err ultimately carries kind, unwrapping through any
// Wrap() calls (errors.Wrap preserves the chain for errors.Is).
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}
