/*
 * SPDX-License-Identifier: Apache-2.0
 */

// Package imagesource implements the polymorphic random-access reader over
// an evidence image. Each of the four source kinds (Raw, SplitRaw, E01,
// Directory) implements one capability-set interface, Source, so the
// dispatcher and page iterator never need a type switch.
package imagesource

import (
	"context"

	"github.com/forensics-toolkit/bulkscan/pkg/pos0"
	"github.com/forensics-toolkit/bulkscan/pkg/sbuf"
)

// Iterator is a block cursor over a Source, not an I/O handle. Advancing by
// one page is idempotent at EOF (it saturates).
type Iterator struct {
	Block uint64
	EOF   bool
}

// Source is the capability set every image variant implements.
type Source interface {
	// Size returns the number of bytes in the image (Directory reports the
	// number of files instead).
	Size() uint64

	// Pread reads up to len(dst) bytes starting at offset off, returning the
	// number of bytes actually read. Directory sources return Unsupported.
	Pread(ctx context.Context, dst []byte, off uint64) (int, error)

	// IteratorBegin returns a cursor at the first block.
	IteratorBegin() Iterator
	// IteratorEnd returns a cursor positioned at EOF.
	IteratorEnd() Iterator
	// Step advances it by one page, saturating at EOF.
	Step(it Iterator) Iterator
	// SeekBlock returns a cursor positioned at block n.
	SeekBlock(n uint64) Iterator
	// MaxBlocks returns the total block count addressable by the iterator.
	MaxBlocks() uint64
	// FractionDone returns the cursor's progress through the source in [0, 1].
	FractionDone(it Iterator) float64

	// SbufAlloc reads the page at it (plus margin, where applicable) and
	// returns a freshly allocated PageBuffer. Returns bserr.EndOfImage when
	// it is already at EOF.
	SbufAlloc(ctx context.Context, it Iterator) (*sbuf.Buffer, error)

	// Pos0At returns the logical position of block n's first byte.
	Pos0At(n uint64) pos0.T

	// Close releases every handle the source holds open.
	Close() error
}

// DefaultPageSize and DefaultMargin are the defaults used by byte-addressed sources
// (Raw, SplitRaw, E01). Directory sources ignore both: each file is one
// page with PageSize == Bufsize and Margin == 0
const (
	DefaultPageSize = 16 * 1024 * 1024
	DefaultMargin   = 4096
)
