/*
 * SPDX-License-Identifier: Apache-2.0
 */

// Package pageiter implements the common PageIterator contract:
// overlapping pages produced from an ImageSource in a resumable, seekable
// way. Each Source already knows how to step and allocate its own pages
// (the capability set in pkg/imagesource); PageIterator is the thin
// resumable cursor the dispatcher drives.
package pageiter

import (
	"context"

	"github.com/pkg/errors"

	"github.com/forensics-toolkit/bulkscan/pkg/bserr"
	"github.com/forensics-toolkit/bulkscan/pkg/imagesource"
	"github.com/forensics-toolkit/bulkscan/pkg/sbuf"
)

// Iterator drives an imagesource.Source one page at a time.
type Iterator struct {
	src    imagesource.Source
	cursor imagesource.Iterator
}

// New returns an iterator positioned at the beginning of src.
func New(src imagesource.Source) *Iterator {
	return &Iterator{src: src, cursor: src.IteratorBegin()}
}

// Seek repositions the iterator at block n, for resuming a prior run.
func (it *Iterator) Seek(n uint64) {
	it.cursor = it.src.SeekBlock(n)
}

// Done reports whether the iterator has reached EOF.
func (it *Iterator) Done() bool { return it.cursor.EOF }

// FractionDone reports progress through the source in [0, 1].
func (it *Iterator) FractionDone() float64 { return it.src.FractionDone(it.cursor) }

// Block returns the iterator's current block number.
func (it *Iterator) Block() uint64 { return it.cursor.Block }

// Next allocates the current page and advances the cursor by one step.
// It returns the bare bserr.EndOfImage sentinel once the source is
// exhausted; every other error is fatal and aborts the scan.
func (it *Iterator) Next(ctx context.Context) (*sbuf.Buffer, error) {
	if it.cursor.EOF {
		return nil, bserr.EndOfImage
	}
	buf, err := it.src.SbufAlloc(ctx, it.cursor)
	if err != nil {
		if errors.Is(err, bserr.EndOfImage) {
			it.cursor = imagesource.Iterator{Block: it.cursor.Block, EOF: true}
			return nil, bserr.EndOfImage
		}
		return nil, err
	}
	it.cursor = it.src.Step(it.cursor)
	return buf, nil
}
