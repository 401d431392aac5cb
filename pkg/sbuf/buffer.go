/*
 * SPDX-License-Identifier: Apache-2.0
 */

// Package sbuf implements PageBuffer, a read-only view over contiguous bytes
// anchored at a logical position in an image. It owns its storage exclusively:
// allocated, memory-mapped, or sliced from a parent (a slice keeps a shared,
// lifetime-bounded reference to the parent rather than copying).
package sbuf

import (
	"bytes"
	"encoding/binary"

	"github.com/forensics-toolkit/bulkscan/pkg/bserr"
	"github.com/forensics-toolkit/bulkscan/pkg/pos0"
)

// NotFound is the sentinel index returned by Find when the needle is absent.
const NotFound = -1

// Buffer is a read-only window over bytes. Pos0 anchors byte 0 of Buf to its
// logical position in the source image. PageSize is the number of bytes that
// belong to this page; the trailing len(Buf)-PageSize bytes are margin
// belonging to the next page. Scanners must only emit features whose match
// start lies in [0, PageSize).
type Buffer struct {
	Pos0     pos0.T
	Buf      []byte
	PageSize int
}

// New wraps buf as a page buffer anchored at p, with the given page size.
// pageSize may equal len(buf) when there is no margin (e.g. directory-file
// buffers).
func New(p pos0.T, buf []byte, pageSize int) *Buffer {
	if pageSize > len(buf) {
		pageSize = len(buf)
	}
	return &Buffer{Pos0: p, Buf: buf, PageSize: pageSize}
}

// Bufsize returns the total number of bytes available, including margin.
func (b *Buffer) Bufsize() int { return len(b.Buf) }

// Slice returns a child Buffer sharing b's storage, anchored at b.Pos0
// shifted by off. It keeps a reference into the parent's backing array
// rather than copying: slices stay valid only as long as the parent does.
func (b *Buffer) Slice(off, length int) (*Buffer, error) {
	if off < 0 || length < 0 || off+length > len(b.Buf) {
		return nil, bserr.OutOfRange
	}
	return &Buffer{
		Pos0:     b.Pos0.Shift(uint64(off)),
		Buf:      b.Buf[off : off+length],
		PageSize: length,
	}, nil
}

func (b *Buffer) checkRange(off, width int) error {
	if off < 0 || width < 0 || off+width > len(b.Buf) {
		return bserr.OutOfRange
	}
	return nil
}

// U8 reads a single byte at off.
func (b *Buffer) U8(off int) (uint8, error) {
	if err := b.checkRange(off, 1); err != nil {
		return 0, err
	}
	return b.Buf[off], nil
}

// U16LE reads a little-endian uint16 at off.
func (b *Buffer) U16LE(off int) (uint16, error) {
	if err := b.checkRange(off, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b.Buf[off : off+2]), nil
}

// U16BE reads a big-endian uint16 at off.
func (b *Buffer) U16BE(off int) (uint16, error) {
	if err := b.checkRange(off, 2); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b.Buf[off : off+2]), nil
}

// U32LE reads a little-endian uint32 at off.
func (b *Buffer) U32LE(off int) (uint32, error) {
	if err := b.checkRange(off, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b.Buf[off : off+4]), nil
}

// U32BE reads a big-endian uint32 at off.
func (b *Buffer) U32BE(off int) (uint32, error) {
	if err := b.checkRange(off, 4); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b.Buf[off : off+4]), nil
}

// U64LE reads a little-endian uint64 at off.
func (b *Buffer) U64LE(off int) (uint64, error) {
	if err := b.checkRange(off, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b.Buf[off : off+8]), nil
}

// U64BE reads a big-endian uint64 at off.
func (b *Buffer) U64BE(off int) (uint64, error) {
	if err := b.checkRange(off, 8); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b.Buf[off : off+8]), nil
}

// Bytes returns a read-only view of width bytes at off.
func (b *Buffer) Bytes(off, width int) ([]byte, error) {
	if err := b.checkRange(off, width); err != nil {
		return nil, err
	}
	return b.Buf[off : off+width], nil
}

// Find returns the first index at or after start where needle occurs, or
// NotFound if it does not occur in [start, Bufsize()).
func (b *Buffer) Find(needle []byte, start int) int {
	if start < 0 || start >= len(b.Buf) {
		return NotFound
	}
	idx := bytes.Index(b.Buf[start:], needle)
	if idx < 0 {
		return NotFound
	}
	return start + idx
}

// IsConstant reports whether the width bytes starting at off are all equal
// to the same value (a run of zeros or a fill byte), the constant-byte
// detection used to reject ALL_NULL dentries.
func (b *Buffer) IsConstant(off, width int) (bool, error) {
	if err := b.checkRange(off, width); err != nil {
		return false, err
	}
	if width == 0 {
		return true, nil
	}
	first := b.Buf[off]
	for i := 1; i < width; i++ {
		if b.Buf[off+i] != first {
			return false, nil
		}
	}
	return true, nil
}
