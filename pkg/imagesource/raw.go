/*
 * SPDX-License-Identifier: Apache-2.0
 */

package imagesource

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/forensics-toolkit/bulkscan/pkg/bserr"
	"github.com/forensics-toolkit/bulkscan/pkg/pos0"
	"github.com/forensics-toolkit/bulkscan/pkg/sbuf"
)

// FileSegment is one file backing a (possibly split) raw image. Segments are
// ordered by GlobalOffset, non-overlapping and contiguous; sum(Length) ==
// the source's Size().
type FileSegment struct {
	Path         string
	GlobalOffset uint64
	Length       uint64
}

var splitSuffix = regexp.MustCompile(`^(.*?)(\d+)(\.vmdk)?$`)

// RawSource backs the Raw and SplitRaw variants: a single segment behaves as
// a plain raw image, multiple behave as a split image. They share the same
// pread/iterator logic, which folds Raw and SplitRaw together.
type RawSource struct {
	segments []FileSegment
	total    uint64
	pageSize int
	margin   int

	// openFD is a size-1 LRU acting as the single-FD cache: lazily opens a
	// segment, closing any previously open one. Opening a new key evicts
	// and closes the prior handle via the eviction callback.
	openFD *lru.Cache[int, *os.File]
}

// OpenRaw opens path as a (possibly split) raw image. If the filename ends
// in .000, .001, or 001.vmdk, it is treated as the first of a multi-part
// set: a template is derived by substituting a 3-digit counter where the
// trailing digit run sits, starting at parsedDigits+1, and successive
// candidates are probed until one is not readable.
func OpenRaw(path string) (*RawSource, error) {
	segs, err := discoverSegments(path)
	if err != nil {
		return nil, err
	}

	rs := &RawSource{pageSize: DefaultPageSize, margin: DefaultMargin}
	cache, err := lru.NewWithEvict[int, *os.File](1, func(_ int, f *os.File) {
		if f != nil {
			_ = f.Close()
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "allocate segment FD cache")
	}
	rs.openFD = cache

	var offset uint64
	for _, path := range segs {
		fi, err := os.Stat(path)
		if err != nil {
			return nil, bserr.Wrap(bserr.NoSuchFile, path, err)
		}
		length := uint64(fi.Size())
		if length == 0 {
			// Raw device handles stat as zero bytes; ask the OS for the
			// underlying block-device geometry instead.
			if devLen, err := deviceSize(path); err == nil {
				length = devLen
			}
		}
		rs.segments = append(rs.segments, FileSegment{Path: path, GlobalOffset: offset, Length: length})
		offset += length
	}
	rs.total = offset
	return rs, nil
}

func discoverSegments(path string) ([]string, error) {
	base := []string{path}

	lower := strings.ToLower(path)
	if !strings.HasSuffix(lower, ".000") && !strings.HasSuffix(lower, ".001") && !strings.HasSuffix(lower, "001.vmdk") {
		if _, err := os.Stat(path); err != nil {
			return nil, bserr.Wrap(bserr.NoSuchFile, path, err)
		}
		return base, nil
	}

	m := splitSuffix.FindStringSubmatch(path)
	if m == nil {
		if _, err := os.Stat(path); err != nil {
			return nil, bserr.Wrap(bserr.NoSuchFile, path, err)
		}
		return base, nil
	}
	prefix, digits, vmdkSuffix := m[1], m[2], m[3]
	width := len(digits)
	n, err := strconv.Atoi(digits)
	if err != nil {
		return nil, bserr.Wrap(bserr.InvalidInput, "split image counter is not numeric: "+path, nil)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, bserr.Wrap(bserr.NoSuchFile, path, err)
	}

	segs := []string{path}
	counter := n + 1
	for {
		candidate := fmt.Sprintf("%s%0*d%s", prefix, width, counter, vmdkSuffix)
		if _, err := os.Stat(candidate); err != nil {
			break
		}
		segs = append(segs, candidate)
		counter++
	}
	return segs, nil
}

func (rs *RawSource) Size() uint64 { return rs.total }

func (rs *RawSource) findSegment(off uint64) int {
	for i, s := range rs.segments {
		if off >= s.GlobalOffset && off < s.GlobalOffset+s.Length {
			return i
		}
	}
	return -1
}

func (rs *RawSource) handle(idx int) (*os.File, error) {
	if f, ok := rs.openFD.Get(idx); ok {
		return f, nil
	}
	f, err := os.Open(rs.segments[idx].Path)
	if err != nil {
		return nil, bserr.Wrap(bserr.ReadError, rs.segments[idx].Path, err)
	}
	rs.openFD.Add(idx, f)
	return f, nil
}

// Pread reads across segment boundaries: a short read within a segment that
// still has following segments recurses to fill the remainder of dst at
// off+got.
func (rs *RawSource) Pread(ctx context.Context, dst []byte, off uint64) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	idx := rs.findSegment(off)
	if idx < 0 {
		return 0, nil
	}
	seg := rs.segments[idx]
	f, err := rs.handle(idx)
	if err != nil {
		return 0, err
	}

	within := off - seg.GlobalOffset
	avail := seg.Length - within
	want := uint64(len(dst))
	if want > avail {
		want = avail
	}

	n, err := f.ReadAt(dst[:want], int64(within))
	if err != nil && n == 0 {
		return 0, bserr.Wrap(bserr.ReadError, seg.Path, err)
	}
	got := n

	if uint64(got) < uint64(len(dst)) && idx+1 < len(rs.segments) {
		rest, err := rs.Pread(ctx, dst[got:], off+uint64(got))
		if err != nil {
			return got, err
		}
		got += rest
	}
	return got, nil
}

func (rs *RawSource) IteratorBegin() Iterator { return Iterator{Block: 0, EOF: rs.total == 0} }
func (rs *RawSource) IteratorEnd() Iterator {
	return Iterator{Block: rs.MaxBlocks(), EOF: true}
}

func (rs *RawSource) Step(it Iterator) Iterator {
	if it.EOF {
		return it
	}
	next := it.Block + 1
	off := next * uint64(rs.pageSize)
	if off >= rs.total {
		return Iterator{Block: next, EOF: true}
	}
	return Iterator{Block: next}
}

func (rs *RawSource) SeekBlock(n uint64) Iterator {
	max := rs.MaxBlocks()
	if n >= max {
		return Iterator{Block: max, EOF: true}
	}
	return Iterator{Block: n}
}

func (rs *RawSource) MaxBlocks() uint64 {
	if rs.pageSize == 0 {
		return 0
	}
	blocks := rs.total / uint64(rs.pageSize)
	if rs.total%uint64(rs.pageSize) != 0 {
		blocks++
	}
	return blocks
}

func (rs *RawSource) FractionDone(it Iterator) float64 {
	if rs.total == 0 {
		return 1
	}
	off := it.Block * uint64(rs.pageSize)
	if off >= rs.total {
		return 1
	}
	return float64(off) / float64(rs.total)
}

func (rs *RawSource) Pos0At(n uint64) pos0.T {
	return pos0.New(n * uint64(rs.pageSize))
}

// SbufAlloc reads pagesize+margin bytes clipped to EOF; fails with ReadError
// on a short read and EndOfImage on a zero read.
func (rs *RawSource) SbufAlloc(ctx context.Context, it Iterator) (*sbuf.Buffer, error) {
	off := it.Block * uint64(rs.pageSize)
	if off >= rs.total {
		return nil, bserr.EndOfImage
	}
	want := uint64(rs.pageSize + rs.margin)
	if off+want > rs.total {
		want = rs.total - off
	}
	buf := make([]byte, want)
	n, err := rs.Pread(ctx, buf, off)
	if err != nil {
		return nil, bserr.Wrap(bserr.ReadError, "sbuf_alloc", err)
	}
	if n == 0 {
		return nil, bserr.EndOfImage
	}
	if uint64(n) < want {
		return nil, bserr.Wrap(bserr.ReadError, "sbuf_alloc: short read", nil)
	}
	pageLen := n
	if pageLen > rs.pageSize {
		pageLen = rs.pageSize
	}
	return sbuf.New(rs.Pos0At(it.Block), buf[:n], pageLen), nil
}

// Close releases the segment handle still held in the FD cache; purging
// runs the eviction callback, which closes it.
func (rs *RawSource) Close() error {
	logrus.WithField("component", "imagesource.raw").Debug("closing raw source")
	rs.openFD.Purge()
	return nil
}
