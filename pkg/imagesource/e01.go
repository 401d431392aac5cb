//go:build e01

/*
 * SPDX-License-Identifier: Apache-2.0
 */

package imagesource

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/binary"
	"io"
	"os"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	ewf "github.com/laenix/ewfgo"
	"github.com/sirupsen/logrus"

	"github.com/forensics-toolkit/bulkscan/pkg/bserr"
	"github.com/forensics-toolkit/bulkscan/pkg/pos0"
	"github.com/forensics-toolkit/bulkscan/pkg/sbuf"
)

const (
	// evfFileHeaderSize is the fixed EVF signature block at the start of a
	// segment file; the first section header follows it.
	evfFileHeaderSize = 13
	// sectionHeaderSize is the fixed size of an ewf.Section on disk.
	sectionHeaderSize = 76
	// e01ChunkCacheSize bounds the decompressed-chunk cache. Sequential page
	// reads touch a handful of chunks at a time, so a small cache covers the
	// page+margin overlap without re-inflating.
	e01ChunkCacheSize = 8
	// chunkCompressed is the MSB flag on a table entry marking the chunk as
	// zlib-compressed; the remaining 31 bits are the chunk's file offset.
	chunkCompressed = 0x80000000
)

// e01Chunk locates one chunk's stored bytes within the segment file.
// end is one past the stored bytes; the final chunk of a sectors region is
// bounded by that region's section end.
type e01Chunk struct {
	offset     uint64
	end        uint64
	compressed bool
}

// E01Source reads an EnCase Expert Witness image. The EWF container walk
// (section headers, volume geometry, header metadata, chunk tables) is
// delegated to the ewfgo library; this source only resolves offsets to
// chunks and inflates them. details holds the case-number / evidence-number
// / examiner-name / notes fields queried at open for informational display.
type E01Source struct {
	path       string
	f          *os.File
	img        *ewf.EWFImage
	mediaSize  uint64
	chunkBytes uint64
	chunks     []e01Chunk
	details    map[string]string
	pageSize   int
	margin     int

	mu    sync.Mutex
	cache *lru.Cache[int, []byte]
}

// OpenE01 opens path via the EWF library, walking its sections once to
// collect the volume geometry, header metadata, and chunk tables.
func OpenE01(path string) (Source, error) {
	if _, err := os.Stat(path); err != nil {
		collectorHook.IncE01OpenFailure()
		return nil, bserr.Wrap(bserr.NoSuchFile, path, err)
	}
	if !ewf.IsEWFFile(path) {
		collectorHook.IncE01OpenFailure()
		return nil, bserr.Wrap(bserr.InvalidInput, "not an EWF file: "+path, nil)
	}
	f, err := os.Open(path)
	if err != nil {
		collectorHook.IncE01OpenFailure()
		return nil, bserr.Wrap(bserr.NoSuchFile, path, err)
	}

	cache, err := lru.New[int, []byte](e01ChunkCacheSize)
	if err != nil {
		f.Close()
		collectorHook.IncE01OpenFailure()
		return nil, bserr.Wrap(bserr.ReadError, "allocate chunk cache", err)
	}

	es := &E01Source{
		path:     path,
		f:        f,
		img:      ewf.NewWithFilePath(path),
		details:  map[string]string{},
		pageSize: DefaultPageSize,
		margin:   DefaultMargin,
		cache:    cache,
	}
	if err := es.walkSections(); err != nil {
		f.Close()
		collectorHook.IncE01OpenFailure()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"component": "imagesource.e01",
		"case":      es.details["case_number"],
		"evidence":  es.details["evidence_number"],
		"size":      es.mediaSize,
	}).Info("opened E01 image")
	return es, nil
}

func sectionType(sec *ewf.Section) string {
	return string(bytes.TrimRight(sec.SectionTypeDefinition[:], "\x00"))
}

// walkSections runs the segment file's section chain once, front to back.
// ReadSection leaves the file positioned just past the 76-byte section
// header, which is where the volume and table payloads start.
func (es *E01Source) walkSections() error {
	var disk *ewf.DiskSMART
	var sectorsEnd uint64

	offset := int64(evfFileHeaderSize)
	for {
		sec, err := es.img.ReadSection(es.f, offset)
		if err != nil {
			return bserr.Wrap(bserr.ReadError, "read EWF section header", err)
		}
		typ := sectionType(sec)
		switch typ {
		case "header":
			if len(es.details) == 0 {
				if d, err := es.readHeaderDetails(sec, uint64(offset)+sectionHeaderSize); err == nil {
					es.details = d
				}
			}
		case "disk", "volume":
			var d ewf.DiskSMART
			if err := binary.Read(es.f, binary.LittleEndian, &d); err != nil {
				return bserr.Wrap(bserr.ReadError, "read EWF volume section", err)
			}
			disk = &d
		case "sectors":
			sectorsEnd = sec.NextOffset
		case "table":
			if err := es.readTable(sectorsEnd); err != nil {
				return err
			}
		}
		if typ == "done" || typ == "next" || sec.NextOffset <= uint64(offset) {
			break
		}
		offset = int64(sec.NextOffset)
	}

	if disk == nil {
		return bserr.Wrap(bserr.InvalidInput, "no volume section in "+es.path, nil)
	}
	es.chunkBytes = uint64(disk.ChunkSectors) * uint64(disk.SectorBytes)
	es.mediaSize = disk.SectorsCount * uint64(disk.SectorBytes)
	if es.chunkBytes == 0 || len(es.chunks) == 0 {
		return bserr.Wrap(bserr.InvalidInput, "EWF image has no chunk data: "+es.path, nil)
	}
	return nil
}

// readTable decodes one chunk table: the library's TableSection header
// followed by EntryNumber uint32 entries, each a chunk offset with the MSB
// marking zlib compression. sectorsEnd bounds the table's last chunk.
func (es *E01Source) readTable(sectorsEnd uint64) error {
	var hdr ewf.TableSection
	if err := binary.Read(es.f, binary.LittleEndian, &hdr); err != nil {
		return bserr.Wrap(bserr.ReadError, "read EWF table header", err)
	}
	entries := make([]uint32, hdr.EntryNumber)
	if err := binary.Read(es.f, binary.LittleEndian, entries); err != nil {
		return bserr.Wrap(bserr.ReadError, "read EWF table entries", err)
	}

	for i, e := range entries {
		c := e01Chunk{
			offset:     uint64(e &^ chunkCompressed),
			compressed: e&chunkCompressed != 0,
		}
		if i > 0 {
			es.chunks[len(es.chunks)-1].end = c.offset
		}
		es.chunks = append(es.chunks, c)
	}
	if len(entries) > 0 && sectorsEnd != 0 {
		es.chunks[len(es.chunks)-1].end = sectorsEnd
	}
	return nil
}

// readHeaderDetails inflates the zlib-compressed header section text and
// picks out the case/evidence/examiner/notes fields. The key letters match
// the library's own HeaderSectionString mapping.
func (es *E01Source) readHeaderDetails(sec *ewf.Section, bodyOff uint64) (map[string]string, error) {
	if sec.SectionSize <= sectionHeaderSize {
		return nil, bserr.Wrap(bserr.InvalidInput, "empty header section", nil)
	}
	raw := make([]byte, sec.SectionSize-sectionHeaderSize)
	if _, err := es.f.ReadAt(raw, int64(bodyOff)); err != nil {
		return nil, bserr.Wrap(bserr.ReadError, "read header section", err)
	}
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, bserr.Wrap(bserr.ReadError, "inflate header section", err)
	}
	defer zr.Close()
	text, err := io.ReadAll(zr)
	if err != nil {
		return nil, bserr.Wrap(bserr.ReadError, "inflate header section", err)
	}

	lines := strings.Split(string(text), "\n")
	if len(lines) < 4 {
		return nil, bserr.Wrap(bserr.InvalidInput, "truncated header section", nil)
	}
	keys := strings.Split(lines[2], "\t")
	values := strings.Split(lines[3], "\t")

	out := map[string]string{}
	for i, k := range keys {
		if i >= len(values) {
			break
		}
		switch k {
		case "c":
			out["case_number"] = values[i]
		case "n":
			out["evidence_number"] = values[i]
		case "e":
			out["examiner_name"] = values[i]
		case "t":
			out["notes"] = values[i]
		}
	}
	return out, nil
}

// chunkData returns chunk idx's media bytes, inflating and caching on miss.
func (es *E01Source) chunkData(idx int) ([]byte, error) {
	if data, ok := es.cache.Get(idx); ok {
		return data, nil
	}

	es.mu.Lock()
	defer es.mu.Unlock()

	c := es.chunks[idx]
	stored := es.chunkBytes + 4 // stored uncompressed chunks carry a trailing checksum
	if c.end > c.offset {
		stored = c.end - c.offset
	}
	raw := make([]byte, stored)
	n, err := es.f.ReadAt(raw, int64(c.offset))
	if n == 0 && err != nil {
		return nil, bserr.Wrap(bserr.ReadError, "read EWF chunk", err)
	}
	raw = raw[:n]

	var data []byte
	if c.compressed {
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, bserr.Wrap(bserr.ReadError, "inflate EWF chunk", err)
		}
		defer zr.Close()
		data, err = io.ReadAll(zr)
		if err != nil {
			return nil, bserr.Wrap(bserr.ReadError, "inflate EWF chunk", err)
		}
	} else {
		data = raw
	}
	if uint64(len(data)) > es.chunkBytes {
		data = data[:es.chunkBytes]
	}

	es.cache.Add(idx, data)
	return data, nil
}

func (es *E01Source) Size() uint64 { return es.mediaSize }

func (es *E01Source) Pread(_ context.Context, dst []byte, off uint64) (int, error) {
	if off >= es.mediaSize {
		return 0, nil
	}
	want := uint64(len(dst))
	if off+want > es.mediaSize {
		want = es.mediaSize - off
	}

	var filled uint64
	for filled < want {
		idx := int((off + filled) / es.chunkBytes)
		if idx >= len(es.chunks) {
			break
		}
		data, err := es.chunkData(idx)
		if err != nil {
			return int(filled), err
		}
		within := (off + filled) % es.chunkBytes
		if within >= uint64(len(data)) {
			break
		}
		filled += uint64(copy(dst[filled:want], data[within:]))
	}
	return int(filled), nil
}

func (es *E01Source) IteratorBegin() Iterator { return Iterator{Block: 0, EOF: es.mediaSize == 0} }
func (es *E01Source) IteratorEnd() Iterator   { return Iterator{Block: es.MaxBlocks(), EOF: true} }

func (es *E01Source) Step(it Iterator) Iterator {
	if it.EOF {
		return it
	}
	next := it.Block + 1
	if next*uint64(es.pageSize) >= es.mediaSize {
		return Iterator{Block: next, EOF: true}
	}
	return Iterator{Block: next}
}

func (es *E01Source) SeekBlock(n uint64) Iterator {
	max := es.MaxBlocks()
	if n >= max {
		return Iterator{Block: max, EOF: true}
	}
	return Iterator{Block: n}
}

func (es *E01Source) MaxBlocks() uint64 {
	if es.pageSize == 0 {
		return 0
	}
	blocks := es.mediaSize / uint64(es.pageSize)
	if es.mediaSize%uint64(es.pageSize) != 0 {
		blocks++
	}
	return blocks
}

func (es *E01Source) FractionDone(it Iterator) float64 {
	if es.mediaSize == 0 {
		return 1
	}
	off := it.Block * uint64(es.pageSize)
	if off >= es.mediaSize {
		return 1
	}
	return float64(off) / float64(es.mediaSize)
}

func (es *E01Source) Pos0At(n uint64) pos0.T { return pos0.New(n * uint64(es.pageSize)) }

func (es *E01Source) SbufAlloc(ctx context.Context, it Iterator) (*sbuf.Buffer, error) {
	off := it.Block * uint64(es.pageSize)
	if off >= es.mediaSize {
		return nil, bserr.EndOfImage
	}
	want := uint64(es.pageSize + es.margin)
	if off+want > es.mediaSize {
		want = es.mediaSize - off
	}
	buf := make([]byte, want)
	n, err := es.Pread(ctx, buf, off)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, bserr.EndOfImage
	}
	pageLen := n
	if pageLen > es.pageSize {
		pageLen = es.pageSize
	}
	return sbuf.New(es.Pos0At(it.Block), buf[:n], pageLen), nil
}

func (es *E01Source) Close() error { return es.f.Close() }

// Details returns the informational case/evidence/examiner/notes fields
// queried from the header section at open.
func (es *E01Source) Details() map[string]string { return es.details }
