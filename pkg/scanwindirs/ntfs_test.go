/*
 * SPDX-License-Identifier: Apache-2.0
 */

package scanwindirs

import (
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensics-toolkit/bulkscan/pkg/pos0"
	"github.com/forensics-toolkit/bulkscan/pkg/sbuf"
)

// mftBuilder assembles a synthetic MFT record byte-by-byte for tests,
// mirroring the on-disk layout scanMFTRecord decodes.
type mftBuilder struct {
	rec []byte
	pos int // offset of the next attribute within rec
}

func newMFTBuilder(nlink uint16) *mftBuilder {
	rec := make([]byte, mftRecordSize)
	copy(rec[0:4], "FILE")
	binary.LittleEndian.PutUint16(rec[18:20], nlink)
	b := &mftBuilder{rec: rec, pos: 56}
	binary.LittleEndian.PutUint16(rec[20:22], uint16(b.pos))
	return b
}

// addAttr writes one attribute header (type, length, resident, content
// offset) at the builder's cursor, then advances the cursor by length.
func (b *mftBuilder) addAttr(typ uint32, contentOff uint16, value []byte, length uint32) {
	abs := b.pos
	binary.LittleEndian.PutUint32(b.rec[abs:abs+4], typ)
	binary.LittleEndian.PutUint32(b.rec[abs+4:abs+8], length)
	b.rec[abs+8] = 0 // resident
	binary.LittleEndian.PutUint16(b.rec[abs+20:abs+22], contentOff)
	copy(b.rec[abs+int(contentOff):], value)
	b.pos += int(length)
}

func (b *mftBuilder) finish() []byte {
	binary.LittleEndian.PutUint32(b.rec[b.pos:b.pos+4], attrListEnd)
	return b.rec
}

func standardInfoValue(crt, mt, ct, at uint64) []byte {
	v := make([]byte, 32)
	binary.LittleEndian.PutUint64(v[0:8], crt)
	binary.LittleEndian.PutUint64(v[8:16], mt)
	binary.LittleEndian.PutUint64(v[16:24], ct)
	binary.LittleEndian.PutUint64(v[24:32], at)
	return v
}

func fileNameValue(name string, allocSize, realSize uint64) []byte {
	nameUnits := []uint16{}
	for _, r := range name {
		nameUnits = append(nameUnits, uint16(r))
	}
	v := make([]byte, 66+len(nameUnits)*2)
	binary.LittleEndian.PutUint64(v[0:8], 5) // parentRef, seq 0
	binary.LittleEndian.PutUint64(v[40:48], allocSize)
	binary.LittleEndian.PutUint64(v[48:56], realSize)
	v[64] = byte(len(nameUnits))
	for i, u := range nameUnits {
		binary.LittleEndian.PutUint16(v[66+i*2:68+i*2], u)
	}
	return v
}

func objectIDValue(ids ...uuid.UUID) []byte {
	v := make([]byte, 0, len(ids)*16)
	for _, id := range ids {
		v = append(v, mixedEndianGUIDBytes(id)...)
	}
	return v
}

// mixedEndianGUIDBytes is the inverse of mixedEndianGUID, used only to
// construct test fixtures in the mixed-endian on-disk form.
func mixedEndianGUIDBytes(id uuid.UUID) []byte {
	raw := make([]byte, 16)
	binary.LittleEndian.PutUint32(raw[0:4], binary.BigEndian.Uint32(id[0:4]))
	binary.LittleEndian.PutUint16(raw[4:6], binary.BigEndian.Uint16(id[4:6]))
	binary.LittleEndian.PutUint16(raw[6:8], binary.BigEndian.Uint16(id[6:8]))
	copy(raw[8:16], id[8:16])
	return raw
}

func TestScanMFTRecordRejectsMissingMagic(t *testing.T) {
	rec := make([]byte, mftRecordSize)
	copy(rec[0:4], "BAAD")
	buf := sbuf.New(pos0.New(0), rec, len(rec))

	_, ok := scanMFTRecord(buf, 0)
	assert.False(t, ok)
}

func TestScanMFTRecordRejectsHighNlink(t *testing.T) {
	b := newMFTBuilder(10)
	rec := b.finish()
	buf := sbuf.New(pos0.New(0), rec, len(rec))

	_, ok := scanMFTRecord(buf, 0)
	assert.False(t, ok)
}

func TestScanMFTRecordDecodesStandardInformation(t *testing.T) {
	b := newMFTBuilder(1)
	b.addAttr(attrStandardInfo, 24, standardInfoValue(133000000000000000, 133000000000000000, 133000000000000000, 133000000000000000), 56)
	rec := b.finish()
	buf := sbuf.New(pos0.New(0), rec, len(rec))

	mrec, ok := scanMFTRecord(buf, 0)
	require.True(t, ok)
	require.NotNil(t, mrec.standard)
	assert.Equal(t, uint16(1), mrec.nlink)
}

func TestScanMFTRecordDecodesFileName(t *testing.T) {
	b := newMFTBuilder(1)
	val := fileNameValue("hello.txt", 4096, 12)
	b.addAttr(attrFileName, 24, val, uint32(24+len(val)))
	rec := b.finish()
	buf := sbuf.New(pos0.New(0), rec, len(rec))

	mrec, ok := scanMFTRecord(buf, 0)
	require.True(t, ok)
	require.NotNil(t, mrec.fileName)
	assert.Equal(t, "hello.txt", mrec.fileName.name)
	assert.EqualValues(t, 5, mrec.fileName.parentRef)
	assert.EqualValues(t, 4096, mrec.fileName.allocSize)
	assert.EqualValues(t, 12, mrec.fileName.realSize)
}

func TestScanMFTRecordRejectsImplausibleFileNameSize(t *testing.T) {
	b := newMFTBuilder(1)
	b.addAttr(attrStandardInfo, 24, standardInfoValue(1, 1, 1, 1), 56)
	val := fileNameValue("x", maxPlausibleFileSize+1, 0)
	b.addAttr(attrFileName, 24, val, uint32(24+len(val)))
	rec := b.finish()
	buf := sbuf.New(pos0.New(0), rec, len(rec))

	mrec, ok := scanMFTRecord(buf, 0)
	require.True(t, ok) // $STANDARD_INFORMATION still decoded
	assert.Nil(t, mrec.fileName)
}

func TestScanMFTRecordDecodesObjectID(t *testing.T) {
	want := uuid.New()
	b := newMFTBuilder(1)
	val := objectIDValue(want)
	b.addAttr(attrObjectID, 24, val, uint32(24+len(val)))
	rec := b.finish()
	buf := sbuf.New(pos0.New(0), rec, len(rec))

	mrec, ok := scanMFTRecord(buf, 0)
	require.True(t, ok)
	require.NotNil(t, mrec.objectID)
	assert.Equal(t, want, mrec.objectID.objectID)
}

func TestScanMFTRecordAbortsOnZeroLengthAttribute(t *testing.T) {
	b := newMFTBuilder(1)
	b.addAttr(attrStandardInfo, 24, standardInfoValue(1, 1, 1, 1), 56)
	// Splice in a zero-length attribute right after, which must abort
	// the walk without losing what was already decoded.
	abs := b.pos
	binary.LittleEndian.PutUint32(b.rec[abs:abs+4], attrFileName)
	binary.LittleEndian.PutUint32(b.rec[abs+4:abs+8], 0)
	buf := sbuf.New(pos0.New(0), b.rec, len(b.rec))

	mrec, ok := scanMFTRecord(buf, 0)
	require.True(t, ok)
	assert.NotNil(t, mrec.standard)
	assert.Nil(t, mrec.fileName)
}

// TestScanMFTRecordNeverReadsPastCandidate plants a perfectly decodable
// $FILE_NAME value directly after the 1024-byte candidate and points the
// attribute's content offset at it; the walker must fault at the record
// boundary instead of decoding the next record's bytes.
func TestScanMFTRecordNeverReadsPastCandidate(t *testing.T) {
	page := make([]byte, 2*mftRecordSize)
	copy(page[0:4], "FILE")
	binary.LittleEndian.PutUint16(page[18:20], 1)  // nlink
	binary.LittleEndian.PutUint16(page[20:22], 56) // first attribute

	binary.LittleEndian.PutUint32(page[56:60], attrFileName)
	binary.LittleEndian.PutUint32(page[60:64], 968) // advances the walk to the record end
	page[64] = 0                                    // resident
	binary.LittleEndian.PutUint16(page[76:78], 1000)

	// The value the content offset resolves to (56+1000) sits past the
	// candidate, inside the next record's bytes.
	val := fileNameValue("leaked.txt", 4096, 12)
	copy(page[1056:], val)

	buf := sbuf.New(pos0.New(0), page, len(page))
	_, ok := scanMFTRecord(buf, 0)
	assert.False(t, ok, "an attribute whose value lies past the candidate boundary must not decode")
}

func TestScanMFTRecordRejectsAllAttributesAbsent(t *testing.T) {
	b := newMFTBuilder(1)
	rec := b.finish()
	buf := sbuf.New(pos0.New(0), rec, len(rec))

	_, ok := scanMFTRecord(buf, 0)
	assert.False(t, ok)
}

func TestDecodeUTF16LERoundTripsASCII(t *testing.T) {
	units := []byte{'h', 0, 'i', 0}
	assert.Equal(t, "hi", decodeUTF16LE(units))
}

func TestFiletimeToUnixKnownValue(t *testing.T) {
	// 116444736000000000 FILETIME ticks is exactly the Unix epoch.
	assert.EqualValues(t, 0, filetimeToUnix(116444736000000000))
}
