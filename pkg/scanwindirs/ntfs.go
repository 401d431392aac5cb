/*
 * SPDX-License-Identifier: Apache-2.0
 */

package scanwindirs

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/forensics-toolkit/bulkscan/pkg/sbuf"
)

const (
	mftRecordSize    = 1024
	attrStandardInfo = 0x10
	attrFileName     = 0x30
	attrObjectID     = 0x40
	attrAttrList     = 0x20
	attrListEnd      = 0xFFFFFFFF
)

// windowsEpochOffsetSeconds is the number of seconds between the Windows
// FILETIME epoch (1601-01-01) and the Unix epoch (1970-01-01).
const windowsEpochOffsetSeconds = 11644473600

// filetimeToUnix converts a 64-bit Windows FILETIME (100ns ticks since
// 1601-01-01 UTC) into Unix seconds, truncating sub-second precision.
func filetimeToUnix(ft uint64) int64 {
	return int64(ft/10_000_000) - windowsEpochOffsetSeconds
}

// standardInfo holds $STANDARD_INFORMATION's four FILETIMEs.
type standardInfo struct {
	crtime, mtime, ctime, atime int64
}

// fileNameAttr holds $FILE_NAME's decoded fields.
type fileNameAttr struct {
	parentRef uint64
	parentSeq uint16
	crtime    int64
	mtime     int64
	ctime     int64
	atime     int64
	allocSize uint64
	realSize  uint64
	flags     uint32
	name      string
}

// objectIDAttr holds $OBJECT_ID's up to four GUIDs.
type objectIDAttr struct {
	objectID, birthVolumeID, birthObjectID, domainID uuid.UUID
}

// mftRecord is everything scanMFTRecord decoded from one 1024-byte
// candidate. off is the record's byte offset within the page buffer.
type mftRecord struct {
	off         int
	nlink       uint16
	standard    *standardInfo
	fileName    *fileNameAttr
	objectID    *objectIDAttr
	attrListHit bool
}

// maxPlausibleFileSize rejects $FILE_NAME sizes considered implausible
// (over 10^15 bytes).
const maxPlausibleFileSize = 1_000_000_000_000_000

// scanMFTCandidates walks every 512-byte offset in buf's page, reading a
// 1024-byte candidate record at each NTFS MFT pass.
func scanMFTCandidates(buf *sbuf.Buffer) []*mftRecord {
	var out []*mftRecord
	limit := buf.PageSize
	for off := 0; off+mftRecordSize <= buf.Bufsize() && off < limit; off += 512 {
		rec, ok := scanMFTRecord(buf, off)
		if ok {
			out = append(out, rec)
		}
	}
	return out
}

// scanMFTRecord attempts to decode one candidate MFT record at off. A
// bounds failure or malformed attribute chain skips only this candidate,
// never the whole page. All typed reads go through a 1024-byte slice of the
// page, so an attribute header pointing past the candidate faults at the
// record boundary rather than reading into the next record's bytes.
func scanMFTRecord(buf *sbuf.Buffer, off int) (*mftRecord, bool) {
	cand, err := buf.Slice(off, mftRecordSize)
	if err != nil {
		return nil, false
	}

	magic, err := cand.Bytes(0, 4)
	if err != nil || string(magic) != "FILE" {
		return nil, false
	}

	nlink, err := cand.U16LE(18)
	if err != nil {
		return nil, false
	}
	if nlink >= 10 {
		return nil, false
	}

	attrStartField, err := cand.U16LE(20)
	if err != nil {
		return nil, false
	}
	rec := &mftRecord{off: off, nlink: nlink}

	pos := int(attrStartField)
	for {
		if pos < 0 || pos+16 > mftRecordSize {
			break
		}
		typ, err := cand.U32LE(pos)
		if err != nil {
			break
		}
		if typ == attrListEnd {
			break
		}
		length, err := cand.U32LE(pos + 4)
		if err != nil || length == 0 {
			break // zero-length attribute: abort the record
		}
		nonResident, err := cand.U8(pos + 8)
		if err != nil {
			break
		}

		if nonResident == 0 {
			switch typ {
			case attrStandardInfo:
				if si, ok := parseStandardInfo(cand, pos, length); ok {
					rec.standard = si
				}
			case attrFileName:
				if fn, ok := parseFileName(cand, pos, length); ok {
					rec.fileName = fn
				}
			case attrObjectID:
				if oid, ok := parseObjectID(cand, pos, length); ok {
					rec.objectID = oid
				}
			case attrAttrList:
				rec.attrListHit = true
			}
		}

		pos += int(length)
	}

	if rec.standard == nil && rec.fileName == nil && rec.objectID == nil {
		return nil, false
	}
	return rec, true
}

// attrValueOffset returns the start of an attribute's resident value,
// following the content-offset field at header byte 20 shared by every
// resident attribute. cand is the 1024-byte candidate record; attrOff is
// the attribute header's offset within it.
func attrValueOffset(cand *sbuf.Buffer, attrOff int) (int, error) {
	contentOff, err := cand.U16LE(attrOff + 20)
	if err != nil {
		return 0, err
	}
	return attrOff + int(contentOff), nil
}

func parseStandardInfo(cand *sbuf.Buffer, attrOff int, length uint32) (*standardInfo, bool) {
	valOff, err := attrValueOffset(cand, attrOff)
	if err != nil || uint32(valOff-attrOff)+32 > length {
		return nil, false
	}
	crt, err1 := cand.U64LE(valOff)
	mt, err2 := cand.U64LE(valOff + 8)
	ct, err3 := cand.U64LE(valOff + 16)
	at, err4 := cand.U64LE(valOff + 24)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return nil, false
	}
	return &standardInfo{
		crtime: filetimeToUnix(crt),
		mtime:  filetimeToUnix(mt),
		ctime:  filetimeToUnix(ct),
		atime:  filetimeToUnix(at),
	}, true
}

func parseFileName(cand *sbuf.Buffer, attrOff int, length uint32) (*fileNameAttr, bool) {
	valOff, err := attrValueOffset(cand, attrOff)
	if err != nil {
		return nil, false
	}

	parentRaw, err := cand.U64LE(valOff)
	if err != nil {
		return nil, false
	}
	crt, e1 := cand.U64LE(valOff + 8)
	mt, e2 := cand.U64LE(valOff + 16)
	ct, e3 := cand.U64LE(valOff + 24)
	at, e4 := cand.U64LE(valOff + 32)
	allocSize, e5 := cand.U64LE(valOff + 40)
	realSize, e6 := cand.U64LE(valOff + 48)
	flags, e7 := cand.U32LE(valOff + 56)
	nameLen, e8 := cand.U8(valOff + 64)
	if e1 != nil || e2 != nil || e3 != nil || e4 != nil || e5 != nil || e6 != nil || e7 != nil || e8 != nil {
		return nil, false
	}
	if allocSize > maxPlausibleFileSize || realSize > maxPlausibleFileSize {
		return nil, false
	}

	nameOff := valOff + 66
	nameBytes, err := cand.Bytes(nameOff, int(nameLen)*2)
	if err != nil {
		return nil, false
	}
	name := decodeUTF16LE(nameBytes)

	return &fileNameAttr{
		parentRef: parentRaw & 0x0000FFFFFFFFFFFF,
		parentSeq: uint16(parentRaw >> 48),
		crtime:    filetimeToUnix(crt),
		mtime:     filetimeToUnix(mt),
		ctime:     filetimeToUnix(ct),
		atime:     filetimeToUnix(at),
		allocSize: allocSize,
		realSize:  realSize,
		flags:     flags,
		name:      name,
	}, true
}

func parseObjectID(cand *sbuf.Buffer, attrOff int, length uint32) (*objectIDAttr, bool) {
	valOff, err := attrValueOffset(cand, attrOff)
	if err != nil {
		return nil, false
	}
	avail := int(length) - (valOff - attrOff)
	oid := &objectIDAttr{}
	guids := []*uuid.UUID{&oid.objectID, &oid.birthVolumeID, &oid.birthObjectID, &oid.domainID}
	for i, dst := range guids {
		if avail < (i+1)*16 {
			break
		}
		raw, err := cand.Bytes(valOff+i*16, 16)
		if err != nil {
			break
		}
		*dst = mixedEndianGUID(raw)
	}
	return oid, true
}

// mixedEndianGUID decodes a 16-byte Microsoft GUID (the first three fields
// little-endian, the last two big-endian) into a canonical uuid.UUID.
func mixedEndianGUID(raw []byte) uuid.UUID {
	var canon [16]byte
	binary.BigEndian.PutUint32(canon[0:4], binary.LittleEndian.Uint32(raw[0:4]))
	binary.BigEndian.PutUint16(canon[4:6], binary.LittleEndian.Uint16(raw[4:6]))
	binary.BigEndian.PutUint16(canon[6:8], binary.LittleEndian.Uint16(raw[6:8]))
	copy(canon[8:16], raw[8:16])
	return uuid.UUID(canon)
}

// decodeUTF16LE decodes a little-endian UTF-16 byte slice into a string,
// substituting the Unicode replacement character for unpaired surrogates
// rather than failing the whole record.
func decodeUTF16LE(b []byte) string {
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return string(utf16Decode(units))
}

func utf16Decode(units []uint16) []rune {
	var out []rune
	for i := 0; i < len(units); i++ {
		r := units[i]
		switch {
		case r < 0xD800 || r > 0xDFFF:
			out = append(out, rune(r))
		case r <= 0xDBFF && i+1 < len(units) && units[i+1] >= 0xDC00 && units[i+1] <= 0xDFFF:
			r2 := units[i+1]
			out = append(out, ((rune(r)-0xD800)<<10|(rune(r2)-0xDC00))+0x10000)
			i++
		default:
			out = append(out, '�')
		}
	}
	return out
}

func (o *objectIDAttr) String() string {
	return fmt.Sprintf("object=%s birth_vol=%s birth_obj=%s domain=%s",
		o.objectID, o.birthVolumeID, o.birthObjectID, o.domainID)
}
