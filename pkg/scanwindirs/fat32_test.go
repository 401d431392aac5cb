/*
 * SPDX-License-Identifier: Apache-2.0
 */

package scanwindirs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensics-toolkit/bulkscan/pkg/pos0"
	"github.com/forensics-toolkit/bulkscan/pkg/sbuf"
)

func defaultTestConfig() Config {
	return Config{
		WeirdFileSize:      100 * 1024 * 1024,
		WeirdFileSize2:     2 * 1024 * 1024 * 1024,
		WeirdClusterCount:  1 << 20,
		WeirdClusterCount2: 1 << 24,
		MaxBitsInAttrib:    4,
		MaxWeirdCount:      2,
		LastYear:           2024,
	}
}

// packFATTime builds a packed FAT time word for hour:minute:secDiv2.
func packFATTime(hour, minute, secDiv2 uint16) uint16 {
	return hour<<11 | minute<<5 | secDiv2
}

// packFATDate builds a packed FAT date word for a 1980-based year/month/day.
func packFATDate(year, month, day uint16) uint16 {
	return (year-1980)<<9 | month<<5 | day
}

// writeShortSlot writes a 32-byte short dentry at off within buf, using
// plausible, mutually-distinct, valid field values unless overridden by fn.
func writeShortSlot(buf []byte, off int, fn func(s *rawSlot)) {
	s := &rawSlot{
		name:   [11]byte{'F', 'I', 'L', 'E', ' ', ' ', ' ', ' ', 'T', 'X', 'T'},
		attrib: attrArchive,
		ctime:  packFATTime(10, 0, 0),
		cdate:  packFATDate(2001, 1, 1),
		adate:  packFATDate(2002, 2, 2),
		wtime:  packFATTime(11, 0, 0),
		wdate:  packFATDate(2003, 3, 3),
	}
	if fn != nil {
		fn(s)
	}
	copy(buf[off:off+11], s.name[:])
	buf[off+11] = s.attrib
	buf[off+12] = 0
	buf[off+13] = s.ctimeten
	putU16LE(buf, off+14, s.ctime)
	putU16LE(buf, off+16, s.cdate)
	putU16LE(buf, off+18, s.adate)
	putU16LE(buf, off+20, uint16(s.cluster>>16))
	putU16LE(buf, off+22, s.wtime)
	putU16LE(buf, off+24, s.wdate)
	putU16LE(buf, off+26, uint16(s.cluster))
	putU32LE(buf, off+28, s.filesize)
}

type rawSlot struct {
	name     [11]byte
	attrib   byte
	ctimeten byte
	ctime    uint16
	cdate    uint16
	adate    uint16
	wtime    uint16
	wdate    uint16
	cluster  uint32
	filesize uint32
}

func putU16LE(buf []byte, off int, v uint16) {
	buf[off] = byte(v)
	buf[off+1] = byte(v >> 8)
}

func putU32LE(buf []byte, off int, v uint32) {
	buf[off] = byte(v)
	buf[off+1] = byte(v >> 8)
	buf[off+2] = byte(v >> 16)
	buf[off+3] = byte(v >> 24)
}

func newSectorBuf() []byte {
	return make([]byte, sectorSize)
}

func TestExamineSlotValidShortDentry(t *testing.T) {
	raw := newSectorBuf()
	writeShortSlot(raw, 0, nil)
	buf := sbuf.New(pos0.New(0), raw, len(raw))

	outcome, d, err := examineSlot(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, outcomeValid, outcome)
	require.NotNil(t, d)
	assert.Equal(t, "FILE.TXT", fat83Name(d.name))
}

func TestExamineSlotAllNullIsRejected(t *testing.T) {
	raw := newSectorBuf()
	buf := sbuf.New(pos0.New(0), raw, len(raw))

	outcome, d, err := examineSlot(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, outcomeAllNull, outcome)
	assert.Nil(t, d)
}

func TestExamineSlotEndOfDir(t *testing.T) {
	raw := newSectorBuf()
	writeShortSlot(raw, 0, nil)
	raw[0] = 0x00
	buf := sbuf.New(pos0.New(0), raw, len(raw))

	outcome, _, err := examineSlot(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, outcomeEndOfDir, outcome)
}

func TestExamineSlotLongNameSlotContinues(t *testing.T) {
	raw := newSectorBuf()
	raw[0] = 0x41 // sequence number, first LFN slot
	raw[11] = attrLongName
	raw[12] = 0 // reserved1
	// fstClusLO at off+26 stays zero
	buf := sbuf.New(pos0.New(0), raw, len(raw))

	outcome, d, err := examineSlot(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, outcomeContinue, outcome)
	assert.Nil(t, d)
}

func TestShortDentryStructurallyValidRejectsReservedAttribBit(t *testing.T) {
	raw := newSectorBuf()
	writeShortSlot(raw, 0, func(s *rawSlot) { s.attrib = attrReserved })
	buf := sbuf.New(pos0.New(0), raw, len(raw))

	outcome, _, err := examineSlot(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, outcomeRejected, outcome)
}

func TestShortDentryStructurallyValidRejectsLFNAndNonLFNCoexist(t *testing.T) {
	raw := newSectorBuf()
	writeShortSlot(raw, 0, func(s *rawSlot) { s.attrib = attrLongName | attrArchive })
	buf := sbuf.New(pos0.New(0), raw, len(raw))

	outcome, _, err := examineSlot(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, outcomeRejected, outcome)
}

func TestShortDentryStructurallyValidRejectsDirectoryAndArchiveBoth(t *testing.T) {
	raw := newSectorBuf()
	writeShortSlot(raw, 0, func(s *rawSlot) { s.attrib = attrDirectory | attrArchive })
	buf := sbuf.New(pos0.New(0), raw, len(raw))

	outcome, _, err := examineSlot(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, outcomeRejected, outcome)
}

func TestShortDentryStructurallyValidRejectsDeviceBit(t *testing.T) {
	raw := newSectorBuf()
	writeShortSlot(raw, 0, func(s *rawSlot) { s.attrib = attrArchive | attrDevice })
	buf := sbuf.New(pos0.New(0), raw, len(raw))

	outcome, _, err := examineSlot(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, outcomeRejected, outcome)
}

func TestShortDentryStructurallyValidRejectsInvalid83Name(t *testing.T) {
	raw := newSectorBuf()
	writeShortSlot(raw, 0, func(s *rawSlot) {
		s.name = [11]byte{0xE5, 'a', 'a', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
	})
	buf := sbuf.New(pos0.New(0), raw, len(raw))

	outcome, _, err := examineSlot(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, outcomeRejected, outcome)
}

func TestShortDentryStructurallyValidRejectsCtimetenOutOfRange(t *testing.T) {
	raw := newSectorBuf()
	writeShortSlot(raw, 0, func(s *rawSlot) { s.ctimeten = 200 })
	buf := sbuf.New(pos0.New(0), raw, len(raw))

	outcome, _, err := examineSlot(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, outcomeRejected, outcome)
}

func TestShortDentryStructurallyValidRejectsInvalidTime(t *testing.T) {
	raw := newSectorBuf()
	writeShortSlot(raw, 0, func(s *rawSlot) { s.ctime = packFATTime(25, 0, 0) })
	buf := sbuf.New(pos0.New(0), raw, len(raw))

	outcome, _, err := examineSlot(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, outcomeRejected, outcome)
}

func TestShortDentryStructurallyValidRejectsInvalidDate(t *testing.T) {
	raw := newSectorBuf()
	writeShortSlot(raw, 0, func(s *rawSlot) { s.cdate = packFATDate(2001, 13, 1) })
	buf := sbuf.New(pos0.New(0), raw, len(raw))

	outcome, _, err := examineSlot(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, outcomeRejected, outcome)
}

func TestShortDentryStructurallyValidRejectsEqualTimeForgery(t *testing.T) {
	raw := newSectorBuf()
	// 10:01:02 is also a valid FAT date word (2020-01-01), so only the
	// ctime == cdate rule can reject this entry.
	writeShortSlot(raw, 0, func(s *rawSlot) {
		s.ctime = packFATTime(10, 1, 1)
		s.cdate = s.ctime
	})
	buf := sbuf.New(pos0.New(0), raw, len(raw))

	outcome, _, err := examineSlot(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, outcomeRejected, outcome)
}

func TestShortDentryStructurallyValidRejectsZeroDatesWithoutVolumeID(t *testing.T) {
	raw := newSectorBuf()
	writeShortSlot(raw, 0, func(s *rawSlot) {
		s.cdate, s.adate, s.wdate = 0, 0, 0
		s.ctime, s.wtime = 1, 2
	})
	buf := sbuf.New(pos0.New(0), raw, len(raw))

	outcome, _, err := examineSlot(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, outcomeRejected, outcome)
}

func TestShortDentryStructurallyValidAllowsZeroDatesWithVolumeID(t *testing.T) {
	raw := newSectorBuf()
	writeShortSlot(raw, 0, func(s *rawSlot) {
		s.attrib = attrVolumeID
		s.cdate, s.adate, s.wdate = 0, 0, 0
		s.ctime, s.wtime = 1, 2
	})
	buf := sbuf.New(pos0.New(0), raw, len(raw))

	outcome, _, err := examineSlot(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, outcomeValid, outcome)
}

func TestWeirdCountFlagsImplausibleYear(t *testing.T) {
	cfg := defaultTestConfig()
	raw := newSectorBuf()
	writeShortSlot(raw, 0, func(s *rawSlot) { s.cdate = packFATDate(2099, 1, 1) })
	buf := sbuf.New(pos0.New(0), raw, len(raw))

	_, d, err := examineSlot(buf, 0)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.GreaterOrEqual(t, weirdCount(d, cfg), 1)
}

func TestWeirdCountFlagsOversizedFile(t *testing.T) {
	cfg := defaultTestConfig()
	raw := newSectorBuf()
	writeShortSlot(raw, 0, func(s *rawSlot) { s.filesize = cfg.WeirdFileSize + 1 })
	buf := sbuf.New(pos0.New(0), raw, len(raw))

	_, d, err := examineSlot(buf, 0)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.GreaterOrEqual(t, weirdCount(d, cfg), 1)
}

func TestScanOneSectorCountsWeirdRejections(t *testing.T) {
	cfg := defaultTestConfig()
	raw := newSectorBuf()
	writeShortSlot(raw, 0, func(s *rawSlot) {
		s.cluster = cfg.WeirdClusterCount2 + 1
		s.filesize = cfg.WeirdFileSize2 + 1
		s.ctimeten = 50
	})
	buf := sbuf.New(pos0.New(0), raw, len(raw))
	buf.PageSize = len(raw)

	out, rejected := scanOneSector(buf, 0, cfg)
	assert.Empty(t, out)
	assert.GreaterOrEqual(t, rejected, 1)
}

func TestScanOneSectorSuppressesLoneUnplausibleDentry(t *testing.T) {
	cfg := defaultTestConfig()
	raw := newSectorBuf()
	writeShortSlot(raw, 0, func(s *rawSlot) {
		s.cdate = packFATDate(2099, 1, 1) // implausible year, still structurally valid
	})
	buf := sbuf.New(pos0.New(0), raw, len(raw))
	buf.PageSize = len(raw)

	out, _ := scanOneSector(buf, 0, cfg)
	assert.Empty(t, out, "a sector with exactly one valid dentry and no plausible year is suppressed as noise")
}

func TestScanOneSectorKeepsDentryWithPlausibleYear(t *testing.T) {
	cfg := defaultTestConfig()
	raw := newSectorBuf()
	writeShortSlot(raw, 0, nil)
	buf := sbuf.New(pos0.New(0), raw, len(raw))
	buf.PageSize = len(raw)

	out, _ := scanOneSector(buf, 0, cfg)
	require.Len(t, out, 1)
	assert.Equal(t, "FILE.TXT", fat83Name(out[0].name))
}

func TestScanOneSectorStopsAtEndOfDirButKeepsEarlierValid(t *testing.T) {
	cfg := defaultTestConfig()
	raw := newSectorBuf()
	writeShortSlot(raw, 0, nil)
	writeShortSlot(raw, slotSize, nil)
	raw[slotSize] = 0x00 // second slot is END_OF_DIR
	buf := sbuf.New(pos0.New(0), raw, len(raw))
	buf.PageSize = len(raw)

	out, _ := scanOneSector(buf, 0, cfg)
	require.Len(t, out, 1)
}

func TestFat83NameTrimsTrailingSpaces(t *testing.T) {
	name := [11]byte{'A', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
	assert.Equal(t, "A", fat83Name(name))
}

func TestFat83NameWithExtension(t *testing.T) {
	name := [11]byte{'R', 'E', 'A', 'D', 'M', 'E', ' ', ' ', 'D', 'O', 'C'}
	assert.Equal(t, "README.DOC", fat83Name(name))
}
