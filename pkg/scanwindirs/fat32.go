/*
 * SPDX-License-Identifier: Apache-2.0
 */

// Package scanwindirs implements the windirs scanner: a FAT32 directory
// entry and NTFS MFT record heuristic validator. The FAT attribute bit
// layout is grounded on other_examples' aligator/gofat package. Both
// passes are pure functions of their input bytes and a Config value: the
// tuning constants are threaded through validation as an immutable value
// rather than held as process-wide static state.
package scanwindirs

import (
	"math/bits"

	"github.com/forensics-toolkit/bulkscan/pkg/sbuf"
)

// FAT directory entry attribute bits (grounded on aligator/gofat's Attr*
// constants).
const (
	attrReadOnly  = 0x01
	attrHidden    = 0x02
	attrSystem    = 0x04
	attrVolumeID  = 0x08
	attrDirectory = 0x10
	attrArchive   = 0x20
	attrDevice    = 0x40
	attrReserved  = 0x80
	attrLongName  = attrReadOnly | attrHidden | attrSystem | attrVolumeID // 0x0F
	attrDefined   = attrLongName | attrDirectory | attrArchive            // 0x3F
)

const (
	sectorSize  = 512
	slotSize    = 32
	slotsPerSec = sectorSize / slotSize
)

// dentryOutcome is the result of examining one 32-byte slot.
type dentryOutcome int

const (
	outcomeContinue dentryOutcome = iota // an LFN slot; keeps the sector alive
	outcomeEndOfDir                      // name[0] == 0x00
	outcomeAllNull                       // constant-valued slot
	outcomeRejected                      // a malformed short dentry
	outcomeValid                         // a plausible short dentry
)

// shortDentry holds the decoded fields of a valid 8.3 directory entry.
// off is the slot's byte offset within the page buffer that produced it.
type shortDentry struct {
	off      int
	name     [11]byte
	attrib   uint8
	ctimeten uint8
	ctime    uint16
	cdate    uint16
	adate    uint16
	wtime    uint16
	wdate    uint16
	cluster  uint32 // FstClusHI<<16 | FstClusLO
	filesize uint32
}

// Config is the immutable set of tuning constants threaded through
// validation, built once at INIT.
type Config struct {
	WeirdFileSize      uint32
	WeirdFileSize2     uint32
	WeirdClusterCount  uint32
	WeirdClusterCount2 uint32
	MaxBitsInAttrib    uint32
	MaxWeirdCount      uint32
	LastYear           uint32
}

// examineSlot inspects one 32-byte slot at buf[slotOff:slotOff+32].
func examineSlot(buf *sbuf.Buffer, slotOff int) (dentryOutcome, *shortDentry, error) {
	constant, err := buf.IsConstant(slotOff, slotSize)
	if err != nil {
		return outcomeRejected, nil, err
	}
	if constant {
		return outcomeAllNull, nil, nil
	}

	attrib, err := buf.U8(slotOff + 11)
	if err != nil {
		return outcomeRejected, nil, err
	}

	if attrib == attrLongName {
		seq, err := buf.U8(slotOff)
		if err != nil {
			return outcomeRejected, nil, err
		}
		reserved1, err := buf.U8(slotOff + 12)
		if err != nil {
			return outcomeRejected, nil, err
		}
		fstClusLO, err := buf.U16LE(slotOff + 26)
		if err != nil {
			return outcomeRejected, nil, err
		}
		if seq > 10+0x40 || reserved1 != 0 || fstClusLO != 0 {
			return outcomeRejected, nil, nil
		}
		return outcomeContinue, nil, nil
	}

	name0, err := buf.U8(slotOff)
	if err != nil {
		return outcomeRejected, nil, err
	}
	if name0 == 0x00 {
		return outcomeEndOfDir, nil, nil
	}

	d, ok, err := parseShortDentry(buf, slotOff, attrib)
	if err != nil {
		return outcomeRejected, nil, err
	}
	if !ok {
		return outcomeRejected, nil, nil
	}
	return outcomeValid, d, nil
}

func parseShortDentry(buf *sbuf.Buffer, off int, attrib uint8) (*shortDentry, bool, error) {
	nameBytes, err := buf.Bytes(off, 11)
	if err != nil {
		return nil, false, err
	}
	var name [11]byte
	copy(name[:], nameBytes)

	ctimeten, err := buf.U8(off + 13)
	if err != nil {
		return nil, false, err
	}
	ctime, err := buf.U16LE(off + 14)
	if err != nil {
		return nil, false, err
	}
	cdate, err := buf.U16LE(off + 16)
	if err != nil {
		return nil, false, err
	}
	adate, err := buf.U16LE(off + 18)
	if err != nil {
		return nil, false, err
	}
	clusHi, err := buf.U16LE(off + 20)
	if err != nil {
		return nil, false, err
	}
	wtime, err := buf.U16LE(off + 22)
	if err != nil {
		return nil, false, err
	}
	wdate, err := buf.U16LE(off + 24)
	if err != nil {
		return nil, false, err
	}
	clusLo, err := buf.U16LE(off + 26)
	if err != nil {
		return nil, false, err
	}
	filesize, err := buf.U32LE(off + 28)
	if err != nil {
		return nil, false, err
	}

	d := &shortDentry{
		off:      off,
		name:     name,
		attrib:   attrib,
		ctimeten: ctimeten,
		ctime:    ctime,
		cdate:    cdate,
		adate:    adate,
		wtime:    wtime,
		wdate:    wdate,
		cluster:  uint32(clusHi)<<16 | uint32(clusLo),
		filesize: filesize,
	}

	if !shortDentryStructurallyValid(d) {
		return nil, false, nil
	}
	return d, true, nil
}

// shortDentryStructurallyValid applies every hard rejection rule for a
// short directory entry (everything except the weird-count accumulation,
// which is a separate, non-fatal tally).
func shortDentryStructurallyValid(d *shortDentry) bool {
	if d.attrib&^uint8(attrDefined) != 0 {
		return false // reserved attribute bit outside the defined mask
	}
	if d.attrib&attrLongName == attrLongName && d.attrib != attrLongName {
		return false // LFN + non-LFN attributes coexist
	}
	if d.attrib&attrDirectory != 0 && d.attrib&attrArchive != 0 {
		return false // DIRECTORY and ARCHIVE both set
	}
	if d.attrib&attrDevice != 0 {
		return false // "device" bit set
	}
	if !valid83Name(d.name) {
		return false
	}
	if d.ctimeten > 199 {
		return false
	}
	if !fatTimeValid(d.ctime) || !fatTimeValid(d.wtime) {
		return false
	}
	if !fatDateValid(d.cdate) || !fatDateValid(d.adate) || !fatDateValid(d.wdate) {
		return false
	}
	if d.ctime == d.cdate || d.wtime == d.wdate || d.adate == d.ctime || d.adate == d.wtime {
		return false // equal times are forged-looking
	}
	if d.cdate == 0 && d.wdate == 0 && d.adate == 0 && d.attrib&attrVolumeID == 0 {
		return false // zero dates without VOLUME
	}
	return true
}

// valid83Name checks the 11-byte 8.3 name against this scanner's character
// whitelist (uppercase, digits, and the DOS-legal punctuation set), or the
// special "." / ".." pattern.
func valid83Name(name [11]byte) bool {
	dotPattern := [11]byte{'.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
	dotDotPattern := [11]byte{'.', '.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
	if name == dotPattern || name == dotDotPattern {
		return true
	}
	for _, c := range name {
		if c == ' ' {
			continue
		}
		if !isValid83Char(c) {
			return false
		}
	}
	return true
}

func isValid83Char(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&', '\'', '(', ')', '-', '@', '^', '_', '`', '{', '}', '~':
		return true
	}
	return false
}

// fatTimeValid checks a packed FAT time word: hour [0,23], minute [0,59],
// second/2 [0,29].
func fatTimeValid(t uint16) bool {
	hour := (t >> 11) & 0x1F
	minute := (t >> 5) & 0x3F
	secDiv2 := t & 0x1F
	return hour <= 23 && minute <= 59 && secDiv2 <= 29
}

// fatDateValid checks a packed FAT date word: month [1,12], day [1,31].
// A zero word is treated as "unset" rather than malformed, since some
// directory entries (volume labels in particular) legitimately carry no
// date; shortDentryStructurallyValid separately rejects an entry whose
// dates are all unset unless it is a volume label. Year is unconstrained
// here (the weird-count pass flags implausible years).
func fatDateValid(d uint16) bool {
	if d == 0 {
		return true
	}
	month := (d >> 5) & 0x0F
	day := d & 0x1F
	return month >= 1 && month <= 12 && day >= 1 && day <= 31
}

// fatYear returns the calendar year a packed FAT date encodes.
func fatYear(d uint16) uint32 {
	return 1980 + uint32((d>>9)&0x7F)
}

// weirdCount tallies this scanner's ten non-fatal suspicion signals.
func weirdCount(d *shortDentry, cfg Config) int {
	n := 0
	if fatYear(d.cdate) > cfg.LastYear {
		n++
	}
	if fatYear(d.adate) > cfg.LastYear {
		n++
	}
	if d.filesize > cfg.WeirdFileSize {
		n++
	}
	if d.filesize > cfg.WeirdFileSize2 {
		n++
	}
	if uint32(bits.OnesCount8(d.attrib)) > cfg.MaxBitsInAttrib {
		n++
	}
	if d.cluster > cfg.WeirdClusterCount {
		n++
	}
	if d.cluster > cfg.WeirdClusterCount2 {
		n++
	}
	if d.ctimeten != 0 && d.ctimeten != 100 {
		n++
	}
	if d.adate == 0 && d.cdate == 0 {
		n++
	}
	if d.adate == 0 && d.wdate == 0 {
		n++
	}
	return n
}

// plausibleYear reports whether a packed FAT date's year looks like a real
// directory entry rather than noise: within [1980, cfg.LastYear].
func plausibleYear(d uint16, cfg Config) bool {
	y := fatYear(d)
	return y >= 1980 && y <= cfg.LastYear
}

// fat83Name renders an 11-byte 8.3 name as "NAME.EXT" (or "NAME" with no
// extension), trimming trailing spaces.
func fat83Name(name [11]byte) string {
	base := trimSpaces(name[0:8])
	ext := trimSpaces(name[8:11])
	if ext == "" {
		return base
	}
	return base + "." + ext
}

func trimSpaces(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == ' ' {
		end--
	}
	return string(b[:end])
}

// scanFAT32Sectors walks every 512-byte sector of buf's page bytes,
// returning the valid dentries found per sector that survive the
// second-pass anti-false-positive suppression, plus the total count of
// otherwise-structurally-valid slots rejected for exceeding the
// weird-count threshold (exposed for scan-progress telemetry only; it has
// no bearing on which dentries are emitted).
func scanFAT32Sectors(buf *sbuf.Buffer, cfg Config) ([]*shortDentry, int) {
	var out []*shortDentry
	weirdRejected := 0
	limit := buf.PageSize
	for secOff := 0; secOff+sectorSize <= limit; secOff += sectorSize {
		valid, rejected := scanOneSector(buf, secOff, cfg)
		out = append(out, valid...)
		weirdRejected += rejected
	}
	return out, weirdRejected
}

func scanOneSector(buf *sbuf.Buffer, secOff int, cfg Config) ([]*shortDentry, int) {
	var valid []*shortDentry
	plausible := 0
	weirdRejected := 0

slots:
	for slot := 0; slot < slotsPerSec; slot++ {
		slotOff := secOff + slot*slotSize
		outcome, d, err := examineSlot(buf, slotOff)
		if err != nil {
			// A bounds failure stops only this sector.
			break
		}
		switch outcome {
		case outcomeAllNull, outcomeEndOfDir:
			// Both terminate examination of the rest of this sector, but
			// dentries already found earlier in the sector still stand.
			break slots
		case outcomeRejected, outcomeContinue:
			continue
		case outcomeValid:
			wc := weirdCount(d, cfg)
			if wc > int(cfg.MaxWeirdCount) {
				weirdRejected++
				continue
			}
			valid = append(valid, d)
			if plausibleYear(d.cdate, cfg) {
				plausible++
			}
		}
	}
	return filterWeird(valid, plausible, cfg), weirdRejected
}

// filterWeird applies this scanner's anti-false-positive suppression: a
// sector with exactly one valid dentry and zero plausible years is noise.
func filterWeird(valid []*shortDentry, plausible int, _ Config) []*shortDentry {
	if len(valid) == 1 && plausible == 0 {
		return nil
	}
	return valid
}
