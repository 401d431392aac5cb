/*
 * SPDX-License-Identifier: Apache-2.0
 */

package scanwindirs

import (
	"fmt"
	"time"

	"github.com/forensics-toolkit/bulkscan/pkg/dfxml"
	"github.com/forensics-toolkit/bulkscan/pkg/dispatch"
	"github.com/forensics-toolkit/bulkscan/pkg/metrics"
)

const recorderName = "windirs"

// Scanner implements dispatch.Scanner for the windirs FAT32/NTFS validator.
type Scanner struct {
	cfg     Config
	metrics *metrics.Collector
}

// New returns an unconfigured windirs scanner; Config is filled in at INIT
// from ScannerParams.Config. collector may be nil, in which case
// weird-count rejections are simply not recorded as telemetry.
func New(collector *metrics.Collector) *Scanner { return &Scanner{metrics: collector} }

// Run implements dispatch.Scanner.
func (s *Scanner) Run(p *dispatch.Params) error {
	switch p.Phase {
	case dispatch.Init:
		return s.init(p)
	case dispatch.Scan:
		return s.scan(p)
	case dispatch.Shutdown:
		return nil
	default:
		return nil
	}
}

func (s *Scanner) init(p *dispatch.Params) error {
	p.Info.Name = "windirs"
	p.Info.Author = "bulkscan"
	p.Info.Description = "FAT32 dentry and NTFS MFT record heuristic validator"
	p.Info.Version = dispatch.ScannerABIVersion
	p.Info.FeatureDefs = []dispatch.FeatureDef{{Name: recorderName, OutputFile: "windirs.txt"}}

	s.cfg = Config{
		WeirdFileSize:      p.Config.GetUint32("opt_weird_file_size", 150*1024*1024, "max plausible file size before flagging weird"),
		WeirdFileSize2:     p.Config.GetUint32("opt_weird_file_size2", 512*1024*1024, "second, larger weird file size threshold"),
		WeirdClusterCount:  p.Config.GetUint32("opt_weird_cluster_count", 32*(1<<21), "max plausible cluster number before flagging weird"),
		WeirdClusterCount2: p.Config.GetUint32("opt_weird_cluster_count2", 128*(1<<21), "second, larger weird cluster threshold"),
		MaxBitsInAttrib:    p.Config.GetUint32("opt_max_bits_in_attrib", 3, "max popcount(attrib) before flagging weird"),
		MaxWeirdCount:      p.Config.GetUint32("opt_max_weird_count", 2, "weird-count threshold that rejects a dentry"),
		LastYear:           p.Config.GetUint32("opt_last_year", defaultLastYear(), "last plausible calendar year for a dentry"),
	}
	return nil
}

func (s *Scanner) scan(p *dispatch.Params) error {
	rec, err := p.NamedFeatureRecorder(recorderName)
	if err != nil {
		return err
	}

	valid, weirdRejected := scanFAT32Sectors(p.Sbuf, s.cfg)
	for i := 0; i < weirdRejected; i++ {
		s.metrics.IncWeirdReject()
	}

	for _, d := range valid {
		fo := dfxml.NewFileObject("fat").
			Set("filename", fat83Name(d.name)).
			Setf("ctimeten", "%d", d.ctimeten).
			Setf("ctime", "%d", d.ctime).
			Setf("atime", "%d", d.adate).
			Setf("mtime", "%d", d.wtime).
			Setf("startcluster", "%d", d.cluster).
			Setf("filesize", "%d", d.filesize).
			Setf("attrib", "0x%02x", d.attrib)
		if err := rec.Write(p.Sbuf.Pos0.Shift(uint64(d.off)), "fat", fo.Serialize()); err != nil {
			return err
		}
	}

	for _, m := range scanMFTCandidates(p.Sbuf) {
		fo := buildMFTFileObject(m)
		if err := rec.Write(p.Sbuf.Pos0.Shift(uint64(m.off)), "mft", fo.Serialize()); err != nil {
			return err
		}
	}

	return nil
}

// buildMFTFileObject assembles the DFXML fileobject for a decoded MFT
// record, falling back to $NOFILENAME when no $FILE_NAME attribute was
// present
func buildMFTFileObject(m *mftRecord) *dfxml.FileObject {
	fo := dfxml.NewFileObject("mft")
	name := "$NOFILENAME"

	if m.fileName != nil {
		name = m.fileName.name
		fo.Setf("parent_mft_ref", "%d", m.fileName.parentRef).
			Setf("parent_seq", "%d", m.fileName.parentSeq).
			Setf("crtime", "%d", m.fileName.crtime).
			Setf("mtime", "%d", m.fileName.mtime).
			Setf("ctime", "%d", m.fileName.ctime).
			Setf("atime", "%d", m.fileName.atime).
			Setf("filesize_alloc", "%d", m.fileName.allocSize).
			Setf("filesize", "%d", m.fileName.realSize).
			Setf("attrib_flags", "0x%08x", m.fileName.flags)
	}
	if m.standard != nil {
		fo.Setf("crtime_si", "%d", m.standard.crtime).
			Setf("mtime_si", "%d", m.standard.mtime).
			Setf("ctime_si", "%d", m.standard.ctime).
			Setf("atime_si", "%d", m.standard.atime)
	}
	if m.objectID != nil {
		fo.Set("object_id", fmt.Sprintf("%s", m.objectID))
	}
	fo.Set("filename", name)
	return fo
}

// defaultLastYear is opt_last_year's documented default, current year
// plus five; used only when the running config carries no
// explicit value for the key.
func defaultLastYear() uint32 {
	return uint32(time.Now().Year()) + 5
}
