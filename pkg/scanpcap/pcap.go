/*
 * SPDX-License-Identifier: Apache-2.0
 */

// Package scanpcap implements the pcap_writer scanner: Ethernet-frame
// synthesis and PCAP file emission around carved raw packets.
package scanpcap

import (
	"bufio"
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/forensics-toolkit/bulkscan/pkg/dispatch"
	"github.com/forensics-toolkit/bulkscan/pkg/sbuf"
)

// PCAP format constants.
const (
	pcapMagic    uint32 = 0xA1B2C3D4
	pcapMajor    uint16 = 2
	pcapMinor    uint16 = 4
	dltEN10MB    uint32 = 1
	maxPktLen           = 65535
	ethHeaderLen        = 14
)

// WriteRequest is one call's worth of pcap_writepkt arguments.
type WriteRequest struct {
	Seconds  uint32
	Useconds uint32
	CapLen   uint32
	PktLen   uint32
	Src      *sbuf.Buffer
	SrcOff   int
	Synth    *SynthRequest
}

// SynthRequest asks for a synthetic 14-byte Ethernet header to be prepended
// ahead of the packet bytes, carrying the given EtherType.
type SynthRequest struct {
	FrameType uint16
}

// Writer is the lazily-opened, mutex-guarded PCAP output file. The file is
// created and its global header written inside the same critical section as
// the first record, so concurrent first writes cannot race the open.
type Writer struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string
}

// NewWriter returns a Writer that will create path on first use.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

func (w *Writer) ensureOpen() error {
	if w.f != nil {
		return nil
	}
	f, err := os.OpenFile(w.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrapf(err, "open pcap file %q", w.path)
	}
	bw := bufio.NewWriter(f)
	hdr := make([]byte, 24)
	binary.LittleEndian.PutUint32(hdr[0:4], pcapMagic)
	binary.LittleEndian.PutUint16(hdr[4:6], pcapMajor)
	binary.LittleEndian.PutUint16(hdr[6:8], pcapMinor)
	binary.LittleEndian.PutUint32(hdr[8:12], 0)  // thiszone
	binary.LittleEndian.PutUint32(hdr[12:16], 0) // sigfigs
	binary.LittleEndian.PutUint32(hdr[16:20], maxPktLen)
	binary.LittleEndian.PutUint32(hdr[20:24], dltEN10MB)
	if _, err := bw.Write(hdr); err != nil {
		f.Close()
		return errors.Wrapf(err, "write pcap global header %q", w.path)
	}
	w.f = f
	w.w = bw
	return nil
}

// WritePacket appends one packet record, synthesizing an Ethernet header
// first when req.Synth is set and the result still fits under
// PCAP_MAX_PKT_LEN; otherwise synthesis is silently skipped.
// The whole operation — lazy open, header write, and the record itself —
// is serialized by w.mu.
func (w *Writer) WritePacket(req WriteRequest) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ensureOpen(); err != nil {
		return err
	}

	var synth []byte
	capLen := req.CapLen
	pktLen := req.PktLen
	if req.Synth != nil && req.CapLen+ethHeaderLen <= maxPktLen {
		synth = make([]byte, ethHeaderLen)
		binary.BigEndian.PutUint16(synth[12:14], req.Synth.FrameType)
		capLen += ethHeaderLen
		pktLen += ethHeaderLen
	}

	body, err := req.Src.Bytes(req.SrcOff, int(req.CapLen))
	if err != nil {
		return err
	}

	rec := make([]byte, 16)
	binary.LittleEndian.PutUint32(rec[0:4], req.Seconds)
	binary.LittleEndian.PutUint32(rec[4:8], req.Useconds)
	binary.LittleEndian.PutUint32(rec[8:12], capLen)
	binary.LittleEndian.PutUint32(rec[12:16], pktLen)

	if _, err := w.w.Write(rec); err != nil {
		return errors.Wrapf(err, "write pcap record header %q", w.path)
	}
	if synth != nil {
		if _, err := w.w.Write(synth); err != nil {
			return errors.Wrapf(err, "write synthetic ethernet header %q", w.path)
		}
	}
	if _, err := w.w.Write(body); err != nil {
		return errors.Wrapf(err, "write packet body %q", w.path)
	}
	return nil
}

// Close flushes and closes the underlying file, if it was ever opened.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		return errors.Wrapf(err, "flush pcap file %q", w.path)
	}
	return errors.Wrapf(w.f.Close(), "close pcap file %q", w.path)
}

// Scanner implements dispatch.Scanner for pcap_writer, maintaining one
// output file (default packets.pcap) across the whole scan.
type Scanner struct {
	writer     *Writer
	outputFile string
	outDir     string
}

// New returns a pcap_writer scanner; outDir is where packets.pcap is
// created on first write.
func New(outDir string) *Scanner {
	return &Scanner{outDir: outDir, outputFile: "packets.pcap"}
}

func (s *Scanner) Run(p *dispatch.Params) error {
	switch p.Phase {
	case dispatch.Init:
		p.Info.Name = "pcap_writer"
		p.Info.Author = "bulkscan"
		p.Info.Description = "synthesizes Ethernet frames around carved raw packets and emits a PCAP file"
		p.Info.Version = dispatch.ScannerABIVersion
		s.writer = NewWriter(filepath.Join(s.outDir, s.outputFile))
		return nil
	case dispatch.Scan:
		// pcap_writer has no standalone carving heuristic of its own; it
		// is driven by WritePacket calls from scanners (or tests) that
		// have already located a candidate packet. Scan is a no-op entry
		// point kept so the scanner still participates in the
		// dispatcher's lifecycle.
		return nil
	case dispatch.Shutdown:
		if s.writer != nil {
			return s.writer.Close()
		}
		return nil
	default:
		return nil
	}
}

// WritePacket exposes the scanner's Writer to callers (e.g. another scanner
// that carved a packet and wants pcap_writer to record it): pcap_writepkt
// is a shared write path multiple carvers can call into.
func (s *Scanner) WritePacket(req WriteRequest) error {
	return s.writer.WritePacket(req)
}
