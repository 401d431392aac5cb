/*
 * SPDX-License-Identifier: Apache-2.0
 */

// Package scantext implements the text-match scanner family exemplified by
// a "facebook" identifier scanner: multi-needle byte search with proximity
// suppression.
package scantext

import (
	"fmt"

	"github.com/forensics-toolkit/bulkscan/pkg/dispatch"
	"github.com/forensics-toolkit/bulkscan/pkg/sbuf"
)

const (
	windowWidth  = 4096
	windowRadius = windowWidth / 2
	proximity    = 2048
	minTailroom  = 50
)

// Scanner is a fixed-needle-set text-match scanner. Needles are literal
// byte strings; a hit writes the surrounding window to the named recorder,
// with proximity deduplication
type Scanner struct {
	name         string
	recorderName string
	outputFile   string
	needles      [][]byte
}

// NewFacebookScanner returns the text-match exemplar, instantiated
// to look for Facebook profile/identifier markers.
func NewFacebookScanner() *Scanner {
	return &Scanner{
		name:         "facebook",
		recorderName: "facebook",
		outputFile:   "facebook.txt",
		needles: [][]byte{
			[]byte("facebook.com/profile.php?id="),
			[]byte("\"fbid\":"),
			[]byte("www.facebook.com/people/"),
		},
	}
}

func (s *Scanner) Run(p *dispatch.Params) error {
	switch p.Phase {
	case dispatch.Init:
		p.Info.Name = s.name
		p.Info.Author = "bulkscan"
		p.Info.Description = "multi-needle byte search with proximity suppression"
		p.Info.Version = dispatch.ScannerABIVersion
		p.Info.FeatureDefs = []dispatch.FeatureDef{{Name: s.recorderName, OutputFile: s.outputFile}}
		return nil
	case dispatch.Scan:
		return s.scan(p)
	default:
		return nil
	}
}

func (s *Scanner) scan(p *dispatch.Params) error {
	rec, err := p.NamedFeatureRecorder(s.recorderName)
	if err != nil {
		return err
	}

	var usedOffsets []int // per-page state only
	for _, needle := range s.needles {
		scanOneNeedle(p.Sbuf, needle, &usedOffsets, rec)
	}
	return nil
}

func scanOneNeedle(buf *sbuf.Buffer, needle []byte, used *[]int, rec dispatch.FeatureWriter) {
	cursor := 0
	for cursor+minTailroom < buf.Bufsize() {
		hit := buf.Find(needle, cursor)
		if hit == sbuf.NotFound || hit >= buf.PageSize {
			return
		}
		if hit+minTailroom >= buf.Bufsize() {
			return // cannot accommodate the window; abandon for this page
		}

		if withinProximity(hit, *used) {
			cursor = hit + windowWidth
			continue
		}

		begin := hit - windowRadius
		if begin < 0 {
			begin = 0
		}
		end := hit + windowRadius
		if end > buf.Bufsize() {
			end = buf.Bufsize()
		}
		width := end - begin

		if err := writeWindow(buf, begin, width, rec); err == nil {
			*used = append(*used, hit)
		}
		cursor = hit + windowWidth
	}
}

func writeWindow(buf *sbuf.Buffer, begin, width int, rec dispatch.FeatureWriter) error {
	body, err := buf.Bytes(begin, width)
	if err != nil {
		return err
	}
	return rec.Write(buf.Pos0.Shift(uint64(begin)), "facebook", fmt.Sprintf("%q", body))
}

// withinProximity reports whether hit lies within +/- proximity bytes of
// any offset already recorded for this page.
func withinProximity(hit int, used []int) bool {
	for _, u := range used {
		d := hit - u
		if d < 0 {
			d = -d
		}
		if d <= proximity {
			return true
		}
	}
	return false
}
