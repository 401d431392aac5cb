/*
 * SPDX-License-Identifier: Apache-2.0
 */

// Package recorder implements FeatureRecorder and FeatureSet: thread-safe,
// append-only named sinks for scanner output. The write path is
// grounded on the append-only, mutex-guarded journal shape seen in the
// retrieved write-ahead-log example: every writer serializes under one
// mutex and appends a framed record, never seeking or rewriting.
package recorder

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/pkg/errors"

	"github.com/forensics-toolkit/bulkscan/pkg/metrics"
	"github.com/forensics-toolkit/bulkscan/pkg/pos0"
	"github.com/forensics-toolkit/bulkscan/pkg/sbuf"
)

// Recorder is a single named, append-only, mutex-serialized feature sink.
// Inter-recorder ordering is undefined; features from the same
// page reach a recorder in the order the scanner emitted them, since a
// scanner writes synchronously within one worker's page pass.
type Recorder struct {
	name    string
	mu      sync.Mutex
	w       *bufio.Writer
	f       *os.File
	metrics *metrics.Collector
}

// Open creates (or truncates) outPath and returns a Recorder named name
// writing to it. Recorders are opened once at scanner init and
// flushed/closed at shutdown.
func Open(name, outPath string) (*Recorder, error) {
	f, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "open feature recorder %q", name)
	}
	return &Recorder{name: name, f: f, w: bufio.NewWriter(f)}, nil
}

// Name returns the recorder's name, for ScannerParams.NamedFeatureRecorder
// lookups.
func (r *Recorder) Name() string { return r.name }

// SetMetrics attaches a metrics collector this recorder reports writes to.
// Optional: a Recorder with no collector attached simply skips telemetry.
func (r *Recorder) SetMetrics(c *metrics.Collector) {
	r.metrics = c
}

// Write appends one feature: a position, a short name/tag, and free-form
// context, as a single tab-separated line.
func (r *Recorder) Write(p pos0.T, name, context string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := fmt.Fprintf(r.w, "%s\t%s\t%s\n", p.String(), name, context)
	if err != nil {
		return errors.Wrapf(err, "write feature to recorder %q", r.name)
	}
	r.metrics.IncFeature(r.name)
	return nil
}

// WriteBuf copies width bytes starting at begin out of buf and writes them
// as the feature body, used to dump surrounding context text. begin/width
// are validated against buf before any write.
func (r *Recorder) WriteBuf(buf *sbuf.Buffer, begin, width int) error {
	body, err := buf.Bytes(begin, width)
	if err != nil {
		return err
	}
	return r.Write(buf.Pos0.Shift(uint64(begin)), "buf", string(body))
}

// Flush forces buffered writes to the OS, without closing the underlying
// file. Scanners never need this directly; Close implies it.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Wrapf(r.w.Flush(), "flush feature recorder %q", r.name)
}

// Close flushes and closes the recorder. Recorder I/O errors are fatal.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.w.Flush(); err != nil {
		return errors.Wrapf(err, "flush feature recorder %q", r.name)
	}
	return errors.Wrapf(r.f.Close(), "close feature recorder %q", r.name)
}

// Set is a collection of named recorders, resolved by name.
type Set struct {
	mu   sync.RWMutex
	recs map[string]*Recorder
}

// NewSet returns an empty recorder set.
func NewSet() *Set {
	return &Set{recs: make(map[string]*Recorder)}
}

// Add registers rec under its own name. It is an error to register the same
// name twice.
func (s *Set) Add(rec *Recorder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.recs[rec.name]; exists {
		return errors.Errorf("recorder %q already registered", rec.name)
	}
	s.recs[rec.name] = rec
	return nil
}

// Named resolves a stable reference to the recorder registered under name.
func (s *Set) Named(name string) (*Recorder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[name]
	if !ok {
		return nil, errors.Errorf("no such feature recorder %q", name)
	}
	return rec, nil
}

// CloseAll flushes and closes every recorder in the set, collecting the
// first error encountered but attempting to close every recorder regardless.
func (s *Set) CloseAll() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var first error
	for _, rec := range s.recs {
		if err := rec.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
