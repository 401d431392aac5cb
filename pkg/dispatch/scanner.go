/*
 * SPDX-License-Identifier: Apache-2.0
 */

// Package dispatch implements the scanner contract, the ScannerRegistry, and
// the worker-pool Dispatcher that drives scanners through their lifecycle
// phases and routes pages to them.
package dispatch

import (
	"github.com/pkg/errors"

	"github.com/forensics-toolkit/bulkscan/pkg/pos0"
	"github.com/forensics-toolkit/bulkscan/pkg/sbuf"
)

var errNoRecorders = errors.New("scanner params carry no recorder set")

// Phase identifies where in its lifecycle a scanner is being called.
type Phase int

const (
	// Init is called once per scanner before any page is scanned, to let it
	// declare its name/recorders/config.
	Init Phase = iota
	// Scan is called once per page per scanner.
	Scan
	// Shutdown is called once per scanner after the image is exhausted.
	Shutdown
)

func (p Phase) String() string {
	switch p {
	case Init:
		return "INIT"
	case Scan:
		return "SCAN"
	case Shutdown:
		return "SHUTDOWN"
	default:
		return "UNKNOWN"
	}
}

// Flags are the per-scanner opt-in behaviors a scanner can declare at INIT.
type Flags struct {
	// Depth0Only restricts the scanner to top-level pages, never pages
	// produced by a scanner's own recursive re-entry.
	Depth0Only bool
	// ScannerWantsFilesystems marks scanners that care about filesystem
	// semantics the core otherwise never interprets.
	ScannerWantsFilesystems bool
}

// FeatureDef declares one named feature recorder a scanner intends to use,
// captured at Init so the dispatcher can create every recorder up front.
type FeatureDef struct {
	Name string
	// OutputFile is the on-disk filename the recorder is opened against,
	// relative to the run's output directory.
	OutputFile string
}

// Info is the mutable-at-INIT metadata block every scanner fills in.
type Info struct {
	Name        string
	Author      string
	Description string
	Version     string
	FeatureDefs []FeatureDef
	Flags       Flags
}

// ConfigReader resolves typed scanner configuration with a default.
type ConfigReader interface {
	GetUint32(key string, def uint32, help string) uint32
	GetString(key string, def string, help string) string
	GetBool(key string, def bool, help string) bool
}

// RecorderSet resolves a named feature recorder, mirroring
// ScannerParams.named_feature_recorder.
type RecorderSet interface {
	Named(name string) (FeatureWriter, error)
}

// FeatureWriter is the subset of recorder.Recorder a scanner needs; kept as
// an interface here so scanner packages depend only on this package, not on
// pkg/recorder directly.
type FeatureWriter interface {
	Write(p pos0.T, name, context string) error
	WriteBuf(buf *sbuf.Buffer, begin, width int) error
}

// Params is ScannerParams: everything a single scanner invocation receives.
type Params struct {
	Phase     Phase
	Info      *Info
	Sbuf      *sbuf.Buffer
	Config    ConfigReader
	Recorders RecorderSet
	// Depth is the recursion depth of Sbuf; top-level pages are depth 0.
	Depth int
}

// NamedFeatureRecorder resolves a stable reference to the named recorder.
func (p *Params) NamedFeatureRecorder(name string) (FeatureWriter, error) {
	if p.Recorders == nil {
		return nil, errNoRecorders
	}
	return p.Recorders.Named(name)
}

// Scanner is the single entry point every scanner implements, receiving
// Params at each lifecycle phase. Scan is expected to write any features it
// finds directly to its recorders via Params; the return value only
// reports a hard failure (which the dispatcher logs and treats as "skip
// this page for this scanner", never aborting the run).
type Scanner interface {
	Run(p *Params) error
}

// CheckVersion asserts ABI compatibility at INIT. bulkscan scanners are
// compiled into the same binary as the dispatcher, so this is a version
// string match rather than a dynamic-loader ABI check.
const ScannerABIVersion = "1"

func CheckVersion(declared string) bool { return declared == ScannerABIVersion }
