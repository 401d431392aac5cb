/*
 * SPDX-License-Identifier: Apache-2.0
 */

package dispatch

import (
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/forensics-toolkit/bulkscan/pkg/metrics"
	"github.com/forensics-toolkit/bulkscan/pkg/recorder"
)

// registered is one scanner bound to the Info it declared at INIT.
type registered struct {
	scanner Scanner
	info    *Info
}

// Registry holds every scanner registered for a run and the recorders they
// declared.
type Registry struct {
	scanners []*registered
	recs     *recorder.Set
	outDir   string
	config   ConfigReader
	metrics  *metrics.Collector
}

// NewRegistry returns an empty registry writing feature recorders under
// outDir, resolving scanner config through cfg.
func NewRegistry(outDir string, cfg ConfigReader) *Registry {
	return &Registry{recs: recorder.NewSet(), outDir: outDir, config: cfg}
}

// SetMetrics attaches a metrics collector that every recorder opened from
// this point forward reports writes to. Call before Register so recorders
// opened during INIT pick it up.
func (r *Registry) SetMetrics(c *metrics.Collector) {
	r.metrics = c
}

// Register runs s through INIT, capturing its declared Info and opening
// every feature recorder it asked for.
func (r *Registry) Register(s Scanner) error {
	info := &Info{}
	params := &Params{Phase: Init, Info: info, Config: r.config}
	if err := s.Run(params); err != nil {
		return errors.Wrapf(err, "INIT scanner")
	}
	if !CheckVersion(info.Version) {
		return errors.Errorf("scanner %q declared ABI version %q, want %q", info.Name, info.Version, ScannerABIVersion)
	}

	for _, fd := range info.FeatureDefs {
		rec, err := recorder.Open(fd.Name, filepath.Join(r.outDir, fd.OutputFile))
		if err != nil {
			return errors.Wrapf(err, "open recorder %q for scanner %q", fd.Name, info.Name)
		}
		rec.SetMetrics(r.metrics)
		if err := r.recs.Add(rec); err != nil {
			return err
		}
	}

	logrus.WithFields(logrus.Fields{
		"component": "dispatch.registry",
		"scanner":   info.Name,
		"version":   info.Version,
	}).Info("registered scanner")

	r.scanners = append(r.scanners, &registered{scanner: s, info: info})
	return nil
}

// recorderSetAdapter lets *recorder.Set satisfy RecorderSet: Set.Named
// returns a concrete *recorder.Recorder, which already implements
// FeatureWriter structurally, so the adapter only needs to re-box it.
type recorderSetAdapter struct{ set *recorder.Set }

func (a recorderSetAdapter) Named(name string) (FeatureWriter, error) {
	return a.set.Named(name)
}

// Recorders exposes the registry's feature recorder set as a RecorderSet.
func (r *Registry) Recorders() RecorderSet { return recorderSetAdapter{set: r.recs} }

// Shutdown runs every registered scanner through SHUTDOWN, then closes all
// recorders. Recorder close errors are fatal and abort the run.
func (r *Registry) Shutdown() error {
	for _, reg := range r.scanners {
		params := &Params{Phase: Shutdown, Info: reg.info, Config: r.config, Recorders: r.Recorders()}
		if err := reg.scanner.Run(params); err != nil {
			logrus.WithFields(logrus.Fields{
				"component": "dispatch.registry",
				"scanner":   reg.info.Name,
			}).WithError(err).Warn("scanner shutdown reported an error")
		}
	}
	return r.recs.CloseAll()
}

// eligible returns the scanners that may run on a page at the given depth.
func (r *Registry) eligible(depth int) []*registered {
	out := make([]*registered, 0, len(r.scanners))
	for _, reg := range r.scanners {
		if reg.info.Flags.Depth0Only && depth != 0 {
			continue
		}
		out = append(out, reg)
	}
	return out
}
