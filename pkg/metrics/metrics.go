/*
 * SPDX-License-Identifier: Apache-2.0
 */

// Package metrics exposes scan-progress counters through a small prometheus
// registry. Metrics are ambient plumbing, carried even though no scanner
// explicitly requires them.
package metrics

import (
	"net"
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const endpointPromMetrics = "/metrics"

// Collector is the bulkscan-wide metrics registry. One instance is created
// per run and passed to the dispatcher and scanners that want to record
// against it.
type Collector struct {
	Registry *prometheus.Registry

	PagesScanned    prometheus.Counter
	FeaturesEmitted *prometheus.CounterVec
	WeirdRejects    prometheus.Counter
	E01OpenFailures prometheus.Counter
	FractionDone    prometheus.Gauge
}

// New creates and registers the bulkscan metric families.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		PagesScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bulkscan",
			Name:      "pages_scanned_total",
			Help:      "Number of image pages that have completed all scanners.",
		}),
		FeaturesEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bulkscan",
			Name:      "features_emitted_total",
			Help:      "Number of features written, labeled by recorder name.",
		}, []string{"recorder"}),
		WeirdRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bulkscan",
			Name:      "windirs_weird_rejects_total",
			Help:      "Number of FAT directory entries rejected for exceeding the weird-count threshold.",
		}),
		E01OpenFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bulkscan",
			Name:      "e01_open_failures_total",
			Help:      "Number of E01 image sources that failed to open.",
		}),
		FractionDone: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bulkscan",
			Name:      "fraction_done",
			Help:      "Fraction of the current image source that has been iterated, in [0, 1].",
		}),
	}

	reg.MustRegister(c.PagesScanned, c.FeaturesEmitted, c.WeirdRejects, c.E01OpenFailures, c.FractionDone)
	return c
}

// IncPagesScanned records that one more image page has finished every
// registered scanner. c may be nil, in which case this is a no-op.
func (c *Collector) IncPagesScanned() {
	if c == nil {
		return
	}
	c.PagesScanned.Inc()
}

// IncFeature records one feature written by the named recorder. c may be
// nil, in which case this is a no-op.
func (c *Collector) IncFeature(recorder string) {
	if c == nil {
		return
	}
	c.FeaturesEmitted.WithLabelValues(recorder).Inc()
}

// IncWeirdReject records one FAT dentry rejected for exceeding the
// weird-count threshold. c may be nil, in which case this is a no-op.
func (c *Collector) IncWeirdReject() {
	if c == nil {
		return
	}
	c.WeirdRejects.Inc()
}

// IncE01OpenFailure records one E01 source that failed to open. c may be
// nil, in which case this is a no-op.
func (c *Collector) IncE01OpenFailure() {
	if c == nil {
		return
	}
	c.E01OpenFailures.Inc()
}

// SetFractionDone records the current fraction, in [0, 1], of the image
// source that has been iterated. c may be nil, in which case this is a
// no-op.
func (c *Collector) SetFractionDone(f float64) {
	if c == nil {
		return
	}
	c.FractionDone.Set(f)
}

// Serve starts a background HTTP server exposing the collector's registry
// at /metrics. It returns once the listener is bound; serve errors after
// that point are logged, not returned, since the scan itself must not fail
// because the metrics endpoint died.
func (c *Collector) Serve(addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle(endpointPromMetrics, promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{ErrorHandling: promhttp.HTTPErrorOnError}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "bind metrics listener %q", addr)
	}

	go func() {
		logrus.WithField("addr", addr).Info("serving metrics")
		if err := http.Serve(ln, mux); err != nil {
			logrus.WithError(err).Warn("metrics server stopped")
		}
	}()
	return nil
}
