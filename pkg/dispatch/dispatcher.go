/*
 * SPDX-License-Identifier: Apache-2.0
 */

package dispatch

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/forensics-toolkit/bulkscan/pkg/bserr"
	"github.com/forensics-toolkit/bulkscan/pkg/metrics"
	"github.com/forensics-toolkit/bulkscan/pkg/pageiter"
	"github.com/forensics-toolkit/bulkscan/pkg/sbuf"
)

// Dispatcher drives every registered scanner through its lifecycle phases
// and routes pages to them. One producer goroutine pulls pages off the
// PageIterator; an errgroup-bounded pool of workers runs every eligible
// scanner serially over each page.
type Dispatcher struct {
	reg     *Registry
	workers int
	metrics *metrics.Collector
}

// New returns a Dispatcher with the given worker count (must be >= 1).
func New(reg *Registry, workers int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{reg: reg, workers: workers}
}

// SetMetrics attaches a metrics collector the dispatcher reports per-page
// progress to. Optional: a Dispatcher with no collector attached simply
// skips telemetry.
func (d *Dispatcher) SetMetrics(c *metrics.Collector) {
	d.metrics = c
}

// pageJob is one unit of work handed from the producer to a worker.
type pageJob struct {
	buf   *sbuf.Buffer
	depth int
}

// Run drains it, handing each page to the worker pool until EOF or ctx is
// canceled. Cancellation is cooperative: it is polled once per page pulled
// by the producer, and in-flight worker jobs always run to completion.
func (d *Dispatcher) Run(ctx context.Context, it *pageiter.Iterator) error {
	jobs := make(chan pageJob, d.workers*2)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers + 1) // +1 for the producer goroutine itself

	var pagesScanned uint64

	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			for job := range jobs {
				if err := d.scanPage(job); err != nil {
					return err
				}
				atomic.AddUint64(&pagesScanned, 1)
				d.metrics.IncPagesScanned()
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(jobs)
		for !it.Done() {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			buf, err := it.Next(gctx)
			if err != nil {
				if errors.Is(err, bserr.EndOfImage) {
					return nil
				}
				return err
			}
			d.metrics.SetFractionDone(it.FractionDone())
			select {
			case jobs <- pageJob{buf: buf, depth: 0}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	err := g.Wait()
	logrus.WithFields(logrus.Fields{
		"component":     "dispatch.dispatcher",
		"pages_scanned": atomic.LoadUint64(&pagesScanned),
	}).Info("scan pass complete")
	return err
}

// scanPage runs every scanner eligible at job.depth over job.buf serially,
// one worker owning the whole page at a time. A single scanner's error is
// logged and does not abort the page for the remaining scanners (per-page
// work is cheap and bounded).
func (d *Dispatcher) scanPage(job pageJob) error {
	for _, reg := range d.reg.eligible(job.depth) {
		params := &Params{
			Phase:     Scan,
			Info:      reg.info,
			Sbuf:      job.buf,
			Config:    d.reg.config,
			Recorders: d.reg.Recorders(),
			Depth:     job.depth,
		}
		if err := reg.scanner.Run(params); err != nil {
			logrus.WithFields(logrus.Fields{
				"component": "dispatch.dispatcher",
				"scanner":   reg.info.Name,
				"pos0":      job.buf.Pos0.String(),
			}).WithError(err).Warn("scanner reported an error on this page; skipping")
		}
	}
	return nil
}
