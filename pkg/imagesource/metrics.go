/*
 * SPDX-License-Identifier: Apache-2.0
 */

package imagesource

import "github.com/forensics-toolkit/bulkscan/pkg/metrics"

// collectorHook is the package-level metrics sink OpenE01 reports open
// failures to. A hook rather than a constructor argument, since Open's
// call sites (and its own tests) predate metrics and should not all have
// to thread a collector through.
var collectorHook *metrics.Collector

// SetMetrics attaches the collector OpenE01 reports open failures to. Call
// before Open/OpenE01 if that telemetry is wanted; nil (the default)
// disables it.
func SetMetrics(c *metrics.Collector) {
	collectorHook = c
}
