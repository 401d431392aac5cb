//go:build !e01

/*
 * SPDX-License-Identifier: Apache-2.0
 */

package imagesource

import "github.com/forensics-toolkit/bulkscan/pkg/bserr"

// OpenE01 is the stub built when bulkscan is compiled without the e01 build
// tag: the EWF decoder dependency is not linked in, so opening an E01 image
// always fails with bserr.Unsupported.
func OpenE01(_ string) (Source, error) {
	collectorHook.IncE01OpenFailure()
	return nil, bserr.Unsupported
}
