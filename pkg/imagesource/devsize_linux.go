/*
 * SPDX-License-Identifier: Apache-2.0
 */

package imagesource

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/forensics-toolkit/bulkscan/pkg/bserr"
)

// deviceSize queries the block-device size for a path whose stat size is
// reported as zero, so raw device handles (/dev/sdX) still work as image
// segments.
func deviceSize(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, bserr.Wrap(bserr.NoSuchFile, path, err)
	}
	defer f.Close()

	size, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKGETSIZE64)
	if err != nil {
		return 0, bserr.Wrap(bserr.ReadError, "query device size for "+path, err)
	}
	return uint64(size), nil
}
