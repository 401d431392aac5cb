/*
 * SPDX-License-Identifier: Apache-2.0
 */

package imagesource

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/forensics-toolkit/bulkscan/pkg/bserr"
)

// Open sniffs path and recurse to dispatch to the right Source
// implementation:
//  1. a directory requires recurse, and is rejected if it holds segmented
//     image parts (.E01/.000/.001) at its top level;
//  2. an ".e01" extension, or an ".E01." infix (MD5-suffixed segment
//     naming), builds an E01 source;
//  3. anything else builds a Raw/SplitRaw source.
func Open(path string, recurse bool) (Source, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, bserr.Wrap(bserr.NoSuchFile, path, err)
	}

	if fi.IsDir() {
		if !recurse {
			// A directory is not openable as an image without recurse; this
			// surfaces the same way any other unopenable path does.
			return nil, bserr.Wrap(bserr.NoSuchFile, "not a file (pass recurse to scan a directory tree): "+path, nil)
		}
		if offender, found := findSegmentedImagePart(path); found {
			return nil, bserr.Wrap(bserr.InvalidInput, "directory contains a segmented image part: "+offender, nil)
		}
		return OpenDirectory(path)
	}

	lower := strings.ToLower(filepath.Base(path))
	if strings.HasSuffix(lower, ".e01") || strings.Contains(path, ".E01.") {
		return OpenE01(path)
	}

	return OpenRaw(path)
}

// findSegmentedImagePart reports whether dir's top level contains a file
// that looks like a segmented-image part; Open rejects such directories as
// InvalidInput, naming the offending file, since those are segmented
// images rather than directory trees to recurse into.
func findSegmentedImagePart(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		lower := strings.ToLower(name)
		if strings.HasSuffix(lower, ".e01") || strings.HasSuffix(lower, ".000") || strings.HasSuffix(lower, ".001") {
			return name, true
		}
	}
	return "", false
}
