/*
 * SPDX-License-Identifier: Apache-2.0
 */

package imagesource

import (
	"context"
	"io/fs"
	"path/filepath"

	"golang.org/x/exp/mmap"

	"github.com/forensics-toolkit/bulkscan/pkg/bserr"
	"github.com/forensics-toolkit/bulkscan/pkg/pos0"
	"github.com/forensics-toolkit/bulkscan/pkg/sbuf"
)

// DirectorySource treats a directory tree's regular files as "the image":
// size() is the file count and the iterator addresses files, not bytes.
// Each file is memory-mapped whole as a single PageBuffer with no paging
// (pagesize == bufsize, margin == 0). File discovery order is unspecified
// and callers must not depend on it.
type DirectorySource struct {
	root  string
	files []string
}

// OpenDirectory walks root recursively and collects every regular file.
func OpenDirectory(root string) (*DirectorySource, error) {
	ds := &DirectorySource{root: root}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			ds.files = append(ds.files, path)
		}
		return nil
	})
	if err != nil {
		return nil, bserr.Wrap(bserr.NoSuchFile, root, err)
	}
	return ds, nil
}

func (ds *DirectorySource) Size() uint64 { return uint64(len(ds.files)) }

func (ds *DirectorySource) Pread(_ context.Context, _ []byte, _ uint64) (int, error) {
	return 0, bserr.Unsupported
}

func (ds *DirectorySource) IteratorBegin() Iterator {
	return Iterator{Block: 0, EOF: len(ds.files) == 0}
}
func (ds *DirectorySource) IteratorEnd() Iterator {
	return Iterator{Block: uint64(len(ds.files)), EOF: true}
}

func (ds *DirectorySource) Step(it Iterator) Iterator {
	if it.EOF {
		return it
	}
	next := it.Block + 1
	if next >= uint64(len(ds.files)) {
		return Iterator{Block: next, EOF: true}
	}
	return Iterator{Block: next}
}

func (ds *DirectorySource) SeekBlock(n uint64) Iterator {
	if n >= uint64(len(ds.files)) {
		return Iterator{Block: uint64(len(ds.files)), EOF: true}
	}
	return Iterator{Block: n}
}

func (ds *DirectorySource) MaxBlocks() uint64 { return uint64(len(ds.files)) }

func (ds *DirectorySource) FractionDone(it Iterator) float64 {
	if len(ds.files) == 0 {
		return 1
	}
	if it.Block >= uint64(len(ds.files)) {
		return 1
	}
	return float64(it.Block) / float64(len(ds.files))
}

func (ds *DirectorySource) Pos0At(n uint64) pos0.T {
	if n >= uint64(len(ds.files)) {
		return pos0.T{}
	}
	return pos0.NewPath(ds.files[n], 0)
}

// SbufAlloc memory-maps the file at block it.Block as a single PageBuffer.
func (ds *DirectorySource) SbufAlloc(_ context.Context, it Iterator) (*sbuf.Buffer, error) {
	if it.EOF || it.Block >= uint64(len(ds.files)) {
		return nil, bserr.EndOfImage
	}
	path := ds.files[it.Block]
	r, err := mmap.Open(path)
	if err != nil {
		return nil, bserr.Wrap(bserr.ReadError, path, err)
	}
	defer r.Close()

	buf := make([]byte, r.Len())
	if _, err := r.ReadAt(buf, 0); err != nil {
		return nil, bserr.Wrap(bserr.ReadError, path, err)
	}
	return sbuf.New(pos0.NewPath(path, 0), buf, len(buf)), nil
}

func (ds *DirectorySource) Close() error { return nil }
