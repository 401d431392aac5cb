/*
 * SPDX-License-Identifier: Apache-2.0
 */

package imagesource

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensics-toolkit/bulkscan/pkg/bserr"
)

func TestDirectorySourceOneFilePerPage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "note.txt"), []byte("carved text"), 0o644))

	ds, err := OpenDirectory(dir)
	require.NoError(t, err)
	defer ds.Close()

	assert.Equal(t, uint64(1), ds.Size())

	it := ds.IteratorBegin()
	assert.False(t, it.EOF)

	buf, err := ds.SbufAlloc(context.Background(), it)
	require.NoError(t, err)
	assert.Equal(t, []byte("carved text"), buf.Buf)
	assert.Equal(t, buf.PageSize, buf.Bufsize(), "directory pages carry no margin")

	it = ds.Step(it)
	assert.True(t, it.EOF)
}

func TestDirectorySourcePreadUnsupported(t *testing.T) {
	ds, err := OpenDirectory(t.TempDir())
	require.NoError(t, err)
	defer ds.Close()

	_, err = ds.Pread(context.Background(), make([]byte, 1), 0)
	assert.True(t, bserr.Is(err, bserr.Unsupported))
}
