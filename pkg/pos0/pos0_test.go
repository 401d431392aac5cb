/*
 * SPDX-License-Identifier: Apache-2.0
 */

package pos0

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringFormat(t *testing.T) {
	assert.Equal(t, "1024", New(1024).String())
	assert.Equal(t, "image.dd-1024", NewPath("image.dd", 1024).String())
}

func TestShiftPreservesPath(t *testing.T) {
	p := NewPath("a.txt", 10)
	shifted := p.Shift(5)
	assert.Equal(t, "a.txt", shifted.Path)
	assert.Equal(t, uint64(15), shifted.Offset)
	assert.Equal(t, uint64(10), p.Offset, "Shift must not mutate the receiver")
}

func TestLessOrdersByPathThenOffset(t *testing.T) {
	a := NewPath("a.txt", 100)
	b := NewPath("b.txt", 0)
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))

	x := New(10)
	y := New(20)
	assert.True(t, x.Less(y))
}
