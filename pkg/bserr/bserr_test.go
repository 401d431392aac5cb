/*
 * SPDX-License-Identifier: Apache-2.0
 */

package bserr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapPreservesKindForIs(t *testing.T) {
	cause := errors.New("disk unplugged")
	err := Wrap(ReadError, "reading segment 2", cause)

	assert.True(t, Is(err, ReadError))
	assert.False(t, Is(err, EndOfImage))
	assert.Contains(t, err.Error(), "disk unplugged")
}

func TestWrapWithoutCause(t *testing.T) {
	err := Wrap(InvalidInput, "bad segment naming", nil)
	assert.True(t, Is(err, InvalidInput))
}

func TestRangeExceptionIsOutOfRange(t *testing.T) {
	assert.True(t, Is(RangeException, OutOfRange))
}
