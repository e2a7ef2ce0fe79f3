// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package linepolicy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlignLines_EmptySourceReturnsDestinationCopy(t *testing.T) {
	out := AlignLines(nil, []string{"a", "b"})
	assert.Equal(t, []string{"a", "b"}, out)
}

func TestAlignLines_EmptyDestinationFillsBlanks(t *testing.T) {
	out := AlignLines([]string{"a", "b"}, nil)
	assert.Equal(t, []string{"", ""}, out)
}

func TestAlignLines_PreservesBlankSourceLinesWithoutConsuming(t *testing.T) {
	src := []string{"one", "", "two"}
	dst := []string{"1", "2"}
	out := AlignLines(src, dst)
	assert.Equal(t, []string{"1", "", "2"}, out)
}

func TestAlignLines_SkipsMatchingBlankDestinationLine(t *testing.T) {
	src := []string{"one", "", "two"}
	dst := []string{"1", "", "2"}
	out := AlignLines(src, dst)
	assert.Equal(t, []string{"1", "", "2"}, out)
}

func TestAlignLines_RunsOutOfDestinationLinesPadsBlank(t *testing.T) {
	src := []string{"one", "two", "three"}
	dst := []string{"1"}
	out := AlignLines(src, dst)
	assert.Equal(t, []string{"1", "", ""}, out)
}

func TestIsBlank_WhitespaceOnlyIsBlank(t *testing.T) {
	assert.True(t, isBlank("  \t\r\n "))
	assert.False(t, isBlank(" x "))
}
