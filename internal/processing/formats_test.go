// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package processing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApplyFormat_RestoreProtection(t *testing.T) {
	p := NewProtector(DefaultPatterns)
	protected := p.Protect("{{x}}")
	out := applyFormat("restore_protection", protected, ApplyOptions{Protector: p}, nil)
	assert.Equal(t, "{{x}}", out)
}

func TestApplyFormat_RestoreProtectionWithoutProtectorIsNoop(t *testing.T) {
	out := applyFormat("restore_protection", "text", ApplyOptions{}, nil)
	assert.Equal(t, "text", out)
}

func TestApplyFormat_CleanEmptyLines(t *testing.T) {
	out := applyFormat("clean_empty_lines", "a\n\nb\n\n\nc", ApplyOptions{}, nil)
	assert.Equal(t, "a\nb\nc", out)
}

func TestApplyFormat_CleanEmptyLinesRespectsStrictLineCount(t *testing.T) {
	out := applyFormat("clean_empty_lines", "a\n\nb", ApplyOptions{StrictLineCount: true}, nil)
	assert.Equal(t, "a\n\nb", out)
}

func TestApplyFormat_Ellipsis(t *testing.T) {
	assert.Equal(t, "……", applyFormat("ellipsis", "....", ApplyOptions{}, nil))
}

func TestApplyFormat_FullToHalfPunct(t *testing.T) {
	assert.Equal(t, "hello, world!", applyFormat("full_to_half_punct", "hello， world！", ApplyOptions{}, nil))
}

func TestApplyFormat_UnknownNameReturnsTextUnchanged(t *testing.T) {
	assert.Equal(t, "text", applyFormat("no_such_format", "text", ApplyOptions{}, nil))
}

func TestApplyFormat_MergeShortLinesJoinsUnpunctuatedShortLine(t *testing.T) {
	out := applyFormat("merge_short_lines", "hi\nthere, this line is long enough.", ApplyOptions{}, nil)
	assert.Equal(t, "hithere, this line is long enough.", out)
}

func TestApplyFormat_MergeShortLinesRespectsStrictLineCount(t *testing.T) {
	text := "hi\nthere, this line is long enough."
	out := applyFormat("merge_short_lines", text, ApplyOptions{StrictLineCount: true}, nil)
	assert.Equal(t, text, out)
}
