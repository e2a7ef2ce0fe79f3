// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainParser_TrimsSurroundingNewlinesKeepsInner(t *testing.T) {
	p := &PlainParser{}
	out, err := p.Parse("\nline1\n\nline2\n")
	require.NoError(t, err)
	assert.Equal(t, "line1\n\nline2", out.Text)
	assert.Equal(t, []string{"line1", "", "line2"}, out.Lines)
}

func TestLineStrictParser_SingleLinePassesThrough(t *testing.T) {
	p := &LineStrictParser{}
	out, err := p.Parse("only one line")
	require.NoError(t, err)
	assert.Equal(t, []string{"only one line"}, out.Lines)
}

func TestLineStrictParser_JoinsMultipleLinesByDefault(t *testing.T) {
	p := &LineStrictParser{}
	out, err := p.Parse("first\nsecond")
	require.NoError(t, err)
	assert.Equal(t, "first second", out.Text)
}

func TestLineStrictParser_FirstModeKeepsOnlyFirstLine(t *testing.T) {
	p := &LineStrictParser{MultiLine: "first"}
	out, err := p.Parse("first\nsecond")
	require.NoError(t, err)
	assert.Equal(t, "first", out.Text)
}

func TestLineStrictParser_ErrorModeFailsOnMultipleLines(t *testing.T) {
	p := &LineStrictParser{MultiLine: "error"}
	_, err := p.Parse("first\nsecond")
	assert.Error(t, err)
}

func TestJSONArrayParser_ParsesArrayOfStrings(t *testing.T) {
	p := &JSONArrayParser{}
	out, err := p.Parse(`["hello", "world"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "world"}, out.Lines)
}

func TestJSONArrayParser_InvalidJSONErrors(t *testing.T) {
	p := &JSONArrayParser{}
	_, err := p.Parse("not json")
	assert.Error(t, err)
}

func TestTaggedLineParser_ExtractsTaggedLinesInOrder(t *testing.T) {
	p := &TaggedLineParser{Pattern: `^@@(?P<id>\d+)@@(?P<text>.*)$`}
	out, err := p.Parse("@@0@@hello\nnoise\n@@1@@world")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "world"}, out.Lines)
}

func TestTaggedLineParser_NoMatchesErrors(t *testing.T) {
	p := &TaggedLineParser{Pattern: `^@@(?P<id>\d+)@@(?P<text>.*)$`}
	_, err := p.Parse("nothing tagged here")
	assert.Error(t, err)
}

func TestRegexParser_ExtractsGroup(t *testing.T) {
	p := &RegexParser{Pattern: `TRANSLATION:\s*(.+)`, Group: 1}
	out, err := p.Parse("some preamble\nTRANSLATION: bonjour le monde")
	require.NoError(t, err)
	assert.Equal(t, "bonjour le monde", out.Text)
}

func TestRegexParser_DotAllMatchesAcrossNewlines(t *testing.T) {
	p := &RegexParser{Pattern: `START(.+)END`, Group: 1, DotAll: true}
	out, err := p.Parse("START\nmulti\nline\nEND")
	require.NoError(t, err)
	assert.Equal(t, "multi\nline", out.Text)
}

func TestRegexParser_NoMatchErrors(t *testing.T) {
	p := &RegexParser{Pattern: `NEVER_MATCHES`}
	_, err := p.Parse("hello")
	assert.Error(t, err)
}

func TestJSONObjectParser_ExtractsDottedPath(t *testing.T) {
	p := &JSONObjectParser{Path: "result.text"}
	out, err := p.Parse(`{"result": {"text": "bonjour"}}`)
	require.NoError(t, err)
	assert.Equal(t, "bonjour", out.Text)
}

func TestJSONObjectParser_ExtractsArrayIndexInPath(t *testing.T) {
	p := &JSONObjectParser{Path: "items.0"}
	out, err := p.Parse(`{"items": ["bonjour", "monde"]}`)
	require.NoError(t, err)
	assert.Equal(t, "bonjour", out.Text)
}

func TestJSONObjectParser_RejectsNonObjectTopLevel(t *testing.T) {
	p := &JSONObjectParser{Path: "x"}
	_, err := p.Parse(`["not", "an", "object"]`)
	assert.Error(t, err)
}

func TestJSONObjectParser_MissingKeyErrors(t *testing.T) {
	p := &JSONObjectParser{Path: "missing"}
	_, err := p.Parse(`{"present": "value"}`)
	assert.Error(t, err)
}
