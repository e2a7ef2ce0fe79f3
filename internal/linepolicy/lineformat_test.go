// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package linepolicy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripCodeFence_ExtractsFencedJSONBlockAnywhereInText(t *testing.T) {
	text := "here is the result:\n```json\n{\"a\":1}\n```\nthanks"
	assert.Equal(t, `{"a":1}`, stripCodeFence(text))
}

func TestStripCodeFence_StripsFenceWrappingWholeText(t *testing.T) {
	text := "'''hello world'''"
	assert.Equal(t, "hello world", stripCodeFence(text))
}

func TestStripCodeFence_PassesThroughUnfencedText(t *testing.T) {
	assert.Equal(t, "plain text", stripCodeFence("  plain text  "))
}

func TestExtractFirstJSONBlock_FindsBalancedObject(t *testing.T) {
	text := `noise {"a": {"b": 1}} trailing`
	assert.Equal(t, `{"a": {"b": 1}}`, extractFirstJSONBlock(text))
}

func TestExtractFirstJSONBlock_IgnoresBracesInsideQuotedStrings(t *testing.T) {
	text := `{"a": "} not a close"}`
	assert.Equal(t, `{"a": "} not a close"}`, extractFirstJSONBlock(text))
}

func TestExtractFirstJSONBlock_ReturnsEmptyWhenUnbalanced(t *testing.T) {
	assert.Equal(t, "", extractFirstJSONBlock("{unbalanced"))
}

func TestExtractFirstJSONBlock_EmptyInputReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", extractFirstJSONBlock(""))
}

func TestExtractEntryFromDict_SingleNonTextKeyFormsEntry(t *testing.T) {
	id, value, ok := extractEntryFromDict(map[string]any{"3": "bonjour"})
	assert.True(t, ok)
	assert.Equal(t, "3", id)
	assert.Equal(t, "bonjour", value)
}

func TestExtractEntryFromDict_IDAndTextKeysFormEntry(t *testing.T) {
	id, value, ok := extractEntryFromDict(map[string]any{"line": 2.0, "text": "bonjour"})
	assert.True(t, ok)
	assert.Equal(t, "2", id)
	assert.Equal(t, "bonjour", value)
}

func TestExtractEntryFromDict_MissingBothKeysReturnsFalse(t *testing.T) {
	_, _, ok := extractEntryFromDict(map[string]any{"foo": "bar", "baz": "qux"})
	assert.False(t, ok)
}

func TestStringify_FormatsEachSupportedType(t *testing.T) {
	assert.Equal(t, "", stringify(nil))
	assert.Equal(t, "hi", stringify("hi"))
	assert.Equal(t, "3", stringify(3.0))
	assert.Equal(t, "3.5", stringify(3.5))
	assert.Equal(t, "true", stringify(true))
}

func TestParseJSONLEntries_ParsesOneBasedIDKeyedLines(t *testing.T) {
	text := `jsonline{"1":"bonjour"}` + "\n" + `jsonline{"2":"monde"}`
	entries, ordered := ParseJSONLEntries(text)
	assert.Equal(t, map[string]string{"1": "bonjour", "2": "monde"}, entries)
	assert.Empty(t, ordered)
}

func TestParseJSONLEntries_FallsBackToPositionalArrayEntries(t *testing.T) {
	text := `["bonjour","monde"]`
	entries, ordered := ParseJSONLEntries(text)
	assert.Empty(t, entries)
	assert.Equal(t, []string{"bonjour", "monde"}, ordered)
}

func TestParseJSONLEntries_SkipsBlankAndCodeFenceLines(t *testing.T) {
	text := "```\n" + `jsonline{"1":"bonjour"}` + "\n```"
	entries, _ := ParseJSONLEntries(text)
	assert.Equal(t, map[string]string{"1": "bonjour"}, entries)
}

func TestParseJSONLEntries_NoParsableLinesReturnsEmpty(t *testing.T) {
	entries, ordered := ParseJSONLEntries("not json at all")
	assert.Empty(t, entries)
	assert.Empty(t, ordered)
}

func TestParseTaggedEntries_DefaultPatternExtractsIDAndText(t *testing.T) {
	text := "@@1@@bonjour\n@@2@@monde"
	entries := ParseTaggedEntries(text, "")
	assert.Equal(t, map[string]string{"1": "bonjour", "2": "monde"}, entries)
}

func TestParseTaggedEntries_CustomPatternWithoutNamedGroups(t *testing.T) {
	entries := ParseTaggedEntries("L1: bonjour", `^L(\d+): (.*)$`)
	assert.Equal(t, map[string]string{"1": "bonjour"}, entries)
}

func TestParseTaggedEntries_InvalidPatternFallsBackToDefault(t *testing.T) {
	entries := ParseTaggedEntries("@@1@@bonjour", "(unterminated")
	assert.Equal(t, map[string]string{"1": "bonjour"}, entries)
}

func TestExtractLineForPolicy_PrefersOneBasedJSONLKey(t *testing.T) {
	text := `jsonline{"1":"bonjour"}`
	v, ok := ExtractLineForPolicy(text, 0, "")
	assert.True(t, ok)
	assert.Equal(t, "bonjour", v)
}

func TestExtractLineForPolicy_FallsBackToZeroBasedKey(t *testing.T) {
	text := `jsonline{"0":"bonjour"}`
	v, ok := ExtractLineForPolicy(text, 0, "")
	assert.True(t, ok)
	assert.Equal(t, "bonjour", v)
}

func TestExtractLineForPolicy_SinglePositionalEntryMatchesAnyIndex(t *testing.T) {
	v, ok := ExtractLineForPolicy(`["bonjour"]`, 4, "")
	assert.True(t, ok)
	assert.Equal(t, "bonjour", v)
}

func TestExtractLineForPolicy_FallsBackToTaggedLines(t *testing.T) {
	v, ok := ExtractLineForPolicy("@@1@@bonjour", 0, "")
	assert.True(t, ok)
	assert.Equal(t, "bonjour", v)
}

func TestExtractLineForPolicy_NoMatchReturnsFalse(t *testing.T) {
	_, ok := ExtractLineForPolicy("nothing useful here", 0, "")
	assert.False(t, ok)
}
