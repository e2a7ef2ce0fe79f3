// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package processing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseProtectPatternLines_AdditionsAndRemovals(t *testing.T) {
	additions, removals := parseProtectPatternLines([]string{
		"# a comment",
		"// another comment",
		"",
		"+custom_pattern",
		"bare_pattern",
		"!<[^<>]+>",
	})
	assert.Equal(t, []string{"custom_pattern", "bare_pattern"}, additions)
	assert.Equal(t, []string{"<[^<>]+>"}, removals)
}

func TestParseProtectPatternPayload_JSONList(t *testing.T) {
	out := parseProtectPatternPayload([]any{"a", "b"})
	assert.Equal(t, []string{"a", "b"}, out)
}

func TestParseProtectPatternPayload_JSONEncodedString(t *testing.T) {
	out := parseProtectPatternPayload(`["a", "b"]`)
	assert.Equal(t, []string{"a", "b"}, out)
}

func TestParseProtectPatternPayload_NewlineDelimitedString(t *testing.T) {
	out := parseProtectPatternPayload("a\nb\n")
	assert.Equal(t, []string{"a", "b"}, out)
}

func TestParseProtectPatternPayload_NilReturnsNil(t *testing.T) {
	assert.Nil(t, parseProtectPatternPayload(nil))
}

func TestBuildProtectPatterns_DisabledReturnsNil(t *testing.T) {
	assert.Nil(t, buildProtectPatterns(nil, nil, false))
}

func TestBuildProtectPatterns_NoProtectRuleReturnsNil(t *testing.T) {
	assert.Nil(t, buildProtectPatterns(nil, nil, true))
}

func TestBuildProtectPatterns_MergesAdditionsAndRemovals(t *testing.T) {
	preRules := []Rule{{
		Type:   "protect",
		Active: true,
		Options: map[string]any{
			"patterns": []any{"custom_token", "!<[^<>]+>"},
		},
	}}
	patterns := buildProtectPatterns(preRules, nil, true)
	assert.Contains(t, patterns, "custom_token")
	assert.NotContains(t, patterns, `<[^<>]+>`)
}

func TestBuildProtectPatterns_LegacyRestoreProtectionOptions(t *testing.T) {
	postRules := []Rule{{
		Type:    "format",
		Pattern: "restore_protection",
		Active:  true,
		Options: map[string]any{"customPattern": "legacy_token"},
	}}
	patterns := buildProtectPatterns(nil, postRules, true)
	assert.Contains(t, patterns, "legacy_token")
}

func TestMergeProtectPatterns_DedupesAdditions(t *testing.T) {
	merged := mergeProtectPatterns([]string{"a"}, []string{"a", "b"}, nil)
	assert.Equal(t, []string{"a", "b"}, merged)
}
