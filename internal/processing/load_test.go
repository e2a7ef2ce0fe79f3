// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package processing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRules_DecodesMapEntries(t *testing.T) {
	spec := []any{
		map[string]any{"type": "replace", "pattern": "a", "replacement": "b"},
		map[string]any{"type": "regex", "pattern": "x", "active": false},
		"not a map",
	}
	rules := LoadRules(spec)
	require.Len(t, rules, 2)
	assert.Equal(t, "replace", rules[0].Type)
	assert.True(t, rules[0].Active)
	assert.False(t, rules[1].Active)
}

func TestLoadRules_NonListReturnsNil(t *testing.T) {
	assert.Nil(t, LoadRules("not a list"))
	assert.Nil(t, LoadRules(nil))
}

func TestLoadRules_DecodesOptions(t *testing.T) {
	spec := []any{
		map[string]any{"type": "protect", "options": map[string]any{"patterns": []any{"x"}}},
	}
	rules := LoadRules(spec)
	require.Len(t, rules, 1)
	assert.Equal(t, []any{"x"}, rules[0].Options["patterns"])
}

func TestLoadGlossary_FromMap(t *testing.T) {
	g := LoadGlossary(map[string]any{"hello": "bonjour"})
	assert.Equal(t, map[string]string{"hello": "bonjour"}, g)
}

func TestLoadGlossary_FromEntryList(t *testing.T) {
	spec := []any{
		map[string]any{"src": "hello", "dst": "bonjour"},
		map[string]any{"jp": "世界", "zh": "世界语"},
	}
	g := LoadGlossary(spec)
	assert.Equal(t, "bonjour", g["hello"])
	assert.Equal(t, "世界语", g["世界"])
}

func TestLoadGlossary_SkipsIncompleteEntries(t *testing.T) {
	spec := []any{
		map[string]any{"src": "hello"},
		"not a map",
	}
	g := LoadGlossary(spec)
	assert.Empty(t, g)
}

func TestLoadGlossary_UnknownTypeReturnsEmptyMap(t *testing.T) {
	g := LoadGlossary(42)
	assert.Empty(t, g)
}
