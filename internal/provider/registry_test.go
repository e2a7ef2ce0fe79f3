// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/translate/internal/profile"
)

func writeAPIProfile(t *testing.T, dir, id, content string) {
	t.Helper()
	kindDir := filepath.Join(dir, profile.KindAPI)
	require.NoError(t, os.MkdirAll(kindDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(kindDir, id+".yaml"), []byte(content), 0o644))
}

func TestRegistry_BuildsOpenAICompatAndCaches(t *testing.T) {
	dir := t.TempDir()
	writeAPIProfile(t, dir, "gpt4", "id: gpt4\ntype: openai_compat\nbase_url: https://x\nmodel: gpt-4\n")

	reg := NewRegistry(profile.NewStore(dir))
	p1, err := reg.GetProvider("gpt4")
	require.NoError(t, err)
	_, ok := p1.(*OpenAICompatProvider)
	assert.True(t, ok)

	p2, err := reg.GetProvider("gpt4")
	require.NoError(t, err)
	assert.Same(t, p1, p2)
}

func TestRegistry_DefaultsToOpenAICompatWhenTypeMissing(t *testing.T) {
	dir := t.TempDir()
	writeAPIProfile(t, dir, "untyped", "id: untyped\nbase_url: https://x\nmodel: gpt-4\n")

	reg := NewRegistry(profile.NewStore(dir))
	p, err := reg.GetProvider("untyped")
	require.NoError(t, err)
	_, ok := p.(*OpenAICompatProvider)
	assert.True(t, ok)
}

func TestRegistry_UnsupportedTypeErrors(t *testing.T) {
	dir := t.TempDir()
	writeAPIProfile(t, dir, "exotic", "id: exotic\ntype: carrier_pigeon\n")

	reg := NewRegistry(profile.NewStore(dir))
	_, err := reg.GetProvider("exotic")
	assert.Error(t, err)
}

func TestRegistry_MissingProfileErrors(t *testing.T) {
	reg := NewRegistry(profile.NewStore(t.TempDir()))
	_, err := reg.GetProvider("missing")
	assert.Error(t, err)
}

func TestRegistry_BuildsPoolProviderWithMembers(t *testing.T) {
	dir := t.TempDir()
	writeAPIProfile(t, dir, "pool1", `
id: pool1
type: pool
members:
  - id: m1
    base_url: https://x
    model: gpt-4
    weight: 2
  - id: m2
    base_url: https://y
    model: gpt-4
`)
	reg := NewRegistry(profile.NewStore(dir))
	p, err := reg.GetProvider("pool1")
	require.NoError(t, err)
	pool, ok := p.(*PoolProvider)
	require.True(t, ok)
	assert.Len(t, pool.members, 2)
}
