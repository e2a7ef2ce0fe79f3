// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfile(t *testing.T, dir, kind, id, content string) {
	t.Helper()
	kindDir := filepath.Join(dir, kind)
	require.NoError(t, os.MkdirAll(kindDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(kindDir, id+".yaml"), []byte(content), 0o644))
}

func TestIsSafeID(t *testing.T) {
	assert.True(t, IsSafeID("novel_ja_en"))
	assert.True(t, IsSafeID("a.b-c"))
	assert.False(t, IsSafeID(""))
	assert.False(t, IsSafeID("../escape"))
	assert.False(t, IsSafeID("a/b"))
}

func TestStore_LoadProfile(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, KindAPI, "gpt4", "id: gpt4\ntype: openai_compat\nbase_url: https://x\nmodel: gpt-4\n")

	store := NewStore(dir)
	data, err := store.LoadProfile(KindAPI, "gpt4")
	require.NoError(t, err)
	assert.Equal(t, "gpt4", data["id"])
	assert.Equal(t, "https://x", data["base_url"])
}

func TestStore_LoadProfile_MismatchedIDFallsBackToFilename(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, KindAPI, "gpt4", "id: something_else\nbase_url: https://x\nmodel: gpt-4\n")

	store := NewStore(dir)
	data, err := store.LoadProfile(KindAPI, "gpt4")
	require.NoError(t, err)
	assert.Equal(t, "gpt4", data["id"])
}

func TestStore_LoadProfile_NotFound(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.LoadProfile(KindAPI, "missing")
	assert.Error(t, err)
}

func TestStore_ResolveProfilePath_RejectsTraversal(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.ResolveProfilePath(KindAPI, "../../etc/passwd")
	assert.Error(t, err)
}

func TestStore_ListProfiles(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, KindParser, "p1", "id: p1\ntype: plain\n")
	writeProfile(t, dir, KindParser, "p2", "id: p2\ntype: plain\n")

	store := NewStore(dir)
	ids, err := store.ListProfiles(KindParser)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p1", "p2"}, ids)
}

func TestStore_ListProfiles_MissingDirReturnsEmpty(t *testing.T) {
	store := NewStore(t.TempDir())
	ids, err := store.ListProfiles(KindPipeline)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
