// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package profile implements the Profile Store: path-traversal-safe
// loading of YAML profile files organized by kind under a profiles
// directory, plus lightweight structural validation.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/translate/internal/model"
)

// Kinds of profile recognized by the store, one subdirectory each.
const (
	KindAPI      = "api"
	KindPrompt   = "prompt"
	KindParser   = "parser"
	KindPolicy   = "policy"
	KindChunk    = "chunk"
	KindPipeline = "pipeline"
)

var validKinds = map[string]bool{
	KindAPI: true, KindPrompt: true, KindParser: true,
	KindPolicy: true, KindChunk: true, KindPipeline: true,
}

// safeIDPattern mirrors the original profile_store.py regex: a leading
// alnum/underscore followed by alnum/underscore/dot/dash.
var safeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.-]*$`)

// IsSafeID reports whether ref is safe to use as a profile id: no path
// separators, no ".." traversal, and matching the conservative charset.
func IsSafeID(ref string) bool {
	if ref == "" {
		return false
	}
	if strings.Contains(ref, "..") || strings.ContainsAny(ref, "/\\") {
		return false
	}
	return safeIDPattern.MatchString(ref)
}

// Store resolves and loads profiles from a root directory laid out as
// <root>/<kind>/<id>.yaml.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: filepath.Clean(root)}
}

func (s *Store) kindDir(kind string) string {
	return filepath.Join(s.root, kind)
}

// isWithinBaseDir reports whether the resolved absolute path stays under
// base, guarding against symlink or ".." based traversal.
func isWithinBaseDir(base, target string) bool {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return false
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absBase, absTarget)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ResolveProfilePath resolves a profile reference to a concrete file
// path. ref may be: an absolute path, a bare "<id>.yaml" filename, or a
// bare id (".yaml" appended). The result is always validated to remain
// within the kind's subdirectory.
func (s *Store) ResolveProfilePath(kind, ref string) (string, error) {
	if !validKinds[kind] {
		return "", fmt.Errorf("unknown profile kind %q", kind)
	}
	if ref == "" {
		return "", fmt.Errorf("empty profile reference")
	}

	dir := s.kindDir(kind)

	if filepath.IsAbs(ref) {
		if !isWithinBaseDir(dir, ref) {
			return "", fmt.Errorf("profile path %q escapes %s profiles directory", ref, kind)
		}
		if _, err := os.Stat(ref); err != nil {
			return "", fmt.Errorf("profile %q not found: %w", ref, err)
		}
		return ref, nil
	}

	name := ref
	if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
		name = ref + ".yaml"
	}

	id := strings.TrimSuffix(strings.TrimSuffix(name, ".yaml"), ".yml")
	if !IsSafeID(id) {
		return "", fmt.Errorf("profile id %q is not a safe identifier", id)
	}

	path := filepath.Join(dir, name)
	if !isWithinBaseDir(dir, path) {
		return "", fmt.Errorf("profile id %q escapes %s profiles directory", ref, kind)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("profile %s/%s not found: %w", kind, ref, err)
	}
	return path, nil
}

// LoadProfile resolves and decodes a profile YAML file into a generic map.
func (s *Store) LoadProfile(kind, ref string) (map[string]any, error) {
	path, err := s.ResolveProfilePath(kind, ref)
	if err != nil {
		return nil, err
	}
	return s.LoadProfileByPath(path)
}

// LoadProfileByPath decodes a profile file directly, enforcing that its
// declared "id" field (if present) matches the file's own stem.
func (s *Store) LoadProfileByPath(path string) (map[string]any, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path validated by ResolveProfilePath
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", path, err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if id, ok := doc["id"]; ok {
		if idStr, ok := id.(string); ok && idStr != "" && idStr != stem {
			// Declared id mismatches filename: fall back to the filename
			// stem as the effective id, matching the original's
			// filename-is-authoritative fallback.
			doc["id"] = stem
		}
	} else {
		doc["id"] = stem
	}

	return doc, nil
}

// ListProfiles returns the ids of every profile under a given kind.
func (s *Store) ListProfiles(kind string) ([]string, error) {
	dir := s.kindDir(kind)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			ids = append(ids, strings.TrimSuffix(strings.TrimSuffix(name, ".yaml"), ".yml"))
		}
	}
	return ids, nil
}

// Ref builds a model.ProfileRef from a kind/id pair for downstream use.
func Ref(kind, id string) model.ProfileRef {
	return model.ProfileRef{Kind: kind, ID: id}
}
