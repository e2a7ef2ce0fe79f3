// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package parser

import (
	"fmt"

	"github.com/kraklabs/translate/internal/profile"
)

// Registry resolves `parser` profile ids into built Parser instances.
type Registry struct {
	store *profile.Store
	cache map[string]Parser
}

func NewRegistry(store *profile.Store) *Registry {
	return &Registry{store: store, cache: map[string]Parser{}}
}

func (r *Registry) Get(ref string) (Parser, error) {
	if p, ok := r.cache[ref]; ok {
		return p, nil
	}
	data, err := r.store.LoadProfile(profile.KindParser, ref)
	if err != nil {
		return nil, fmt.Errorf("load parser profile %q: %w", ref, err)
	}
	kind, _ := data["type"].(string)
	options, _ := data["options"].(map[string]any)
	p, err := New(kind, options)
	if err != nil {
		return nil, fmt.Errorf("build parser %q: %w", ref, err)
	}
	if r.cache == nil {
		r.cache = map[string]Parser{}
	}
	r.cache[ref] = p
	return p, nil
}
