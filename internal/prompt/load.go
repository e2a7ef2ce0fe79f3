// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package prompt

import (
	"fmt"

	"github.com/kraklabs/translate/internal/profile"
)

// Registry resolves `prompt` profile ids into Profile values, caching the
// decoded form so repeated blocks in the same run don't re-walk YAML.
type Registry struct {
	store *profile.Store
	cache map[string]Profile
}

func NewRegistry(store *profile.Store) *Registry {
	return &Registry{store: store, cache: map[string]Profile{}}
}

func (r *Registry) Get(ref string) (Profile, error) {
	if p, ok := r.cache[ref]; ok {
		return p, nil
	}
	data, err := r.store.LoadProfile(profile.KindPrompt, ref)
	if err != nil {
		return Profile{}, fmt.Errorf("load prompt profile %q: %w", ref, err)
	}
	p := Profile{
		Persona:        str(data, "persona"),
		StyleRules:     str(data, "style_rules"),
		OutputRules:    str(data, "output_rules"),
		SystemTemplate: str(data, "system_template"),
		UserTemplate:   str(data, "user_template"),
	}
	if r.cache == nil {
		r.cache = map[string]Profile{}
	}
	r.cache[ref] = p
	return p, nil
}

func str(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
