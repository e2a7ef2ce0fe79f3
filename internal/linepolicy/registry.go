// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package linepolicy

import (
	"fmt"

	"github.com/kraklabs/translate/internal/profile"
)

// Registry resolves `policy` profile ids into built Policy instances.
type Registry struct {
	store *profile.Store
	cache map[string]Policy
}

func NewRegistry(store *profile.Store) *Registry {
	return &Registry{store: store, cache: map[string]Policy{}}
}

func (r *Registry) Get(ref string) (Policy, error) {
	if p, ok := r.cache[ref]; ok {
		return p, nil
	}
	data, err := r.store.LoadProfile(profile.KindPolicy, ref)
	if err != nil {
		return nil, fmt.Errorf("load line policy profile %q: %w", ref, err)
	}
	kind, _ := data["type"].(string)
	options, _ := data["options"].(map[string]any)

	opts := Options{}
	if options != nil {
		opts.OnMismatch, _ = options["on_mismatch"].(string)
		opts.Checks = options["checks"]
		opts.SourceLang, _ = options["source_lang"].(string)
		if t, ok := options["trim"].(bool); ok {
			opts.Trim = &t
		}
		if v, ok := options["similarity_threshold"].(float64); ok {
			opts.SimilarityThreshold = v
		} else if v, ok := options["similarity"].(float64); ok {
			opts.SimilarityThreshold = v
		}
	}

	p, err := New(kind, opts)
	if err != nil {
		return nil, fmt.Errorf("build line policy %q: %w", ref, err)
	}
	if r.cache == nil {
		r.cache = map[string]Policy{}
	}
	r.cache[ref] = p
	return p, nil
}
