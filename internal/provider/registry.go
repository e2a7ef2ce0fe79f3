// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"fmt"
	"sync"
	"time"

	"github.com/kraklabs/translate/internal/profile"
)

// Registry builds and caches Provider instances from `api` profiles.
type Registry struct {
	store *profile.Store

	mu    sync.Mutex
	cache map[string]Provider
}

func NewRegistry(store *profile.Store) *Registry {
	return &Registry{store: store, cache: map[string]Provider{}}
}

// GetProvider resolves an `api` profile id into a cached Provider.
func (r *Registry) GetProvider(ref string) (Provider, error) {
	r.mu.Lock()
	if p, ok := r.cache[ref]; ok {
		r.mu.Unlock()
		return p, nil
	}
	r.mu.Unlock()

	data, err := r.store.LoadProfile(profile.KindAPI, ref)
	if err != nil {
		return nil, fmt.Errorf("load api profile %q: %w", ref, err)
	}

	p, err := r.build(data)
	if err != nil {
		return nil, fmt.Errorf("build provider %q: %w", ref, err)
	}

	r.mu.Lock()
	r.cache[ref] = p
	r.mu.Unlock()
	return p, nil
}

func (r *Registry) build(data map[string]any) (Provider, error) {
	apiType := strVal(data, "type")
	if apiType == "" {
		apiType = strVal(data, "provider")
	}
	if apiType == "" {
		apiType = "openai_compat"
	}

	switch apiType {
	case "openai_compat":
		return r.buildOpenAICompat(data)
	case "pool":
		return r.buildPool(data)
	default:
		return nil, fmt.Errorf("unsupported api profile type %q", apiType)
	}
}

func (r *Registry) buildOpenAICompat(data map[string]any) (Provider, error) {
	cfg := OpenAICompatConfig{
		ID:          strVal(data, "id"),
		BaseURL:     strVal(data, "base_url"),
		Model:       strVal(data, "model"),
		APIKeys:     strSliceVal(data, "api_keys"),
		RPM:         floatVal(data, "rpm"),
		Temperature: floatVal(data, "temperature"),
		MaxTokens:   intVal(data, "max_tokens"),
	}
	if key := strVal(data, "api_key"); key != "" && len(cfg.APIKeys) == 0 {
		cfg.APIKeys = []string{key}
	}
	if t := floatVal(data, "timeout_seconds"); t > 0 {
		cfg.Timeout = time.Duration(t * float64(time.Second))
	}
	return NewOpenAICompatProvider(cfg), nil
}

func (r *Registry) buildPool(data map[string]any) (Provider, error) {
	rawMembers, _ := data["members"].([]any)
	members := make([]PoolMember, 0, len(rawMembers))
	for i, rm := range rawMembers {
		mdata, ok := rm.(map[string]any)
		if !ok {
			continue
		}
		sub, err := r.buildOpenAICompat(mdata)
		if err != nil {
			return nil, fmt.Errorf("pool member %d: %w", i, err)
		}
		id := strVal(mdata, "id")
		if id == "" {
			id = fmt.Sprintf("member-%d", i)
		}
		members = append(members, PoolMember{
			ID:       id,
			Provider: sub,
			Weight:   floatVal(mdata, "weight"),
		})
	}
	return NewPoolProvider(members), nil
}

func strVal(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func floatVal(data map[string]any, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func intVal(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func strSliceVal(data map[string]any, key string) []string {
	raw, ok := data[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
