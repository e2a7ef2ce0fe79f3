// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package chunk

import (
	"fmt"
	"strings"

	"github.com/kraklabs/translate/internal/profile"
)

// Policy turns a list of input items into translation-sized blocks.
type Policy interface {
	Chunk(items []Item) []Block
}

// LegacyPolicy wraps the rubber-band chunker for `chunk_type: legacy`
// (or the unqualified `chunk`) chunk profiles.
type LegacyPolicy struct {
	Config RubberBandConfig
}

func (p *LegacyPolicy) Chunk(items []Item) []Block {
	return RubberBand(items, p.Config)
}

// LinePolicy treats each item as an independent 1:1 block, optionally
// keeping blank lines and preserving exact whitespace in strict mode.
// Grounded on chunk_policy.LineChunkPolicy in full.
type LinePolicy struct {
	Strict    bool
	KeepEmpty bool
}

func (p *LinePolicy) Chunk(items []Item) []Block {
	var blocks []Block
	for idx, item := range items {
		line := strings.TrimRight(item.Text, "\n")

		var content string
		if p.Strict {
			content = line
		} else {
			if strings.TrimSpace(line) == "" && !p.KeepEmpty {
				continue
			}
			if p.KeepEmpty {
				content = line
			} else {
				content = strings.TrimSpace(line)
			}
		}

		meta := item.Meta
		if meta == nil {
			meta = idx
		}

		blocks = append(blocks, Block{ID: len(blocks) + 1, Text: content, Metadata: []any{meta}})
	}
	return blocks
}

// New builds a Policy from a decoded `chunk` profile's type/chunk_type
// and options.
func New(kind string, options map[string]any) (Policy, error) {
	switch kind {
	case "legacy", "chunk", "":
		target := intOpt(options, "target_chars", 1000)
		maxChars := intOpt(options, "max_chars", target*2)
		return &LegacyPolicy{Config: RubberBandConfig{
			TargetChars:      target,
			MaxChars:         maxChars,
			EnableBalance:    boolOpt(options, "enable_balance", true),
			BalanceThreshold: floatOpt(options, "balance_threshold", 0.6),
			BalanceRange:     intOpt(options, "balance_count", 3),
		}}, nil
	case "line":
		strict := boolOpt(options, "strict", false)
		return &LinePolicy{
			Strict:    strict,
			KeepEmpty: boolOptDefaultsTo(options, "keep_empty", strict),
		}, nil
	default:
		return nil, fmt.Errorf("unknown chunk policy type %q", kind)
	}
}

func intOpt(options map[string]any, key string, def int) int {
	if options == nil {
		return def
	}
	switch v := options[key].(type) {
	case int:
		if v == 0 {
			return def
		}
		return v
	case float64:
		if v == 0 {
			return def
		}
		return int(v)
	}
	return def
}

func floatOpt(options map[string]any, key string, def float64) float64 {
	if options == nil {
		return def
	}
	switch v := options[key].(type) {
	case float64:
		if v == 0 {
			return def
		}
		return v
	case int:
		return float64(v)
	}
	return def
}

func boolOpt(options map[string]any, key string, def bool) bool {
	if options == nil {
		return def
	}
	if v, ok := options[key].(bool); ok {
		return v
	}
	return def
}

func boolOptDefaultsTo(options map[string]any, key string, def bool) bool {
	if options == nil {
		return def
	}
	if v, ok := options[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Registry resolves `chunk` profile ids into built Policy instances.
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
	data, err := r.store.LoadProfile(profile.KindChunk, ref)
	if err != nil {
		return nil, fmt.Errorf("load chunk profile %q: %w", ref, err)
	}
	kind, _ := data["chunk_type"].(string)
	if kind == "" {
		kind, _ = data["type"].(string)
	}
	options, _ := data["options"].(map[string]any)
	p, err := New(kind, options)
	if err != nil {
		return nil, fmt.Errorf("build chunk policy %q: %w", ref, err)
	}
	if r.cache == nil {
		r.cache = map[string]Policy{}
	}
	r.cache[ref] = p
	return p, nil
}
