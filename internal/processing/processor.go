// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package processing

import (
	"strings"
	"sync"

	"github.com/kraklabs/translate/internal/quality"
)

// Options configures one block's processing pipeline, decoded from a
// `pipeline` profile's `rules_pre`/`rules_post`/`glossary` fields.
// Grounded on murasaki_flow_v2/utils/processing.ProcessingOptions.
type Options struct {
	RulesPre          []Rule
	RulesPost         []Rule
	Glossary          map[string]string
	SourceLang        string
	StrictLineCount   bool
	EnableQuality     bool
	EnableTextProtect bool
}

// Processor runs the pre-rule pass before a block is sent to a
// provider, and the post-rule pass (plus protector restoration and
// advisory quality checks) after a translated block comes back.
// Grounded on murasaki_flow_v2/utils/processing.ProcessingProcessor in
// full.
type Processor struct {
	options Options

	preMu  sync.Mutex
	postMu sync.Mutex

	pre             *RuleEngine
	post            *RuleEngine
	quality         *quality.Checker
	protectPatterns []string
}

// NewProcessor builds a Processor, appending an implicit
// restore_protection post-rule when text protection is enabled and the
// caller's post rules don't already define one.
func NewProcessor(opts Options) *Processor {
	postRules := append([]Rule(nil), opts.RulesPost...)
	if opts.EnableTextProtect {
		hasRestore := false
		for _, r := range postRules {
			if r.Pattern == "restore_protection" {
				hasRestore = true
				break
			}
		}
		if !hasRestore {
			postRules = append(postRules, Rule{Type: "format", Pattern: "restore_protection", Active: true})
		}
	}

	var q *quality.Checker
	if opts.EnableQuality {
		q = quality.NewFromMap(opts.Glossary)
	}

	return &Processor{
		options:         opts,
		pre:             NewRuleEngine(append([]Rule(nil), opts.RulesPre...)),
		post:            NewRuleEngine(postRules),
		quality:         q,
		protectPatterns: buildProtectPatterns(opts.RulesPre, postRules, opts.EnableTextProtect),
	}
}

func (p *Processor) HasPreRules() bool  { return len(p.pre.Rules) > 0 }
func (p *Processor) HasPostRules() bool { return len(p.post.Rules) > 0 }

// EnableQuality reports whether this processor was built with advisory
// quality checking turned on.
func (p *Processor) EnableQuality() bool { return p.options.EnableQuality }

// CreateProtector builds a fresh Protector for one block's round trip,
// or nil if no protection patterns are configured.
func (p *Processor) CreateProtector() *Protector {
	if len(p.protectPatterns) == 0 {
		return nil
	}
	return NewProtector(p.protectPatterns)
}

// ApplyPre runs the pre-rule pass. A mutex serializes access since
// RuleEngine.Process is not safe for unsynchronized concurrent use on
// the same engine (its caller, the pipeline runner, drives many blocks
// concurrently through one shared Processor).
func (p *Processor) ApplyPre(text string) string {
	if !p.HasPreRules() {
		return text
	}
	p.preMu.Lock()
	defer p.preMu.Unlock()
	return p.pre.Process(text, ApplyOptions{StrictLineCount: p.options.StrictLineCount})
}

// ApplyPost runs the post-rule pass, including protector restoration.
func (p *Processor) ApplyPost(text, srcText string, protector *Protector) string {
	if !p.HasPostRules() && protector == nil {
		return text
	}
	p.postMu.Lock()
	defer p.postMu.Unlock()
	return p.post.Process(text, ApplyOptions{
		SrcText:         srcText,
		Protector:       protector,
		StrictLineCount: p.options.StrictLineCount,
	})
}

// CheckQuality runs the advisory quality checker, if enabled. When
// filterEmpty is set, blank lines are removed from both sides before
// comparison.
func (p *Processor) CheckQuality(sourceLines, outputLines []string, filterEmpty bool) []quality.Warning {
	if p.quality == nil {
		return nil
	}
	if filterEmpty {
		sourceLines = filterBlank(sourceLines)
		outputLines = filterBlank(outputLines)
	}
	sourceLang := strings.ToLower(p.options.SourceLang)
	if sourceLang == "" {
		sourceLang = "ja"
	}
	if sourceLang == "jp" {
		sourceLang = "ja"
	}
	return p.quality.CheckOutput(sourceLines, outputLines, sourceLang)
}

func filterBlank(lines []string) []string {
	var out []string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}
