// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package processing implements the Processing & Protector module: the
// pre/post rule engine, glossary/rule loading, and the text protector
// that shields non-translatable spans (tags, placeholders) across a
// round trip through the model. Grounded on rule_processor.py and
// murasaki_flow_v2/utils/processing.py in full; the protector pattern
// lists are a designed default per SPEC_FULL.md §9.3 (the source
// murasaki_translator.core.text_protector module was not available to
// ground against).
package processing

import (
	"fmt"
	"regexp"
)

// DefaultPatterns shields common machine-readable placeholders:
// double-brace template vars, HTML/XML-ish tags, bracketed identifiers,
// printf-style named/positional specifiers, and brace-style format
// fields.
var DefaultPatterns = []string{
	`\{\{[^{}]+\}\}`,
	`<[^<>]+>`,
	`\[[A-Za-z_][\w]*\]`,
	`%\([\w]+\)s`,
	`\{[\w.]+\}`,
	`%[sd]`,
}

// SubtitlePatterns shields only inline subtitle markup, for content
// whose source format is line-oriented dialogue rather than tagged
// markup in running prose.
var SubtitlePatterns = []string{
	`<[ibu]>|</[ibu]>|<font[^>]*>|</font>`,
}

// Protector replaces each pattern match with a stable numbered
// placeholder token before the text is sent to a provider, then
// restores the original spans once translated output comes back.
type Protector struct {
	patterns []*regexp.Regexp
	spans    []string
}

// NewProtector compiles the given pattern list, skipping any pattern
// that fails to compile rather than aborting construction.
func NewProtector(patterns []string) *Protector {
	p := &Protector{}
	for _, pat := range patterns {
		if re, err := regexp.Compile(pat); err == nil {
			p.patterns = append(p.patterns, re)
		}
	}
	return p
}

// Protect replaces every match of every configured pattern with a
// placeholder token (`\x00PROTECT<n>\x00`), recording the original span
// so Restore can reverse it. Patterns are applied one after another in
// list order, each over the output of the previous one, so a later
// pattern does see earlier placeholders; the DefaultPatterns do not
// match the placeholder form.
func (p *Protector) Protect(text string) string {
	if p == nil || len(p.patterns) == 0 {
		return text
	}
	out := text
	for _, re := range p.patterns {
		out = re.ReplaceAllStringFunc(out, func(match string) string {
			idx := len(p.spans)
			p.spans = append(p.spans, match)
			return placeholder(idx)
		})
	}
	return out
}

// Restore replaces every placeholder token back with its original
// span. Safe to call on text that contains no placeholders.
func (p *Protector) Restore(text string) string {
	if p == nil || len(p.spans) == 0 {
		return text
	}
	out := text
	for idx, span := range p.spans {
		out = regexp.MustCompile(regexp.QuoteMeta(placeholder(idx))).ReplaceAllLiteralString(out, span)
	}
	return out
}

func placeholder(idx int) string {
	return fmt.Sprintf("\x00PROTECT%d\x00", idx)
}
