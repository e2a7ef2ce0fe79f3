// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package processing

import (
	"bytes"
	"log/slog"
	"regexp"
	"strings"
	"text/template"
)

// Rule is one pre/post-processing rule entry, decoded from a profile's
// `rules_pre`/`rules_post` YAML list.
type Rule struct {
	Type        string
	Pattern     string
	Replacement string
	Script      string
	Options     map[string]any
	Active      bool
}

func isActive(r Rule) bool { return r.Active }

// RuleEngine applies an ordered list of rules to text. Supported rule
// types: replace, regex, format (a fixed vocabulary of named
// transforms), script (a text/template expansion — the Go-idiomatic
// stand-in for the original's sandboxed user Python scripts, since no
// scripting/sandboxing library appears anywhere in the example corpus),
// and protect (a config-only marker consumed by processor.go, not
// mutated here). Grounded on rule_processor.RuleProcessor in full.
type RuleEngine struct {
	Rules []Rule
}

func NewRuleEngine(rules []Rule) *RuleEngine {
	return &RuleEngine{Rules: rules}
}

// ApplyOptions configures one Process call.
type ApplyOptions struct {
	SrcText         string
	Protector       *Protector
	StrictLineCount bool
}

// Process applies every active rule to text in order, skipping any rule
// whose result would change the line count while StrictLineCount is
// set (protecting EPUB/SRT-shaped content with positional structure).
// A rule that errors is logged and skipped rather than aborting the
// whole pass, matching the original's per-rule try/except.
func (p *RuleEngine) Process(text string, opts ApplyOptions) string {
	if text == "" {
		return text
	}

	current := text
	originalLineCount := strings.Count(text, "\n") + 1

	for _, rule := range p.Rules {
		if !isActive(rule) {
			continue
		}

		var next string
		var changed bool

		switch rule.Type {
		case "replace":
			if rule.Pattern == "" {
				continue
			}
			next = strings.ReplaceAll(current, rule.Pattern, rule.Replacement)
			changed = true

		case "regex":
			if rule.Pattern == "" {
				continue
			}
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				slog.Warn("processing rule: invalid regex", "pattern", rule.Pattern, "error", err)
				continue
			}
			next = re.ReplaceAllString(current, goReplacement(rule.Replacement))
			changed = true

		case "protect":
			continue

		case "format":
			next = applyFormat(rule.Pattern, current, opts, rule.Options)
			changed = true

		case "script":
			script := rule.Script
			if script == "" {
				script = rule.Pattern
			}
			if script == "" {
				continue
			}
			result, err := runScript(script, current, opts.SrcText)
			if err != nil {
				slog.Warn("processing rule: script failed", "error", err)
				continue
			}
			next = result
			changed = true
		}

		if changed {
			if opts.StrictLineCount && strings.Count(next, "\n")+1 != originalLineCount {
				slog.Warn("processing rule: skipped in strict line-count mode", "type", rule.Type, "pattern", rule.Pattern)
				continue
			}
			current = next
		}
	}

	return current
}

// goReplacement converts a Python `\1`-style backreference template
// into Go regexp's `$1` syntax, the one capture-group idiom difference
// between the two replacement languages used by `regex` rules.
func goReplacement(repl string) string {
	re := regexp.MustCompile(`\\(\d+)`)
	return re.ReplaceAllString(repl, "$$$1")
}

// runScript expands a user-supplied text/template script against the
// current and source text, restricted to a small function set (no file,
// network, or process access) since Go has no equivalent of the
// original's sandboxed Python interpreter.
func runScript(script, text, srcText string) (string, error) {
	funcs := template.FuncMap{
		"upper":       strings.ToUpper,
		"lower":       strings.ToLower,
		"trim":        strings.TrimSpace,
		"replace":     func(old, new, s string) string { return strings.ReplaceAll(s, old, new) },
		"contains":    strings.Contains,
		"hasPrefix":   strings.HasPrefix,
		"hasSuffix":   strings.HasSuffix,
		"trimPrefix":  strings.TrimPrefix,
		"trimSuffix":  strings.TrimSuffix,
		"split":       strings.Split,
		"join":        strings.Join,
		"repeat":      strings.Repeat,
	}
	tmpl, err := template.New("script").Funcs(funcs).Parse(script)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	data := map[string]string{"Text": text, "Source": srcText}
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
