// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package processing

import (
	"encoding/json"
	"strings"
)

// parseProtectPatternLines splits a flat pattern-list text blob into
// additions and removals: a `!pattern` line removes a pattern from the
// base set, a `+pattern` or bare `pattern` line adds one, `#`/`//`
// lines are comments. Grounded on
// murasaki_flow_v2.utils.processing._parse_protect_pattern_lines.
func parseProtectPatternLines(lines []string) (additions, removals []string) {
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "//") {
			continue
		}
		if strings.HasPrefix(line, "!") {
			if pat := strings.TrimSpace(line[1:]); pat != "" {
				removals = append(removals, pat)
			}
			continue
		}
		if strings.HasPrefix(line, "+") {
			line = strings.TrimSpace(line[1:])
		}
		if line != "" {
			additions = append(additions, line)
		}
	}
	return additions, removals
}

// parseProtectPatternPayload decodes a rule option's `patterns` value,
// which may be a JSON list, a JSON-encoded string, or newline-delimited
// text.
func parseProtectPatternPayload(raw any) []string {
	switch v := raw.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s := strings.TrimSpace(toString(item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		stripped := strings.TrimSpace(v)
		if stripped == "" {
			return nil
		}
		var parsed []any
		if err := json.Unmarshal([]byte(stripped), &parsed); err == nil {
			out := make([]string, 0, len(parsed))
			for _, item := range parsed {
				if s := strings.TrimSpace(toString(item)); s != "" {
					out = append(out, s)
				}
			}
			return out
		}
		var out []string
		for _, line := range strings.Split(stripped, "\n") {
			if strings.TrimSpace(line) != "" {
				out = append(out, line)
			}
		}
		return out
	default:
		return nil
	}
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func collectProtectRuleLines(rules []Rule) (enabled bool, lines []string) {
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		if rule.Type == "protect" || rule.Pattern == "text_protect" {
			enabled = true
			if rule.Options != nil {
				lines = append(lines, parseProtectPatternPayload(rule.Options["patterns"])...)
			}
		}
	}
	return enabled, lines
}

func collectLegacyProtectLines(postRules []Rule) []string {
	var lines []string
	for _, rule := range postRules {
		if !rule.Active {
			continue
		}
		if rule.Pattern == "restore_protection" {
			if rule.Options != nil {
				lines = append(lines, parseProtectPatternPayload(rule.Options["customPattern"])...)
			}
		}
	}
	return lines
}

func mergeProtectPatterns(base, additions, removals []string) []string {
	merged := append([]string(nil), base...)
	for _, pat := range additions {
		found := false
		for _, m := range merged {
			if m == pat {
				found = true
				break
			}
		}
		if !found {
			merged = append(merged, pat)
		}
	}
	if len(removals) == 0 {
		return merged
	}
	removeSet := map[string]struct{}{}
	for _, r := range removals {
		removeSet[r] = struct{}{}
	}
	out := merged[:0:0]
	for _, m := range merged {
		if _, skip := removeSet[m]; !skip {
			out = append(out, m)
		}
	}
	return out
}

// buildProtectPatterns assembles the final pattern list a block's
// Protector will use, merging DefaultPatterns with any additions/
// removals declared by `protect`/`text_protect` pre-rules and legacy
// `restore_protection` post-rule options. Grounded on
// murasaki_flow_v2.utils.processing.build_protect_patterns in full.
func buildProtectPatterns(preRules, postRules []Rule, enable bool) []string {
	if !enable {
		return nil
	}
	protectEnabled, protectLines := collectProtectRuleLines(preRules)
	legacyLines := collectLegacyProtectLines(postRules)
	if !protectEnabled && len(legacyLines) == 0 {
		return nil
	}
	additions, removals := parseProtectPatternLines(append(protectLines, legacyLines...))
	return mergeProtectPatterns(DefaultPatterns, additions, removals)
}
