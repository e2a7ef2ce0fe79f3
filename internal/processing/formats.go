// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package processing

import (
	"regexp"
	"strings"
)

var (
	ellipsisDots    = regexp.MustCompile(`\.{3,}`)
	ellipsisFull    = regexp.MustCompile(`。{3,}`)
	straightQuotes  = regexp.MustCompile(`"([^"]*)"`)
	straightSingles = regexp.MustCompile(`'([^']*)'`)
	sentenceEndPunc = regexp.MustCompile(`[。！？!?.…」』”"']\s*$`)
)

var fullToHalfPunct = map[string]string{
	"，": ",", "。": ".", "！": "!", "？": "?",
	"：": ":", "；": ";", "（": "(", "）": ")",
}

// applyFormat dispatches a `format` rule's fixed-vocabulary transform
// name. Names not recognized return text unchanged, matching the
// original's fallthrough. Grounded on RuleProcessor._apply_format;
// ruby_cleaner/punctuation_fixer/kana_fixer/number_fixer/
// traditional_chinese are not ported (their source fixer modules and,
// for traditional_chinese, the opencc dependency, were never part of
// the example corpus — see DESIGN.md).
func applyFormat(name, text string, opts ApplyOptions, ruleOptions map[string]any) string {
	switch name {
	case "restore_protection":
		if opts.Protector != nil {
			return opts.Protector.Restore(text)
		}
		return text

	case "clean_empty", "clean_empty_lines":
		if opts.StrictLineCount {
			return text
		}
		return strings.Join(nonBlankLines(text), "\n")

	case "smart_quotes":
		out := text
		out = strings.ReplaceAll(out, "“", "「")
		out = strings.ReplaceAll(out, "”", "」")
		out = strings.ReplaceAll(out, "‘", "『")
		out = strings.ReplaceAll(out, "’", "』")
		lines := strings.Split(out, "\n")
		for i, line := range lines {
			if strings.Count(line, `"`)%2 == 0 && strings.Count(line, `"`) > 0 {
				line = straightQuotes.ReplaceAllString(line, "「$1」")
			}
			if strings.Count(line, "'")%2 == 0 && strings.Count(line, "'") > 0 {
				line = straightSingles.ReplaceAllString(line, "『$1』")
			}
			lines[i] = line
		}
		return strings.Join(lines, "\n")

	case "ellipsis":
		out := ellipsisDots.ReplaceAllString(text, "……")
		out = ellipsisFull.ReplaceAllString(out, "……")
		return out

	case "full_to_half_punct":
		out := text
		for k, v := range fullToHalfPunct {
			out = strings.ReplaceAll(out, k, v)
		}
		return out

	case "ensure_single_newline":
		if opts.StrictLineCount {
			return text
		}
		return strings.Join(trimmedNonBlankLines(text), "\n")

	case "ensure_double_newline":
		if opts.StrictLineCount {
			return text
		}
		return strings.Join(trimmedNonBlankLines(text), "\n\n")

	case "merge_short_lines":
		if opts.StrictLineCount {
			return text
		}
		return mergeShortLines(text)

	default:
		return text
	}
}

func nonBlankLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

func trimmedNonBlankLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, strings.TrimRight(line, " \t\r"))
		}
	}
	return out
}

// mergeShortLines joins a short line lacking sentence-final punctuation
// into the following line, a heuristic tuned for CJK prose reflowed
// across narrow source lines. Grounded on
// RuleProcessor._apply_format's merge_short_lines branch.
func mergeShortLines(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) == 0 {
		return text
	}

	var merged []string
	current := ""

	for _, line := range lines {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			if current != "" {
				merged = append(merged, current)
				current = ""
			}
			merged = append(merged, "")
			continue
		}
		if current == "" {
			current = line
			continue
		}
		isShort := len([]rune(strings.TrimSpace(current))) < 15
		endsWithPunc := sentenceEndPunc.MatchString(strings.TrimRight(current, " \t\r"))
		if isShort && !endsWithPunc {
			current += stripped
		} else {
			merged = append(merged, current)
			current = line
		}
	}
	if current != "" {
		merged = append(merged, current)
	}
	return strings.Join(merged, "\n")
}
