// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package parser implements the Parser Layer: built-in strategies for
// extracting structured translated lines out of a raw model response.
// Grounded on parsers/builtins.py in full.
package parser

import (
	"fmt"
	"strings"
)

// Output is the result of parsing a raw model response.
type Output struct {
	Text  string
	Lines []string
}

// Parser extracts structured lines from raw model output text.
type Parser interface {
	Parse(text string) (Output, error)
}

// Error is returned by a Parser when the raw text doesn't match its
// expected shape. The pipeline runner treats it as retryable.
type Error struct {
	msg string
}

func (e *Error) Error() string { return e.msg }

func newError(format string, args ...any) *Error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// splitLinesKeepEmpty mirrors _split_lines_keep_empty: an empty string
// parses as one empty line, never zero lines.
func splitLinesKeepEmpty(text string) []string {
	if text == "" {
		return []string{""}
	}
	return strings.Split(text, "\n")
}

// New builds a Parser from a decoded `parser` profile by its declared
// type, dispatching to the matching built-in.
func New(kind string, options map[string]any) (Parser, error) {
	switch kind {
	case "plain":
		return &PlainParser{}, nil
	case "line_strict":
		return &LineStrictParser{MultiLine: strOpt(options, "multi_line", "join")}, nil
	case "json_array":
		return &JSONArrayParser{}, nil
	case "json_object":
		path := strOpt(options, "path", "")
		if path == "" {
			path = strOpt(options, "key", "")
		}
		if path == "" {
			return nil, newError("json_object parser requires options.path or options.key")
		}
		return &JSONObjectParser{Path: path}, nil
	case "tagged_line":
		return &TaggedLineParser{Pattern: strOpt(options, "pattern", `^@@(?P<id>\d+)@@(?P<text>.*)$`)}, nil
	case "regex":
		pattern := strOpt(options, "pattern", "")
		if strings.TrimSpace(pattern) == "" {
			return nil, newError("regex parser requires options.pattern")
		}
		flagNames := flagSet(options)
		return &RegexParser{
			Pattern:    pattern,
			Group:      intOpt(options, "group", 0),
			MultiLine:  flagNames["multiline"] || boolOpt(options, "multiline"),
			DotAll:     flagNames["dotall"] || boolOpt(options, "dotall"),
			IgnoreCase: flagNames["ignorecase"] || boolOpt(options, "ignorecase"),
		}, nil
	default:
		return nil, fmt.Errorf("unknown parser type %q", kind)
	}
}

func strOpt(options map[string]any, key, def string) string {
	if options == nil {
		return def
	}
	if v, ok := options[key].(string); ok && v != "" {
		return v
	}
	return def
}

func intOpt(options map[string]any, key string, def int) int {
	if options == nil {
		return def
	}
	switch v := options[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

func boolOpt(options map[string]any, key string) bool {
	if options == nil {
		return false
	}
	v, _ := options[key].(bool)
	return v
}

// flagSet parses options.flags, which may be a comma-separated string or
// a list, into a lowercased set of flag names. Mirrors the raw_flags
// normalization in RegexParser.parse.
func flagSet(options map[string]any) map[string]bool {
	out := map[string]bool{}
	if options == nil {
		return out
	}
	switch v := options["flags"].(type) {
	case string:
		for _, f := range strings.Split(v, ",") {
			f = strings.ToLower(strings.TrimSpace(f))
			if f != "" {
				out[f] = true
			}
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out[strings.ToLower(strings.TrimSpace(s))] = true
			}
		}
	}
	return out
}
