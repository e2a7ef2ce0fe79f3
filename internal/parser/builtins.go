// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package parser

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// PlainParser passes the response through with surrounding newlines
// trimmed, preserving internal blank lines.
type PlainParser struct{}

func (p *PlainParser) Parse(text string) (Output, error) {
	cleaned := strings.Trim(text, "\n")
	return Output{Text: cleaned, Lines: splitLinesKeepEmpty(cleaned)}, nil
}

// LineStrictParser enforces that a response is a single logical line,
// with a configurable policy for handling extras.
type LineStrictParser struct {
	MultiLine string // "join" (default), "first", "error"
}

func (p *LineStrictParser) Parse(text string) (Output, error) {
	lines := splitLinesKeepEmpty(strings.Trim(text, "\n"))
	if len(lines) <= 1 {
		if len(lines) == 0 {
			return Output{Text: "", Lines: []string{""}}, nil
		}
		return Output{Text: lines[0], Lines: lines}, nil
	}

	switch p.MultiLine {
	case "first":
		return Output{Text: lines[0], Lines: []string{lines[0]}}, nil
	case "error":
		return Output{}, newError("LineStrictParser: multiple lines detected")
	default:
		var joined string
		if p.MultiLine == "" || p.MultiLine == "join" {
			kept := make([]string, 0, len(lines))
			for _, l := range lines {
				if strings.TrimSpace(l) != "" {
					kept = append(kept, l)
				}
			}
			joined = strings.Join(kept, " ")
		} else {
			joined = strings.Join(lines, "\n")
		}
		return Output{Text: joined, Lines: []string{joined}}, nil
	}
}

// JSONArrayParser expects a JSON array of strings/values, one per line.
type JSONArrayParser struct{}

func (p *JSONArrayParser) Parse(text string) (Output, error) {
	var data []any
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return Output{}, newError("JsonArrayParser: invalid JSON")
	}
	lines := make([]string, len(data))
	for i, v := range data {
		lines[i] = toStr(v)
	}
	return Output{Text: strings.Join(lines, "\n"), Lines: lines}, nil
}

// TaggedLineParser extracts lines carrying a positional tag, e.g.
// "@@3@@translated text", discarding non-matching lines.
type TaggedLineParser struct {
	Pattern string
}

func (p *TaggedLineParser) Parse(text string) (Output, error) {
	re, err := regexp.Compile(p.Pattern)
	if err != nil {
		return Output{}, newError("TaggedLineParser: invalid pattern: %v", err)
	}
	textGroup := re.SubexpIndex("text")
	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		m := re.FindStringSubmatch(strings.TrimSpace(raw))
		if m == nil {
			continue
		}
		if textGroup >= 0 {
			lines = append(lines, m[textGroup])
		} else if len(m) > 1 {
			lines = append(lines, m[len(m)-1])
		} else {
			lines = append(lines, m[0])
		}
	}
	if len(lines) == 0 {
		return Output{}, newError("TaggedLineParser: no tagged lines found")
	}
	return Output{Text: strings.Join(lines, "\n"), Lines: lines}, nil
}

// RegexParser extracts a single capture group from the first pattern
// match in the response.
type RegexParser struct {
	Pattern    string
	Group      int
	MultiLine  bool
	DotAll     bool
	IgnoreCase bool
}

func (p *RegexParser) Parse(text string) (Output, error) {
	var flags string
	if p.MultiLine {
		flags += "m"
	}
	if p.DotAll {
		flags += "s"
	}
	if p.IgnoreCase {
		flags += "i"
	}
	pattern := p.Pattern
	if flags != "" {
		pattern = "(?" + flags + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Output{}, newError("RegexParser: invalid pattern: %v", err)
	}
	m := re.FindStringSubmatch(text)
	if m == nil {
		return Output{}, newError("RegexParser: pattern not matched")
	}
	if p.Group < 0 || p.Group >= len(m) {
		return Output{}, newError("RegexParser: invalid group")
	}
	cleaned := strings.Trim(m[p.Group], "\n")
	return Output{Text: cleaned, Lines: splitLinesKeepEmpty(cleaned)}, nil
}

// JSONObjectParser extracts a value at a dotted path (or integer index
// for array segments) out of a JSON object response.
type JSONObjectParser struct {
	Path string
}

func (p *JSONObjectParser) Parse(text string) (Output, error) {
	var data any
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return Output{}, newError("JsonObjectParser: invalid JSON")
	}
	if _, ok := data.(map[string]any); !ok {
		return Output{}, newError("JsonObjectParser: expected JSON object")
	}
	value, err := getByPath(data, p.Path)
	if err != nil {
		return Output{}, err
	}
	cleaned := strings.Trim(toStr(value), "\n")
	return Output{Text: cleaned, Lines: splitLinesKeepEmpty(cleaned)}, nil
}

func getByPath(data any, path string) (any, error) {
	current := data
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}
		switch c := current.(type) {
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil {
				return nil, newError("JsonObjectParser: list index must be int")
			}
			if idx < 0 || idx >= len(c) {
				return nil, newError("JsonObjectParser: list index out of range")
			}
			current = c[idx]
		case map[string]any:
			v, ok := c[part]
			if !ok {
				return nil, newError("JsonObjectParser: key not found")
			}
			current = v
		default:
			return nil, newError("JsonObjectParser: invalid path segment")
		}
	}
	return current, nil
}

func toStr(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return "None"
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
