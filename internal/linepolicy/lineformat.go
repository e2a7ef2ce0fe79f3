// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package linepolicy

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var (
	codeFenceMarkers = []string{"```", "'''", `"""`}
	codeFenceBlocks  = []*regexp.Regexp{
		regexp.MustCompile(`(?is)` + "```" + `(?:jsonl|json|text)?\s*(.*?)` + "```"),
		regexp.MustCompile(`(?is)'''(?:jsonl|json|text)?\s*(.*?)'''`),
		regexp.MustCompile(`(?is)"""(?:jsonl|json|text)?\s*(.*?)"""`),
	}
	defaultTaggedPattern = regexp.MustCompile(`^@@(?P<id>\d+)@@(?P<text>.*)$`)
)

// stripCodeFence mirrors _strip_code_fence: prefer the contents of the
// first fenced block found anywhere in the text, falling back to
// stripping a fence that wraps the entire trimmed string.
func stripCodeFence(text string) string {
	cleaned := strings.TrimSpace(text)
	for _, pattern := range codeFenceBlocks {
		if m := pattern.FindStringSubmatch(cleaned); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	for _, marker := range codeFenceMarkers {
		if strings.HasPrefix(cleaned, marker) && strings.HasSuffix(cleaned, marker) && len(cleaned) >= 2*len(marker) {
			return strings.TrimSpace(cleaned[len(marker) : len(cleaned)-len(marker)])
		}
	}
	return cleaned
}

// extractFirstJSONBlock scans for the first balanced {...} or [...]
// span, respecting quoted strings and escapes, mirroring
// _extract_first_json_block.
func extractFirstJSONBlock(text string) string {
	if text == "" {
		return ""
	}
	runes := []rune(text)
	start := -1
	var stack []rune
	inStr := false
	escape := false

	for idx, ch := range runes {
		if inStr {
			switch {
			case escape:
				escape = false
			case ch == '\\':
				escape = true
			case ch == '"':
				inStr = false
			}
			continue
		}
		if ch == '"' {
			inStr = true
			continue
		}
		switch ch {
		case '{', '[':
			if len(stack) == 0 {
				start = idx
			}
			stack = append(stack, ch)
		case '}', ']':
			if len(stack) == 0 {
				continue
			}
			opening := stack[len(stack)-1]
			if (opening == '{' && ch == '}') || (opening == '[' && ch == ']') {
				stack = stack[:len(stack)-1]
				if len(stack) == 0 && start != -1 {
					return string(runes[start : idx+1])
				}
			} else {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return ""
}

func tryParseJSON(text string) (any, bool) {
	cleaned := stripCodeFence(text)
	candidates := []string{cleaned}
	if extracted := extractFirstJSONBlock(cleaned); extracted != "" && extracted != cleaned {
		candidates = append(candidates, extracted)
	}
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(candidate), &v); err == nil {
			return v, true
		}
	}
	return nil, false
}

var entryIDKeys = []string{"id", "line", "line_id", "line_number", "index"}
var entryTextKeys = []string{"text", "translation", "value", "output"}

// extractEntryFromDict mirrors _extract_entry_from_dict: a lone
// non-text-keyed field is treated as {key: value}; otherwise an id-like
// key paired with a text-like key forms the entry.
func extractEntryFromDict(data map[string]any) (id string, value string, ok bool) {
	if len(data) == 1 {
		for k, v := range data {
			if !containsFold(entryTextKeys, k) {
				return k, stringify(v), true
			}
		}
	}

	var lineID any
	found := false
	for _, key := range entryIDKeys {
		if v, present := data[key]; present {
			lineID, found = v, true
			break
		}
	}
	if found {
		for _, key := range entryTextKeys {
			if v, present := data[key]; present {
				return stringify(lineID), stringify(v), true
			}
		}
	}
	return "", "", false
}

func containsFold(keys []string, k string) bool {
	for _, key := range keys {
		if strings.EqualFold(key, k) {
			return true
		}
	}
	return false
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// ParseJSONLEntries scans a free-form response line by line looking for
// JSONL-shaped entries (one JSON object or array per line), returning
// an id-keyed map and a positionally ordered list. The per-line scan can
// fill both (id-keyed objects go to the map, arrays and objects with
// only a translation/text field go to the list); the whole text is
// parsed as a single JSON value only when the scan found nothing. Grounded on
// parse_jsonl_entries in full.
func ParseJSONLEntries(text string) (entries map[string]string, ordered []string) {
	entries = map[string]string{}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if hasAnyPrefix(line, codeFenceMarkers) {
			continue
		}
		if strings.HasPrefix(strings.ToLower(line), "jsonline") {
			line = strings.TrimSpace(line[len("jsonline"):])
		}
		if line == "" {
			continue
		}
		data, ok := tryParseJSON(line)
		if !ok {
			continue
		}
		switch v := data.(type) {
		case map[string]any:
			if id, value, found := extractEntryFromDict(v); found {
				entries[id] = value
				continue
			}
			for _, key := range []string{"translation", "text"} {
				if val, present := v[key]; present {
					ordered = append(ordered, stringify(val))
					break
				}
			}
		case []any:
			for _, item := range v {
				ordered = append(ordered, stringify(item))
			}
		}
	}

	if len(entries) > 0 || len(ordered) > 0 {
		return entries, ordered
	}

	payload, ok := tryParseJSON(text)
	if !ok {
		return map[string]string{}, nil
	}
	switch v := payload.(type) {
	case map[string]any:
		if id, value, found := extractEntryFromDict(v); found {
			return map[string]string{id: value}, nil
		}
		for _, key := range []string{"translation", "text"} {
			if val, present := v[key]; present {
				return map[string]string{}, []string{stringify(val)}
			}
		}
	case []any:
		out := make([]string, len(v))
		for i, item := range v {
			out[i] = stringify(item)
		}
		return map[string]string{}, out
	}
	return map[string]string{}, nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// ParseTaggedEntries extracts id->text entries out of `@@id@@text`
// shaped lines, using the named `id`/`text` capture groups when the
// pattern defines them, otherwise the first two positional groups.
func ParseTaggedEntries(text string, pattern string) map[string]string {
	compiled := defaultTaggedPattern
	if pattern != "" {
		if re, err := regexp.Compile(pattern); err == nil {
			compiled = re
		}
	}
	idIdx := compiled.SubexpIndex("id")
	textIdx := compiled.SubexpIndex("text")

	entries := map[string]string{}
	for _, raw := range strings.Split(text, "\n") {
		m := compiled.FindStringSubmatch(strings.TrimSpace(raw))
		if m == nil {
			continue
		}
		var lineID, textValue string
		if idIdx >= 0 && idIdx < len(m) {
			lineID = m[idIdx]
		} else if len(m) > 1 {
			lineID = m[1]
		}
		if textIdx >= 0 && textIdx < len(m) {
			textValue = m[textIdx]
		} else if len(m) > 2 {
			textValue = m[2]
		}
		if lineID == "" {
			continue
		}
		entries[lineID] = textValue
	}
	return entries
}

// ExtractLineForPolicy resolves the translated text for one source
// line out of a raw free-form response, trying JSONL entries first (by
// 1-based then 0-based key), then positional JSONL order, then tagged
// lines. Returns ("", false) if nothing matched. Grounded on
// extract_line_for_policy.
func ExtractLineForPolicy(text string, lineIndex int, taggedPattern string) (string, bool) {
	entries, ordered := ParseJSONLEntries(text)
	if len(entries) > 0 {
		key := strconv.Itoa(lineIndex + 1)
		if v, ok := entries[key]; ok {
			return v, true
		}
		altKey := strconv.Itoa(lineIndex)
		if v, ok := entries[altKey]; ok {
			return v, true
		}
	}
	if len(ordered) > 0 {
		if len(ordered) == 1 {
			return ordered[0], true
		}
		if lineIndex < len(ordered) {
			return ordered[lineIndex], true
		}
	}

	tagged := ParseTaggedEntries(text, taggedPattern)
	if len(tagged) > 0 {
		key := strconv.Itoa(lineIndex + 1)
		if v, ok := tagged[key]; ok {
			return v, true
		}
		altKey := strconv.Itoa(lineIndex)
		if v, ok := tagged[altKey]; ok {
			return v, true
		}
	}
	return "", false
}
