// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package processing

// LoadRules decodes a `pipeline` profile's rules_pre/rules_post field
// (a YAML list of rule maps) into typed Rule values, skipping any
// non-map entries. Grounded on
// murasaki_flow_v2.utils.processing.load_rules.
func LoadRules(spec any) []Rule {
	raw, ok := spec.([]any)
	if !ok {
		return nil
	}
	rules := make([]Rule, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		r := Rule{
			Type:        strField(m, "type"),
			Pattern:     strField(m, "pattern"),
			Replacement: strField(m, "replacement"),
			Script:      strField(m, "script"),
			Active:      true,
		}
		if v, ok := m["active"].(bool); ok {
			r.Active = v
		}
		if opts, ok := m["options"].(map[string]any); ok {
			r.Options = opts
		}
		rules = append(rules, r)
	}
	return rules
}

// LoadGlossary decodes a `pipeline` profile's glossary field, which may
// be a map of src->dst strings or a list of {src,dst} (or jp/zh,
// original/translation) entries. Grounded on
// murasaki_flow_v2.utils.processing.load_glossary.
func LoadGlossary(spec any) map[string]string {
	out := map[string]string{}
	switch v := spec.(type) {
	case map[string]any:
		for k, val := range v {
			if k == "" {
				continue
			}
			if s := toString(val); s != "" {
				out[k] = s
			}
		}
	case []any:
		for _, entry := range v {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			src := firstNonEmpty(m, "src", "jp", "original")
			dst := firstNonEmpty(m, "dst", "zh", "translation")
			if src != "" && dst != "" {
				out[src] = dst
			}
		}
	}
	return out
}

func strField(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func firstNonEmpty(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s := toString(v); s != "" {
				return s
			}
		}
	}
	return ""
}
