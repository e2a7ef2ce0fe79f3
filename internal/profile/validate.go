// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package profile

import "fmt"

// ValidationResult collects structural errors (which make a profile
// unusable) and warnings (soft issues, e.g. a dangling reference).
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

func (r ValidationResult) OK() bool { return len(r.Errors) == 0 }

func (r *ValidationResult) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func str(data map[string]any, key string) string {
	if v, ok := data[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func exists(store *Store, kind, ref string) bool {
	if store == nil || ref == "" {
		return false
	}
	_, err := store.ResolveProfilePath(kind, ref)
	return err == nil
}

// Validate replicates the original validate_profile: per-kind required
// field checks (hard errors) plus soft reference-existence checks
// (warnings only) when a Store is supplied.
func Validate(kind string, data map[string]any, store *Store) ValidationResult {
	var result ValidationResult
	if data == nil {
		result.addError("invalid_yaml")
		return result
	}
	if str(data, "id") == "" {
		result.addError("missing_id")
	}

	switch kind {
	case KindAPI:
		apiType := str(data, "type")
		if apiType == "" {
			apiType = str(data, "provider")
		}
		if apiType == "" {
			apiType = "openai_compat"
		}
		switch apiType {
		case "openai_compat":
			if str(data, "base_url") == "" {
				result.addError("missing_base_url")
			}
			if str(data, "model") == "" {
				result.addError("missing_model")
			}
		case "pool":
			members, ok := data["members"].([]any)
			if !ok || len(members) == 0 {
				result.addError("missing_members")
			}
		default:
			result.addWarning("unsupported_type:%s", apiType)
		}

	case KindParser:
		parserType := str(data, "type")
		if parserType == "" {
			result.addError("missing_field:type")
		}
		if parserType == "regex" {
			opts, _ := data["options"].(map[string]any)
			if opts == nil || str(opts, "pattern") == "" {
				result.addError("missing_pattern")
			}
		}
		if parserType == "json_object" {
			opts, _ := data["options"].(map[string]any)
			if opts == nil || (str(opts, "path") == "" && str(opts, "key") == "") {
				result.addError("missing_json_path")
			}
		}

	case KindPolicy:
		policyType := str(data, "type")
		if policyType == "" {
			result.addError("missing_field:type")
		} else if policyType != "strict" && policyType != "tolerant" {
			result.addWarning("unsupported_type:%s", policyType)
		}

	case KindChunk:
		chunkType := str(data, "chunk_type")
		if chunkType == "" {
			chunkType = str(data, "type")
		}
		if chunkType == "" {
			result.addError("missing_field:chunk_type")
		} else if chunkType != "legacy" && chunkType != "line" {
			result.addWarning("unsupported_type:%s", chunkType)
		}

	case KindPipeline:
		for _, field := range []string{"provider", "prompt", "parser", "chunk_policy"} {
			if str(data, field) == "" {
				result.addError("missing_field:%s", field)
			}
		}
		if applyLinePolicy, _ := data["apply_line_policy"].(bool); applyLinePolicy {
			if str(data, "line_policy") == "" {
				result.addError("missing_field:line_policy")
			}
		}

		if store != nil {
			refMap := map[string]string{
				"provider":     KindAPI,
				"prompt":       KindPrompt,
				"parser":       KindParser,
				"line_policy":  KindPolicy,
				"chunk_policy": KindChunk,
			}
			for field, refKind := range refMap {
				refID := str(data, field)
				if refID != "" && !exists(store, refKind, refID) {
					result.addWarning("missing_reference:%s:%s", refKind, refID)
				}
			}
		}
	}

	return result
}
