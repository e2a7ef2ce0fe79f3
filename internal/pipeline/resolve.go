// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/kraklabs/translate/internal/linepolicy"
	"github.com/kraklabs/translate/internal/parser"
	"github.com/kraklabs/translate/internal/processing"
	"github.com/kraklabs/translate/internal/profile"
)

// resolvePipeline loads every profile a pipeline references and applies
// CLI-level overrides, producing the fully-wired resolvedPipeline the
// run loop dispatches blocks against.
func (r *Runner) resolvePipeline(pipelineData map[string]any, opts Options) (*resolvedPipeline, error) {
	providerRef := strField(pipelineData, "provider")
	promptRef := strField(pipelineData, "prompt")
	parserRef := strField(pipelineData, "parser")
	linePolicyRef := strField(pipelineData, "line_policy")
	chunkPolicyRef := strField(pipelineData, "chunk_policy")

	prov, err := r.providers.GetProvider(providerRef)
	if err != nil {
		return nil, fmt.Errorf("resolve provider %q: %w", providerRef, err)
	}
	providerProfile, _ := r.store.LoadProfile(profile.KindAPI, providerRef)

	promptProfile, err := r.prompts.Get(promptRef)
	if err != nil {
		return nil, fmt.Errorf("resolve prompt %q: %w", promptRef, err)
	}
	promptRaw, _ := r.store.LoadProfile(profile.KindPrompt, promptRef)
	promptContext, _ := promptRaw["context"].(map[string]any)

	var parserInst parser.Parser
	if parserRef != "" {
		p, err := r.parsers.Get(parserRef)
		if err != nil {
			return nil, fmt.Errorf("resolve parser %q: %w", parserRef, err)
		}
		parserInst = p
	}

	var linePol linepolicy.Policy
	if linePolicyRef != "" {
		lp, err := r.linePolicies.Get(linePolicyRef)
		if err != nil {
			return nil, fmt.Errorf("resolve line policy %q: %w", linePolicyRef, err)
		}
		linePol = lp
	}

	chunkPol, err := r.chunkPolicies.Get(chunkPolicyRef)
	if err != nil {
		return nil, fmt.Errorf("resolve chunk policy %q: %w", chunkPolicyRef, err)
	}
	chunkRaw, _ := r.store.LoadProfile(profile.KindChunk, chunkPolicyRef)
	chunkType := strField(chunkRaw, "chunk_type")
	if chunkType == "" {
		chunkType = strField(chunkRaw, "type")
	}

	sourceFormat := strings.ToLower(strField(promptContext, "source_format"))

	applyLinePolicy := linePol != nil && chunkType == "line"
	if applyFlag, ok := pipelineData["apply_line_policy"].(bool); ok && !applyFlag {
		applyLinePolicy = false
	}

	settings, _ := pipelineData["settings"].(map[string]any)
	if settings == nil {
		settings = map[string]any{}
	}

	maxRetries := intField(settings, "max_retries", -1)
	if maxRetries < 0 {
		maxRetries = intField(providerProfile, "max_retries", 3)
	}

	concurrencyVal := intField(settings, "concurrency", -1)
	if concurrencyVal < 0 {
		concurrencyVal = intField(providerProfile, "concurrency", 1)
	}
	useAdaptive := concurrencyVal == 0
	if !useAdaptive {
		if concurrencyVal < 1 {
			concurrencyVal = 1
		}
		if concurrencyVal > MaxConcurrency {
			concurrencyVal = MaxConcurrency
		}
	}

	processingCfg, _ := pipelineData["processing"].(map[string]any)
	processingEnabled := len(processingCfg) > 0

	var glossarySpec any
	if processingCfg != nil {
		glossarySpec = processingCfg["glossary"]
	}
	if glossarySpec == nil {
		glossarySpec = pipelineData["glossary"]
	}
	if opts.GlossaryOverride != "" {
		glossarySpec = opts.GlossaryOverride
	}
	glossaryText := loadGlossaryText(glossarySpec)

	rulesPreSpec := firstNonNil(valueOrNil(processingCfg, "rules_pre"), pipelineData["rules_pre"])
	rulesPostSpec := firstNonNil(valueOrNil(processingCfg, "rules_post"), pipelineData["rules_post"])
	if opts.RulesPreOverride != "" {
		rulesPreSpec = opts.RulesPreOverride
	}
	if opts.RulesPostOverride != "" {
		rulesPostSpec = opts.RulesPostOverride
	}
	if rulesPreSpec != nil || rulesPostSpec != nil {
		processingEnabled = true
	}

	sourceLang := strField(processingCfg, "source_lang")
	if sourceLang == "" {
		sourceLang = "ja"
	}
	if opts.SourceLangOverride != "" {
		sourceLang = opts.SourceLangOverride
	}

	enableQuality := boolField(processingCfg, "enable_quality", false)
	if opts.EnableQuality != nil {
		enableQuality = *opts.EnableQuality
	}
	enableTextProtect := boolField(processingCfg, "text_protect", false)
	if opts.TextProtect != nil {
		enableTextProtect = *opts.TextProtect
	}
	strictLineCount := boolField(processingCfg, "strict_line_count", false)
	if enableQuality || enableTextProtect {
		processingEnabled = true
	}

	var proc *processing.Processor
	if processingEnabled {
		preRules := processing.LoadRules(resolveRuleSpec(rulesPreSpec))
		postRules := processing.LoadRules(resolveRuleSpec(rulesPostSpec))
		glossaryDict := processing.LoadGlossary(glossarySpec)
		if len(preRules) > 0 || len(postRules) > 0 || len(glossaryDict) > 0 || enableTextProtect || enableQuality {
			proc = processing.NewProcessor(processing.Options{
				RulesPre:          preRules,
				RulesPost:         postRules,
				Glossary:          glossaryDict,
				SourceLang:        sourceLang,
				StrictLineCount:   strictLineCount,
				EnableQuality:     enableQuality,
				EnableTextProtect: enableTextProtect,
			})
		}
	}

	return &resolvedPipeline{
		pipeline:        pipelineData,
		pipelineID:      strField(pipelineData, "id"),
		provider:        prov,
		providerProfile: providerProfile,
		providerRef:     providerRef,
		promptProfile:   promptProfile,
		promptContext:   promptContext,
		parser:          parserInst,
		linePolicy:      linePol,
		chunkPolicy:     chunkPol,
		chunkType:       chunkType,
		applyLinePolicy: applyLinePolicy,
		sourceFormat:    sourceFormat,
		settings:        settings,
		maxRetries:      maxRetries,
		concurrency:     concurrencyVal,
		useAdaptive:     useAdaptive,
		processingProc:  proc,
		glossaryText:    glossaryText,
		glossarySpec:    glossarySpec,
	}, nil
}

func valueOrNil(m map[string]any, key string) any {
	if m == nil {
		return nil
	}
	return m[key]
}

func firstNonNil(a, b any) any {
	if a != nil {
		return a
	}
	return b
}

func boolField(m map[string]any, key string, def bool) bool {
	if m == nil {
		return def
	}
	if v, ok := m[key].(bool); ok {
		return v
	}
	return def
}

// resolveRuleSpec accepts an inline rule list (the common case for this
// module's pipeline profiles) or a string. A string naming an existing
// file is read as that file's JSON rule list; any other string is parsed
// as inline JSON, and yields no rules if it is not valid JSON. Rule
// profile ids are not resolved, since no `rule` kind exists in this
// module's profile store.
func resolveRuleSpec(spec any) any {
	s, ok := spec.(string)
	if !ok {
		return spec
	}
	raw := strings.TrimSpace(s)
	if data, err := os.ReadFile(raw); err == nil {
		raw = string(data)
	}
	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil
	}
	return parsed
}

func loadGlossaryText(spec any) string {
	switch v := spec.(type) {
	case nil:
		return ""
	case map[string]any:
		return formatGlossaryMap(v)
	case []any:
		return formatGlossaryList(v)
	case string:
		raw := strings.TrimSpace(v)
		if raw == "" {
			return ""
		}
		if data, err := os.ReadFile(raw); err == nil {
			content := string(data)
			var parsed any
			if err := json.Unmarshal(data, &parsed); err == nil {
				return formatGlossaryAny(parsed)
			}
			return strings.TrimSpace(content)
		}
		var parsed any
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			return formatGlossaryAny(parsed)
		}
		return raw
	default:
		return ""
	}
}

func formatGlossaryAny(v any) string {
	switch t := v.(type) {
	case map[string]any:
		return formatGlossaryMap(t)
	case []any:
		return formatGlossaryList(t)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func formatGlossaryMap(m map[string]any) string {
	var lines []string
	for k, v := range m {
		lines = append(lines, fmt.Sprintf("%s: %v", k, v))
	}
	return strings.Join(lines, "\n")
}

func formatGlossaryList(items []any) string {
	var lines []string
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			lines = append(lines, fmt.Sprintf("%v", item))
			continue
		}
		src := firstString(m, "src", "source")
		dst := firstString(m, "dst", "target")
		if src != "" || dst != "" {
			lines = append(lines, fmt.Sprintf("%s: %s", src, dst))
		}
	}
	return strings.Join(lines, "\n")
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
