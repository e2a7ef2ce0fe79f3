// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package prompt implements the Prompt Builder: single-pass `{{token}}`
// template expansion and chat message assembly. Grounded on
// prompts/builder.py in full.
package prompt

import (
	"regexp"
	"strings"

	"github.com/kraklabs/translate/internal/model"
)

var tokenPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Profile is the decoded shape of a `prompt` profile.
type Profile struct {
	Persona      string
	StyleRules   string
	OutputRules  string
	SystemTemplate string
	UserTemplate   string
}

// render performs a single regex pass substituting every `{{token}}`
// occurrence from vars, leaving unknown tokens untouched. A single
// ReplaceAllStringFunc call guarantees no re-scanning of substituted
// content, matching the original's single-pass invariant.
func render(template string, vars map[string]string) string {
	if template == "" {
		return ""
	}
	return tokenPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := tokenPattern.FindStringSubmatch(match)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return match
	})
}

// BuildMessages assembles the chat message list for a source block.
// The system message is the persona/style/output-rules/system-template
// sections joined by blank lines (omitting any that render empty); the
// user message is the rendered user template, or — if no template
// produced any output — the raw unrendered source text as the sole user
// message, matching the original's fallback.
func BuildMessages(p Profile, vars map[string]string, sourceText string) []model.ChatMessage {
	sections := []string{}
	for _, s := range []string{p.Persona, p.StyleRules, p.OutputRules, render(p.SystemTemplate, vars)} {
		if strings.TrimSpace(s) != "" {
			sections = append(sections, strings.TrimSpace(s))
		}
	}

	var messages []model.ChatMessage
	if len(sections) > 0 {
		messages = append(messages, model.ChatMessage{
			Role:    "system",
			Content: strings.Join(sections, "\n\n"),
		})
	}

	userContent := render(p.UserTemplate, vars)
	if strings.TrimSpace(userContent) == "" {
		userContent = sourceText
	}
	messages = append(messages, model.ChatMessage{Role: "user", Content: userContent})

	return messages
}
