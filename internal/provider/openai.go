// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/kraklabs/translate/internal/model"
)

const defaultTimeout = 60 * time.Second

// versionSegment matches a `/v<digits>` path segment, used to detect a
// base URL that already targets a specific API version. Mirrors
// _VERSION_SEGMENT.
var versionSegment = regexp.MustCompile(`/v\d+(?:/|$)`)

// OpenAICompatConfig describes an `api` profile of type openai_compat.
type OpenAICompatConfig struct {
	ID          string
	BaseURL     string
	Model       string
	APIKeys     []string
	RPM         float64
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// OpenAICompatProvider talks to any OpenAI-chat-completions-compatible
// HTTP endpoint. Grounded on providers/openai_compat.py in full.
type OpenAICompatProvider struct {
	cfg     OpenAICompatConfig
	client  *http.Client
	keys    *keyRotator
	limiter *rpmLimiter
	url     string
}

func NewOpenAICompatProvider(cfg OpenAICompatConfig) *OpenAICompatProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &OpenAICompatProvider{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout},
		keys:    newKeyRotator(cfg.APIKeys),
		limiter: newRPMLimiter(cfg.RPM),
		url:     buildURL(cfg.BaseURL),
	}
}

// normalizeBaseURL strips a trailing slash and decides whether a bare
// base URL needs a default /v1 appended: a base with no path (or just
// "/") gets /v1, while any base that already carries a path — whether
// it ends in /v1, contains another /v<digits> version segment, or is
// some other custom prefix entirely — is left exactly as the caller
// wrote it, so buildURL never double-appends a version onto a
// caller-supplied one. Mirrors _normalize_base_url.
func normalizeBaseURL(base string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(base), "/")
	if trimmed == "" {
		return trimmed
	}
	if strings.HasSuffix(trimmed, "/v1/chat/completions") {
		return strings.TrimSuffix(trimmed, "/chat/completions")
	}
	path := ""
	if u, err := url.Parse(trimmed); err == nil {
		path = strings.ToLower(u.Path)
	}
	switch {
	case path == "" || path == "/":
		return trimmed + "/v1"
	case strings.HasSuffix(path, "/v1"), versionSegment.MatchString(path), strings.Contains(path, "/openapi"):
		return trimmed
	default:
		return trimmed
	}
}

// buildURL appends the standard chat-completions path unless the base
// URL already ends in a /chat/completions-shaped path. Mirrors
// _build_url.
func buildURL(base string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(base), "/")
	if trimmed == "" {
		return ""
	}
	if strings.HasSuffix(trimmed, "/chat/completions") {
		return trimmed
	}
	return normalizeBaseURL(trimmed) + "/chat/completions"
}

func (p *OpenAICompatProvider) Send(ctx context.Context, req model.ProviderRequest) (*model.ProviderResponse, error) {
	if err := p.limiter.wait(ctx); err != nil {
		return nil, &model.ProviderError{Message: fmt.Sprintf("rate limiter cancelled: %v", err), Retryable: false}
	}

	stop := req.Stop
	if len(stop) == 0 {
		stop = defaultStop()
	}
	model_ := req.Model
	if model_ == "" {
		model_ = p.cfg.Model
	}
	temp := req.Temperature
	if temp == 0 {
		temp = p.cfg.Temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.cfg.MaxTokens
	}

	messages := make([]map[string]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, map[string]string{"role": m.Role, "content": m.Content})
	}

	body := map[string]any{
		"model":       model_,
		"messages":    messages,
		"stop":        stop,
		"temperature": temp,
	}
	if maxTokens > 0 {
		body["max_tokens"] = maxTokens
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &model.ProviderError{Message: fmt.Sprintf("encode request: %v", err), Retryable: false}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return nil, &model.ProviderError{Message: fmt.Sprintf("build request: %v", err), Retryable: false}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if key := p.keys.take(); key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+key)
	}

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &model.ProviderError{Message: fmt.Sprintf("request failed: %v", err), Retryable: true}
	}
	defer resp.Body.Close()
	ping := time.Since(start)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &model.ProviderError{Message: fmt.Sprintf("read response: %v", err), Retryable: true}
	}

	if resp.StatusCode >= 400 {
		return nil, &model.ProviderError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("provider returned %d: %s", resp.StatusCode, truncate(string(raw), 500)),
			Retryable:  resp.StatusCode == 429 || resp.StatusCode >= 500,
		}
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &model.ProviderError{Message: fmt.Sprintf("decode response: %v", err), Retryable: false}
	}
	if len(decoded.Choices) == 0 {
		return nil, &model.ProviderError{Message: "provider response had no choices", Retryable: true}
	}

	var rawMap map[string]any
	_ = json.Unmarshal(raw, &rawMap)

	return &model.ProviderResponse{
		Text:         decoded.Choices[0].Message.Content,
		InputTokens:  decoded.Usage.PromptTokens,
		OutputTokens: decoded.Usage.CompletionTokens,
		Ping:         ping,
		Raw:          rawMap,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
