// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model holds the data contracts shared across the translation
// pipeline: the Item/TextBlock collaborator surface, profile references,
// and the provider request/response/error shapes.
package model

import "time"

// Item is a single translatable unit handed to the runner by a document
// collaborator (SRT/ASS/EPUB/plain-text decoder, or any caller). The
// runner never decodes a document format itself — it only consumes Items.
type Item struct {
	Index int    // position in the source document, 0-based
	Text  string // raw source text for this item
	// Meta carries collaborator-supplied context (e.g. subtitle cue index,
	// paragraph id) that chunk policies may preserve on the resulting block.
	Meta map[string]any
}

// TextBlock is a unit of work dispatched to a provider: a contiguous run
// of one or more Items merged by a chunk policy.
type TextBlock struct {
	Index      int            // block position in the run, 0-based
	Text       string         // merged source text sent to the provider
	ItemStart  int            // first source item index covered
	ItemEnd    int             // last source item index covered (inclusive)
	LineCount  int            // number of newline-delimited lines in Text
	CharCount  int            // rune count of Text
	Meta       map[string]any // merged/propagated metadata (set only when policy preserves it)
}

func NewTextBlock(index int, text string, itemStart, itemEnd int) TextBlock {
	return TextBlock{
		Index:     index,
		Text:      text,
		ItemStart: itemStart,
		ItemEnd:   itemEnd,
		LineCount: CountLines(text),
		CharCount: len([]rune(text)),
	}
}

// CountLines returns the number of newline characters plus one, or zero
// for an empty string. Unlike Python's str.splitlines(), a trailing
// newline counts as one more (empty) line: "a\n" counts 2.
func CountLines(text string) int {
	if text == "" {
		return 0
	}
	n := 1
	for _, r := range text {
		if r == '\n' {
			n++
		}
	}
	return n
}

// ProfileRef identifies a profile by kind and id, as referenced from a
// pipeline profile or CLI flag.
type ProfileRef struct {
	Kind string // api | prompt | parser | policy | chunk | pipeline
	ID   string
}

// ProviderRequest is the normalized shape sent to a provider's Send call.
type ProviderRequest struct {
	Messages    []ChatMessage
	Model       string
	Temperature float64
	MaxTokens   int
	Stop        []string
	EndpointID  string // read by PoolProvider to pin the request to one member; the pipeline runner does not set it
}

type ChatMessage struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// ProviderResponse is the normalized shape returned by a provider.
type ProviderResponse struct {
	Text         string
	InputTokens  int
	OutputTokens int
	Ping         time.Duration // round-trip latency of this request
	Raw          map[string]any
}

// ProviderError classifies a provider failure for the adaptive
// concurrency controller and the pipeline runner's retry loop.
type ProviderError struct {
	StatusCode int
	Message    string
	Retryable  bool
}

func (e *ProviderError) Error() string { return e.Message }

// CacheBlock is the persisted shape of one translated block in the
// translation cache file.
type CacheBlock struct {
	Index        int            `json:"index"`
	Src          string         `json:"src"`
	Dst          string         `json:"dst"`
	Status       string         `json:"status"` // "done" | "edited" | "error"
	SrcLines     int            `json:"srcLines"`
	DstLines     int            `json:"dstLines"`
	SrcChars     int            `json:"srcChars"`
	DstChars     int            `json:"dstChars"`
	RetryHistory []RetryRecord  `json:"retryHistory,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
}

type RetryRecord struct {
	Attempt int    `json:"attempt"`
	Type    string `json:"type"`
	Message string `json:"message"`
}
