// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chunk implements the Chunking Policies module: the legacy
// rubber-band greedy merge with tail balancing, and the 1:1 line
// policy. Grounded on murasaki_translator/core/chunker.py and
// murasaki_flow_v2/policies/chunk_policy.py in full.
package chunk

import (
	"regexp"
	"strings"
)

// Item is one unit of input text carried into chunking, with optional
// caller metadata threaded through to the resulting Block.
type Item struct {
	Text string
	Meta any
}

// Block is one translation-sized unit of text produced by a chunk
// policy, paired with the metadata of the items it absorbed.
type Block struct {
	ID       int
	Text     string
	Metadata []any
}

// safePunctuation lists sentence-final marks the rubber-band chunker
// treats as safe split points.
var safePunctuation = []string{"。", "！", "？", "……", "”", "」", "\n"}

var (
	digitPattern  = regexp.MustCompile(`\d`)
	alignmentTags = regexp.MustCompile(`(@id=\d+@)`)
)

// RubberBandConfig configures the legacy greedy chunker.
type RubberBandConfig struct {
	TargetChars      int
	MaxChars         int
	EnableBalance    bool
	BalanceThreshold float64
	BalanceRange     int
}

// RubberBand merges item texts into target_chars-ish blocks, preferring
// to split on sentence-final punctuation, forcing a split at max_chars,
// and vetoing a split right after a line containing a digit (to avoid
// breaking numbered headers or indices mid-sequence) unless the hard
// max is already hit. Grounded on Chunker._process_rubber_band in full.
func RubberBand(items []Item, cfg RubberBandConfig) []Block {
	var blocks []Block
	var curText []string
	var curMeta []any
	curChars := 0

	flush := func() {
		text := strings.Join(curText, "")
		if strings.TrimSpace(text) != "" {
			blocks = append(blocks, Block{ID: len(blocks) + 1, Text: text, Metadata: curMeta})
		}
		curText = nil
		curMeta = nil
		curChars = 0
	}

	for _, item := range items {
		curText = append(curText, item.Text)
		if item.Meta != nil {
			curMeta = append(curMeta, item.Meta)
		}
		curChars += len([]rune(item.Text))

		stripped := strings.TrimSpace(item.Text)

		numericRisky := false
		if item.Meta == "alignment_structural" {
			inner := strings.TrimSpace(alignmentTags.ReplaceAllString(item.Text, ""))
			numericRisky = digitPattern.MatchString(inner)
		} else {
			numericRisky = digitPattern.MatchString(item.Text)
		}

		if curChars >= cfg.TargetChars-30 {
			safe := hasSuffixAny(stripped, safePunctuation)
			if numericRisky && curChars < cfg.MaxChars {
				safe = false
			}
			if safe || curChars >= cfg.MaxChars {
				flush()
			}
		}
	}

	if len(curText) > 0 {
		flush()
	}

	if cfg.EnableBalance && len(blocks) >= 2 {
		balanceTail(blocks, cfg)
	}

	return blocks
}

func hasSuffixAny(s string, suffixes []string) bool {
	for _, suf := range suffixes {
		if strings.HasSuffix(s, suf) {
			return true
		}
	}
	return false
}

// balanceTail redistributes the last balance_range blocks evenly by
// character count when the final block is small relative to
// target_chars * balance_threshold. Skipped entirely when any block in
// the slice carries metadata, since redistributing text across block
// boundaries would desynchronize metadata-to-text mapping for
// structured documents. Grounded on Chunker._balance_tail in full.
func balanceTail(blocks []Block, cfg RubberBandConfig) {
	for _, b := range blocks {
		if len(b.Metadata) > 0 {
			return
		}
	}

	n := cfg.BalanceRange
	if n > len(blocks) {
		n = len(blocks)
	}
	if n < 2 {
		return
	}

	last := blocks[len(blocks)-1]
	if float64(len([]rune(last.Text))) >= float64(cfg.TargetChars)*cfg.BalanceThreshold {
		return
	}

	startIdx := len(blocks) - n
	tail := blocks[startIdx:]
	var combined strings.Builder
	for _, b := range tail {
		combined.WriteString(b.Text)
	}
	lines := splitKeepEnds(combined.String())

	totalLen := 0
	for _, l := range lines {
		totalLen += len([]rune(l))
	}
	idealLen := totalLen / n

	var newTexts []string
	var curLines []string
	curLen := 0
	for _, line := range lines {
		curLines = append(curLines, line)
		curLen += len([]rune(line))
		if len(newTexts) < n-1 && curLen >= idealLen {
			newTexts = append(newTexts, strings.Join(curLines, ""))
			curLines = nil
			curLen = 0
		}
	}
	if len(curLines) > 0 {
		newTexts = append(newTexts, strings.Join(curLines, ""))
	}

	for i := 0; i < n; i++ {
		idx := startIdx + i
		if i < len(newTexts) {
			blocks[idx].Text = newTexts[i]
		} else {
			blocks[idx].Text = ""
		}
	}
}

// splitKeepEnds splits text into lines while keeping each line's
// trailing newline attached, mirroring Python's str.splitlines(keepends=True)
// for the "\n"-only case the chunker actually produces.
func splitKeepEnds(text string) []string {
	if text == "" {
		return nil
	}
	var lines []string
	start := 0
	for i, r := range text {
		if r == '\n' {
			lines = append(lines, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}
