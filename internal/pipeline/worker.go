// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kraklabs/translate/internal/chunk"
	"github.com/kraklabs/translate/internal/concurrency"
	"github.com/kraklabs/translate/internal/logprotocol"
	"github.com/kraklabs/translate/internal/metrics"
	"github.com/kraklabs/translate/internal/model"
	"github.com/kraklabs/translate/internal/processing"
	"github.com/kraklabs/translate/internal/prompt"
	"github.com/kraklabs/translate/internal/quality"
)

// worker dispatches one run's blocks, in adaptive or fixed-concurrency
// mode, and owns the per-block translate/retry/parse/line-policy
// pipeline. Grounded on murasaki_flow_v2/pipelines/runner.py's
// translate_block and the surrounding dispatch loop, and on the
// worker-pool shape of local_pipeline.go's ingestion runner.
type worker struct {
	runner *Runner
	rp     *resolvedPipeline

	sourceLines []string
	blocks      []chunk.Block

	temp     *tempWriter
	tracker  *logprotocol.Tracker
	adaptive *concurrency.AdaptiveConcurrency
	metrics  *metrics.Registry

	translated []*model.TextBlock
	lineErrors *lineErrorSink
}

// dispatch runs every pending block index to completion, polling the
// adaptive controller's limit (when in adaptive mode) before each
// launch so the in-flight count never exceeds it, mirroring the
// orchestration thread's poll-and-yield loop.
func (w *worker) dispatch(pending []int) error {
	if len(pending) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	var inFlight int32
	var mu sync.Mutex
	var firstErr error

	limitFor := func() int32 { return int32(w.currentLimit()) }

	for _, idx := range pending {
		for atomic.LoadInt32(&inFlight) >= limitFor() {
			time.Sleep(2 * time.Millisecond)
		}
		atomic.AddInt32(&inFlight, 1)
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer atomic.AddInt32(&inFlight, -1)
			block := w.blocks[idx]
			tb, err := w.translateOne(idx, block)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
			w.translated[idx] = tb
		}(idx)
	}
	wg.Wait()

	return firstErr
}

func (w *worker) currentLimit() int {
	if w.rp.useAdaptive {
		return w.adaptive.GetLimit()
	}
	return w.rp.concurrency
}

// translateOne runs the full per-block pipeline: context resolution,
// pre-processing, message building, send-with-retry, parsing,
// post-processing, and (for line chunks) line-policy reconciliation.
// It never returns a hard error for a translation failure — exhausted
// retries fall back to the best candidate (or the raw source line) so
// the run completes best-effort, recording the failure to the line
// error sink instead.
func (w *worker) translateOne(idx int, block chunk.Block) (*model.TextBlock, error) {
	lineIndex, hasLineIndex := blockLineIndex(block)
	blkStart, blkEnd := blockLineRange(block, lineIndex, hasLineIndex)

	contextCfg, _ := w.rp.promptContext["context"].(map[string]any)
	contextBefore, contextAfter := "", ""
	if hasLineIndex && len(w.sourceLines) > 0 {
		contextBefore, contextAfter = buildContext(w.sourceLines, lineIndex, blkEnd, contextCfg)
	}

	useJSONL := w.rp.sourceFormat == "jsonl" && w.rp.chunkType == "line"

	sourceText := block.Text
	var targetLineIDs []int
	protector := newBlockProtector(w.rp.processingProc)

	if useJSONL && hasLineIndex {
		start, end := resolveSourceWindow(w.sourceLines, lineIndex, contextCfg)
		beforeCount := intField(contextCfg, "before_lines", 0)
		afterCount := intField(contextCfg, "after_lines", 0)
		beforeStart := maxInt(0, start-beforeCount)
		afterEnd := minInt(len(w.sourceLines), end+afterCount)
		contextBefore = buildJSONLRange(w.sourceLines, beforeStart, start)
		contextAfter = buildJSONLRange(w.sourceLines, end, afterEnd)

		protectedLines := w.sourceLines
		if protector != nil && start < end {
			if merged, ok := protectLines(w.sourceLines, start, end, protector); ok {
				protectedLines = merged
			} else {
				protector = nil
			}
		}
		sourceText = buildJSONLRange(protectedLines, start, end)
		targetLineIDs = filterTargetLineIDs(block.Metadata, start, end, lineIndex)
	} else {
		if w.rp.processingProc != nil {
			sourceText = w.rp.processingProc.ApplyPre(sourceText)
		}
		if protector != nil {
			sourceText = protector.Protect(sourceText)
		}
	}

	vars := map[string]string{
		"source":         sourceText,
		"context_before": contextBefore,
		"context_after":  contextAfter,
		"glossary":       w.rp.glossaryText,
	}
	if hasLineIndex {
		vars["line_index"] = strconv.Itoa(lineIndex)
		vars["line_number"] = strconv.Itoa(lineIndex + 1)
	}
	messages := prompt.BuildMessages(w.rp.promptProfile, vars, sourceText)

	srcLine := block.Text
	if hasLineIndex && lineIndex < len(w.sourceLines) {
		srcLine = w.sourceLines[lineIndex]
	}
	reconcileLinePolicy := w.rp.applyLinePolicy && w.rp.chunkType == "line" && w.rp.linePolicy != nil

	var lastTranslation string
	var lastErrKind string
	var lastErr error

	attempt := 0
	for attempt <= w.rp.maxRetries {
		translated, errKind, sendErr := w.attemptOnce(messages, useJSONL, targetLineIDs, block.Text, protector)
		if sendErr == nil && reconcileLinePolicy {
			reconciled, polErr := w.rp.linePolicy.Apply([]string{srcLine}, strings.Split(translated, "\n"))
			if polErr != nil {
				sendErr = polErr
				errKind = "line_policy_error"
			} else {
				translated = strings.Join(reconciled, "\n")
			}
		}
		if sendErr == nil {
			lastTranslation = translated
			if w.rp.useAdaptive {
				w.adaptive.NoteSuccess()
			}
			lastErr = nil
			break
		}
		lastErr = sendErr
		lastErrKind = errKind
		if translated != "" {
			lastTranslation = translated
		}
		if w.rp.useAdaptive {
			w.adaptive.NoteError(sendErr.Error())
		}
		if w.metrics != nil {
			w.metrics.Retries.Inc()
			w.metrics.ProviderErrors.WithLabelValues(errKind).Inc()
			w.metrics.Concurrency.Set(float64(w.currentLimit()))
		}
		logprotocol.EmitRetry(idx, attempt, errKind, model.CountLines(block.Text), model.CountLines(translated))
		attempt++
	}

	finalText := lastTranslation
	exhausted := lastErr != nil
	if exhausted {
		if finalText == "" {
			finalText = srcLine
		}
		w.lineErrors.record(idx, lastErrKind, lastErr.Error())
		logprotocol.EmitWarning(idx, lastErr.Error(), lastErrKind)
	}

	finalText = strings.TrimRight(finalText, "\n")

	w.temp.WriteBlock(idx, block.Text, finalText)
	w.tracker.BlockDone(idx, block.Text, finalText, true)
	if w.metrics != nil {
		w.metrics.BlocksDone.Inc()
	}

	result := model.NewTextBlock(idx, finalText, blkStart, maxInt(blkStart, blkEnd-1))
	result.Meta = metaFromBlock(block)
	return &result, nil
}

// attemptOnce performs one provider round trip for an already-built
// message list, parsing and post-processing the response. On success it
// returns the candidate translation and a nil error; on a provider,
// parse or extract failure it returns an empty candidate, a telemetry
// classification (`provider_error` | `empty`) and the error.
func (w *worker) attemptOnce(messages []model.ChatMessage, useJSONL bool, targetLineIDs []int, srcText string, protector *processing.Protector) (string, string, error) {
	req := model.ProviderRequest{
		Messages:    messages,
		Model:       strField(w.rp.settings, "model"),
		Temperature: floatField(w.rp.settings, "temperature"),
		MaxTokens:   intField(w.rp.settings, "max_tokens", 0),
	}
	resp, err := w.rp.provider.Send(context.Background(), req)
	if err != nil {
		return "", "provider_error", err
	}

	inputTokens, outputTokens := 0, 0
	if resp.Raw != nil {
		if usage, ok := resp.Raw["usage"].(map[string]any); ok {
			inputTokens = intField(usage, "prompt_tokens", 0)
			outputTokens = intField(usage, "completion_tokens", 0)
		}
	}
	if inputTokens == 0 {
		inputTokens = resp.InputTokens
	}
	if outputTokens == 0 {
		outputTokens = resp.OutputTokens
	}
	w.tracker.NoteRequest(inputTokens, outputTokens, nil)
	if w.metrics != nil {
		w.metrics.InputTokens.Add(float64(inputTokens))
		w.metrics.OutputTokens.Add(float64(outputTokens))
	}

	var translated string
	if useJSONL {
		extracted, err := extractJSONL(resp.Text, targetLineIDs)
		if err != nil {
			return "", "empty", err
		}
		translated = extracted
	} else if w.rp.parser != nil {
		out, err := w.rp.parser.Parse(resp.Text)
		if err != nil {
			return "", "empty", err
		}
		translated = strings.Trim(out.Text, "\n")
	} else {
		translated = strings.Trim(resp.Text, "\n")
	}

	if w.rp.processingProc != nil {
		translated = w.rp.processingProc.ApplyPost(translated, srcText, protector)
	}
	return translated, "", nil
}

func newBlockProtector(proc *processing.Processor) *processing.Protector {
	if proc == nil {
		return nil
	}
	return proc.CreateProtector()
}

// protectLines mirrors protecting a contiguous window of source lines
// as one segment, rejecting the protection (reporting ok=false) if the
// protected segment doesn't split back into exactly the same number of
// lines — a mismatch means a pattern matched across a line boundary.
func protectLines(lines []string, start, end int, protector *processing.Protector) ([]string, bool) {
	if protector == nil || start >= end {
		return lines, protector != nil
	}
	segment := strings.Join(lines[start:end], "\n")
	var protectedLines []string
	if segment != "" {
		protectedLines = strings.Split(protector.Protect(segment), "\n")
	}
	if len(protectedLines) != end-start {
		return lines, false
	}
	merged := append([]string(nil), lines...)
	copy(merged[start:end], protectedLines)
	return merged, true
}

// extractJSONL reads the model's per-line JSONL response, collecting a
// 1-based-key → text map plus an ordered fallback list, then resolves
// each requested 0-based line id by key lookup or positional fallback.
func extractJSONL(text string, targetLineIDs []int) (string, error) {
	lineMap := map[string]string{}
	var ordered []string
	for _, raw := range strings.Split(text, "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		raw = strings.TrimPrefix(raw, "jsonline")
		var obj map[string]string
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			continue
		}
		for k, v := range obj {
			lineMap[k] = v
			ordered = append(ordered, v)
		}
	}

	var missing []string
	results := make([]string, 0, len(targetLineIDs))
	for i, id := range targetLineIDs {
		key := strconv.Itoa(id + 1)
		if v, ok := lineMap[key]; ok {
			results = append(results, v)
			continue
		}
		if i < len(ordered) {
			results = append(results, ordered[i])
			continue
		}
		missing = append(missing, key)
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("JsonlParser: missing lines %s", strings.Join(missing, ","))
	}
	return strings.Join(results, "\n"), nil
}

// filterTargetLineIDs restricts target_line_ids to the ids the block
// itself is responsible for within the resolved window, falling back
// to the single line index when the block carries none there. Mirrors
// _filter_target_line_ids.
func filterTargetLineIDs(metadata []any, start, end, lineIndex int) []int {
	var ids []int
	for _, m := range metadata {
		if n, ok := m.(int); ok && n >= start && n < end {
			ids = append(ids, n)
		}
	}
	if len(ids) == 0 {
		return []int{lineIndex}
	}
	return ids
}

func blockLineIndex(block chunk.Block) (int, bool) {
	if len(block.Metadata) == 0 {
		return 0, false
	}
	if n, ok := block.Metadata[0].(int); ok {
		return n, true
	}
	return 0, false
}

func blockLineRange(block chunk.Block, lineIndex int, has bool) (int, int) {
	if !has {
		return 0, 1
	}
	end := lineIndex + 1
	for _, m := range block.Metadata {
		if n, ok := m.(int); ok && n+1 > end {
			end = n + 1
		}
	}
	return lineIndex, end
}

func metaFromBlock(block chunk.Block) map[string]any {
	if len(block.Metadata) == 0 {
		return nil
	}
	return map[string]any{"items": block.Metadata}
}

func buildContext(sourceLines []string, lineIndex, blockEnd int, contextCfg map[string]any) (before, after string) {
	beforeN := intField(contextCfg, "before_lines", 0)
	afterN := intField(contextCfg, "after_lines", 0)
	if beforeN <= 0 && afterN <= 0 {
		return "", ""
	}
	joiner := strField(contextCfg, "joiner")
	if joiner == "" {
		joiner = "\n"
	}
	contentEnd := blockEnd
	if contentEnd <= lineIndex {
		contentEnd = lineIndex + 1
	}
	start := maxInt(0, lineIndex-beforeN)
	end := minInt(len(sourceLines), contentEnd+afterN)
	beforeLines := safeSlice(sourceLines, start, lineIndex)
	afterLines := safeSlice(sourceLines, contentEnd, end)
	return strings.TrimSpace(strings.Join(beforeLines, joiner)), strings.TrimSpace(strings.Join(afterLines, joiner))
}

func resolveSourceWindow(sourceLines []string, lineIndex int, contextCfg map[string]any) (int, int) {
	total := intField(contextCfg, "source_lines", 1)
	if total <= 0 {
		total = 1
	}
	start := maxInt(0, lineIndex)
	end := minInt(len(sourceLines), start+total)
	return start, end
}

func buildJSONLRange(sourceLines []string, start, end int) string {
	if start >= end {
		return ""
	}
	rows := make([]string, 0, end-start)
	for idx := start; idx < end; idx++ {
		payload := map[string]string{strconv.Itoa(idx + 1): sourceLines[idx]}
		encoded, _ := json.Marshal(payload)
		rows = append(rows, "jsonline"+string(encoded))
	}
	return strings.TrimSpace(strings.Join(rows, "\n"))
}

func safeSlice(lines []string, start, end int) []string {
	if start < 0 {
		start = 0
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start >= end {
		return nil
	}
	return lines[start:end]
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func floatField(m map[string]any, key string) float64 {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// lineErrorSink collects per-block failures recorded to
// `<output>.line_errors.jsonl`, thread-safe for concurrent workers.
type lineErrorSink struct {
	mu      sync.Mutex
	entries []lineErrorEntry
}

type lineErrorEntry struct {
	Index   int    `json:"index"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func newLineErrorSink() *lineErrorSink { return &lineErrorSink{} }

func (s *lineErrorSink) record(index int, kind, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, lineErrorEntry{Index: index, Kind: kind, Message: message})
}

func (s *lineErrorSink) snapshot() []lineErrorEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]lineErrorEntry(nil), s.entries...)
}

func writeLineErrors(path string, entries []lineErrorEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, e := range entries {
		payload, err := json.Marshal(e)
		if err != nil {
			continue
		}
		f.Write(payload)
		f.Write([]byte("\n"))
	}
	return nil
}

func writeQualityWarnings(path string, warnings []quality.Warning) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, w := range warnings {
		payload, err := json.Marshal(w)
		if err != nil {
			continue
		}
		f.Write(payload)
		f.Write([]byte("\n"))
	}
	return nil
}
