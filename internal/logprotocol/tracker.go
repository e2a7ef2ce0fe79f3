// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package logprotocol

import (
	"strconv"
	"sync"
	"time"
)

const (
	minEmitInterval = 200 * time.Millisecond
	speedWindow     = 5 * time.Second
	requestWindow   = 60 * time.Second
	maxPreviewChars = 2000
)

type speedSample struct {
	at           time.Time
	outputLines  int
	outputChars  int
	inputTokens  int
	outputTokens int
}

// Tracker accumulates per-block progress and request statistics across
// a run and emits throttled JSON_PROGRESS snapshots, plus the one-shot
// JSON_PREVIEW_BLOCK/JSON_FINAL events block completion and run
// completion trigger. Grounded on utils.log_protocol.ProgressTracker in
// full.
type Tracker struct {
	TotalBlocks      int
	TotalSourceLines int
	TotalSourceChars int
	APIURL           string

	mu                sync.Mutex
	completedBlocks   int
	totalOutputLines  int
	totalOutputChars  int
	startedAt         time.Time
	lastEmitAt        time.Time
	totalRequests     int
	totalRetries      int
	totalErrors       int
	totalInputTokens  int
	totalOutputTokens int
	errorStatusCodes  map[string]int
	lastPing          *int
	currentConcurrency int
	speedSamples      []speedSample
	requestTimestamps []time.Time
}

// NewTracker builds a Tracker for a run of totalBlocks blocks over
// source text with the given line/char counts.
func NewTracker(totalBlocks, sourceLines, sourceChars int) *Tracker {
	return &Tracker{
		TotalBlocks:        totalBlocks,
		TotalSourceLines:   sourceLines,
		TotalSourceChars:   sourceChars,
		startedAt:          time.Now(),
		currentConcurrency: 1,
		errorStatusCodes:   map[string]int{},
	}
}

func (t *Tracker) pruneRequestTimestampsLocked(now time.Time) {
	cutoff := now.Add(-requestWindow)
	i := 0
	for i < len(t.requestTimestamps) && t.requestTimestamps[i].Before(cutoff) {
		i++
	}
	t.requestTimestamps = t.requestTimestamps[i:]
}

func (t *Tracker) appendSpeedSampleLocked(now time.Time) {
	t.speedSamples = append(t.speedSamples, speedSample{
		at:           now,
		outputLines:  t.totalOutputLines,
		outputChars:  t.totalOutputChars,
		inputTokens:  t.totalInputTokens,
		outputTokens: t.totalOutputTokens,
	})
	cutoff := now.Add(-speedWindow)
	for len(t.speedSamples) > 2 && t.speedSamples[0].at.Before(cutoff) {
		t.speedSamples = t.speedSamples[1:]
	}
}

func (t *Tracker) buildProgressPayloadLocked(now time.Time) ProgressPayload {
	t.pruneRequestTimestampsLocked(now)
	t.appendSpeedSampleLocked(now)

	elapsed := now.Sub(t.startedAt).Seconds()
	if elapsed < 0.001 {
		elapsed = 0.001
	}

	var realtimeChars, realtimeLines, realtimeGen, realtimeEval float64
	if len(t.speedSamples) >= 2 {
		first := t.speedSamples[0]
		last := t.speedSamples[len(t.speedSamples)-1]
		dt := last.at.Sub(first.at).Seconds()
		if dt < 0.001 {
			dt = 0.001
		}
		realtimeLines = maxFloat(0, float64(last.outputLines-first.outputLines)/dt)
		realtimeChars = maxFloat(0, float64(last.outputChars-first.outputChars)/dt)
		realtimeEval = maxFloat(0, float64(last.inputTokens-first.inputTokens)/dt)
		realtimeGen = maxFloat(0, float64(last.outputTokens-first.outputTokens)/dt)
	}

	warmupWindow := requestWindow.Seconds()
	if elapsed < warmupWindow {
		warmupWindow = elapsed
	}
	if warmupWindow < 1.0 {
		warmupWindow = 1.0
	}
	apiRPM := float64(len(t.requestTimestamps)) * 60.0 / warmupWindow

	var apiURL *string
	if t.APIURL != "" {
		apiURL = &t.APIURL
	}

	current := t.completedBlocks
	total := t.TotalBlocks
	percent := round1(float64(current) / float64(maxInt(total, 1)) * 100)
	var remaining float64
	if current > 0 {
		remaining = (elapsed / float64(current)) * float64(total-current)
	}
	if remaining < 0 {
		remaining = 0
	}

	return ProgressPayload{
		Current:             current,
		Total:               total,
		Percent:             percent,
		Elapsed:             round1(elapsed),
		Remaining:           round1(remaining),
		SpeedChars:          round1(realtimeChars),
		SpeedLines:          round2(realtimeLines),
		SpeedGen:            round1(realtimeGen),
		SpeedEval:           round1(realtimeEval),
		TotalLines:          t.totalOutputLines,
		TotalChars:          t.totalOutputChars,
		SourceLines:         t.TotalSourceLines,
		SourceChars:         t.TotalSourceChars,
		APIPing:             t.lastPing,
		APIConcurrency:      t.currentConcurrency,
		APIURL:              apiURL,
		RealtimeSpeedChars:  round1(realtimeChars),
		RealtimeSpeedLines:  round2(realtimeLines),
		RealtimeSpeedGen:    round1(realtimeGen),
		RealtimeSpeedEval:   round1(realtimeEval),
		RealtimeSpeedTokens: round1(realtimeGen + realtimeEval),
		APIRPM:              round2(apiRPM),
		TotalRequests:       t.totalRequests,
		TotalInputTokens:    t.totalInputTokens,
		TotalOutputTokens:   t.totalOutputTokens,
	}
}

// EmitProgressSnapshot emits a JSON_PROGRESS event, throttled to once
// per minEmitInterval unless force is set.
func (t *Tracker) EmitProgressSnapshot(force bool) {
	now := time.Now()
	t.mu.Lock()
	if !force && now.Sub(t.lastEmitAt) < minEmitInterval {
		t.mu.Unlock()
		return
	}
	payload := t.buildProgressPayloadLocked(now)
	t.lastEmitAt = now
	t.mu.Unlock()

	EmitProgress(payload)
}

// SetConcurrency records the current adaptive concurrency limit for
// inclusion in progress snapshots.
func (t *Tracker) SetConcurrency(limit int) {
	t.mu.Lock()
	t.currentConcurrency = limit
	t.mu.Unlock()
}

// BlockDone records a completed block's output stats and emits a
// forced progress update plus, unless suppressed, a preview event.
func (t *Tracker) BlockDone(blockIndex int, srcText, outputText string, emitPreview bool) {
	outLines := 0
	if outputText != "" {
		outLines = countLines(outputText)
	}
	outChars := len([]rune(outputText))

	t.mu.Lock()
	t.completedBlocks++
	t.totalOutputLines += outLines
	t.totalOutputChars += outChars
	t.mu.Unlock()

	t.EmitProgressSnapshot(true)

	if emitPreview {
		EmitPreviewBlock(blockIndex+1, truncatePreview(srcText), truncatePreview(outputText))
	}
}

// NoteRequest records a completed API request's token usage and
// triggers a (throttled) progress refresh.
func (t *Tracker) NoteRequest(inputTokens, outputTokens int, ping *int) {
	now := time.Now()
	t.mu.Lock()
	t.totalRequests++
	t.totalInputTokens += inputTokens
	t.totalOutputTokens += outputTokens
	if ping != nil {
		t.lastPing = ping
	}
	t.requestTimestamps = append(t.requestTimestamps, now)
	t.pruneRequestTimestampsLocked(now)
	t.mu.Unlock()

	t.EmitProgressSnapshot(false)
}

// NoteRetry records a retry event, optionally tallied by status code.
func (t *Tracker) NoteRetry(statusCode int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalRetries++
	if statusCode != 0 {
		t.errorStatusCodes[statusCodeKey(statusCode)]++
	}
}

// NoteError records a final (retries-exhausted) error, optionally
// tallied by status code.
func (t *Tracker) NoteError(statusCode int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalErrors++
	if statusCode != 0 {
		t.errorStatusCodes[statusCodeKey(statusCode)]++
	}
}

// SeedProgress primes the counters for resume mode and emits a
// baseline snapshot.
func (t *Tracker) SeedProgress(completedBlocks, outputLines, outputChars int) {
	t.mu.Lock()
	t.completedBlocks = clampInt(completedBlocks, 0, t.TotalBlocks)
	t.totalOutputLines = maxInt(0, outputLines)
	t.totalOutputChars = maxInt(0, outputChars)
	t.mu.Unlock()
	t.EmitProgressSnapshot(true)
}

// EmitFinalStats emits the JSON_FINAL summary for the run.
func (t *Tracker) EmitFinalStats() {
	t.mu.Lock()
	elapsed := time.Since(t.startedAt).Seconds()
	avgSpeed := float64(t.totalOutputChars) / maxFloat(elapsed, 0.1)
	payload := FinalPayload{
		TotalTime:         round1(elapsed),
		AvgSpeed:          round1(avgSpeed),
		SourceLines:       t.TotalSourceLines,
		SourceChars:       t.TotalSourceChars,
		OutputLines:       t.totalOutputLines,
		OutputChars:       t.totalOutputChars,
		TotalRequests:     t.totalRequests,
		TotalRetries:      t.totalRetries,
		TotalErrors:       t.totalErrors,
		TotalInputTokens:  t.totalInputTokens,
		TotalOutputTokens: t.totalOutputTokens,
	}
	if len(t.errorStatusCodes) > 0 {
		payload.ErrorStatusCodes = make(map[string]int, len(t.errorStatusCodes))
		for k, v := range t.errorStatusCodes {
			payload.ErrorStatusCodes[k] = v
		}
	}
	t.mu.Unlock()

	EmitFinal(payload)
}

func truncatePreview(s string) string {
	r := []rune(s)
	if len(r) <= maxPreviewChars {
		return s
	}
	return string(r[:maxPreviewChars])
}

func countLines(s string) int {
	n := 1
	for _, r := range s {
		if r == '\n' {
			n++
		}
	}
	return n
}

func statusCodeKey(code int) string {
	return strconv.Itoa(code)
}

func round1(v float64) float64 { return roundN(v, 10) }
func round2(v float64) float64 { return roundN(v, 100) }

func roundN(v, n float64) float64 {
	if v >= 0 {
		return float64(int64(v*n+0.5)) / n
	}
	return -float64(int64(-v*n+0.5)) / n
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
