// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logprotocol emits the dashboard-compatible JSON-lines event
// protocol on stdout: JSON_PROGRESS, JSON_PREVIEW_BLOCK,
// JSON_OUTPUT_PATH, JSON_CACHE_PATH, JSON_FINAL, JSON_RETRY,
// JSON_WARNING, and JSON_ERROR lines, each prefixed and newline-framed
// so a supervising process can parse them line by line regardless of
// any interleaved human-readable log/progress-bar output. Grounded on
// utils/log_protocol.py in full.
package logprotocol

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	stdoutMu sync.Mutex
	stdout   io.Writer = os.Stdout
)

// Emit writes one prefixed JSON event line, guarded by a package-level
// mutex so concurrent goroutines never interleave partial lines.
func Emit(prefix string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	stdoutMu.Lock()
	defer stdoutMu.Unlock()
	fmt.Fprintf(stdout, "\n%s:%s\n", prefix, payload)
}

// ProgressPayload is the body of a JSON_PROGRESS event.
type ProgressPayload struct {
	Current             int      `json:"current"`
	Total               int      `json:"total"`
	Percent             float64  `json:"percent"`
	Elapsed             float64  `json:"elapsed"`
	Remaining           float64  `json:"remaining"`
	SpeedChars          float64  `json:"speed_chars"`
	SpeedLines          float64  `json:"speed_lines"`
	SpeedGen            float64  `json:"speed_gen"`
	SpeedEval           float64  `json:"speed_eval"`
	TotalLines          int      `json:"total_lines"`
	TotalChars          int      `json:"total_chars"`
	SourceLines         int      `json:"source_lines"`
	SourceChars         int      `json:"source_chars"`
	APIPing             *int     `json:"api_ping"`
	APIConcurrency      int      `json:"api_concurrency"`
	APIURL              *string  `json:"api_url"`
	RealtimeSpeedChars  float64  `json:"realtime_speed_chars"`
	RealtimeSpeedLines  float64  `json:"realtime_speed_lines"`
	RealtimeSpeedGen    float64  `json:"realtime_speed_gen"`
	RealtimeSpeedEval   float64  `json:"realtime_speed_eval"`
	RealtimeSpeedTokens float64  `json:"realtime_speed_tokens"`
	APIRPM              float64  `json:"api_rpm"`
	TotalRequests       int      `json:"total_requests"`
	TotalInputTokens    int      `json:"total_input_tokens"`
	TotalOutputTokens   int      `json:"total_output_tokens"`
}

// EmitProgress emits a JSON_PROGRESS event.
func EmitProgress(p ProgressPayload) {
	Emit("JSON_PROGRESS", p)
}

// EmitPreviewBlock emits a JSON_PREVIEW_BLOCK event for a completed
// block's source/output preview (1-based block index to match the
// dashboard's display numbering).
func EmitPreviewBlock(block int, src, output string) {
	Emit("JSON_PREVIEW_BLOCK", map[string]any{
		"block":  block,
		"src":    src,
		"output": output,
	})
}

// EmitOutputPath emits JSON_OUTPUT_PATH once the final output path is
// known.
func EmitOutputPath(path string) {
	Emit("JSON_OUTPUT_PATH", map[string]string{"path": path})
}

// EmitCachePath emits JSON_CACHE_PATH so a supervising dashboard can
// locate the cache file for proofreading.
func EmitCachePath(path string) {
	Emit("JSON_CACHE_PATH", map[string]string{"path": path})
}

// FinalPayload is the body of a JSON_FINAL event.
type FinalPayload struct {
	TotalTime         float64        `json:"totalTime"`
	AvgSpeed          float64        `json:"avgSpeed"`
	SourceLines       int            `json:"sourceLines"`
	SourceChars       int            `json:"sourceChars"`
	OutputLines       int            `json:"outputLines"`
	OutputChars       int            `json:"outputChars"`
	TotalRequests     int            `json:"totalRequests"`
	TotalRetries      int            `json:"totalRetries"`
	TotalErrors       int            `json:"totalErrors"`
	TotalInputTokens  int            `json:"totalInputTokens"`
	TotalOutputTokens int            `json:"totalOutputTokens"`
	ErrorStatusCodes  map[string]int `json:"errorStatusCodes,omitempty"`
}

// EmitFinal emits the JSON_FINAL summary event.
func EmitFinal(p FinalPayload) {
	Emit("JSON_FINAL", p)
}

// EmitRetry emits a JSON_RETRY event for one retry attempt.
func EmitRetry(block, attempt int, errType string, srcLines, dstLines int) {
	payload := map[string]any{
		"block":   block,
		"attempt": attempt,
		"type":    errType,
	}
	if srcLines != 0 || dstLines != 0 {
		payload["src_lines"] = srcLines
		payload["dst_lines"] = dstLines
	}
	Emit("JSON_RETRY", payload)
}

// EmitWarning emits a JSON_WARNING event for a quality-check finding.
func EmitWarning(block int, message, warnType string) {
	if warnType == "" {
		warnType = "quality"
	}
	Emit("JSON_WARNING", map[string]any{
		"block":   block,
		"type":    warnType,
		"message": message,
	})
}

// EmitError emits a JSON_ERROR event for a run-ending failure.
func EmitError(message, title string) {
	if title == "" {
		title = "Pipeline Error"
	}
	Emit("JSON_ERROR", map[string]string{
		"title":   title,
		"message": message,
	})
}
