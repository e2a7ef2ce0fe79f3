// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"

	"github.com/kraklabs/translate/internal/cache"
	"github.com/kraklabs/translate/internal/chunk"
	"github.com/kraklabs/translate/internal/model"
)

// runFingerprint identifies a resumable run; a temp-progress file whose
// first line doesn't match the current run's fingerprint is discarded.
type runFingerprint struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Input     string `json:"input"`
	Pipeline  string `json:"pipeline"`
	ChunkType string `json:"chunk_type"`
}

func (f runFingerprint) matches(other map[string]any) bool {
	for key, want := range map[string]string{"input": f.Input, "pipeline": f.Pipeline, "chunk_type": f.ChunkType} {
		if want == "" {
			continue
		}
		got, _ := other[key].(string)
		if got != want {
			return false
		}
	}
	return true
}

type resumeEntry struct {
	Src string
	Dst string
}

// loadResumeFile reads the temp-progress file, tolerating trailing
// partial lines (ignored on JSON parse failure) since the file is
// append-only and may have been interrupted mid-write. Returns the
// recovered block entries and whether the file may be appended to: true
// when a fingerprint line was found and matched, and also when there was
// no fingerprint line but at least one block entry was recovered.
func loadResumeFile(path string, expected runFingerprint) (map[int]resumeEntry, bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	entries := map[int]resumeEntry{}
	matched := false
	first := true

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		var raw map[string]any
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			continue
		}
		if first {
			first = false
			if t, _ := raw["type"].(string); t == "fingerprint" {
				if !expected.matches(raw) {
					return map[int]resumeEntry{}, false
				}
				matched = true
				continue
			}
		}
		idx, ok := indexField(raw)
		if !ok {
			continue
		}
		dst, ok := dstField(raw)
		if !ok {
			continue
		}
		src, _ := raw["src"].(string)
		entries[idx] = resumeEntry{Src: src, Dst: dst}
	}

	if len(entries) > 0 && !matched {
		matched = true
	}
	return entries, matched
}

func indexField(raw map[string]any) (int, bool) {
	for _, key := range []string{"index", "block_idx", "block"} {
		if v, ok := raw[key]; ok {
			switch n := v.(type) {
			case float64:
				return int(n), true
			}
		}
	}
	return 0, false
}

func dstField(raw map[string]any) (string, bool) {
	for _, key := range []string{"dst", "output", "preview_text", "out_text"} {
		if v, ok := raw[key].(string); ok {
			return v, true
		}
	}
	return "", false
}

// loadResumeCache falls back to an already-saved cache sidecar when no
// temp-progress file was found, recovering whatever blocks it holds.
func loadResumeCache(outputPath, cacheDir string, compress bool) map[int]resumeEntry {
	c := cache.New(outputPath, cacheDir, "", compress)
	ok, err := c.Load()
	if err != nil || !ok {
		return nil
	}
	entries := map[int]resumeEntry{}
	for _, b := range c.Blocks() {
		entries[b.Index] = resumeEntry{Src: b.Src, Dst: b.Dst}
	}
	return entries
}

// seedFromResume pre-fills translated blocks recovered from a resumed
// run, seeding the progress tracker's baseline counters.
func seedFromResume(blocks []chunk.Block, translated []*model.TextBlock, resumeEntries map[int]resumeEntry) (completed, outputLines, outputChars int) {
	if len(resumeEntries) == 0 {
		return 0, 0, 0
	}
	for idx := range blocks {
		entry, ok := resumeEntries[idx]
		if !ok {
			continue
		}
		tb := model.NewTextBlock(idx, entry.Dst, idx, idx)
		translated[idx] = &tb
		completed++
		if entry.Dst != "" {
			outputLines += model.CountLines(entry.Dst)
			outputChars += len([]rune(entry.Dst))
		}
	}
	return completed, outputLines, outputChars
}

func pendingIndices(translated []*model.TextBlock) []int {
	var pending []int
	for i, b := range translated {
		if b == nil {
			pending = append(pending, i)
		}
	}
	return pending
}

// tempWriter appends block completion records to the resumable
// temp-progress file, one JSON line per block, flushed immediately so
// a killed run's progress is durable up to its last written line.
type tempWriter struct {
	mu   sync.Mutex
	file *os.File
	w    *bufio.Writer
}

func newTempWriter(path string, appendMode bool, fingerprint runFingerprint) (*tempWriter, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return &tempWriter{}, err
	}
	tw := &tempWriter{file: f, w: bufio.NewWriter(f)}
	if !appendMode {
		payload, _ := json.Marshal(fingerprint)
		tw.w.Write(payload)
		tw.w.WriteByte('\n')
		tw.w.Flush()
	}
	return tw, nil
}

func (t *tempWriter) WriteBlock(idx int, src, dst string) {
	if t == nil || t.file == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"type":  "block",
		"index": idx,
		"src":   src,
		"dst":   dst,
	})
	if err != nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.w.Write(payload)
	t.w.WriteByte('\n')
	t.w.Flush()
}

func (t *tempWriter) Close() {
	if t == nil || t.file == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.w.Flush()
	t.file.Close()
	t.file = nil
}
