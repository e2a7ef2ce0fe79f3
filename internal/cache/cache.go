// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cache implements the Translation Cache module: a block-
// addressed JSON sidecar file used for proofreading and resume,
// indexed by block for O(1) lookup. Grounded on
// murasaki_translator/core/cache.py in full.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/kraklabs/translate/internal/model"
)

const cacheSuffix = ".cache.json"
const cacheSuffixGz = ".cache.json.gz"

// Block is a cached translated unit, addressed by its 0-based block
// index. It wraps model.CacheBlock with the warnings/chain-of-thought
// fields the cache file carries but that the pipeline's own event
// protocol doesn't need to pass around.
type Block struct {
	model.CacheBlock
	Warnings []string `json:"warnings"`
	CoT      string   `json:"cot,omitempty"`
}

func nonBlankLineCount(text string) int {
	n := 0
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) != "" {
			n++
		}
	}
	return n
}

func newBlock(index int, src, dst string, warnings []string, cot string, retryHistory []model.RetryRecord) Block {
	return Block{
		CacheBlock: model.CacheBlock{
			Index:        index,
			Src:          src,
			Dst:          dst,
			Status:       "processed",
			SrcLines:     nonBlankLineCount(src),
			DstLines:     nonBlankLineCount(dst),
			SrcChars:     len([]rune(src)),
			DstChars:     len([]rune(dst)),
			RetryHistory: retryHistory,
		},
		Warnings: warnings,
		CoT:      cot,
	}
}

// document is the on-disk shape of the cache file.
type document struct {
	Version      string          `json:"version"`
	OutputPath   string          `json:"outputPath"`
	SourcePath   string          `json:"sourcePath"`
	ModelName    string          `json:"modelName,omitempty"`
	GlossaryPath string          `json:"glossaryPath,omitempty"`
	EngineMode   string          `json:"engineMode,omitempty"`
	ChunkType    string          `json:"chunkType,omitempty"`
	PipelineID   string          `json:"pipelineId,omitempty"`
	Stats        stats           `json:"stats"`
	Blocks       []Block         `json:"blocks"`
}

type stats struct {
	Concurrency int `json:"concurrency"`
	BlockCount  int `json:"blockCount"`
	SrcLines    int `json:"srcLines"`
	DstLines    int `json:"dstLines"`
	SrcChars    int `json:"srcChars"`
	DstChars    int `json:"dstChars"`
}

// SaveOptions carries the run-level metadata written alongside the
// cached blocks.
type SaveOptions struct {
	ModelName    string
	GlossaryPath string
	Concurrency  int
	EngineMode   string
	ChunkType    string
	PipelineID   string
}

// Cache manages block-indexed translation results for one run, saved
// to `<output path><.cache.json|.cache.json.gz>`.
type Cache struct {
	outputPath string
	sourcePath string
	cachePath  string
	compress   bool

	mu       sync.Mutex
	blocks   []Block
	indexMap map[int]int
}

// New builds a Cache for the given output path. If customCacheDir is a
// directory, the cache file is placed there named after the output
// file's basename instead of alongside it. compress writes/reads the
// gzip-compressed form via github.com/klauspost/compress/gzip.
func New(outputPath, customCacheDir, sourcePath string, compress bool) *Cache {
	suffix := cacheSuffix
	if compress {
		suffix = cacheSuffixGz
	}

	var cachePath string
	if customCacheDir != "" {
		if info, err := os.Stat(customCacheDir); err == nil && info.IsDir() {
			cachePath = filepath.Join(customCacheDir, filepath.Base(outputPath)+suffix)
		}
	}
	if cachePath == "" {
		cachePath = outputPath + suffix
	}

	return &Cache{
		outputPath: outputPath,
		sourcePath: sourcePath,
		cachePath:  cachePath,
		compress:   compress,
		indexMap:   map[int]int{},
	}
}

// CachePath returns the path the cache reads from / writes to.
func (c *Cache) CachePath() string { return c.cachePath }

// AddBlock inserts or replaces the block at index, in O(1) via the
// index map.
func (c *Cache) AddBlock(index int, src, dst string, warnings []string, cot string, retryHistory []model.RetryRecord) Block {
	block := newBlock(index, src, dst, warnings, cot, retryHistory)
	c.mu.Lock()
	defer c.mu.Unlock()
	if pos, ok := c.indexMap[index]; ok {
		c.blocks[pos] = block
	} else {
		c.blocks = append(c.blocks, block)
		c.indexMap[index] = len(c.blocks) - 1
	}
	return block
}

// GetBlock returns the block at index, if present.
func (c *Cache) GetBlock(index int) (Block, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pos, ok := c.indexMap[index]; ok {
		return c.blocks[pos], true
	}
	return Block{}, false
}

// Blocks returns a snapshot of every cached block, unordered.
func (c *Cache) Blocks() []Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Block(nil), c.blocks...)
}

// UpdateBlock patches dst/status/warnings on an existing block,
// reporting false if the index isn't cached. Setting dst marks the
// block "edited".
func (c *Cache) UpdateBlock(index int, dst *string, status *string, warnings []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	pos, ok := c.indexMap[index]
	if !ok {
		return false
	}
	block := &c.blocks[pos]
	if dst != nil {
		block.Dst = *dst
		block.Status = "edited"
	}
	if status != nil {
		block.Status = *status
	}
	if warnings != nil {
		block.Warnings = warnings
	}
	return true
}

// ExportToText joins every block's translated text in index order.
func (c *Cache) ExportToText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	sorted := append([]Block(nil), c.blocks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })
	parts := make([]string, len(sorted))
	for i, b := range sorted {
		parts[i] = b.Dst
	}
	return strings.Join(parts, "\n")
}

// Stats summarizes the cache's current contents.
type Stats struct {
	BlockCount   int
	SrcLines     int
	DstLines     int
	SrcChars     int
	DstChars     int
	WithWarnings int
	Edited       int
}

func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	var s Stats
	s.BlockCount = len(c.blocks)
	for _, b := range c.blocks {
		s.SrcLines += b.SrcLines
		s.DstLines += b.DstLines
		s.SrcChars += b.SrcChars
		s.DstChars += b.DstChars
		if len(b.Warnings) > 0 {
			s.WithWarnings++
		}
		if b.Status == "edited" {
			s.Edited++
		}
	}
	return s
}

// Clear drops all cached blocks.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks = nil
	c.indexMap = map[int]int{}
}

// Save persists the cache document, building the JSON payload under
// lock then performing file I/O outside it so other goroutines aren't
// blocked on disk latency.
func (c *Cache) Save(opts SaveOptions) error {
	c.mu.Lock()
	var totalSrcLines, totalDstLines, totalSrcChars, totalDstChars int
	for _, b := range c.blocks {
		totalSrcLines += b.SrcLines
		totalDstLines += b.DstLines
		totalSrcChars += b.SrcChars
		totalDstChars += b.DstChars
	}

	doc := document{
		Version:      "2.0",
		OutputPath:   c.outputPath,
		SourcePath:   c.sourcePath,
		ModelName:    opts.ModelName,
		GlossaryPath: opts.GlossaryPath,
		Stats: stats{
			Concurrency: opts.Concurrency,
			BlockCount:  len(c.blocks),
			SrcLines:    totalSrcLines,
			DstLines:    totalDstLines,
			SrcChars:    totalSrcChars,
			DstChars:    totalDstChars,
		},
		Blocks: append([]Block(nil), c.blocks...),
	}

	engineMode := strings.ToLower(strings.TrimSpace(opts.EngineMode))
	if engineMode == "v1" || engineMode == "v2" {
		doc.EngineMode = engineMode
	}
	chunkType := strings.ToLower(strings.TrimSpace(opts.ChunkType))
	if chunkType == "legacy" {
		chunkType = "block"
	}
	if chunkType == "line" || chunkType == "chunk" || chunkType == "block" {
		doc.ChunkType = chunkType
	}
	if pipelineID := strings.TrimSpace(opts.PipelineID); pipelineID != "" {
		doc.PipelineID = pipelineID
	}
	c.mu.Unlock()

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	return c.writeFile(payload)
}

func (c *Cache) writeFile(payload []byte) error {
	if !c.compress {
		return os.WriteFile(c.cachePath, payload, 0o644)
	}
	f, err := os.Create(c.cachePath)
	if err != nil {
		return err
	}
	defer f.Close()
	gw := gzip.NewWriter(f)
	if _, err := gw.Write(payload); err != nil {
		gw.Close()
		return err
	}
	return gw.Close()
}

// Load reads the cache document from disk, replacing all in-memory
// state atomically. Returns (false, nil) if the cache file doesn't
// exist yet. A failed load leaves existing in-memory blocks untouched
// so a corrupt cache file never discards data already accumulated this
// run.
func (c *Cache) Load() (bool, error) {
	payload, err := c.readFile()
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var doc document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return false, err
	}

	indexMap := make(map[int]int, len(doc.Blocks))
	for i, b := range doc.Blocks {
		indexMap[b.Index] = i
	}

	c.mu.Lock()
	c.sourcePath = doc.SourcePath
	c.blocks = doc.Blocks
	c.indexMap = indexMap
	c.mu.Unlock()
	return true, nil
}

func (c *Cache) readFile() ([]byte, error) {
	if !c.compress {
		return os.ReadFile(c.cachePath)
	}
	f, err := os.Open(c.cachePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gr.Close()
	var buf []byte
	chunk := make([]byte, 32*1024)
	for {
		n, err := gr.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			break
		}
	}
	return buf, nil
}

// Path returns the cache file path for a given output path and
// compression mode, without constructing a Cache.
func Path(outputPath string, compress bool) string {
	if compress {
		return outputPath + cacheSuffixGz
	}
	return outputPath + cacheSuffix
}
