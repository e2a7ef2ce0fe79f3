// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pipeline implements the Pipeline Runner: the orchestrator that
// wires the profile-driven provider/prompt/parser/policy/chunk layers
// together, dispatches blocks concurrently with bounded or adaptive
// concurrency, reconciles output against line policy, and reconstructs
// the translated document with resume and caching support. Grounded on
// murasaki_flow_v2/pipelines/runner.py in full.
package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/kraklabs/translate/internal/cache"
	"github.com/kraklabs/translate/internal/chunk"
	"github.com/kraklabs/translate/internal/concurrency"
	"github.com/kraklabs/translate/internal/document"
	"github.com/kraklabs/translate/internal/linepolicy"
	"github.com/kraklabs/translate/internal/logprotocol"
	"github.com/kraklabs/translate/internal/metrics"
	"github.com/kraklabs/translate/internal/model"
	"github.com/kraklabs/translate/internal/parser"
	"github.com/kraklabs/translate/internal/processing"
	"github.com/kraklabs/translate/internal/profile"
	"github.com/kraklabs/translate/internal/prompt"
	"github.com/kraklabs/translate/internal/provider"
)

// MaxConcurrency caps the explicit (non-adaptive) worker pool size,
// mirroring the original's hardcoded ceiling.
const MaxConcurrency = 256

// Options configures one pipeline run, layering CLI overrides on top of
// the pipeline profile's own settings.
type Options struct {
	InputPath    string
	OutputPath   string
	PipelineRef  string
	ProfilesDir  string
	Resume       bool
	SaveCache    bool
	CacheDir     string
	CompressCache bool

	RulesPreOverride  string
	RulesPostOverride string
	GlossaryOverride  string
	SourceLangOverride string

	EnableQuality  *bool
	TextProtect    *bool

	// Metrics receives Prometheus counters/gauges for this run. Nil
	// disables metrics recording.
	Metrics *metrics.Registry
}

// Result summarizes a completed run, returned to the CLI layer for
// exit-code and human-readable summary decisions.
type Result struct {
	OutputPath     string
	CachePath      string
	BlocksTotal    int
	BlocksDone     int
	LineErrorsPath string
	QualityWarningsPath string
}

// Runner wires the profile-driven layers together for one pipeline
// profile. A single Runner can execute Run multiple times (e.g. across
// files) since all state lives in the per-run call.
type Runner struct {
	store *profile.Store
	log   *slog.Logger

	providers     *provider.Registry
	parsers       *parser.Registry
	prompts       *prompt.Registry
	linePolicies  *linepolicy.Registry
	chunkPolicies *chunk.Registry
}

// NewRunner builds a Runner backed by a profiles directory.
func NewRunner(profilesDir string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	store := profile.NewStore(profilesDir)
	return &Runner{
		store:         store,
		log:           logger,
		providers:     provider.NewRegistry(store),
		parsers:       parser.NewRegistry(store),
		prompts:       prompt.NewRegistry(store),
		linePolicies:  linepolicy.NewRegistry(store),
		chunkPolicies: chunk.NewRegistry(store),
	}
}

// resolvedPipeline holds everything derived from the pipeline profile
// and CLI overrides before a single block is dispatched.
type resolvedPipeline struct {
	pipeline       map[string]any
	pipelineID     string
	provider       provider.Provider
	providerProfile map[string]any
	providerRef    string
	promptProfile  prompt.Profile
	promptContext  map[string]any
	parser         parser.Parser
	linePolicy     linepolicy.Policy
	chunkPolicy    chunk.Policy
	chunkType      string
	applyLinePolicy bool
	sourceFormat   string

	settings map[string]any
	maxRetries int
	concurrency int
	useAdaptive bool

	processingProc *processing.Processor
	glossaryText   string
	glossarySpec   any
}

// Run executes one pipeline profile against an input file, writing the
// translated output (and, unless disabled, a cache sidecar) to disk.
func (r *Runner) Run(opts Options) (*Result, error) {
	pipelineData, err := r.store.LoadProfile(profile.KindPipeline, opts.PipelineRef)
	if err != nil {
		return nil, fmt.Errorf("load pipeline profile: %w", err)
	}

	rp, err := r.resolvePipeline(pipelineData, opts)
	if err != nil {
		return nil, err
	}

	decoder := document.ForExtension(opts.InputPath)
	items, err := decoder.Load(opts.InputPath)
	if err != nil {
		return nil, fmt.Errorf("load input %q: %w", opts.InputPath, err)
	}

	sourceLines := extractSourceLines(items)
	chunkItems := make([]chunk.Item, len(items))
	for i, it := range items {
		chunkItems[i] = chunk.Item{Text: it.Text, Meta: it.Index}
	}
	blocks := rp.chunkPolicy.Chunk(chunkItems)

	outputPath := opts.OutputPath
	if outputPath == "" {
		outputPath = defaultOutputPath(opts.InputPath)
	}

	tempPath := outputPath + ".temp.jsonl"
	fingerprint := runFingerprint{
		Type:      "fingerprint",
		Version:   1,
		Input:     opts.InputPath,
		Pipeline:  rp.pipelineID,
		ChunkType: rp.chunkType,
	}

	var resumeEntries map[int]resumeEntry
	resumeMatched := false
	if opts.Resume {
		resumeEntries, resumeMatched = loadResumeFile(tempPath, fingerprint)
		if len(resumeEntries) == 0 {
			resumeEntries = loadResumeCache(outputPath, opts.CacheDir, opts.CompressCache)
			resumeMatched = false
		}
	}

	tempW, err := newTempWriter(tempPath, opts.Resume && len(resumeEntries) > 0 && resumeMatched, fingerprint)
	if err != nil {
		r.log.Warn("pipeline.temp_progress.open.error", "err", err)
	}
	defer tempW.Close()

	totalSourceChars := 0
	for _, l := range sourceLines {
		totalSourceChars += len([]rune(l))
	}
	tracker := logprotocol.NewTracker(len(blocks), len(sourceLines), totalSourceChars)
	if rp.providerProfile != nil {
		tracker.APIURL = strField(rp.providerProfile, "base_url")
	}

	translated := make([]*model.TextBlock, len(blocks))
	resumeCompleted, resumeOutputLines, resumeOutputChars := seedFromResume(blocks, translated, resumeEntries)
	if resumeCompleted > 0 {
		tracker.SeedProgress(resumeCompleted, resumeOutputLines, resumeOutputChars)
	}

	w := &worker{
		runner:      r,
		rp:          rp,
		sourceLines: sourceLines,
		blocks:      blocks,
		temp:        tempW,
		tracker:     tracker,
		translated:  translated,
		lineErrors:  newLineErrorSink(),
		metrics:     opts.Metrics,
	}
	if opts.Metrics != nil {
		opts.Metrics.BlocksTotal.Set(float64(len(blocks)))
	}

	var adaptive *concurrency.AdaptiveConcurrency
	if rp.useAdaptive {
		maxLimit := len(blocks)
		if maxLimit > 128 {
			maxLimit = 128
		}
		if maxLimit < 1 {
			maxLimit = 1
		}
		adaptive = concurrency.New(concurrency.Config{MaxLimit: maxLimit})
		w.adaptive = adaptive
	}

	pending := pendingIndices(translated)
	if err := w.dispatch(pending); err != nil {
		return nil, err
	}

	tempW.Close()

	for i, b := range translated {
		if b == nil {
			return nil, fmt.Errorf("translation_incomplete: block %d never completed", i)
		}
	}

	doneBlocks := make([]model.TextBlock, len(translated))
	for i, b := range translated {
		doneBlocks[i] = *b
	}

	logprotocol.EmitOutputPath(outputPath)

	result := &Result{
		OutputPath:  outputPath,
		BlocksTotal: len(blocks),
		BlocksDone:  len(doneBlocks),
	}

	if rp.processingProc != nil && rp.processingProc.EnableQuality() {
		outputLines := make([]string, len(doneBlocks))
		for i, b := range doneBlocks {
			outputLines[i] = b.Text
		}
		if len(sourceLines) > 0 && len(outputLines) == len(sourceLines) {
			warnings := rp.processingProc.CheckQuality(sourceLines, outputLines, false)
			if len(warnings) > 0 {
				path := outputPath + ".quality_warnings.jsonl"
				if err := writeQualityWarnings(path, warnings); err == nil {
					result.QualityWarningsPath = path
				}
				for _, warning := range warnings {
					logprotocol.EmitWarning(warning.Line, warning.Message, warning.Type)
				}
			}
		}
	}

	if entries := w.lineErrors.snapshot(); len(entries) > 0 {
		path := outputPath + ".line_errors.jsonl"
		if err := writeLineErrors(path, entries); err == nil {
			result.LineErrorsPath = path
		}
	}

	if err := decoder.Save(outputPath, doneBlocks); err != nil {
		return nil, fmt.Errorf("write output %q: %w", outputPath, err)
	}

	if opts.SaveCache {
		c := cache.New(outputPath, opts.CacheDir, opts.InputPath, opts.CompressCache)
		for idx, block := range blocks {
			c.AddBlock(idx, block.Text, doneBlocks[idx].Text, nil, "", nil)
		}
		modelName := strField(rp.providerProfile, "model")
		if modelName == "" {
			modelName = rp.providerRef
		}
		if modelName == "" {
			modelName = rp.pipelineID
		}
		if modelName == "" {
			modelName = "unknown"
		}
		glossaryPath := ""
		if s, ok := rp.glossarySpec.(string); ok {
			glossaryPath = s
		}
		if err := c.Save(cache.SaveOptions{
			ModelName:    modelName,
			GlossaryPath: glossaryPath,
			Concurrency:  rp.concurrency,
			EngineMode:   "v2",
			ChunkType:    rp.chunkType,
			PipelineID:   rp.pipelineID,
		}); err != nil {
			r.log.Warn("pipeline.cache.save.error", "err", err)
		} else {
			result.CachePath = c.CachePath()
			logprotocol.EmitCachePath(c.CachePath())
		}
	}

	tracker.EmitFinalStats()
	_ = os.Remove(tempPath)

	return result, nil
}

func extractSourceLines(items []model.Item) []string {
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = strings.TrimRight(it.Text, "\n")
	}
	return lines
}

func defaultOutputPath(inputPath string) string {
	ext := extOf(inputPath)
	base := strings.TrimSuffix(inputPath, ext)
	return base + "_translated" + ext
}

func extOf(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i:]
		}
	}
	return ""
}

func strField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func intField(m map[string]any, key string, def int) int {
	if m == nil {
		return def
	}
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}
