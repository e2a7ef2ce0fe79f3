// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/translate/internal/errors"
	"github.com/kraklabs/translate/internal/logprotocol"
	"github.com/kraklabs/translate/internal/metrics"
	"github.com/kraklabs/translate/internal/pipeline"
	"github.com/kraklabs/translate/internal/ui"
)

// runRun executes the 'run' CLI command: translate one document through
// a pipeline profile.
//
// Flags:
//   - --file, --pipeline, --profiles-dir: required inputs
//   - --output: override the default "<stem>_translated<ext>" path
//   - --rules-pre, --rules-post, --glossary, --source-lang: processing overrides
//   - --enable-quality/--disable-quality, --text-protect/--no-text-protect
//   - --resume: continue from temp-progress or cache state
//   - --cache-dir, --no-cache, --compress-cache
//   - --metrics-addr: expose Prometheus metrics on an HTTP listener
//   - --watch-profiles: log profile-directory changes for the next run
//   - --log-format, --debug
func runRun(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)

	filePath := fs.String("file", "", "Path to the source document (required)")
	pipelineRef := fs.String("pipeline", "", "Pipeline profile id (required)")
	profilesDir := fs.String("profiles-dir", "", "Profiles directory (required)")
	outputPath := fs.String("output", "", "Output path (default: <stem>_translated<ext>)")

	rulesPre := fs.String("rules-pre", "", "Pre-processing rule spec or path (overrides pipeline profile)")
	rulesPost := fs.String("rules-post", "", "Post-processing rule spec or path (overrides pipeline profile)")
	glossary := fs.String("glossary", "", "Glossary spec or path (overrides pipeline profile)")
	sourceLang := fs.String("source-lang", "", "Source language: ja|en|ko|zh (overrides pipeline profile)")

	enableQuality := fs.Bool("enable-quality", false, "Force-enable block-level quality warnings")
	disableQuality := fs.Bool("disable-quality", false, "Force-disable block-level quality warnings")
	textProtect := fs.Bool("text-protect", false, "Force-enable placeholder/tag text protection")
	noTextProtect := fs.Bool("no-text-protect", false, "Force-disable placeholder/tag text protection")

	resume := fs.Bool("resume", false, "Resume from temp-progress or cache state, if present")
	noCache := fs.Bool("no-cache", false, "Do not write a translation cache sidecar")
	cacheDir := fs.String("cache-dir", "", "Directory for the cache sidecar (default: alongside output)")
	compressCache := fs.Bool("compress-cache", false, "Gzip-compress the cache sidecar")

	metricsAddr := fs.String("metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")
	watchProfiles := fs.Bool("watch-profiles", false, "Log profile-directory changes for the next run")
	logFormat := fs.String("log-format", "text", "Structured log format: text|json")
	debug := fs.Bool("debug", false, "Enable debug logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: translate run --file <path> --pipeline <id> --profiles-dir <path> [options]

Description:
  Translate a document through a profile-driven pipeline: chunk the
  source, dispatch blocks concurrently (fixed or adaptive concurrency),
  retry failed blocks against the classified provider/parser/line-policy
  error taxonomy, and write an order-preserving translated document.

  On success (or best-effort completion with recorded line errors) the
  run exits 0. Missing input/profile is exit 1, profile/configuration
  errors are exit 2, and a run that cannot produce any output is exit 3.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  translate run --file ch01.txt --pipeline novel_ja_en --profiles-dir ./profiles
  translate run --file ch01.srt --pipeline novel_ja_en --profiles-dir ./profiles --resume
  translate run --file ch01.txt --pipeline novel_ja_en --profiles-dir ./profiles --glossary ./glossary.yaml
  translate run --file ch01.txt --pipeline novel_ja_en --profiles-dir ./profiles --metrics-addr :9090

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *filePath == "" || *pipelineRef == "" || *profilesDir == "" {
		errors.FatalError(errors.NewUsageError(
			"Missing required flag",
			"--file, --pipeline, and --profiles-dir are all required",
			"Run `translate run --help` for usage",
			nil,
		), false)
	}

	if *enableQuality && *disableQuality {
		errors.FatalError(errors.NewUsageError(
			"Conflicting flags",
			"--enable-quality and --disable-quality cannot both be set",
			"",
			nil,
		), false)
	}
	if *textProtect && *noTextProtect {
		errors.FatalError(errors.NewUsageError(
			"Conflicting flags",
			"--text-protect and --no-text-protect cannot both be set",
			"",
			nil,
		), false)
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	var handler slog.Handler
	if *logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)

	var reg *metrics.Registry
	if *metricsAddr != "" {
		promReg := prometheus.NewRegistry()
		reg = metrics.New(promReg)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
			srv := &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
			logger.Info("metrics.http.start", "addr", *metricsAddr, "path", "/metrics")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics.http.error", "err", err)
			}
		}()
	}

	if *watchProfiles {
		stop := watchProfilesDir(*profilesDir, logger)
		defer stop()
	}

	opts := pipeline.Options{
		InputPath:     *filePath,
		OutputPath:    *outputPath,
		PipelineRef:   *pipelineRef,
		ProfilesDir:   *profilesDir,
		Resume:        *resume,
		SaveCache:     !*noCache,
		CacheDir:      *cacheDir,
		CompressCache: *compressCache,

		RulesPreOverride:   *rulesPre,
		RulesPostOverride:  *rulesPost,
		GlossaryOverride:   *glossary,
		SourceLangOverride: *sourceLang,

		Metrics: reg,
	}

	if *enableQuality {
		v := true
		opts.EnableQuality = &v
	}
	if *disableQuality {
		v := false
		opts.EnableQuality = &v
	}
	if *textProtect {
		v := true
		opts.TextProtect = &v
	}
	if *noTextProtect {
		v := false
		opts.TextProtect = &v
	}

	runner := pipeline.NewRunner(*profilesDir, logger)

	result, err := runner.Run(opts)
	if err != nil {
		logprotocol.EmitError(err.Error(), "Pipeline Error")
		errors.FatalError(classifyRunError(err), false)
	}

	if !globals.Quiet {
		ui.Header("translation complete")
		fmt.Fprintf(os.Stderr, "%s %s / %s\n", ui.Label("blocks:"), ui.CountText(result.BlocksDone), ui.CountText(result.BlocksTotal))
		fmt.Fprintf(os.Stderr, "%s %s\n", ui.Label("output:"), result.OutputPath)
		if result.CachePath != "" {
			fmt.Fprintf(os.Stderr, "%s %s\n", ui.Label("cache:"), result.CachePath)
		}
		if result.LineErrorsPath != "" {
			ui.Yellow.Fprintf(os.Stderr, "%s %s\n", ui.Label("line errors:"), result.LineErrorsPath)
		}
		if result.QualityWarningsPath != "" {
			ui.Yellow.Fprintf(os.Stderr, "%s %s\n", ui.Label("quality warnings:"), result.QualityWarningsPath)
		}
	}
}

// classifyRunError maps a pipeline error to one of the three non-zero
// exit codes documented in the CLI surface: missing input/profile (1),
// profile/configuration failure (2), or an unrecoverable run failure
// (3). The pipeline layer itself only ever absorbs per-block provider/
// parser/line-policy failures into best-effort completion; anything
// that reaches here is an orchestration-level failure.
func classifyRunError(err error) error {
	if rerr, ok := err.(*errors.RunnerError); ok {
		return rerr
	}
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "load input "):
		return errors.NewUsageError("Cannot read input", msg, "Check the --file path", err)
	case strings.HasPrefix(msg, "load pipeline profile") && stderrors.Is(err, fs.ErrNotExist):
		return errors.NewUsageError("Pipeline profile not found", msg, "Check --pipeline and --profiles-dir", err)
	case strings.HasPrefix(msg, "load pipeline profile"),
		strings.HasPrefix(msg, "resolve provider"),
		strings.HasPrefix(msg, "resolve prompt"),
		strings.HasPrefix(msg, "resolve parser"),
		strings.HasPrefix(msg, "resolve line policy"),
		strings.HasPrefix(msg, "resolve chunk policy"):
		return errors.NewConfigError("Invalid pipeline configuration", msg, "Check the referenced profiles under --profiles-dir, or run `translate validate`", err)
	default:
		return errors.NewRunError("Pipeline run failed", msg, "", err)
	}
}
