// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package linepolicy

import (
	"fmt"
)

// Policy reconciles the line count of a translated block's output
// against its source before it's written to the cache/output stream.
type Policy interface {
	Apply(sourceLines, outputLines []string) ([]string, error)
}

// MismatchError signals a line-count mismatch the policy either cannot
// resolve or has been configured to surface as retryable.
type MismatchError struct {
	msg string
}

func (e *MismatchError) Error() string { return e.msg }

// Options is the decoded `options` map of a `policy` profile.
type Options struct {
	OnMismatch          string // strict: error (default) | retry | pad | truncate | align
	Checks              any
	Trim                *bool
	SimilarityThreshold float64
	SourceLang          string
}

func (o Options) checkOptions() CheckOptions {
	trim := true
	if o.Trim != nil {
		trim = *o.Trim
	}
	return CheckOptions{
		Checks:              o.Checks,
		Trim:                trim,
		SimilarityThreshold: o.SimilarityThreshold,
		SourceLang:          o.SourceLang,
	}
}

// StrictPolicy requires the output line count to equal the source line
// count, resolving mismatches per OnMismatch.
type StrictPolicy struct {
	Options Options
}

func (p *StrictPolicy) Apply(sourceLines, outputLines []string) ([]string, error) {
	var result []string
	if len(sourceLines) == len(outputLines) {
		result = outputLines
	} else {
		onMismatch := p.Options.OnMismatch
		if onMismatch == "" {
			onMismatch = "error"
		}
		switch onMismatch {
		case "retry":
			return nil, &MismatchError{msg: fmt.Sprintf("StrictLinePolicy mismatch: src=%d dst=%d", len(sourceLines), len(outputLines))}
		case "pad":
			result = padOrTruncate(outputLines, len(sourceLines))
		case "truncate":
			result = truncateOnly(outputLines, len(sourceLines))
		case "align":
			result = AlignLines(sourceLines, outputLines)
		default:
			return nil, &MismatchError{msg: fmt.Sprintf("StrictLinePolicy mismatch: src=%d dst=%d", len(sourceLines), len(outputLines))}
		}
	}
	if err := RunQualityChecks(sourceLines, result, p.Options.checkOptions()); err != nil {
		return nil, err
	}
	return result, nil
}

// TolerantPolicy always reconciles mismatches via AlignLines rather
// than erroring or retrying.
type TolerantPolicy struct {
	Options Options
}

func (p *TolerantPolicy) Apply(sourceLines, outputLines []string) ([]string, error) {
	var result []string
	if len(sourceLines) == len(outputLines) {
		result = outputLines
	} else {
		result = AlignLines(sourceLines, outputLines)
	}
	if err := RunQualityChecks(sourceLines, result, p.Options.checkOptions()); err != nil {
		return nil, err
	}
	return result, nil
}

func padOrTruncate(lines []string, target int) []string {
	if len(lines) < target {
		out := make([]string, target)
		copy(out, lines)
		return out
	}
	return lines[:target]
}

func truncateOnly(lines []string, target int) []string {
	if len(lines) <= target {
		return lines
	}
	return lines[:target]
}

// New builds a Policy from a decoded `policy` profile's type and
// options.
func New(kind string, options Options) (Policy, error) {
	switch kind {
	case "strict":
		return &StrictPolicy{Options: options}, nil
	case "tolerant":
		return &TolerantPolicy{Options: options}, nil
	default:
		return nil, fmt.Errorf("unknown line policy type %q", kind)
	}
}
