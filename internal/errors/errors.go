// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package errors classifies CLI-facing failures into the runner's exit
// codes and formats them for human or JSON output.
//
// Exit codes (per the external CLI contract):
//
//	0 – success, run completed (possibly with best-effort line errors)
//	1 – usage/input error (bad flags, missing required arguments,
//	    unreadable input file, pipeline profile not found)
//	2 – configuration/profile error (invalid YAML, unresolvable
//	    referenced profiles)
//	3 – run failure (no output could be produced)
package errors

import (
	"encoding/json"
	"fmt"
	"os"
)

// Code is the process exit code associated with a classified error.
type Code int

const (
	CodeUsage  Code = 1
	CodeConfig Code = 2
	CodeRun    Code = 3
)

// RunnerError is a classified, user-facing error carrying a short title,
// a detail line, a remediation hint, and the underlying cause.
type RunnerError struct {
	Code   Code
	Title  string
	Detail string
	Hint   string
	Cause  error
}

func (e *RunnerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Title, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Title, e.Detail)
}

func (e *RunnerError) Unwrap() error { return e.Cause }

func NewUsageError(title, detail, hint string, cause error) *RunnerError {
	return &RunnerError{Code: CodeUsage, Title: title, Detail: detail, Hint: hint, Cause: cause}
}

func NewConfigError(title, detail, hint string, cause error) *RunnerError {
	return &RunnerError{Code: CodeConfig, Title: title, Detail: detail, Hint: hint, Cause: cause}
}

func NewRunError(title, detail, hint string, cause error) *RunnerError {
	return &RunnerError{Code: CodeRun, Title: title, Detail: detail, Hint: hint, Cause: cause}
}

// FatalError prints a classified error and exits the process with its
// code. If err is not a *RunnerError, it is treated as an unclassified
// run failure (exit code 3).
func FatalError(err error, jsonOutput bool) {
	if err == nil {
		return
	}

	rerr, ok := err.(*RunnerError)
	if !ok {
		rerr = NewRunError("Unexpected error", err.Error(), "", err)
	}

	if jsonOutput {
		payload := map[string]any{
			"title":   rerr.Title,
			"message": rerr.Detail,
		}
		if rerr.Hint != "" {
			payload["hint"] = rerr.Hint
		}
		enc, _ := json.Marshal(payload)
		fmt.Fprintf(os.Stderr, "JSON_ERROR:%s\n", enc)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n%s\n", rerr.Title, rerr.Detail)
		if rerr.Hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", rerr.Hint)
		}
	}

	os.Exit(int(rerr.Code))
}
