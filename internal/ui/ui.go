// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui renders human-mode terminal output for the translate CLI:
// colorized headers/labels and an optional stderr progress bar. Colors
// are dropped (text is still printed) when color is disabled or stdout
// is not a terminal; the progress bar is only built when stderr is a
// terminal. No command currently creates a progress bar.
package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

var (
	Green = color.New(color.FgGreen)
	Yellow = color.New(color.FgYellow)
	Red    = color.New(color.FgRed)
	Dim    = color.New(color.FgHiBlack)
	Bold   = color.New(color.Bold)
)

// InitColors disables color output when requested or when stdout is not
// a TTY (e.g. piped into a file or another process).
func InitColors(noColor bool) {
	if noColor || !isatty.IsTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
}

func Header(title string) {
	_, _ = Bold.Println(title)
}

func SubHeader(title string) {
	_, _ = Dim.Println(title)
}

func Label(text string) string {
	return Bold.Sprint(text)
}

func CountText(n int) string {
	return Bold.Sprintf("%d", n)
}

func DimText(s string) string {
	return Dim.Sprint(s)
}

// ProgressConfig controls whether a visual progress bar is rendered.
type ProgressConfig struct {
	Enabled bool // false when jsonEvents or quiet is set, or stderr is not a TTY
}

func NewProgressConfig(jsonEvents, quiet bool) ProgressConfig {
	if jsonEvents || quiet {
		return ProgressConfig{Enabled: false}
	}
	return ProgressConfig{Enabled: isatty.IsTerminal(os.Stderr.Fd())}
}

// NewBar creates a stderr progress bar for a given total block count, or
// nil when progress rendering is disabled.
func NewBar(cfg ProgressConfig, total int64, description string) *progressbar.ProgressBar {
	if !cfg.Enabled {
		return nil
	}
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(os.Stderr) }),
	)
}
