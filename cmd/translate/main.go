// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main implements the translate CLI: a resumable, concurrent
// document translation pipeline runner driven by YAML profiles.
//
// Usage:
//
//	translate run --file <path> --pipeline <id> --profiles-dir <path>
//	translate validate --profiles-dir <path>
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/translate/internal/ui"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags holds flags accepted before the subcommand name.
type GlobalFlags struct {
	NoColor bool
	Quiet   bool
}

func main() {
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		noColor     = flag.Bool("no-color", false, "Disable color output")
		quiet       = flag.BoolP("quiet", "q", false, "Suppress non-essential human-mode output")
	)

	// Stop parsing at the first non-flag argument so subcommand flags
	// like "run --file x --pipeline y" reach the subcommand's own
	// FlagSet instead of being rejected here.
	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `translate - document translation pipeline runner

Usage:
  translate <command> [options]

Commands:
  run       Translate a document through a pipeline profile
  validate  Validate profile YAML files under a profiles directory

Global Options:
  --no-color      Disable color output (respects NO_COLOR env var)
  -q, --quiet     Suppress non-essential human-mode output
  -V, --version   Show version and exit

Examples:
  translate run --file ch01.txt --pipeline novel_ja_en --profiles-dir ./profiles
  translate run --file ch01.srt --pipeline novel_ja_en --profiles-dir ./profiles --resume
  translate validate --profiles-dir ./profiles

For subcommand flags: translate <command> --help

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("translate version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}

	globals := GlobalFlags{NoColor: *noColor, Quiet: *quiet}
	ui.InitColors(globals.NoColor)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "run":
		runRun(cmdArgs, globals)
	case "validate":
		runValidate(cmdArgs, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
