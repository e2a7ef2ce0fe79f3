// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/translate/internal/profile"
)

var allProfileKinds = []string{
	profile.KindAPI, profile.KindPrompt, profile.KindParser,
	profile.KindPolicy, profile.KindChunk, profile.KindPipeline,
}

// runValidate executes the 'validate' CLI command: walk a profiles
// directory and structurally validate every YAML file found, printing
// one OK/ERROR line per file and exiting non-zero if any file has a
// hard error. Warnings are informational only and never affect the
// exit code.
func runValidate(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	profilesDir := fs.String("profiles-dir", "", "Profiles directory (required)")
	kindFilter := fs.String("kind", "", "Restrict validation to one kind: api|prompt|parser|policy|chunk|pipeline")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: translate validate --profiles-dir <path> [--kind <kind>]

Description:
  Load every profile YAML file under --profiles-dir and run the same
  structural validation the pipeline runner applies at resolve time:
  required fields per kind, and soft reference-existence checks against
  the rest of the store. Prints "OK <kind>/<id>" or "ERROR <kind>/<id>:
  <reason>" per file; warnings go to stderr and never affect exit code.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if *profilesDir == "" {
		fmt.Fprintln(os.Stderr, "Error: --profiles-dir is required")
		fs.Usage()
		os.Exit(1)
	}

	kinds := allProfileKinds
	if *kindFilter != "" {
		kinds = []string{*kindFilter}
	}

	store := profile.NewStore(*profilesDir)
	hadError := false

	for _, kind := range kinds {
		ids, err := store.ListProfiles(kind)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR %s: cannot list profiles: %v\n", kind, err)
			hadError = true
			continue
		}
		for _, id := range ids {
			data, err := store.LoadProfile(kind, id)
			if err != nil {
				fmt.Printf("ERROR %s/%s: %v\n", kind, id, err)
				hadError = true
				continue
			}

			result := profile.Validate(kind, data, store)
			if result.OK() {
				fmt.Printf("OK %s/%s\n", kind, id)
			} else {
				hadError = true
				for _, e := range result.Errors {
					fmt.Printf("ERROR %s/%s: %s\n", kind, id, e)
				}
			}
			for _, w := range result.Warnings {
				fmt.Fprintf(os.Stderr, "WARN %s/%s: %s\n", kind, id, w)
			}
		}
	}

	if hadError {
		os.Exit(1)
	}
}
