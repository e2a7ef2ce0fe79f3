// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const profileWatchDebounce = 2 * time.Second

// watchProfilesDir starts a debounced fsnotify watcher over dir and logs
// (via slog, not the stdout event protocol) whenever a profile file
// changes. It never hot-swaps the already-resolved pipeline of the
// current run; it only surfaces change notifications for whoever starts
// the next one. The returned stop func closes the watcher goroutine.
func watchProfilesDir(dir string, logger *slog.Logger) func() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("profiles.watch.error", "err", err)
		return func() {}
	}

	kindDirs := []string{"api", "prompt", "parser", "policy", "chunk", "pipeline"}
	watched := 0
	for _, kind := range kindDirs {
		if err := watcher.Add(filepath.Join(dir, kind)); err == nil {
			watched++
		}
	}
	if watched == 0 {
		if err := watcher.Add(dir); err == nil {
			watched++
		}
	}
	logger.Info("profiles.watch.start", "dir", dir, "watched_dirs", watched)

	done := make(chan struct{})
	go func() {
		var debounceTimer *time.Timer
		var timerCh <-chan time.Time
		eventCount := 0

		for {
			select {
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				eventCount++
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.NewTimer(profileWatchDebounce)
				timerCh = debounceTimer.C
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("profiles.watch.error", "err", err)
			case <-timerCh:
				timerCh = nil
				logger.Info("profiles.watch.changed", "events", eventCount)
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		_ = watcher.Close()
	}
}
