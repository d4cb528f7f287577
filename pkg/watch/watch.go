// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package watch re-runs a function whenever files change below a set of
// directories.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// DefaultDebounce is how long the watcher waits for events to settle
const DefaultDebounce = 2 * time.Second

// ErrNothingToWatch is returned when none of the roots exist
var ErrNothingToWatch = errors.Base("no directory to watch")

// RunFunc is called once per settled burst of events
type RunFunc func(ctx context.Context) error

// 👀 Watcher watches directory trees and calls its RunFunc after changes
type Watcher struct {
	Roots    []string
	Debounce time.Duration

	// Ignore reports paths whose events should not trigger a run
	Ignore func(path string) bool

	Run RunFunc
}

// Watch blocks until ctx is done. Directories created later are watched as
// they appear. Errors from Run are logged and do not stop the watch.
func (w *Watcher) Watch(ctx context.Context) error {
	logger := zerolog.Ctx(ctx)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()

	watched := 0
	for _, root := range w.Roots {
		n, err := addTree(ctx, fsw, root)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				logger.Warn().Str("root", root).Msg("watch root does not exist")
				continue
			}
			return err
		}
		watched += n
	}
	if watched == 0 {
		return errors.Errorf("%w: %v", ErrNothingToWatch, w.Roots)
	}
	logger.Info().Strs("roots", w.Roots).Int("directories", watched).Msg("watching for changes")

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	timer := time.NewTimer(debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			logger.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("change detected")

			if event.Has(fsnotify.Create) {
				if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
					if _, err := addTree(ctx, fsw, event.Name); err != nil {
						logger.Warn().Err(err).Str("path", event.Name).Msg("watching new directory")
					}
				}
			}
			timer.Reset(debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("watcher error")

		case <-timer.C:
			if err := w.Run(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Error().Err(err).Msg("run after change failed")
			}
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	if w.Ignore != nil && w.Ignore(event.Name) {
		return false
	}
	return true
}

// addTree watches root and every directory below it, returning how many
// directories were added
func addTree(ctx context.Context, fsw *fsnotify.Watcher, root string) (int, error) {
	logger := zerolog.Ctx(ctx)

	info, err := os.Stat(root)
	if err != nil {
		return 0, errors.Errorf("checking %s: %w", root, err)
	}
	if !info.IsDir() {
		return 0, errors.Errorf("%s is not a directory", root)
	}

	added := 0
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			logger.Warn().Err(walkErr).Str("path", path).Msg("skipping unreadable directory")
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := fsw.Add(path); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("failed to watch directory")
			return nil
		}
		added++
		return nil
	})
	if err != nil {
		return added, errors.Errorf("walking %s: %w", root, err)
	}
	return added, nil
}
