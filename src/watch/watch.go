// Package watch provides the filesystem watcher behind moonplz's Watch:
// it watches the source trees of a set of
// packages and invokes a rebuild callback whenever a relevant file changes
// (spec.md 4.5's incremental rebuild behavior, observed live rather than via
// a second invocation).
package watch

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/moonbitlang/moon/src/cli/logging"
	"github.com/moonbitlang/moon/src/core"
	"github.com/moonbitlang/moon/src/fs"
)

var log = logging.Log

const debounceInterval = 50 * time.Millisecond

// Rebuild is invoked once per debounced batch of file-change events.
type Rebuild func()

// Watch watches the sources (and package manifests) of every given package
// and calls rebuild whenever one changes, debouncing rapid bursts of events
// into a single call. It runs until stop is closed.
func Watch(packages []*core.Package, rebuild Rebuild, stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	watched := map[string]bool{}
	if err := addWatches(watcher, packages, watched); err != nil {
		return err
	}
	log.Notice("Watching %d package(s) for changes...", len(packages))

	for {
		select {
		case <-stop:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !watched[event.Name] {
				log.Debug("Ignoring notification for unwatched path %s", event.Name)
				continue
			}
			log.Info("Change detected: %s", event)
			drain(watcher.Events, stop)
			rebuild()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("Error watching files: %s", err)
		}
	}
}

// drain discards events for debounceInterval so a burst of saves (editors
// often write a file, then touch its mtime, then write again) triggers one
// rebuild instead of several.
func drain(events <-chan fsnotify.Event, stop <-chan struct{}) {
	for {
		select {
		case <-events:
		case <-stop:
			return
		case <-time.After(debounceInterval):
			return
		}
	}
}

// addWatches registers every source file and the package manifest of each
// given package.
func addWatches(watcher *fsnotify.Watcher, packages []*core.Package, watched map[string]bool) error {
	dirs := map[string]bool{}
	for _, pkg := range packages {
		sources := append(allSources(pkg), manifestPath(pkg))
		for _, src := range sources {
			if err := fs.Walk(src, func(name string, isDir bool) error {
				watched[name] = true
				dir := name
				if !isDir {
					dir = filepath.Dir(name)
				}
				if !dirs[dir] {
					dirs[dir] = true
					if err := watcher.Add(dir); err != nil {
						return err
					}
					log.Notice("Watching %s", dir)
				}
				return nil
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func allSources(pkg *core.Package) []string {
	all := append([]string(nil), pkg.Sources.Regular...)
	all = append(all, pkg.Sources.Whitebox...)
	all = append(all, pkg.Sources.Blackbox...)
	return all
}

func manifestPath(pkg *core.Package) string {
	return filepath.Join(pkg.Root, "moon.pkg.json")
}
