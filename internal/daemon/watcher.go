package daemon

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watch runs the fsnotify loop over the given roots until ctx is
// cancelled.
func (d *Daemon) watch(ctx context.Context, roots []string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("daemon: start watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	for _, root := range roots {
		if err := d.addTree(watcher, root); err != nil {
			return err
		}
	}

	d.log.Info("watching", "paths", roots, "extensions", d.cfg.Extensions)

	// Single debounce timer, reset on each event; when it fires, all
	// accumulated paths flush. No per-event goroutines.
	debounce := time.NewTimer(d.cfg.Debounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			d.flush()
			return nil

		case <-debounce.C:
			d.flush()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !d.handleEvent(watcher, event) {
				continue
			}
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(d.cfg.Debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			d.log.Warn("watch error", "err", err)
		}
	}
}

// handleEvent updates watch and tracker state for one fsnotify event and
// reports whether a monitored path became ready for processing.
func (d *Daemon) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event) bool {
	path := event.Name

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			// Watch new subdirectories so nested writes are seen.
			if !d.ignored(path) {
				if err := d.addTree(watcher, path); err != nil {
					d.log.Warn("watch subdirectory", "path", path, "err", err)
				}
			}
			return false
		}
		if !d.watchable(path) {
			return false
		}
		// A create for an untracked path is a genuinely new file; a
		// tracked one is an editor renaming over an existing snapshot,
		// which must stay restorable.
		if !d.tracker.Tracked(path) {
			d.tracker.MarkNew(path)
		}
		return d.markReady(path)
	}

	if event.Has(fsnotify.Write) {
		if !d.watchable(path) {
			return false
		}
		return d.markReady(path)
	}

	return false
}

func (d *Daemon) markReady(path string) bool {
	d.mu.Lock()
	d.ready[path] = true
	d.mu.Unlock()
	return true
}

// flush processes all accumulated paths sequentially. A revert is itself
// a write; sequential processing keeps check and revert ordering simple.
func (d *Daemon) flush() {
	d.mu.Lock()
	batch := make([]string, 0, len(d.ready))
	for p := range d.ready {
		batch = append(batch, p)
	}
	d.ready = make(map[string]bool)
	d.mu.Unlock()

	sort.Strings(batch)
	for _, p := range batch {
		d.process(p)
	}
}

// addTree watches root and every nested directory, and snapshots each
// monitored file so a later blocked write can restore its current bytes.
func (d *Daemon) addTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if path != root && d.ignored(path) {
				return filepath.SkipDir
			}
			if err := watcher.Add(path); err != nil {
				return fmt.Errorf("daemon: watch %s: %w", path, err)
			}
			return nil
		}
		if d.watchable(path) {
			d.tracker.CaptureBefore(path)
		}
		return nil
	})
}

// ignored reports whether any configured ignore fragment appears in path.
func (d *Daemon) ignored(path string) bool {
	for _, frag := range d.cfg.Ignore {
		if strings.Contains(path, frag) {
			return true
		}
	}
	return false
}

// watchable reports whether path is a monitored file: not ignored and
// carrying one of the configured extensions.
func (d *Daemon) watchable(path string) bool {
	if d.ignored(path) {
		return false
	}
	if len(d.exts) == 0 {
		return true
	}
	return d.exts[strings.ToLower(filepath.Ext(path))]
}
