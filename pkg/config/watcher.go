package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the configuration file on change and hands each valid
// new Config to the apply callback. Invalid edits are logged and skipped;
// the running configuration stays untouched.
//
// Events are debounced: editors produce bursts of writes (and some replace
// the file, which surfaces as Remove+Create), so the watcher waits for the
// file to settle before reloading.
type Watcher struct {
	path    string
	apply   func(*Config) error
	watcher *fsnotify.Watcher
}

// debounceInterval is how long the file must be quiet before a reload.
const debounceInterval = 250 * time.Millisecond

// NewWatcher creates a watcher for the config file at path.
func NewWatcher(path string, apply func(*Config) error) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: rename-replace editors and
	// configmap-style symlink swaps would otherwise drop the watch.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	return &Watcher{path: path, apply: apply, watcher: fsw}, nil
}

// Run processes events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(debounceInterval)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "error", err)

		case <-pending:
			pending = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		slog.Error("config reload failed, keeping previous configuration",
			"path", w.path,
			"error", err,
		)
		return
	}

	if err := w.apply(cfg); err != nil {
		slog.Error("config apply failed, keeping previous configuration",
			"path", w.path,
			"error", err,
		)
		return
	}

	slog.Info("configuration reloaded", "path", w.path)
}
