package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hugo-lorenzo-mato/flowrun/internal/logging"
)

// DefaultDebounce coalesces the burst of events an editor emits on save.
const DefaultDebounce = 200 * time.Millisecond

// Watcher re-imports workflow files when they change on disk.
// Removing a file leaves the stored workflow in place.
type Watcher struct {
	loader   *Loader
	dir      string
	debounce time.Duration
	logger   *logging.Logger
	onImport func(path string, err error)
}

// NewWatcher creates a watcher over dir.
func NewWatcher(loader *Loader, dir string, logger *logging.Logger) *Watcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Watcher{loader: loader, dir: dir, debounce: DefaultDebounce, logger: logger}
}

// WithDebounce sets the quiet period before a changed file is imported.
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// OnImport registers a callback invoked after each import attempt.
func (w *Watcher) OnImport(fn func(path string, err error)) *Watcher {
	w.onImport = fn
	return w
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Info("catalog: watching workflows", "dir", w.dir)

	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if w.track(pending, event) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("catalog: watcher error", "error", err)

		case <-timer.C:
			for path := range pending {
				_, err := w.loader.ImportFile(ctx, path)
				if err != nil {
					w.logger.Warn("catalog: re-import failed", "file", path, "error", err)
				}
				if w.onImport != nil {
					w.onImport(path, err)
				}
			}
			clear(pending)
		}
	}
}

// track folds one file event into the pending set, keyed by cleaned path.
// It reports whether a file was queued for import.
func (w *Watcher) track(pending map[string]struct{}, event fsnotify.Event) bool {
	if !IsWorkflowFile(event.Name) {
		return false
	}
	path := filepath.Clean(event.Name)
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			delete(pending, path)
			w.logger.Debug("catalog: workflow file removed", "file", path)
		}
		return false
	}
	pending[path] = struct{}{}
	return true
}
