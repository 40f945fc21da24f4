package openapi

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"fastgeoapi/pkg/logging"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher reloads the OpenAPI document when its file changes and hands every
// successfully parsed version to onChange. Parse failures keep the previous
// version.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(Document)

	mu    sync.Mutex
	timer *time.Timer
}

func NewWatcher(path string, debounce time.Duration, onChange func(Document)) *Watcher {
	if debounce == 0 {
		debounce = defaultDebounce
	}
	return &Watcher{path: path, debounce: debounce, onChange: onChange}
}

// Run watches until ctx is done. The parent directory is watched so that
// editors replacing the file atomically are seen.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	logging.Info("openapi", "watching %s for changes", w.path)

	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Error("openapi", err, "filesystem watcher error")
		}
	}
}

// schedule debounces rapid successive writes into one reload.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) reload() {
	doc, err := LoadDocument(w.path)
	if err != nil {
		logging.Warn("openapi", "ignoring change to %s: %v", w.path, err)
		return
	}
	logging.Info("openapi", "reloaded %s", w.path)
	w.onChange(doc)
}
