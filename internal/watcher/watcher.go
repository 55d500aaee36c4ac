// Package watcher reports saved changes to a source file.
package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"pkt.systems/pslog"
)

// DefaultDebounce is the quiet period after the last file event before the
// file is re-read.
const DefaultDebounce = 500 * time.Millisecond

// UpdateCallback is called with the new source after the file changed.
type UpdateCallback func(source string)

// Watcher monitors one source file. The parent directory is watched so
// editors that save by writing a temporary file and renaming it over the
// original are seen too.
type Watcher struct {
	path      string
	debounce  time.Duration
	callback  UpdateCallback
	log       pslog.Logger
	fsWatcher *fsnotify.Watcher
	cancel    chan struct{}
	closeOnce sync.Once

	mu         sync.Mutex
	lastSource string
}

// New starts watching path. The current content is the baseline: callback
// fires only when a later read differs from the last one reported.
func New(log pslog.Logger, path string, debounce time.Duration, callback UpdateCallback) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	source, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}

	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsW.Add(filepath.Dir(abs)); err != nil {
		fsW.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		path:       abs,
		debounce:   debounce,
		callback:   callback,
		log:        log.With("file", abs),
		fsWatcher:  fsW,
		cancel:     make(chan struct{}),
		lastSource: string(source),
	}

	// Run the event loop.
	go w.watchLoop()
	return w, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.cancel)
		err = w.fsWatcher.Close()
	})
	return err
}

// watchLoop processes fsnotify events with debouncing.
func (w *Watcher) watchLoop() {
	var timer *time.Timer

	for {
		select {
		case <-w.cancel:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			// Debounce: reset timer on each event.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", "error", err)
		}
	}
}

// reload re-reads the file and notifies if the content changed.
func (w *Watcher) reload() {
	select {
	case <-w.cancel:
		return
	default:
	}

	data, err := os.ReadFile(w.path)
	if err != nil {
		// Mid-rename or deleted; the next event retries.
		w.log.Debug("source not readable", "error", err)
		return
	}

	source := string(data)
	w.mu.Lock()
	changed := source != w.lastSource
	if changed {
		w.lastSource = source
	}
	w.mu.Unlock()

	if changed && w.callback != nil {
		w.callback(source)
	}
}
