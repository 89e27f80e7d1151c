package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads route configuration from disk whenever the backing file
// changes, debouncing bursts of filesystem events (editors often write a
// file several times in quick succession).
type Watcher struct {
	watcher    *fsnotify.Watcher
	loader     *Loader
	configPath string
	callbacks  []func(*Config)
	mu         sync.RWMutex
	debounce   time.Duration
}

// NewWatcher creates a Watcher for configPath. It does not start watching;
// call Start.
func NewWatcher(configPath string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:    fsWatcher,
		loader:     NewLoader(),
		configPath: configPath,
		debounce:   500 * time.Millisecond,
	}
	return w, nil
}

// OnChange registers a callback invoked with the newly loaded Config
// whenever the watched file changes and reloads successfully. A reload that
// fails to read, parse or validate is dropped without invoking any callback
// and without being reported, so the previous Config keeps serving traffic.
func (w *Watcher) OnChange(callback func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start begins watching the directory containing the config file and
// blocks until Close is called or the event channel closes.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.configPath)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	var debounceTimer *time.Timer
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.configPath) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, w.reload)
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := w.loader.Load(w.configPath)
	if err != nil {
		return
	}

	w.mu.RLock()
	callbacks := append([]func(*Config){}, w.callbacks...)
	w.mu.RUnlock()

	for _, cb := range callbacks {
		cb(cfg)
	}
}

// Close stops watching for filesystem events.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
