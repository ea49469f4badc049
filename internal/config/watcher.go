package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/roelfdiedericks/clawkeeper/internal/bus"
	. "github.com/roelfdiedericks/clawkeeper/internal/logging"
)

// Watcher watches one config document for external modification and
// publishes bus.TopicConfigChanged when it is written.
//
// The parent directory is watched rather than the file itself, so the
// watch survives editors and atomic writers that replace the file.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	stopCh  chan struct{}

	mu      sync.Mutex
	running bool
}

// ChangeNotice is the bus payload for TopicConfigChanged.
type ChangeNotice struct {
	Path string
	Op   string
}

// NewWatcher creates a watcher for one document path.
func NewWatcher(path string) *Watcher {
	return &Watcher{path: path}
}

// Start begins watching. The parent directory must already exist.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.watcher = fw
	w.stopCh = make(chan struct{})
	w.running = true

	go w.loop()

	L_debug("config: watching", "path", w.path)
	return nil
}

// Stop ends the watch. Safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	close(w.stopCh)
	w.watcher.Close()
	w.running = false
}

func (w *Watcher) loop() {
	target := filepath.Base(w.path)
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			L_debug("config: document changed", "path", w.path, "op", event.Op.String())
			bus.PublishWithSource(bus.TopicConfigChanged, ChangeNotice{
				Path: w.path,
				Op:   event.Op.String(),
			}, "watch")
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			L_warn("config: watch error", "error", err)
		}
	}
}
