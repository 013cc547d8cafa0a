package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/pricepilot-ai/pricepilot/internal/event"
	"github.com/pricepilot-ai/pricepilot/internal/logging"
)

// Watcher watches the config file locations and publishes a config.updated
// event whenever one of them changes.
type Watcher struct {
	watcher *fsnotify.Watcher
	bus     *event.Bus
	files   map[string]bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
	mu      sync.Mutex
}

// NewWatcher creates a watcher for the config files of the given project
// directory, publishing on bus (nil means the global bus). Directories are
// watched rather than the files themselves, so a config file created after
// startup is still picked up.
func NewWatcher(directory string, bus *event.Bus) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	files := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, path := range Paths(directory) {
		files[filepath.Clean(path)] = true
		dirs[filepath.Dir(path)] = true
	}

	for dir := range dirs {
		// Missing directories (e.g. no ~/.pricepilot yet) are skipped.
		if err := w.Add(dir); err != nil {
			logging.Debug().Err(err).Str("dir", dir).Msg("config watch skipped")
		}
	}

	return &Watcher{
		watcher: w,
		bus:     bus,
		files:   files,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// Start begins watching. Safe to call once.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !w.files[filepath.Clean(ev.Name)] {
				continue
			}
			logging.Info().Str("path", ev.Name).Msg("config file changed")
			w.publish(event.Event{
				Type: event.ConfigUpdated,
				Data: event.ConfigUpdatedData{Path: ev.Name},
			})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Error().Err(err).Msg("config watcher error")
		}
	}
}

func (w *Watcher) publish(e event.Event) {
	if w.bus != nil {
		w.bus.PublishSync(e)
		return
	}
	event.PublishSync(e)
}

// Stop stops watching and releases the underlying watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	close(w.stopCh)
	w.watcher.Close()
	if started {
		<-w.doneCh
	}
}
