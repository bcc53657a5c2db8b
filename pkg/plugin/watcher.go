package plugin

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// watchDebounce coalesces bursts of filesystem events per plugin directory
const watchDebounce = 500 * time.Millisecond

// Watcher observes plugin directories and reports manifest changes so
// the caller can trigger reloads. Off by default; the CLI enables it for
// long-running operations only.
type Watcher struct {
	logger   zerolog.Logger
	onChange func(dir string)

	mu      sync.Mutex
	fw      *fsnotify.Watcher
	pending map[string]*time.Timer
	done    chan struct{}
}

// NewWatcher creates a watcher that invokes onChange with the affected
// plugin directory after events settle
func NewWatcher(logger zerolog.Logger, onChange func(dir string)) *Watcher {
	return &Watcher{
		logger:   logger.With().Str("component", "plugin-watcher").Logger(),
		onChange: onChange,
		pending:  make(map[string]*time.Timer),
	}
}

// Start begins watching the given directories. Returns after the
// underlying watcher is installed; events are handled on a background
// goroutine until Stop is called.
func (w *Watcher) Start(dirs ...string) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := fw.Add(dir); err != nil {
			w.logger.Warn().Err(err).Str("dir", dir).Msg("Failed to watch directory")
		}
	}

	w.mu.Lock()
	w.fw = fw
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.loop(fw)
	return nil
}

func (w *Watcher) loop(fw *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule(filepath.Dir(event.Name))
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Watcher error")
		case <-w.done:
			return
		}
	}
}

// schedule arms (or re-arms) the debounce timer for a directory
func (w *Watcher) schedule(dir string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, armed := w.pending[dir]; armed {
		timer.Reset(watchDebounce)
		return
	}
	w.pending[dir] = time.AfterFunc(watchDebounce, func() {
		w.mu.Lock()
		delete(w.pending, dir)
		w.mu.Unlock()

		w.logger.Debug().Str("dir", dir).Msg("Plugin directory changed")
		w.onChange(dir)
	})
}

// Stop tears the watcher down and cancels pending notifications
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fw == nil {
		return nil
	}
	close(w.done)
	err := w.fw.Close()
	w.fw = nil
	for dir, timer := range w.pending {
		timer.Stop()
		delete(w.pending, dir)
	}
	return err
}
