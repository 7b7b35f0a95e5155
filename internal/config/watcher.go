package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/heymind/reproxy/internal/observability"
)

// ConfigCallback is called with each successfully reloaded
// configuration.
type ConfigCallback func(*Config)

// ErrorCallback is called when a reload attempt fails. The previous
// configuration stays in effect.
type ErrorCallback func(error)

// Watcher reloads the configuration file whenever it changes on disk.
// Filesystem events are debounced so editors that write in several
// steps produce a single reload.
type Watcher struct {
	path          string
	watcher       *fsnotify.Watcher
	logger        observability.Logger
	callback      ConfigCallback
	errorCallback ErrorCallback
	debounceDelay time.Duration

	mu         sync.RWMutex
	lastConfig *Config
	running    bool

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// WatcherOption is a functional option for configuring the watcher.
type WatcherOption func(*Watcher)

// WithDebounceDelay sets the debounce delay for file changes.
func WithDebounceDelay(delay time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDelay = delay
	}
}

// WithLogger sets the logger for the watcher.
func WithLogger(logger observability.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithErrorCallback sets the error callback for the watcher.
func WithErrorCallback(callback ErrorCallback) WatcherOption {
	return func(w *Watcher) {
		w.errorCallback = callback
	}
}

// NewWatcher creates a watcher for the configuration file at path.
// The file is not read until Start.
func NewWatcher(path string, callback ConfigCallback, opts ...WatcherOption) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:          absPath,
		watcher:       fsWatcher,
		logger:        observability.NopLogger(),
		callback:      callback,
		debounceDelay: 100 * time.Millisecond,
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start loads the initial configuration and begins watching, so a
// broken file is caught at startup rather than silently served.
// Calling Start on a running watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	config, err := Load(w.path)
	if err != nil {
		w.abortStart()
		return err
	}
	w.setLastConfig(config)

	// Watch the directory, not the file: editors and orchestrators
	// replace config files by renaming a temp file into place, which
	// unlinks the watched inode.
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		w.abortStart()
		return err
	}

	w.logger.Info("started watching configuration file",
		observability.String("path", w.path),
	)

	go w.watch(ctx)
	return nil
}

// abortStart clears the running flag when Start fails before the
// watch loop was launched, so Stop returns immediately and Start may
// be retried.
func (w *Watcher) abortStart() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

// Stop stops watching the configuration file.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.stoppedCh

	return w.watcher.Close()
}

// GetLastConfig returns the last successfully loaded configuration.
func (w *Watcher) GetLastConfig() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastConfig
}

func (w *Watcher) setLastConfig(config *Config) {
	w.mu.Lock()
	w.lastConfig = config
	w.mu.Unlock()
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.stoppedCh)

	var (
		timer      *time.Timer
		debounceCh <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("config watcher stopped due to context cancellation")
			return

		case <-w.stopCh:
			w.logger.Info("config watcher stopped")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("config file changed",
				observability.String("path", event.Name),
				observability.String("op", event.Op.String()),
			)
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounceDelay)
			debounceCh = timer.C

		case <-debounceCh:
			debounceCh = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.handleWatchError(err)
		}
	}
}

// relevant reports whether event concerns the watched file. The
// directory watch also delivers events for sibling files and for
// operations that need no reload, such as chmod.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create) != 0
}

// handleWatchError reports an fsnotify error without stopping the
// watch loop.
func (w *Watcher) handleWatchError(err error) {
	w.logger.Error("config watcher error",
		observability.Error(err),
	)
	w.notifyError(err)
}

func (w *Watcher) notifyError(err error) {
	if w.errorCallback != nil {
		w.errorCallback(err)
	}
}

// reload re-reads the file after a change. On failure the last good
// configuration stays in effect and only the error callback hears
// about it.
func (w *Watcher) reload() {
	w.logger.Info("reloading configuration",
		observability.String("path", w.path),
	)

	config, err := Load(w.path)
	if err != nil {
		w.logger.Error("failed to reload configuration",
			observability.Error(err),
		)
		w.notifyError(err)
		return
	}

	w.setLastConfig(config)

	w.logger.Info("configuration reloaded successfully",
		observability.Int("rules", len(config.Rules)),
	)

	if w.callback != nil {
		w.callback(config)
	}
}

// ForceReload reloads immediately, bypassing the file watcher and the
// debounce. It is wired to SIGHUP, and unlike the event-driven path it
// hands the error back to the caller.
func (w *Watcher) ForceReload() error {
	config, err := Load(w.path)
	if err != nil {
		return err
	}

	w.setLastConfig(config)

	if w.callback != nil {
		w.callback(config)
	}
	return nil
}
