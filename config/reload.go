package config

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jonwraymond/meshguard/observe"
)

// ReloaderConfig configures a Reloader.
type ReloaderConfig struct {
	// Path is the configuration file to load and watch.
	Path string

	// Debounce coalesces the event bursts editors emit on save.
	// Default: 300ms
	Debounce time.Duration

	// Logger receives reload outcomes. Default: discard
	Logger observe.Logger
}

// Reloader watches a configuration file and swaps in each valid new
// version. An invalid rewrite is logged and the current version kept,
// so a bad deploy can never take working configuration away.
type Reloader struct {
	config ReloaderConfig

	mu        sync.RWMutex
	current   *File
	callbacks []func(*File)
	watcher   *fsnotify.Watcher
	stop      chan struct{}
	done      chan struct{}
}

// NewReloader loads the file once and returns a Reloader holding it.
// The initial load must succeed; watching starts with Start.
func NewReloader(config ReloaderConfig) (*Reloader, error) {
	if config.Debounce <= 0 {
		config.Debounce = 300 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}
	initial, err := Load(config.Path)
	if err != nil {
		return nil, err
	}
	return &Reloader{config: config, current: initial}, nil
}

// Current returns the active configuration.
func (r *Reloader) Current() *File {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// OnReload registers a callback invoked with each new configuration
// after a successful reload.
func (r *Reloader) OnReload(fn func(*File)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, fn)
}

// Start begins watching the file for changes.
func (r *Reloader) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watcher != nil {
		return ErrAlreadyWatching
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(r.config.Path); err != nil {
		watcher.Close()
		return err
	}

	r.watcher = watcher
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.watchLoop(watcher, r.stop, r.done)

	r.config.Logger.Info(context.Background(), "config watcher started",
		observe.Field{Key: "path", Value: r.config.Path},
	)
	return nil
}

// Stop terminates the watcher. It is safe to call without a prior
// Start and safe to call twice.
func (r *Reloader) Stop() {
	r.mu.Lock()
	watcher, stop, done := r.watcher, r.stop, r.done
	r.watcher, r.stop, r.done = nil, nil, nil
	r.mu.Unlock()

	if watcher == nil {
		return
	}
	close(stop)
	watcher.Close()
	<-done
}

// Reload loads the file, and if it is valid swaps it in and notifies
// the registered callbacks. On failure the current configuration is
// kept and the error returned.
func (r *Reloader) Reload() error {
	ctx := context.Background()

	next, err := Load(r.config.Path)
	if err != nil {
		r.config.Logger.Error(ctx, "config reload failed, keeping current",
			observe.Field{Key: "path", Value: r.config.Path},
			observe.Field{Key: "error", Value: err.Error()},
		)
		return err
	}

	r.mu.Lock()
	r.current = next
	callbacks := make([]func(*File), len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.mu.Unlock()

	for _, cb := range callbacks {
		cb(next)
	}

	r.config.Logger.Info(ctx, "configuration reloaded",
		observe.Field{Key: "path", Value: r.config.Path},
	)
	return nil
}

// watchLoop debounces fsnotify events into Reload calls.
func (r *Reloader) watchLoop(watcher *fsnotify.Watcher, stop chan struct{}, done chan struct{}) {
	defer close(done)

	var debounce *time.Timer

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(r.config.Debounce, func() {
					r.Reload()
				})
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			r.config.Logger.Error(context.Background(), "config watcher error",
				observe.Field{Key: "error", Value: err.Error()},
			)
		case <-stop:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}
