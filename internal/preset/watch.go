package preset

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"nai-prompt-bot/internal/debounce"
)

type WatcherOptions struct {
	Debounce time.Duration
	Logger   *slog.Logger
	// OnReload is called after a file has been reloaded or removed.
	OnReload func(path string, err error)
}

// Watcher keeps a Library in sync with its directory. Editors emit several
// events per save, so events are coalesced per file before reloading.
type Watcher struct {
	lib      *Library
	fsw      *fsnotify.Watcher
	agg      *debounce.Aggregator[fsnotify.Op]
	logger   *slog.Logger
	onReload func(string, error)

	mu      sync.Mutex
	running bool
	done    chan struct{}
}

func NewWatcher(lib *Library, opts WatcherOptions) (*Watcher, error) {
	if lib == nil || lib.Dir() == "" {
		return nil, errors.New("library with a directory is required")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	w := &Watcher{
		lib:      lib,
		fsw:      fsw,
		logger:   logger,
		onReload: opts.OnReload,
	}
	w.agg = debounce.New(debounce.Options[fsnotify.Op]{
		Debounce: opts.Debounce,
		OnFlush:  w.reload,
	})
	return w, nil
}

// Start begins watching. It returns once the directory is registered; events
// are processed until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}
	if err := w.fsw.Add(w.lib.Dir()); err != nil {
		return err
	}

	w.running = true
	w.done = make(chan struct{})
	go w.run(ctx, w.done)

	w.logger.Info("watching presets", "dir", w.lib.Dir())
	return nil
}

// Stop closes the underlying watcher and waits for the event loop and any
// in-flight reload to finish.
func (w *Watcher) Stop() {
	w.mu.Lock()
	running := w.running
	w.running = false
	done := w.done
	w.mu.Unlock()

	_ = w.fsw.Close()
	if running {
		<-done
	}
	w.agg.Stop()
}

func (w *Watcher) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !IsPresetFile(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.agg.Add(ev.Name, ev.Op)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("preset watcher error", "err", err)
		}
	}
}

func (w *Watcher) reload(path string, _ []fsnotify.Op) {
	var err error
	if fileExists(path) {
		_, err = w.lib.LoadFile(path)
		if err != nil {
			w.logger.Warn("preset reload failed", "path", path, "err", err)
		} else {
			w.logger.Info("preset reloaded", "path", path)
		}
	} else if w.lib.RemoveFile(path) {
		w.logger.Info("preset removed", "path", path)
	}

	if w.onReload != nil {
		w.onReload(path, err)
	}
}
