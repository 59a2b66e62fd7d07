package config

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/smazurov/avsync/internal/logging"
)

// DefaultDebounce is how long a file must stay quiet before it is reloaded.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a file with loader whenever it changes on disk and hands
// the fresh value to every registered handler.
type Watcher[T any] struct {
	path     string
	debounce time.Duration
	loader   func(path string) (T, error)
	logger   logging.Logger

	mu       sync.Mutex
	handlers map[int]func(T)
	nextID   int
	onError  func(error)

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWatcher creates a watcher for path. Call Start to begin watching.
func NewWatcher[T any](path string, loader func(string) (T, error), logger logging.Logger) *Watcher[T] {
	return &Watcher[T]{
		path:     path,
		debounce: DefaultDebounce,
		loader:   loader,
		logger:   logger,
		handlers: make(map[int]func(T)),
	}
}

// SetDebounce overrides DefaultDebounce. It must be called before Start.
func (w *Watcher[T]) SetDebounce(d time.Duration) {
	w.debounce = d
}

// OnError registers a callback for load failures.
func (w *Watcher[T]) OnError(fn func(error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onError = fn
}

// OnReload registers handler and returns a function removing it.
func (w *Watcher[T]) OnReload(handler func(T)) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.handlers[id] = handler
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.handlers, id)
		w.mu.Unlock()
	}
}

// Start begins watching the file.
func (w *Watcher[T]) Start() error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.path); err != nil {
		fw.Close()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.watcher = fw
	w.cancel = cancel
	w.done = make(chan struct{})

	w.logger.Info("Config watcher started", "path", w.path, "debounce", w.debounce)
	go w.run(ctx)
	return nil
}

// Stop ends watching and waits for the loop to exit.
func (w *Watcher[T]) Stop() error {
	if w.cancel == nil {
		return nil
	}
	w.cancel()
	err := w.watcher.Close()
	<-w.done
	w.cancel = nil
	return err
}

func (w *Watcher[T]) run(ctx context.Context) {
	defer close(w.done)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// Editors that replace the file produce Create rather than Write.
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.logger.Debug("Config file change detected", "op", ev.Op.String())
				timer.Reset(w.debounce)
			}

		case <-timer.C:
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", "error", err)
		}
	}
}

func (w *Watcher[T]) reload() {
	value, err := w.loader(w.path)

	w.mu.Lock()
	onError := w.onError
	handlers := make([]func(T), 0, len(w.handlers))
	for _, h := range w.handlers {
		handlers = append(handlers, h)
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Warn("Failed to reload config", "path", w.path, "error", err)
		if onError != nil {
			onError(err)
		}
		return
	}

	w.logger.Info("Config reloaded", "path", w.path)
	for _, h := range handlers {
		h(value)
	}
}
