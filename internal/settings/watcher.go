package settings

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay coalesces the write bursts editors produce when saving.
const debounceDelay = 250 * time.Millisecond

// Watcher reloads the settings file when it changes on disk.
type Watcher struct {
	manager *Manager
	watcher *fsnotify.Watcher

	mu    sync.Mutex
	timer *time.Timer

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWatcher creates a watcher for the manager's settings file.
// The parent directory is watched so atomic rename saves are seen.
func NewWatcher(manager *Manager) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	if err := fsw.Add(filepath.Dir(manager.Path())); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch settings directory: %w", err)
	}

	return &Watcher{
		manager: manager,
		watcher: fsw,
		done:    make(chan struct{}),
	}, nil
}

// Start processes events until the context is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.processEvents(ctx)
}

// Stop shuts the watcher down and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	return err
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.manager.logger.Error("settings watcher error", "error", err)
		}
	}
}

// handleEvent schedules a debounced reload for writes to the settings file.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.manager.Path() {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounceDelay, func() {
		if err := w.manager.reload(); err != nil {
			w.manager.logger.Warn("settings reload failed", "error", err)
		}
	})
}
