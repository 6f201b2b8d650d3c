package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	domainservices "canvas-backend/domain/services"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 100 * time.Millisecond

// LayoutWatcher reloads a layout file when it changes on disk. Invalid
// versions are logged and ignored; the last valid layout stays current.
type LayoutWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *zap.Logger

	mu       sync.RWMutex
	current  domainservices.LayoutConfig
	onChange []func(domainservices.LayoutConfig)

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewLayoutWatcher loads path and prepares to watch it. Call Start to begin.
func NewLayoutWatcher(path string, logger *zap.Logger) (*LayoutWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	layout, err := LoadLayoutFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial layout: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// watch the directory so editors that save by rename are seen too
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch layout directory: %w", err)
	}

	return &LayoutWatcher{
		path:     path,
		watcher:  watcher,
		debounce: defaultDebounce,
		logger:   logger,
		current:  layout,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins watching for layout changes
func (w *LayoutWatcher) Start() {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.watchLoop()
	w.logger.Info("Layout watcher started", zap.String("path", w.path))
}

// Stop stops watching and waits for the watch loop to exit
func (w *LayoutWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.watcher.Close()
		if w.started.Load() {
			<-w.doneCh
		}
		w.logger.Info("Layout watcher stopped")
	})
}

// OnChange registers a callback invoked with every newly loaded layout
func (w *LayoutWatcher) OnChange(handler func(domainservices.LayoutConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, handler)
}

// Current returns the last valid layout
func (w *LayoutWatcher) Current() domainservices.LayoutConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *LayoutWatcher) watchLoop() {
	defer close(w.doneCh)

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

func (w *LayoutWatcher) reload() {
	layout, err := LoadLayoutFile(w.path)
	if err != nil {
		w.logger.Error("Invalid layout file, keeping current", zap.String("path", w.path), zap.Error(err))
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = layout
	handlers := append([]func(domainservices.LayoutConfig){}, w.onChange...)
	w.mu.Unlock()

	if old == layout {
		return
	}

	w.logger.Info("Layout reloaded",
		zap.String("path", w.path),
		zap.Float64("horizontalSpacing", layout.HorizontalSpacing),
		zap.Float64("verticalSpacing", layout.VerticalSpacing),
		zap.Int("maxSiblings", layout.MaxSiblings),
	)
	for _, handler := range handlers {
		handler(layout)
	}
}

// BindLayoutEngine keeps engine's config in step with the watched file
func (w *LayoutWatcher) BindLayoutEngine(engine *domainservices.LayoutEngine) {
	w.OnChange(func(layout domainservices.LayoutConfig) {
		if err := engine.SetConfig(layout); err != nil {
			w.logger.Error("Layout engine rejected reloaded layout", zap.Error(err))
		}
	})
}
