package biomarker

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teranos/healthtwin/errors"
	"github.com/teranos/healthtwin/logger"
)

// DefaultDebounce collapses bursts of writes from editors into one reload.
const DefaultDebounce = 500 * time.Millisecond

// ReloadCallback runs after a successful reload with the table that was loaded.
type ReloadCallback func(Table)

// Watcher reloads a table file into a Registry whenever the file changes.
type Watcher struct {
	path     string
	registry *Registry
	watcher  *fsnotify.Watcher
	log      *zap.SugaredLogger

	mu            sync.Mutex
	callbacks     []ReloadCallback
	debounceTimer *time.Timer
	debounce      time.Duration

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWatcher watches path's directory so that editors replacing the file via
// rename are still observed.
func NewWatcher(path string, registry *Registry, log *zap.SugaredLogger) (*Watcher, error) {
	if _, err := FormatFromPath(path); err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, errors.Wrapf(err, "resolve %s", path)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, errors.Wrapf(err, "failed to watch %s", filepath.Dir(abs))
	}

	return &Watcher{
		path:     abs,
		registry: registry,
		watcher:  fw,
		log:      logger.OrComponent(log, logger.ComponentWatcher),
		debounce: DefaultDebounce,
		done:     make(chan struct{}),
	}, nil
}

// SetDebounce changes the debounce period. Call before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	w.debounce = d
	w.mu.Unlock()
}

// OnReload registers a callback.
func (w *Watcher) OnReload(cb ReloadCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Start begins watching in a background goroutine.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.loop()
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.log.Debugw("biomarker table changed",
				logger.FieldPath, event.Name,
				"op", event.Op.String())
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warnw("biomarker table watcher error", logger.FieldError, err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounce, func() {
		if err := w.Reload(); err != nil {
			w.log.Errorw("biomarker table reload failed",
				logger.FieldPath, w.path,
				logger.FieldError, err)
		}
	})
}

// Reload reads the file and loads it into the registry. A table that fails to
// parse or validate leaves the registry untouched.
func (w *Watcher) Reload() error {
	table, err := LoadFile(w.path)
	if err != nil {
		return err
	}
	if err := w.registry.Load(table); err != nil {
		return err
	}
	w.log.Infow("biomarker table reloaded",
		logger.FieldPath, w.path,
		logger.FieldCount, len(table))

	w.mu.Lock()
	callbacks := make([]ReloadCallback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()
	for _, cb := range callbacks {
		cb(table)
	}
	return nil
}

// Stop ends watching and waits for the loop to exit.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.mu.Unlock()

	select {
	case <-w.done:
	default:
		close(w.done)
	}
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}
