package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// FSNotifyWatcher implements the Watcher interface using fsnotify. Folders
// are watched recursively and folders created later are picked up as they
// appear.
type FSNotifyWatcher struct {
	watcher      *fsnotify.Watcher
	eventChan    chan Event
	errorChan    chan error
	config       WatcherConfig
	logger       zerolog.Logger
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	mu           sync.RWMutex
	watchedPaths map[string]bool
	closeOnce    sync.Once
}

// NewFSNotifyWatcher creates a new fsnotify-based watcher
func NewFSNotifyWatcher(config WatcherConfig, logger zerolog.Logger) (*FSNotifyWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}

	if config.QueueCapacity <= 0 {
		config.QueueCapacity = DefaultWatcherConfig().QueueCapacity
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &FSNotifyWatcher{
		watcher:      fsWatcher,
		eventChan:    make(chan Event, config.QueueCapacity),
		errorChan:    make(chan error, 10),
		config:       config,
		logger:       logger.With().Str("component", "fsnotify").Logger(),
		ctx:          ctx,
		cancel:       cancel,
		watchedPaths: make(map[string]bool),
	}, nil
}

// Start begins watching the specified paths. The loop stops when ctx is done
// or Close is called.
func (w *FSNotifyWatcher) Start(ctx context.Context, paths []string) error {
	w.mu.Lock()
	for _, path := range paths {
		if err := w.addPathRecursive(path); err != nil {
			w.mu.Unlock()
			return errors.Wrapf(err, "failed to watch %s", path)
		}
		w.watchedPaths[path] = true
	}
	w.mu.Unlock()

	w.wg.Add(1)
	go w.watchLoop(ctx)

	w.logger.Info().Int("paths", len(paths)).Msg("FSNotify watcher started")
	return nil
}

// Events returns the event channel
func (w *FSNotifyWatcher) Events() <-chan Event {
	return w.eventChan
}

// Errors returns the error channel
func (w *FSNotifyWatcher) Errors() <-chan error {
	return w.errorChan
}

// Add adds paths to watch
func (w *FSNotifyWatcher) Add(paths ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, path := range paths {
		if err := w.addPathRecursive(path); err != nil {
			return errors.Wrapf(err, "failed to add path %s", path)
		}
		w.watchedPaths[path] = true
	}

	w.logger.Debug().Int("count", len(paths)).Msg("Added paths to watcher")
	return nil
}

// Remove removes paths from watching
func (w *FSNotifyWatcher) Remove(paths ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, path := range paths {
		if err := w.watcher.Remove(path); err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("Failed to remove path from watcher")
		}
		delete(w.watchedPaths, path)
	}

	return nil
}

// Close stops watching and cleans up resources
func (w *FSNotifyWatcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.cancel()
		err = w.watcher.Close()
		w.wg.Wait()

		close(w.eventChan)
		close(w.errorChan)

		w.logger.Info().Msg("FSNotify watcher closed")
	})
	return err
}

func (w *FSNotifyWatcher) skip(path string) bool {
	return w.config.Skip != nil && w.config.Skip(filepath.ToSlash(path))
}

// addPathRecursive adds a path and all its subdirectories to the watcher
func (w *FSNotifyWatcher) addPathRecursive(rootPath string) error {
	if err := w.watcher.Add(rootPath); err != nil {
		return errors.Wrapf(err, "failed to add root path %s", rootPath)
	}

	return filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("Skipping unreadable path")
			if d != nil && d.IsDir() && path != rootPath {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() || path == rootPath {
			return nil
		}
		if w.skip(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("Failed to add subdirectory to watcher")
		}
		return nil
	})
}

// watchLoop is the main event processing loop
func (w *FSNotifyWatcher) watchLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.ctx.Done():
			return

		case raw, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			event, ok := w.convertEvent(raw)
			if !ok {
				continue
			}

			if event.Kind == EventCreate {
				w.watchIfDir(raw.Name)
			}

			select {
			case w.eventChan <- event:
			case <-w.ctx.Done():
				return
			default:
				w.logger.Warn().Str("path", event.Path).Msg("Event channel full, dropping event")
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}

			select {
			case w.errorChan <- err:
			case <-w.ctx.Done():
				return
			default:
				w.logger.Warn().Err(err).Msg("Error channel full, dropping error")
			}
		}
	}
}

func (w *FSNotifyWatcher) watchIfDir(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.addPathRecursive(path); err != nil {
		w.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch new directory")
	}
}

// convertEvent converts fsnotify.Event to watcher.Event. fsnotify reports the
// old name of a move as Rename and the new name as Create, so Rename is a
// removal here and the queue pairs it back up.
func (w *FSNotifyWatcher) convertEvent(event fsnotify.Event) (Event, bool) {
	if w.skip(event.Name) {
		return Event{}, false
	}

	var kind EventKind
	switch {
	case event.Has(fsnotify.Create):
		kind = EventCreate
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		kind = EventRemove
	case event.Has(fsnotify.Write), event.Has(fsnotify.Chmod):
		kind = EventModify
	default:
		return Event{}, false
	}

	return Event{
		Kind:      kind,
		Path:      filepath.ToSlash(event.Name),
		Timestamp: time.Now(),
	}, true
}
