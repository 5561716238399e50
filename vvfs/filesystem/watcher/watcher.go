package watcher

import (
	"context"

	"github.com/rs/zerolog"
)

// NewWatcher creates the native watcher for this platform.
func NewWatcher(config WatcherConfig, logger zerolog.Logger) (Watcher, error) {
	return NewFSNotifyWatcher(config, logger)
}

// Pump forwards native events into the queue until ctx is done or the
// watcher's channels close. Watcher errors go to onError when it is set.
func Pump(ctx context.Context, w Watcher, q *ChangeQueue, onError func(error)) {
	events := w.Events()
	errs := w.Errors()

	for events != nil || errs != nil {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			q.Push(event)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if onError != nil {
				onError(err)
			}
		}
	}
}
