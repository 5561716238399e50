package engine

import (
	"context"
	"time"

	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/facts"
	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/filesystem/listing"
	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/filesystem/watcher"

	"github.com/cockroachdb/errors"
	"github.com/sourcegraph/conc/iter"
)

// WatchState is the live application lifecycle.
type WatchState int32

const (
	WatchIdle WatchState = iota
	WatchApplying
)

func (s WatchState) String() string {
	if s == WatchApplying {
		return "applying"
	}
	return "idle"
}

// WatchState reports whether a change batch is being applied.
func (e *Engine) WatchState() WatchState {
	return WatchState(e.watchState.Load())
}

// Watch watches roots natively and feeds their changes through the change
// queue until ctx is done. Native watcher errors are reported as WATCH_FAILED
// events and do not stop watching.
func (e *Engine) Watch(ctx context.Context, roots ...string) error {
	if err := e.requireInitialized(); err != nil {
		return err
	}

	for _, root := range roots {
		matcher, err := listing.LoadMatcher(root, e.config.Scan.IgnoreFile)
		if err != nil {
			e.emitError(CodeWatchFailed, err, map[string]any{"rootPath": root})
			return err
		}
		e.addMatcher(matcher)
	}

	w, err := e.newWatcher(watcher.WatcherConfig{
		QueueCapacity: watcher.DefaultWatcherConfig().QueueCapacity,
		Skip:          e.skip,
	}, e.logger)
	if err != nil {
		e.emitError(CodeWatchFailed, err, map[string]any{"roots": roots})
		return errors.Wrap(err, "failed to create watcher")
	}
	defer w.Close()

	if err := w.Start(ctx, roots); err != nil {
		e.emitError(CodeWatchFailed, err, map[string]any{"roots": roots})
		return errors.Wrap(err, "failed to start watcher")
	}

	e.logger.Info().Strs("roots", roots).Msg("Watching for changes")
	watcher.Pump(ctx, w, e.queue, func(err error) {
		e.emitError(CodeWatchFailed, err, map[string]any{"roots": roots})
	})
	return nil
}

func (e *Engine) addMatcher(m *listing.Matcher) {
	e.matchMu.Lock()
	defer e.matchMu.Unlock()
	for i, existing := range e.matchers {
		if existing.Root() == m.Root() {
			e.matchers[i] = m
			return
		}
	}
	e.matchers = append(e.matchers, m)
}

// skip reports whether any known root hides p.
func (e *Engine) skip(p string) bool {
	e.matchMu.RLock()
	defer e.matchMu.RUnlock()
	for _, m := range e.matchers {
		if m.Skip(p) {
			return true
		}
	}
	return false
}

type parentListing struct {
	entries []listing.Entry
	err     error
}

// applyBatch is the change queue's flush handler. Batches arrive one at a
// time and in order; each is applied as one staged commit.
func (e *Engine) applyBatch(ctx context.Context, batch watcher.EventBatch) error {
	if err := e.requireInitialized(); err != nil {
		e.logger.Warn().Int("events", len(batch.Events)).Msg("Dropping change batch received before initialization")
		return err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.watchState.Store(int32(WatchApplying))
	defer e.watchState.Store(int32(WatchIdle))

	start := time.Now()
	events := e.filterEvents(batch.Events)
	stats := e.refetchStats(ctx, events)

	e.BeginBatch()
	for _, ev := range events {
		if err := e.applyEvent(ctx, ev, stats); err != nil {
			e.logger.Warn().
				Err(err).
				Str("kind", ev.Kind.String()).
				Str("path", ev.Path).
				Msg("Failed to apply change")
		}
	}
	if err := e.CommitBatch(ctx); err != nil {
		e.emitError(CodeBatchApplyFailed, err, map[string]any{"eventCount": len(events)})
		return err
	}

	if err := e.saveRegistry("live"); err != nil {
		return err
	}

	duration := time.Since(start)
	e.emit(Event{Type: EventFSBatchApplied, EventCount: len(events), DurationMs: millis(duration)})
	e.logger.Debug().Int("events", len(events)).Dur("duration", duration).Msg("Change batch applied")
	return nil
}

// filterEvents drops hidden and ignored paths. A rename whose one side is
// hidden becomes a plain create or remove of the visible side.
func (e *Engine) filterEvents(events []watcher.Event) []watcher.Event {
	out := make([]watcher.Event, 0, len(events))
	for _, ev := range events {
		if ev.Kind == watcher.EventRename {
			fromHidden, toHidden := e.skip(ev.FromPath), e.skip(ev.Path)
			switch {
			case fromHidden && toHidden:
				continue
			case toHidden:
				ev = watcher.Event{Kind: watcher.EventRemove, Path: ev.FromPath, Timestamp: ev.Timestamp}
			case fromHidden:
				ev = watcher.Event{Kind: watcher.EventCreate, Path: ev.Path, Timestamp: ev.Timestamp}
			}
			out = append(out, ev)
			continue
		}
		if !e.skip(ev.Path) {
			out = append(out, ev)
		}
	}
	return out
}

// refetchStats lists the parent folder of every path that needs fresh
// metadata. Parents are listed concurrently; the result is keyed by path.
func (e *Engine) refetchStats(ctx context.Context, events []watcher.Event) map[string]listing.Entry {
	seen := make(map[string]bool)
	var parents []string
	for _, ev := range events {
		if ev.Kind == watcher.EventRemove {
			continue
		}
		parent, ok := facts.GetParentPath(ev.Path)
		if !ok || seen[parent] {
			continue
		}
		seen[parent] = true
		parents = append(parents, parent)
	}

	listings := iter.Map(parents, func(parent *string) parentListing {
		entries, err := e.lister.List(ctx, *parent)
		return parentListing{entries: entries, err: err}
	})

	stats := make(map[string]listing.Entry)
	for i, l := range listings {
		if l.err != nil {
			e.logger.Debug().Err(l.err).Str("path", parents[i]).Msg("Parent listing failed")
			continue
		}
		for _, entry := range l.entries {
			stats[entry.Path] = entry
		}
	}
	return stats
}

func (e *Engine) applyEvent(ctx context.Context, ev watcher.Event, stats map[string]listing.Entry) error {
	switch ev.Kind {
	case watcher.EventCreate, watcher.EventModify:
		return e.applyUpsert(ctx, ev.Path, stats)

	case watcher.EventRemove:
		return e.removeByPath(ctx, ev.Path)

	case watcher.EventRename:
		moved, err := e.handleRename(ctx, ev.FromPath, ev.Path)
		if err != nil {
			return err
		}
		if !moved {
			// The source was never tracked, so this is an arrival.
			return e.applyUpsert(ctx, ev.Path, stats)
		}
		// Refresh the moved entity from a full listing so values that only
		// held for the old name, like its extension, are retracted.
		if entry, ok := stats[ev.Path]; ok {
			_, _, err := e.ingestFile(ctx, entry.Path, entry.Stats())
			return err
		}
		return nil

	default:
		e.logger.Debug().Str("path", ev.Path).Msg("Ignoring unclassified change")
		return nil
	}
}

// applyUpsert ingests or refreshes path from the listing. A folder that shows
// up untracked is ingested with everything below it, since moving a folder in
// reports only the folder itself.
func (e *Engine) applyUpsert(ctx context.Context, path string, stats map[string]listing.Entry) error {
	entry, ok := stats[path]
	if !ok {
		e.logger.Debug().Str("path", path).Msg("Changed path no longer listed, skipping")
		return nil
	}

	_, created, err := e.ingestFile(ctx, entry.Path, entry.Stats())
	if err != nil || !created || !entry.IsDir() {
		return err
	}

	nested, err := e.collect(ctx, entry.Path, e.matcherFor(entry.Path))
	if err != nil {
		return errors.Wrapf(err, "failed to list new folder %s", entry.Path)
	}
	for _, child := range nested {
		if _, _, err := e.ingestFile(ctx, child.Path, child.Stats()); err != nil {
			e.logger.Warn().Err(err).Str("path", child.Path).Msg("Failed to ingest entry")
		}
	}
	return nil
}

// matcherFor returns the matcher of the innermost root containing p.
func (e *Engine) matcherFor(p string) *listing.Matcher {
	e.matchMu.RLock()
	defer e.matchMu.RUnlock()

	var best *listing.Matcher
	for _, m := range e.matchers {
		if facts.IsWithin(m.Root(), p) && (best == nil || len(m.Root()) > len(best.Root())) {
			best = m
		}
	}
	return best
}
