package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/db"
	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/facts"
)

// LookupPath returns the live facts of the entity tracked at path, or nil when
// the path is not tracked.
func (e *Engine) LookupPath(ctx context.Context, path string) ([]facts.Fact, error) {
	id, ok := e.IDForPath(path)
	if !ok {
		return nil, nil
	}
	return timed(e, fmt.Sprintf("factsByEntity(%s)", id), func() ([]facts.Fact, error) {
		return e.store.FactsByEntity(ctx, id)
	})
}

// LookupEntities returns the entities whose attribute currently equals value.
func (e *Engine) LookupEntities(ctx context.Context, attribute string, value any) ([]facts.EntityID, error) {
	return timed(e, fmt.Sprintf("entitiesByAttribute(%s=%v)", attribute, value), func() ([]facts.EntityID, error) {
		return e.store.EntitiesByAttribute(ctx, attribute, value)
	})
}

// LookupValues returns every live value of attribute.
func (e *Engine) LookupValues(ctx context.Context, attribute string) ([]any, error) {
	return timed(e, fmt.Sprintf("valuesByAttribute(%s)", attribute), func() ([]any, error) {
		return e.store.ValuesByAttribute(ctx, attribute)
	})
}

// LookupChildren returns the paths the folder at path contains, sorted.
func (e *Engine) LookupChildren(ctx context.Context, path string) ([]string, error) {
	id, ok := e.IDForPath(path)
	if !ok {
		return nil, nil
	}

	links, err := timed(e, fmt.Sprintf("linksFrom(%s)", id), func() ([]facts.Link, error) {
		return e.store.LinksFrom(ctx, id)
	})
	if err != nil {
		return nil, err
	}

	var children []string
	for _, l := range links {
		if l.Relation != facts.RelContains {
			continue
		}
		if p, ok := e.PathForID(l.To); ok {
			children = append(children, p)
		}
	}
	sort.Strings(children)
	return children, nil
}

// StoreStats reports the fact store's counters.
func (e *Engine) StoreStats(ctx context.Context) (db.Stats, error) {
	return timed(e, "stats", func() (db.Stats, error) {
		return e.store.Stats(ctx)
	})
}

// timed runs a store query and emits query_slow when it takes longer than the
// configured threshold.
func timed[T any](e *Engine, query string, fn func() (T, error)) (T, error) {
	start := time.Now()
	out, err := fn()
	elapsed := time.Since(start)

	if threshold := e.config.Store.SlowQueryThreshold; threshold > 0 && elapsed > threshold {
		e.logger.Warn().Str("query", query).Dur("duration", elapsed).Msg("Slow fact store query")
		e.emit(Event{Type: EventQuerySlow, Query: query, DurationMs: millis(elapsed)})
	}
	return out, err
}
