package engine

import (
	"context"
	"sync"

	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/facts"

	"github.com/cockroachdb/errors"
)

type factRetraction struct {
	entity     facts.EntityID
	attributes []string
}

// staging buffers writes between BeginBatch and CommitBatch. A retraction
// staged after an addition cancels the buffered addition, so at commit time
// every retraction can be applied before every addition.
type staging struct {
	mu     sync.Mutex
	active bool

	facts []facts.Fact
	links []facts.Link

	retractedFacts    []factRetraction
	retractedLinks    []facts.Link
	retractedTouching []facts.EntityID
}

// BeginBatch starts staging: until CommitBatch, facts, links and retractions
// accumulate in memory instead of reaching the store. Calling it while
// already staging keeps the current batch open.
func (e *Engine) BeginBatch() {
	e.stage.mu.Lock()
	defer e.stage.mu.Unlock()
	e.stage.active = true
}

// Staging reports whether a batch is open.
func (e *Engine) Staging() bool {
	e.stage.mu.Lock()
	defer e.stage.mu.Unlock()
	return e.stage.active
}

// CommitBatch applies the staged batch to the store and leaves staging mode:
// retractions first, then all facts in one call, then all links in one call.
// It is a no-op when no batch is open. On failure the batch is discarded.
func (e *Engine) CommitBatch(ctx context.Context) error {
	s := &e.stage
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	fs, ls := s.facts, s.links
	rf, rl, rt := s.retractedFacts, s.retractedLinks, s.retractedTouching
	s.active = false
	s.facts, s.links = nil, nil
	s.retractedFacts, s.retractedLinks, s.retractedTouching = nil, nil, nil
	s.mu.Unlock()

	for _, r := range rf {
		if err := e.store.RetractFacts(ctx, r.entity, r.attributes...); err != nil {
			return errors.Wrapf(err, "failed to retract facts of %s", r.entity)
		}
	}
	if len(rl) > 0 {
		if err := e.store.RetractLinks(ctx, rl...); err != nil {
			return errors.Wrap(err, "failed to retract links")
		}
	}
	for _, id := range rt {
		if err := e.store.RetractLinksTouching(ctx, id); err != nil {
			return errors.Wrapf(err, "failed to retract links of %s", id)
		}
	}

	if len(fs) > 0 {
		if err := e.store.AddFacts(ctx, fs); err != nil {
			return errors.Wrapf(err, "failed to add %d facts", len(fs))
		}
	}
	if len(ls) > 0 {
		if err := e.store.AddLinks(ctx, ls); err != nil {
			return errors.Wrapf(err, "failed to add %d links", len(ls))
		}
	}

	e.logger.Debug().
		Int("facts", len(fs)).
		Int("links", len(ls)).
		Int("retractions", len(rf)+len(rl)+len(rt)).
		Msg("Batch committed")
	return nil
}

func (e *Engine) addFacts(ctx context.Context, fs []facts.Fact) error {
	if len(fs) == 0 {
		return nil
	}
	s := &e.stage
	s.mu.Lock()
	if s.active {
		s.facts = append(s.facts, fs...)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return e.store.AddFacts(ctx, fs)
}

func (e *Engine) addLinks(ctx context.Context, ls ...facts.Link) error {
	if len(ls) == 0 {
		return nil
	}
	s := &e.stage
	s.mu.Lock()
	if s.active {
		s.links = append(s.links, ls...)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return e.store.AddLinks(ctx, ls)
}

// retractFacts retracts the given attributes of entity, or all of them.
func (e *Engine) retractFacts(ctx context.Context, entity facts.EntityID, attributes ...string) error {
	s := &e.stage
	s.mu.Lock()
	if s.active {
		wanted := make(map[string]bool, len(attributes))
		for _, a := range attributes {
			wanted[a] = true
		}
		kept := s.facts[:0]
		for _, f := range s.facts {
			if f.Entity == entity && (len(wanted) == 0 || wanted[f.Attribute]) {
				continue
			}
			kept = append(kept, f)
		}
		s.facts = kept
		s.retractedFacts = append(s.retractedFacts, factRetraction{entity: entity, attributes: attributes})
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return e.store.RetractFacts(ctx, entity, attributes...)
}

func (e *Engine) retractLink(ctx context.Context, l facts.Link) error {
	s := &e.stage
	s.mu.Lock()
	if s.active {
		kept := s.links[:0]
		for _, staged := range s.links {
			if staged != l {
				kept = append(kept, staged)
			}
		}
		s.links = kept
		s.retractedLinks = append(s.retractedLinks, l)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return e.store.RetractLinks(ctx, l)
}

func (e *Engine) retractLinksTouching(ctx context.Context, entity facts.EntityID) error {
	s := &e.stage
	s.mu.Lock()
	if s.active {
		kept := s.links[:0]
		for _, staged := range s.links {
			if staged.From != entity && staged.To != entity {
				kept = append(kept, staged)
			}
		}
		s.links = kept
		s.retractedTouching = append(s.retractedTouching, entity)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return e.store.RetractLinksTouching(ctx, entity)
}

// stagedView overlays the open batch on stored, the store's facts of entity:
// facts with a staged retraction are dropped and buffered facts are appended.
func (e *Engine) stagedView(entity facts.EntityID, stored []facts.Fact) []facts.Fact {
	s := &e.stage
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return stored
	}

	all := false
	gone := make(map[string]bool)
	for _, r := range s.retractedFacts {
		if r.entity != entity {
			continue
		}
		if len(r.attributes) == 0 {
			all = true
		}
		for _, a := range r.attributes {
			gone[a] = true
		}
	}

	out := make([]facts.Fact, 0, len(stored))
	for _, f := range stored {
		if !all && !gone[f.Attribute] {
			out = append(out, f)
		}
	}
	for _, f := range s.facts {
		if f.Entity == entity {
			out = append(out, f)
		}
	}
	return out
}

// stagedLink reports whether l is buffered.
func (e *Engine) stagedLink(l facts.Link) bool {
	s := &e.stage
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, staged := range s.links {
		if staged == l {
			return true
		}
	}
	return false
}
