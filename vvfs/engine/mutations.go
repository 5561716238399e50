package engine

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/facts"

	"github.com/cockroachdb/errors"
)

// IngestFile records path with stats and returns its entity id. A new path
// gets a fresh id; a tracked one keeps its id and only changed attributes are
// rewritten. The contains link is added only when the parent is tracked.
func (e *Engine) IngestFile(ctx context.Context, path string, stats facts.FileStats) (facts.EntityID, error) {
	if err := e.requireInitialized(); err != nil {
		return "", err
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	id, _, err := e.ingestFile(ctx, path, stats)
	return id, err
}

// UpdateByPath rewrites the attributes given in partial for the entity at
// path: superseded values are retracted, new ones added. Unknown paths are
// logged and ignored. partial.Path is ignored; moves go through HandleRename.
func (e *Engine) UpdateByPath(ctx context.Context, path string, partial facts.FileStats) error {
	if err := e.requireInitialized(); err != nil {
		return err
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	return e.updateByPath(ctx, path, partial)
}

// HandleRename moves the entity at oldPath to newPath, keeping its id. Its
// path and name facts are rewritten and its contains link moves only when the
// parent folder changed. Everything tracked below a renamed folder moves with
// it.
func (e *Engine) HandleRename(ctx context.Context, oldPath, newPath string) error {
	if err := e.requireInitialized(); err != nil {
		return err
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	_, err := e.handleRename(ctx, oldPath, newPath)
	return err
}

// RemoveByPath forgets the entity at path, and everything tracked below it,
// retracting their facts and links.
func (e *Engine) RemoveByPath(ctx context.Context, path string) error {
	if err := e.requireInitialized(); err != nil {
		return err
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	return e.removeByPath(ctx, path)
}

func (e *Engine) ingestFile(ctx context.Context, path string, stats facts.FileStats) (facts.EntityID, bool, error) {
	p := facts.NormalizePath(path)
	if p == "" {
		return "", false, ErrEmptyPath
	}
	stats.Path = p
	stats = facts.DeriveStats(stats)

	e.regMu.Lock()
	_, existed := e.registry.GetID(p)
	id := e.registry.GetOrCreateID(p)
	var parentID facts.EntityID
	var hasParent bool
	if parent, ok := facts.GetParentPath(p); ok {
		parentID, hasParent = e.registry.GetID(parent)
	}
	e.regMu.Unlock()

	projected := facts.CreateFileFacts(id, stats)

	if !existed {
		if err := e.addFacts(ctx, projected); err != nil {
			return id, true, errors.Wrapf(err, "failed to add facts for %s", p)
		}
		if hasParent {
			if err := e.addLinks(ctx, facts.CreateContainsLink(parentID, id)); err != nil {
				return id, true, errors.Wrapf(err, "failed to link %s", p)
			}
		}
		return id, true, nil
	}

	if err := e.reconcile(ctx, id, projected, true); err != nil {
		return id, false, errors.Wrapf(err, "failed to refresh facts for %s", p)
	}
	if hasParent {
		if err := e.ensureLink(ctx, facts.CreateContainsLink(parentID, id)); err != nil {
			return id, false, errors.Wrapf(err, "failed to link %s", p)
		}
	}
	return id, false, nil
}

func (e *Engine) updateByPath(ctx context.Context, path string, partial facts.FileStats) error {
	p := facts.NormalizePath(path)

	id, ok := e.IDForPath(p)
	if !ok {
		e.logger.Warn().Str("path", p).Msg("Update for untracked path ignored")
		return nil
	}

	partial.Path = ""
	if err := e.reconcile(ctx, id, facts.CreatePartialFacts(id, partial), false); err != nil {
		return errors.Wrapf(err, "failed to update %s", p)
	}
	return nil
}

// reconcile writes the facts of next whose value differs from what the entity
// currently has, retracting the values they replace. When complete is set,
// next is the entity's whole projection and attributes it no longer carries
// are retracted too.
func (e *Engine) reconcile(ctx context.Context, id facts.EntityID, next []facts.Fact, complete bool) error {
	current, err := e.currentFacts(ctx, id)
	if err != nil {
		return err
	}

	changed := facts.ChangedAttributes(current, next)
	retracted := changed
	if complete {
		retracted = append(retracted[:len(retracted):len(retracted)], facts.StaleAttributes(current, next)...)
	}
	if len(retracted) == 0 {
		return nil
	}

	wanted := make(map[string]bool, len(changed))
	for _, a := range changed {
		wanted[a] = true
	}
	additions := make([]facts.Fact, 0, len(changed))
	for _, f := range next {
		if wanted[f.Attribute] {
			additions = append(additions, f)
		}
	}

	if err := e.retractFacts(ctx, id, retracted...); err != nil {
		return err
	}
	if len(additions) == 0 {
		return nil
	}
	return e.addFacts(ctx, additions)
}

// currentFacts is what the entity holds once the open batch, if any, commits.
func (e *Engine) currentFacts(ctx context.Context, id facts.EntityID) ([]facts.Fact, error) {
	stored, err := e.store.FactsByEntity(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read facts of %s", id)
	}
	return e.stagedView(id, stored), nil
}

// ensureLink adds l unless it is already live or staged.
func (e *Engine) ensureLink(ctx context.Context, l facts.Link) error {
	if e.stagedLink(l) {
		return nil
	}
	existing, err := e.store.LinksTo(ctx, l.To)
	if err != nil {
		return errors.Wrapf(err, "failed to read links of %s", l.To)
	}
	for _, x := range existing {
		if x == l {
			return nil
		}
	}
	return e.addLinks(ctx, l)
}

// handleRename returns false when oldPath was not tracked.
func (e *Engine) handleRename(ctx context.Context, oldPath, newPath string) (bool, error) {
	from := facts.NormalizePath(oldPath)
	to := facts.NormalizePath(newPath)
	if from == "" || to == "" {
		return false, ErrEmptyPath
	}

	if _, ok := e.IDForPath(from); !ok {
		e.logger.Warn().Str("from", from).Str("to", to).Msg("Rename of untracked path ignored")
		return false, nil
	}
	if from == to {
		return true, nil
	}

	// Whatever was tracked at the destination has been replaced.
	if _, ok := e.IDForPath(to); ok {
		if err := e.removeByPath(ctx, to); err != nil {
			return true, err
		}
	}

	e.regMu.Lock()
	descendants := e.registry.Descendants(from)
	id, _ := e.registry.UpdatePath(from, to)
	moved := make([]movedEntity, 0, len(descendants))
	for _, d := range descendants {
		target := facts.Rebase(d, from, to)
		if childID, ok := e.registry.UpdatePath(d, target); ok {
			moved = append(moved, movedEntity{id: childID, path: target})
		}
	}
	oldParentID, oldParentOK := e.parentIDLocked(from)
	newParentID, newParentOK := e.parentIDLocked(to)
	e.regMu.Unlock()

	if err := e.rewritePath(ctx, id, to); err != nil {
		return true, err
	}
	for _, m := range moved {
		if err := e.rewritePath(ctx, m.id, m.path); err != nil {
			return true, err
		}
	}

	if parentOf(from) != parentOf(to) {
		if oldParentOK {
			if err := e.retractLink(ctx, facts.CreateContainsLink(oldParentID, id)); err != nil {
				return true, errors.Wrapf(err, "failed to unlink %s", from)
			}
		}
		if newParentOK {
			if err := e.addLinks(ctx, facts.CreateContainsLink(newParentID, id)); err != nil {
				return true, errors.Wrapf(err, "failed to link %s", to)
			}
		}
	}

	e.logger.Debug().Str("from", from).Str("to", to).Int("descendants", len(moved)).Msg("Rename applied")
	return true, nil
}

// rewritePath replaces everything derived from the entity's old path: path,
// name, ext and hidden.
func (e *Engine) rewritePath(ctx context.Context, id facts.EntityID, path string) error {
	current, err := e.currentFacts(ctx, id)
	if err != nil {
		return err
	}
	typ := facts.TypeFile
	for _, f := range current {
		if f.Attribute == facts.AttrType {
			typ = facts.EntityType(fmt.Sprint(f.Value))
		}
	}

	if err := e.retractFacts(ctx, id, facts.NameAttributes...); err != nil {
		return errors.Wrapf(err, "failed to retract path of %s", id)
	}
	if err := e.addFacts(ctx, facts.CreateNameFacts(id, path, typ)); err != nil {
		return errors.Wrapf(err, "failed to write path of %s", id)
	}
	return nil
}

func (e *Engine) removeByPath(ctx context.Context, path string) error {
	p := facts.NormalizePath(path)

	e.regMu.Lock()
	id, ok := e.registry.RemoveByPath(p)
	var removed []facts.EntityID
	if ok {
		removed = append(removed, id)
		for _, d := range e.registry.Descendants(p) {
			if childID, ok := e.registry.RemoveByPath(d); ok {
				removed = append(removed, childID)
			}
		}
	}
	e.regMu.Unlock()

	if !ok {
		e.logger.Debug().Str("path", p).Msg("Remove of untracked path ignored")
		return nil
	}

	for _, rid := range removed {
		if err := e.retractFacts(ctx, rid); err != nil {
			return errors.Wrapf(err, "failed to retract facts of %s", rid)
		}
		if err := e.retractLinksTouching(ctx, rid); err != nil {
			return errors.Wrapf(err, "failed to retract links of %s", rid)
		}
	}

	e.logger.Debug().Str("path", p).Int("entities", len(removed)).Msg("Remove applied")
	return nil
}

type movedEntity struct {
	id   facts.EntityID
	path string
}

// parentIDLocked looks up the id of p's parent. Callers hold regMu.
func (e *Engine) parentIDLocked(p string) (facts.EntityID, bool) {
	parent, ok := facts.GetParentPath(p)
	if !ok {
		return "", false
	}
	return e.registry.GetID(parent)
}

func parentOf(p string) string {
	parent, _ := facts.GetParentPath(p)
	return parent
}
