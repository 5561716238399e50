package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/facts"
)

type factRow struct {
	fact      facts.Fact
	retracted bool
}

type linkRow struct {
	link      facts.Link
	retracted bool
}

// MemoryFactStore is an in-memory FactStore. Rows are only ever appended;
// retraction flips a tombstone flag.
type MemoryFactStore struct {
	mu        sync.RWMutex
	facts     []factRow
	links     []linkRow
	byEntity  map[facts.EntityID][]int
	linksFrom map[facts.EntityID][]int
	linksTo   map[facts.EntityID][]int
	closed    bool
}

var _ FactStore = (*MemoryFactStore)(nil)

// NewMemoryFactStore creates an empty store.
func NewMemoryFactStore() *MemoryFactStore {
	return &MemoryFactStore{
		byEntity:  make(map[facts.EntityID][]int),
		linksFrom: make(map[facts.EntityID][]int),
		linksTo:   make(map[facts.EntityID][]int),
	}
}

func (m *MemoryFactStore) AddFacts(_ context.Context, fs []facts.Fact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}

	for _, f := range fs {
		m.byEntity[f.Entity] = append(m.byEntity[f.Entity], len(m.facts))
		m.facts = append(m.facts, factRow{fact: f})
	}
	return nil
}

func (m *MemoryFactStore) AddLinks(_ context.Context, ls []facts.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}

	for _, l := range ls {
		idx := len(m.links)
		m.links = append(m.links, linkRow{link: l})
		m.linksFrom[l.From] = append(m.linksFrom[l.From], idx)
		m.linksTo[l.To] = append(m.linksTo[l.To], idx)
	}
	return nil
}

func (m *MemoryFactStore) RetractFacts(_ context.Context, entity facts.EntityID, attributes ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}

	wanted := make(map[string]bool, len(attributes))
	for _, a := range attributes {
		wanted[a] = true
	}
	for _, idx := range m.byEntity[entity] {
		if len(wanted) == 0 || wanted[m.facts[idx].fact.Attribute] {
			m.facts[idx].retracted = true
		}
	}
	return nil
}

func (m *MemoryFactStore) RetractLinks(_ context.Context, ls ...facts.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}

	for _, l := range ls {
		for _, idx := range m.linksFrom[l.From] {
			if m.links[idx].link == l {
				m.links[idx].retracted = true
			}
		}
	}
	return nil
}

func (m *MemoryFactStore) RetractLinksTouching(_ context.Context, entity facts.EntityID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}

	for _, idx := range m.linksFrom[entity] {
		m.links[idx].retracted = true
	}
	for _, idx := range m.linksTo[entity] {
		m.links[idx].retracted = true
	}
	return nil
}

func (m *MemoryFactStore) FactsByEntity(_ context.Context, entity facts.EntityID) ([]facts.Fact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []facts.Fact
	for _, idx := range m.byEntity[entity] {
		if row := m.facts[idx]; !row.retracted {
			out = append(out, row.fact)
		}
	}
	return out, nil
}

func (m *MemoryFactStore) EntitiesByAttribute(_ context.Context, attribute string, value any) ([]facts.EntityID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := fmt.Sprint(value)
	seen := make(map[facts.EntityID]bool)
	var out []facts.EntityID
	for _, row := range m.facts {
		if row.retracted || row.fact.Attribute != attribute || seen[row.fact.Entity] {
			continue
		}
		if fmt.Sprint(row.fact.Value) == want {
			seen[row.fact.Entity] = true
			out = append(out, row.fact.Entity)
		}
	}
	return out, nil
}

func (m *MemoryFactStore) ValuesByAttribute(_ context.Context, attribute string) ([]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var out []any
	for _, row := range m.facts {
		if row.retracted || row.fact.Attribute != attribute {
			continue
		}
		key := fmt.Sprint(row.fact.Value)
		if !seen[key] {
			seen[key] = true
			out = append(out, row.fact.Value)
		}
	}
	return out, nil
}

func (m *MemoryFactStore) LinksFrom(_ context.Context, entity facts.EntityID) ([]facts.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.liveLinks(m.linksFrom[entity]), nil
}

func (m *MemoryFactStore) LinksTo(_ context.Context, entity facts.EntityID) ([]facts.Link, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.liveLinks(m.linksTo[entity]), nil
}

func (m *MemoryFactStore) liveLinks(idxs []int) []facts.Link {
	var out []facts.Link
	for _, idx := range idxs {
		if row := m.links[idx]; !row.retracted {
			out = append(out, row.link)
		}
	}
	return out
}

func (m *MemoryFactStore) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s Stats
	entities := make(map[facts.EntityID]bool)
	for _, row := range m.facts {
		if row.retracted {
			s.RetractedFacts++
			continue
		}
		s.Facts++
		entities[row.fact.Entity] = true
	}
	for _, row := range m.links {
		if row.retracted {
			s.RetractedLinks++
		} else {
			s.Links++
		}
	}
	s.Entities = int64(len(entities))
	return s, nil
}

func (m *MemoryFactStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
