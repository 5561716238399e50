// Package identity keeps the bijective path <-> entity id mapping that lets an
// entity survive renames and moves, and persists it between runs.
package identity

import (
	"sort"

	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/facts"

	"github.com/RoaringBitmap/roaring"
	"github.com/armon/go-radix"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// IDPrefix is prepended to every minted id.
const IDPrefix = "file:"

// slot is one arena cell. Slots are append-only; a retired slot keeps its id
// and its byID entry so the id can never be handed out again.
type slot struct {
	id   facts.EntityID
	path string
}

// Registry maps paths to opaque entity ids and back.
//
// Entries live in an arena indexed by slot number. The path index is a radix
// tree of path -> slot (prefix walks give folder descendants) and the id index
// is a plain map of id -> slot, so both directions resolve to the same cell and
// cannot drift apart. Retired slots are marked in a bitmap.
//
// Registry has no internal locking: a single owner serializes every call.
type Registry struct {
	arena   []slot
	retired *roaring.Bitmap
	byPath  *radix.Tree
	byID    map[facts.EntityID]uint32

	dirty  bool
	newID  func() facts.EntityID
	logger zerolog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithIDGenerator replaces the uuid-based id minting, mainly for tests.
func WithIDGenerator(gen func() facts.EntityID) Option {
	return func(r *Registry) { r.newID = gen }
}

// WithLogger sets the logger used for load diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) { r.logger = logger.With().Str("component", "identity").Logger() }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		newID:  func() facts.EntityID { return facts.EntityID(IDPrefix + uuid.NewString()) },
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.reset()
	return r
}

func (r *Registry) reset() {
	r.arena = r.arena[:0]
	r.retired = roaring.New()
	r.byPath = radix.New()
	r.byID = make(map[facts.EntityID]uint32)
}

// GetOrCreateID returns the id tracked for path, minting and recording a new
// one if the path is unknown.
func (r *Registry) GetOrCreateID(path string) facts.EntityID {
	path = facts.NormalizePath(path)
	if id, ok := r.GetID(path); ok {
		return id
	}

	id := r.newID()
	for {
		if _, taken := r.byID[id]; !taken {
			break
		}
		id = r.newID()
	}
	r.insert(path, id)
	r.dirty = true
	return id
}

// GetID looks up the id tracked for path.
func (r *Registry) GetID(path string) (facts.EntityID, bool) {
	v, ok := r.byPath.Get(facts.NormalizePath(path))
	if !ok {
		return "", false
	}
	return r.arena[v.(uint32)].id, true
}

// GetPath looks up the path currently bound to id.
func (r *Registry) GetPath(id facts.EntityID) (string, bool) {
	idx, ok := r.byID[id]
	if !ok || r.retired.Contains(idx) {
		return "", false
	}
	return r.arena[idx].path, true
}

// UpdatePath rebinds the id tracked at oldPath to newPath. It is a no-op
// returning false when oldPath is not tracked. An id previously bound to
// newPath is retired so the mapping stays bijective.
func (r *Registry) UpdatePath(oldPath, newPath string) (facts.EntityID, bool) {
	oldPath = facts.NormalizePath(oldPath)
	newPath = facts.NormalizePath(newPath)

	v, ok := r.byPath.Get(oldPath)
	if !ok {
		return "", false
	}
	idx := v.(uint32)
	if oldPath == newPath {
		return r.arena[idx].id, true
	}

	if displaced, ok := r.byPath.Get(newPath); ok {
		r.retire(displaced.(uint32))
	}

	r.byPath.Delete(oldPath)
	r.byPath.Insert(newPath, idx)
	r.arena[idx].path = newPath
	r.dirty = true
	return r.arena[idx].id, true
}

// RemoveByPath forgets path and its id. It returns false when path is unknown.
func (r *Registry) RemoveByPath(path string) (facts.EntityID, bool) {
	v, ok := r.byPath.Get(facts.NormalizePath(path))
	if !ok {
		return "", false
	}
	idx := v.(uint32)
	id := r.arena[idx].id
	r.retire(idx)
	r.dirty = true
	return id, true
}

// Descendants returns the tracked paths strictly below dir, shallowest first.
func (r *Registry) Descendants(dir string) []string {
	dir = facts.NormalizePath(dir)
	prefix := dir + "/"
	if dir == facts.Root {
		prefix = facts.Root
	}

	var out []string
	r.byPath.WalkPrefix(prefix, func(key string, _ interface{}) bool {
		if key != dir {
			out = append(out, key)
		}
		return false
	})
	sort.SliceStable(out, func(i, j int) bool { return depth(out[i]) < depth(out[j]) })
	return out
}

// Len returns the number of tracked paths.
func (r *Registry) Len() int {
	return r.byPath.Len()
}

// Retired returns how many ids have been retired since the last load.
// Retired ids stay reserved until then.
func (r *Registry) Retired() uint64 {
	return r.retired.GetCardinality()
}

// Dirty reports whether there are changes not yet saved.
func (r *Registry) Dirty() bool {
	return r.dirty
}

// Snapshot copies the live path -> id mapping.
func (r *Registry) Snapshot() map[string]facts.EntityID {
	out := make(map[string]facts.EntityID, r.byPath.Len())
	r.byPath.Walk(func(key string, v interface{}) bool {
		out[key] = r.arena[v.(uint32)].id
		return false
	})
	return out
}

func (r *Registry) insert(path string, id facts.EntityID) {
	idx := uint32(len(r.arena))
	r.arena = append(r.arena, slot{id: id, path: path})
	r.byPath.Insert(path, idx)
	r.byID[id] = idx
}

func (r *Registry) retire(idx uint32) {
	s := r.arena[idx]
	r.byPath.Delete(s.path)
	r.arena[idx].path = ""
	r.retired.Add(idx)
}

func depth(p string) int {
	n := 0
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			n++
		}
	}
	return n
}
