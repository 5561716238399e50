// Package facts projects filesystem metadata into entity-attribute-value facts
// and containment links. Everything here is pure and deterministic.
package facts

import (
	"fmt"
	"time"
)

// EntityID is the opaque, durable identity of one filesystem object.
type EntityID string

// Attribute names produced by the projection
const (
	AttrType     = "type"
	AttrPath     = "path"
	AttrName     = "name"
	AttrSize     = "size"
	AttrModified = "modified"
	AttrCreated  = "created"
	AttrExt      = "ext"
	AttrHidden   = "hidden"
)

// RelContains is the only relation this core emits: parent contains child.
const RelContains = "contains"

// EntityType is the value of the type attribute.
type EntityType string

const (
	TypeFile   EntityType = "file"
	TypeFolder EntityType = "folder"
)

// Fact is one (entity, attribute, value) triple.
type Fact struct {
	Entity    EntityID `json:"entity"`
	Attribute string   `json:"attribute"`
	Value     any      `json:"value"`
}

// Link is one (entity, relation, entity) edge.
type Link struct {
	From     EntityID `json:"from"`
	Relation string   `json:"relation"`
	To       EntityID `json:"to"`
}

// FileStats is the metadata known about a path. Nil pointers mean "not known"
// and are left out of the projection.
type FileStats struct {
	Path     string
	Type     EntityType
	Size     *int64
	Modified *time.Time
	Created  *time.Time
	Ext      *string
	Hidden   *bool
}

// CreateFileFacts projects stats into sparse facts for id. type, path and name
// are always present; the rest only when set.
func CreateFileFacts(id EntityID, stats FileStats) []Fact {
	path := NormalizePath(stats.Path)
	typ := stats.Type
	if typ == "" {
		typ = TypeFile
	}

	out := make([]Fact, 0, 8)
	out = append(out,
		Fact{Entity: id, Attribute: AttrType, Value: string(typ)},
		Fact{Entity: id, Attribute: AttrPath, Value: path},
		Fact{Entity: id, Attribute: AttrName, Value: GetBaseName(path)},
	)

	return append(out, optionalFacts(id, stats)...)
}

// CreatePathFacts re-derives only the path and name facts, used after a rename.
func CreatePathFacts(id EntityID, path string) []Fact {
	path = NormalizePath(path)
	return []Fact{
		{Entity: id, Attribute: AttrPath, Value: path},
		{Entity: id, Attribute: AttrName, Value: GetBaseName(path)},
	}
}

// NameAttributes are the attributes that follow from a path alone and are
// rewritten together when an entity moves.
var NameAttributes = []string{AttrPath, AttrName, AttrExt, AttrHidden}

// CreateNameFacts projects the NameAttributes of an entity of type typ at
// path. ext is left out for folders and for names without an extension.
func CreateNameFacts(id EntityID, path string, typ EntityType) []Fact {
	derived := DeriveStats(FileStats{Path: NormalizePath(path), Type: typ})
	return append(CreatePathFacts(id, derived.Path), optionalFacts(id, FileStats{
		Ext:    derived.Ext,
		Hidden: derived.Hidden,
	})...)
}

// CreatePartialFacts projects only the fields set in partial. type and path
// are emitted only when given, name follows path.
func CreatePartialFacts(id EntityID, partial FileStats) []Fact {
	var out []Fact
	if partial.Type != "" {
		out = append(out, Fact{Entity: id, Attribute: AttrType, Value: string(partial.Type)})
	}
	if partial.Path != "" {
		out = append(out, CreatePathFacts(id, partial.Path)...)
	}
	return append(out, optionalFacts(id, partial)...)
}

func optionalFacts(id EntityID, stats FileStats) []Fact {
	var out []Fact
	if stats.Size != nil {
		out = append(out, Fact{Entity: id, Attribute: AttrSize, Value: *stats.Size})
	}
	if stats.Modified != nil {
		out = append(out, Fact{Entity: id, Attribute: AttrModified, Value: formatTime(*stats.Modified)})
	}
	if stats.Created != nil {
		out = append(out, Fact{Entity: id, Attribute: AttrCreated, Value: formatTime(*stats.Created)})
	}
	if stats.Ext != nil {
		if ext := trimDot(*stats.Ext); ext != "" {
			out = append(out, Fact{Entity: id, Attribute: AttrExt, Value: ext})
		}
	}
	if stats.Hidden != nil {
		out = append(out, Fact{Entity: id, Attribute: AttrHidden, Value: *stats.Hidden})
	}
	return out
}

// CreateContainsLink builds the parent-contains-child edge.
func CreateContainsLink(parentID, childID EntityID) Link {
	return Link{From: parentID, Relation: RelContains, To: childID}
}

// ChangedAttributes lists the attributes of next whose value differs from prev.
// Attributes only present in prev are not reported; they are left as they were.
func ChangedAttributes(prev, next []Fact) []string {
	old := make(map[string]any, len(prev))
	for _, f := range prev {
		old[f.Attribute] = f.Value
	}

	var changed []string
	for _, f := range next {
		if v, ok := old[f.Attribute]; !ok || !sameValue(v, f.Value) {
			changed = append(changed, f.Attribute)
		}
	}
	return changed
}

// StaleAttributes lists, in first-seen order, the attributes of prev that next
// does not carry at all. When next is a complete projection these values no
// longer hold.
func StaleAttributes(prev, next []Fact) []string {
	present := make(map[string]bool, len(next))
	for _, f := range next {
		present[f.Attribute] = true
	}

	var stale []string
	for _, f := range prev {
		if !present[f.Attribute] {
			present[f.Attribute] = true
			stale = append(stale, f.Attribute)
		}
	}
	return stale
}

// sameValue compares by rendered form so an int64 read back from a store as a
// different integer type still matches.
func sameValue(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func trimDot(ext string) string {
	if len(ext) > 0 && ext[0] == '.' {
		return ext[1:]
	}
	return ext
}
