package db

import (
	"context"

	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/facts"
)

// FactStore is the external fact graph this core feeds. Additions are
// append-only; retractions tombstone earlier rows instead of deleting them, and
// lookups only see rows that are not tombstoned.
type FactStore interface {
	AddFacts(ctx context.Context, fs []facts.Fact) error
	AddLinks(ctx context.Context, ls []facts.Link) error

	// RetractFacts tombstones the live facts of entity for the given
	// attributes, or all of them when no attribute is given.
	RetractFacts(ctx context.Context, entity facts.EntityID, attributes ...string) error
	RetractLinks(ctx context.Context, ls ...facts.Link) error
	// RetractLinksTouching tombstones every live link from or to entity.
	RetractLinksTouching(ctx context.Context, entity facts.EntityID) error

	FactsByEntity(ctx context.Context, entity facts.EntityID) ([]facts.Fact, error)
	EntitiesByAttribute(ctx context.Context, attribute string, value any) ([]facts.EntityID, error)
	ValuesByAttribute(ctx context.Context, attribute string) ([]any, error)
	LinksFrom(ctx context.Context, entity facts.EntityID) ([]facts.Link, error)
	LinksTo(ctx context.Context, entity facts.EntityID) ([]facts.Link, error)
	Stats(ctx context.Context) (Stats, error)

	Close() error
}

// Stats summarizes store contents.
type Stats struct {
	Facts          int64 `json:"facts"`
	Links          int64 `json:"links"`
	RetractedFacts int64 `json:"retractedFacts"`
	RetractedLinks int64 `json:"retractedLinks"`
	Entities       int64 `json:"entities"`
}
