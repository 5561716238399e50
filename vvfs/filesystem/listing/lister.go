// Package listing reads directory contents for the sync engine and decides
// which entries it should not see at all.
package listing

import (
	"context"
	"time"

	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/facts"
)

// Entry is one child of a listed directory. Size is only set for files;
// Created is nil when the platform does not report it.
type Entry struct {
	Name     string
	Path     string
	Type     facts.EntityType
	Size     int64
	Modified time.Time
	Created  *time.Time
}

// IsDir reports whether the entry is a folder.
func (e Entry) IsDir() bool {
	return e.Type == facts.TypeFolder
}

// Stats converts the entry into the shape the fact projection takes.
func (e Entry) Stats() facts.FileStats {
	stats := facts.FileStats{
		Path:    e.Path,
		Type:    e.Type,
		Created: e.Created,
	}
	if !e.Modified.IsZero() {
		stats.Modified = facts.Time(e.Modified)
	}
	if !e.IsDir() {
		stats.Size = facts.Int64(e.Size)
	}
	return facts.DeriveStats(stats)
}

// Lister lists the immediate children of a directory.
type Lister interface {
	List(ctx context.Context, path string) ([]Entry, error)
}
