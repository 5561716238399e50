package listing

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/facts"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

// OSLister lists directories on the local disk. Entry metadata is read with a
// bounded worker pool.
type OSLister struct {
	maxWorkers int
	logger     zerolog.Logger
}

// NewOSLister creates a lister using one worker per CPU.
func NewOSLister(logger zerolog.Logger) *OSLister {
	return &OSLister{
		maxWorkers: runtime.NumCPU(),
		logger:     logger.With().Str("component", "listing").Logger(),
	}
}

// List returns the children of dir, folders first and then files, each group
// ordered by name without regard to case. Entries whose metadata cannot be
// read are skipped.
func (l *OSLister) List(ctx context.Context, dir string) ([]Entry, error) {
	dir = facts.NormalizePath(dir)

	dirEntries, err := os.ReadDir(filepath.FromSlash(dir))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read directory %s", dir)
	}

	p := pool.NewWithResults[*Entry]().WithContext(ctx).WithMaxGoroutines(l.maxWorkers)
	for _, de := range dirEntries {
		p.Go(func(ctx context.Context) (*Entry, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return l.entry(dir, de), nil
		})
	}

	results, err := p.Wait()
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s interrupted", dir)
	}

	entries := make([]Entry, 0, len(results))
	for _, e := range results {
		if e != nil {
			entries = append(entries, *e)
		}
	}

	SortEntries(entries)
	return entries, nil
}

func (l *OSLister) entry(dir string, de fs.DirEntry) *Entry {
	full := path.Join(dir, de.Name())

	// Links are not followed: a link is a file of its own, whatever it
	// points at, so a link to an ancestor cannot loop a recursive listing.
	info, err := de.Info()
	if err != nil {
		l.logger.Debug().Err(err).Str("path", full).Msg("Skipping unreadable entry")
		return nil
	}

	e := &Entry{
		Name:     de.Name(),
		Path:     full,
		Type:     facts.TypeFile,
		Modified: info.ModTime().UTC(),
		Created:  creationTime(info),
	}
	if info.IsDir() && info.Mode()&os.ModeSymlink == 0 {
		e.Type = facts.TypeFolder
	} else {
		e.Size = info.Size()
	}
	return e
}

// SortEntries orders folders before files, then by case-insensitive name.
func SortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.IsDir() != b.IsDir() {
			return a.IsDir()
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
}
