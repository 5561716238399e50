package engine

import (
	"context"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/facts"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestFile_LinksOnlyToKnownParents(t *testing.T) {
	e := newTestEngine(t, newFakeLister())
	ctx := context.Background()

	orphan, err := e.IngestFile(ctx, "/r/orphan.txt", facts.FileStats{})
	require.NoError(t, err)
	links, err := e.store.LinksTo(ctx, orphan)
	require.NoError(t, err)
	assert.Empty(t, links, "no link while the parent is untracked")

	parent, err := e.IngestFile(ctx, "/r/dir", facts.FileStats{Type: facts.TypeFolder})
	require.NoError(t, err)
	child, err := e.IngestFile(ctx, "/r/dir/child.md", facts.FileStats{Size: facts.Int64(12)})
	require.NoError(t, err)

	assert.Equal(t, []facts.EntityID{child}, linkTargets(t, e.store, parent))

	got, err := e.store.FactsByEntity(ctx, child)
	require.NoError(t, err)
	v, _ := factValue(got, facts.AttrType)
	assert.Equal(t, "file", v)
	v, _ = factValue(got, facts.AttrExt)
	assert.Equal(t, "md", v)
	v, _ = factValue(got, facts.AttrName)
	assert.Equal(t, "child.md", v)
}

func TestIngestFile_IsIdempotent(t *testing.T) {
	e := newTestEngine(t, newFakeLister())
	ctx := context.Background()

	_, err := e.IngestFile(ctx, "/r", facts.FileStats{Type: facts.TypeFolder})
	require.NoError(t, err)

	stats := facts.FileStats{Size: facts.Int64(5)}
	first, err := e.IngestFile(ctx, "/r/a.txt", stats)
	require.NoError(t, err)
	second, err := e.IngestFile(ctx, "/r/a.txt/", stats)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	got, err := e.store.FactsByEntity(ctx, first)
	require.NoError(t, err)
	_, n := factValue(got, facts.AttrSize)
	assert.Equal(t, 1, n, "re-ingesting unchanged stats adds nothing")

	links, err := e.store.LinksTo(ctx, first)
	require.NoError(t, err)
	assert.Len(t, links, 1)

	_, err = e.IngestFile(ctx, "", stats)
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestUpdateByPath_ReplacesChangedAttributes(t *testing.T) {
	e := newTestEngine(t, newFakeLister())
	ctx := context.Background()

	id, err := e.IngestFile(ctx, "/r/a.txt", facts.FileStats{Size: facts.Int64(1)})
	require.NoError(t, err)

	require.NoError(t, e.UpdateByPath(ctx, "/r/a.txt", facts.FileStats{Size: facts.Int64(2)}))
	require.NoError(t, e.UpdateByPath(ctx, "/r/a.txt", facts.FileStats{Size: facts.Int64(2)}))

	got, err := e.store.FactsByEntity(ctx, id)
	require.NoError(t, err)
	v, n := factValue(got, facts.AttrSize)
	assert.Equal(t, 1, n, "superseded values are retracted")
	assert.Equal(t, int64(2), v)
	_, n = factValue(got, facts.AttrPath)
	assert.Equal(t, 1, n, "untouched attributes stay")

	stats, err := e.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.RetractedFacts)

	assert.NoError(t, e.UpdateByPath(ctx, "/r/unknown", facts.FileStats{Size: facts.Int64(9)}), "unknown paths are a no-op")
}

func TestHandleRename(t *testing.T) {
	e := newTestEngine(t, newFakeLister())
	ctx := context.Background()

	folder := facts.FileStats{Type: facts.TypeFolder}
	root, err := e.IngestFile(ctx, "/root", folder)
	require.NoError(t, err)
	a, err := e.IngestFile(ctx, "/root/a", folder)
	require.NoError(t, err)
	b, err := e.IngestFile(ctx, "/root/b", folder)
	require.NoError(t, err)
	x, err := e.IngestFile(ctx, "/root/a/x.txt", facts.FileStats{})
	require.NoError(t, err)

	t.Run("same folder keeps the link", func(t *testing.T) {
		require.NoError(t, e.HandleRename(ctx, "/root/a/x.txt", "/root/a/y.txt"))

		id, ok := e.IDForPath("/root/a/y.txt")
		require.True(t, ok)
		assert.Equal(t, x, id)
		_, ok = e.IDForPath("/root/a/x.txt")
		assert.False(t, ok)

		got, err := e.store.FactsByEntity(ctx, x)
		require.NoError(t, err)
		v, n := factValue(got, facts.AttrPath)
		assert.Equal(t, 1, n)
		assert.Equal(t, "/root/a/y.txt", v)
		v, _ = factValue(got, facts.AttrName)
		assert.Equal(t, "y.txt", v)

		assert.Equal(t, []facts.EntityID{x}, linkTargets(t, e.store, a))
	})

	t.Run("new folder moves the link", func(t *testing.T) {
		require.NoError(t, e.HandleRename(ctx, "/root/a/y.txt", "/root/b/y.txt"))

		assert.Empty(t, linkTargets(t, e.store, a))
		assert.Equal(t, []facts.EntityID{x}, linkTargets(t, e.store, b))
	})

	t.Run("folder rename carries descendants", func(t *testing.T) {
		require.NoError(t, e.HandleRename(ctx, "/root/b", "/root/c"))

		id, ok := e.IDForPath("/root/c")
		require.True(t, ok)
		assert.Equal(t, b, id)
		id, ok = e.IDForPath("/root/c/y.txt")
		require.True(t, ok)
		assert.Equal(t, x, id)

		got, err := e.store.FactsByEntity(ctx, x)
		require.NoError(t, err)
		v, _ := factValue(got, facts.AttrPath)
		assert.Equal(t, "/root/c/y.txt", v)

		assert.ElementsMatch(t, []facts.EntityID{a, b}, linkTargets(t, e.store, root))
	})

	t.Run("untracked source is ignored", func(t *testing.T) {
		before := e.Tracked()
		require.NoError(t, e.HandleRename(ctx, "/root/ghost", "/root/spirit"))
		assert.Equal(t, before, e.Tracked())
	})
}

func TestHandleRename_OntoTrackedPathReplacesIt(t *testing.T) {
	e := newTestEngine(t, newFakeLister())
	ctx := context.Background()

	src, err := e.IngestFile(ctx, "/r/new.txt", facts.FileStats{})
	require.NoError(t, err)
	dst, err := e.IngestFile(ctx, "/r/old.txt", facts.FileStats{})
	require.NoError(t, err)

	require.NoError(t, e.HandleRename(ctx, "/r/new.txt", "/r/old.txt"))

	id, _ := e.IDForPath("/r/old.txt")
	assert.Equal(t, src, id)

	got, err := e.store.FactsByEntity(ctx, dst)
	require.NoError(t, err)
	assert.Empty(t, got, "the replaced entity is retracted")
}

func TestRemoveByPath_CascadesAndRetracts(t *testing.T) {
	e := newTestEngine(t, newFakeLister())
	ctx := context.Background()

	root, err := e.IngestFile(ctx, "/root", facts.FileStats{Type: facts.TypeFolder})
	require.NoError(t, err)
	dir, err := e.IngestFile(ctx, "/root/dir", facts.FileStats{Type: facts.TypeFolder})
	require.NoError(t, err)
	leaf, err := e.IngestFile(ctx, "/root/dir/leaf.txt", facts.FileStats{})
	require.NoError(t, err)
	keep, err := e.IngestFile(ctx, "/root/keep.txt", facts.FileStats{})
	require.NoError(t, err)

	require.NoError(t, e.RemoveByPath(ctx, "/root/dir"))

	for _, p := range []string{"/root/dir", "/root/dir/leaf.txt"} {
		_, ok := e.IDForPath(p)
		assert.False(t, ok, p)
	}
	for _, id := range []facts.EntityID{dir, leaf} {
		got, err := e.store.FactsByEntity(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, got)
	}
	assert.Equal(t, []facts.EntityID{keep}, linkTargets(t, e.store, root))

	assert.NoError(t, e.RemoveByPath(ctx, "/root/dir"), "removing twice is a no-op")
}

func TestHandleRename_RederivesNameAttributes(t *testing.T) {
	e := newTestEngine(t, newFakeLister())
	ctx := context.Background()

	id, err := e.IngestFile(ctx, "/r/b.md", facts.FileStats{})
	require.NoError(t, err)

	require.NoError(t, e.HandleRename(ctx, "/r/b.md", "/r/b.go"))
	got, err := e.store.FactsByEntity(ctx, id)
	require.NoError(t, err)
	ext, n := factValue(got, facts.AttrExt)
	assert.Equal(t, 1, n)
	assert.Equal(t, "go", ext)

	require.NoError(t, e.HandleRename(ctx, "/r/b.go", "/r/.Makefile"))
	got, err = e.store.FactsByEntity(ctx, id)
	require.NoError(t, err)
	_, n = factValue(got, facts.AttrExt)
	assert.Zero(t, n, "a name without extension leaves no ext")
	hidden, n := factValue(got, facts.AttrHidden)
	assert.Equal(t, 1, n)
	assert.Equal(t, true, hidden)

	dir, err := e.IngestFile(ctx, "/r/pkg", facts.FileStats{Type: facts.TypeFolder})
	require.NoError(t, err)
	require.NoError(t, e.HandleRename(ctx, "/r/pkg", "/r/pkg.v2"))
	got, err = e.store.FactsByEntity(ctx, dir)
	require.NoError(t, err)
	_, n = factValue(got, facts.AttrExt)
	assert.Zero(t, n, "folders never get an extension")
}

func TestIngestFile_RetractsAttributesNoLongerReported(t *testing.T) {
	e := newTestEngine(t, newFakeLister())
	ctx := context.Background()

	created := fixedTime.Add(-time.Hour)
	id, err := e.IngestFile(ctx, "/r/a.txt", facts.FileStats{Size: facts.Int64(1), Created: &created})
	require.NoError(t, err)

	_, err = e.IngestFile(ctx, "/r/a.txt", facts.FileStats{Size: facts.Int64(1)})
	require.NoError(t, err)

	got, err := e.store.FactsByEntity(ctx, id)
	require.NoError(t, err)
	_, n := factValue(got, facts.AttrCreated)
	assert.Zero(t, n)
	_, n = factValue(got, facts.AttrSize)
	assert.Equal(t, 1, n, "unchanged attributes stay")

	stats, err := e.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.RetractedFacts)
}
