package facts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attrs(fs []Fact) map[string]any {
	out := make(map[string]any, len(fs))
	for _, f := range fs {
		out[f.Attribute] = f.Value
	}
	return out
}

func TestCreateFileFacts(t *testing.T) {
	t.Run("minimal stats emit only required attributes", func(t *testing.T) {
		got := CreateFileFacts("file:1", FileStats{Path: "/docs/readme.md"})

		require.Len(t, got, 3)
		assert.Equal(t, map[string]any{
			AttrType: "file",
			AttrPath: "/docs/readme.md",
			AttrName: "readme.md",
		}, attrs(got))
		for _, f := range got {
			assert.Equal(t, EntityID("file:1"), f.Entity)
		}
	})

	t.Run("all optional attributes present", func(t *testing.T) {
		mod := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
		created := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)

		got := CreateFileFacts("file:2", FileStats{
			Path:     "/docs/.notes.txt/",
			Type:     TypeFile,
			Size:     Int64(42),
			Modified: Time(mod),
			Created:  Time(created),
			Ext:      String(".txt"),
			Hidden:   Bool(true),
		})

		a := attrs(got)
		assert.Len(t, got, 8)
		assert.Equal(t, "/docs/.notes.txt", a[AttrPath], "trailing slash is stripped")
		assert.Equal(t, ".notes.txt", a[AttrName])
		assert.Equal(t, int64(42), a[AttrSize])
		assert.Equal(t, "2024-03-01T11:00:00Z", a[AttrModified], "times are rendered in UTC")
		assert.Equal(t, "2023-01-02T03:04:05Z", a[AttrCreated])
		assert.Equal(t, "txt", a[AttrExt], "leading dot is stripped")
		assert.Equal(t, true, a[AttrHidden])
	})

	t.Run("folder type is kept", func(t *testing.T) {
		a := attrs(CreateFileFacts("file:3", FileStats{Path: "/docs", Type: TypeFolder}))
		assert.Equal(t, "folder", a[AttrType])
	})

	t.Run("false hidden is still emitted when known", func(t *testing.T) {
		a := attrs(CreateFileFacts("file:4", FileStats{Path: "/a", Hidden: Bool(false)}))
		assert.Equal(t, false, a[AttrHidden])
	})

	t.Run("empty extension is dropped", func(t *testing.T) {
		a := attrs(CreateFileFacts("file:5", FileStats{Path: "/a", Ext: String(".")}))
		assert.NotContains(t, a, AttrExt)
	})
}

func TestCreatePartialFacts(t *testing.T) {
	got := CreatePartialFacts("file:1", FileStats{Size: Int64(7)})
	assert.Equal(t, []Fact{{Entity: "file:1", Attribute: AttrSize, Value: int64(7)}}, got)

	got = CreatePartialFacts("file:1", FileStats{Path: "/x/y.go", Type: TypeFile})
	assert.Equal(t, map[string]any{AttrType: "file", AttrPath: "/x/y.go", AttrName: "y.go"}, attrs(got))

	assert.Empty(t, CreatePartialFacts("file:1", FileStats{}))
}

func TestCreateContainsLink(t *testing.T) {
	l := CreateContainsLink("file:parent", "file:child")
	assert.Equal(t, Link{From: "file:parent", Relation: RelContains, To: "file:child"}, l)
}

func TestChangedAttributes(t *testing.T) {
	prev := []Fact{
		{Attribute: AttrSize, Value: float64(10)},
		{Attribute: AttrName, Value: "a.txt"},
		{Attribute: AttrHidden, Value: false},
	}
	next := []Fact{
		{Attribute: AttrSize, Value: int64(10)},
		{Attribute: AttrName, Value: "b.txt"},
		{Attribute: AttrExt, Value: "txt"},
	}

	assert.Equal(t, []string{AttrName, AttrExt}, ChangedAttributes(prev, next))
}

func TestStaleAttributes(t *testing.T) {
	prev := []Fact{
		{Attribute: AttrName, Value: "report.txt"},
		{Attribute: AttrExt, Value: "txt"},
		{Attribute: AttrCreated, Value: "2024-01-01T00:00:00Z"},
		{Attribute: AttrExt, Value: "txt"},
	}
	next := []Fact{{Attribute: AttrName, Value: "README"}}

	assert.Equal(t, []string{AttrExt, AttrCreated}, StaleAttributes(prev, next))
	assert.Empty(t, StaleAttributes(next, prev))
}

func TestCreateNameFacts(t *testing.T) {
	assert.Equal(t, map[string]any{
		AttrPath:   "/src/b.go",
		AttrName:   "b.go",
		AttrExt:    "go",
		AttrHidden: false,
	}, attrs(CreateNameFacts("file:1", "/src/b.go/", TypeFile)))

	assert.Equal(t, map[string]any{
		AttrPath:   "/src/.README",
		AttrName:   ".README",
		AttrHidden: true,
	}, attrs(CreateNameFacts("file:1", "/src/.README", TypeFile)))

	folder := attrs(CreateNameFacts("file:2", "/src/pkg.v2", TypeFolder))
	assert.NotContains(t, folder, AttrExt)
}

func TestDeriveStats(t *testing.T) {
	s := DeriveStats(FileStats{Path: "/src/.env.local"})
	require.NotNil(t, s.Ext)
	require.NotNil(t, s.Hidden)
	assert.Equal(t, TypeFile, s.Type)
	assert.Equal(t, "local", *s.Ext)
	assert.True(t, *s.Hidden)

	folder := DeriveStats(FileStats{Path: "/src/pkg.v2", Type: TypeFolder})
	assert.Nil(t, folder.Ext, "folders never get an extension")
	assert.False(t, *folder.Hidden)

	kept := DeriveStats(FileStats{Path: "/a.go", Ext: String("golang")})
	assert.Equal(t, "golang", *kept.Ext, "explicit values win")
}
