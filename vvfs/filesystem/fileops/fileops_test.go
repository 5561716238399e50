package fileops

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type FileOpsTestSuite struct {
	suite.Suite
	dir string
	ops *FileOps
	ctx context.Context
}

func (s *FileOpsTestSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.ops = NewFileOps(zerolog.Nop())
	s.ctx = context.Background()
}

func (s *FileOpsTestSuite) TestCreateFileAndFolder() {
	file, err := s.ops.CreateFile(s.ctx, s.dir, "a.txt")
	s.Require().NoError(err)
	s.Equal(filepath.Join(s.dir, "a.txt"), file)
	s.FileExists(file)

	_, err = s.ops.CreateFile(s.ctx, s.dir, "a.txt")
	s.True(errors.Is(err, ErrExists))

	folder, err := s.ops.CreateFolder(s.ctx, s.dir, "sub")
	s.Require().NoError(err)
	s.DirExists(folder)

	_, err = s.ops.CreateFolder(s.ctx, s.dir, "sub")
	s.True(errors.Is(err, ErrExists))

	_, err = s.ops.CreateFile(s.ctx, file, "child")
	s.True(errors.Is(err, ErrNotDirectory))

	_, err = s.ops.CreateFile(s.ctx, filepath.Join(s.dir, "missing"), "x")
	s.True(errors.Is(err, ErrNotFound))
}

func (s *FileOpsTestSuite) TestInvalidNames() {
	for _, name := range []string{"", ".", "..", "a/b", `a\b`} {
		_, err := s.ops.CreateFile(s.ctx, s.dir, name)
		s.True(errors.Is(err, ErrInvalidName), "name %q", name)
	}
}

func (s *FileOpsTestSuite) TestDeleteItem() {
	folder, err := s.ops.CreateFolder(s.ctx, s.dir, "tree")
	s.Require().NoError(err)
	_, err = s.ops.CreateFile(s.ctx, folder, "leaf.txt")
	s.Require().NoError(err)

	s.Require().NoError(s.ops.DeleteItem(s.ctx, folder))
	s.NoDirExists(folder)

	s.True(errors.Is(s.ops.DeleteItem(s.ctx, folder), ErrNotFound))
}

func (s *FileOpsTestSuite) TestRenameItem() {
	file, err := s.ops.CreateFile(s.ctx, s.dir, "old.txt")
	s.Require().NoError(err)
	_, err = s.ops.CreateFile(s.ctx, s.dir, "taken.txt")
	s.Require().NoError(err)

	_, err = s.ops.RenameItem(s.ctx, file, "taken.txt")
	s.True(errors.Is(err, ErrExists))

	renamed, err := s.ops.RenameItem(s.ctx, file, "new.txt")
	s.Require().NoError(err)
	s.Equal(filepath.Join(s.dir, "new.txt"), renamed)
	s.NoFileExists(file)
	s.FileExists(renamed)

	_, err = s.ops.RenameItem(s.ctx, file, "again.txt")
	s.True(errors.Is(err, ErrNotFound))
}

func (s *FileOpsTestSuite) TestReadWriteText() {
	path := filepath.Join(s.dir, "note.md")

	s.Require().NoError(s.ops.WriteText(s.ctx, path, "# hello"))
	got, err := s.ops.ReadText(s.ctx, path)
	s.Require().NoError(err)
	s.Equal("# hello", got)

	_, err = s.ops.ReadText(s.ctx, s.dir)
	s.True(errors.Is(err, ErrIsDirectory))
	s.True(errors.Is(s.ops.WriteText(s.ctx, s.dir, "x"), ErrIsDirectory))

	_, err = s.ops.ReadText(s.ctx, filepath.Join(s.dir, "none"))
	s.True(errors.Is(err, ErrNotFound))
}

func (s *FileOpsTestSuite) TestOpenWithDefaultApp() {
	var opened string
	s.ops.WithOpener(func(_ context.Context, path string) error {
		opened = path
		return nil
	})

	file, err := s.ops.CreateFile(s.ctx, s.dir, "doc.pdf")
	s.Require().NoError(err)

	s.Require().NoError(s.ops.OpenWithDefaultApp(s.ctx, file))
	s.Equal(file, opened)

	s.True(errors.Is(s.ops.OpenWithDefaultApp(s.ctx, s.dir), ErrIsDirectory))
}

func (s *FileOpsTestSuite) TestCopyAndMoveItems() {
	src, err := s.ops.CreateFolder(s.ctx, s.dir, "src")
	s.Require().NoError(err)
	dst, err := s.ops.CreateFolder(s.ctx, s.dir, "dst")
	s.Require().NoError(err)

	s.Require().NoError(os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0o644))
	s.Require().NoError(os.MkdirAll(filepath.Join(src, "nested", "deep"), 0o755))
	s.Require().NoError(os.WriteFile(filepath.Join(src, "nested", "deep", "b.txt"), []byte("b"), 0o644))
	s.Require().NoError(os.WriteFile(filepath.Join(dst, "clash.txt"), []byte("old"), 0o644))
	s.Require().NoError(os.WriteFile(filepath.Join(src, "clash.txt"), []byte("new"), 0o644))

	sources := []string{
		filepath.Join(src, "a.txt"),
		filepath.Join(src, "nested"),
		filepath.Join(src, "clash.txt"),
		filepath.Join(src, "missing.txt"),
	}

	copied, err := s.ops.CopyItems(s.ctx, sources, dst)
	s.Require().NoError(err)
	s.Equal(2, copied)
	s.FileExists(filepath.Join(dst, "nested", "deep", "b.txt"))
	data, _ := os.ReadFile(filepath.Join(dst, "clash.txt"))
	s.Equal("old", string(data), "existing destinations are left alone")

	other, err := s.ops.CreateFolder(s.ctx, s.dir, "other")
	s.Require().NoError(err)
	moved, err := s.ops.MoveItems(s.ctx, sources, other)
	s.Require().NoError(err)
	s.Equal(3, moved)
	s.NoFileExists(filepath.Join(src, "a.txt"))

	_, err = s.ops.MoveItems(s.ctx, sources, filepath.Join(other, "a.txt"))
	s.True(errors.Is(err, ErrNotDirectory))
}

func TestFileOpsTestSuite(t *testing.T) {
	suite.Run(t, new(FileOpsTestSuite))
}

func TestFileOps_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFileOps(zerolog.Nop()).CreateFile(ctx, t.TempDir(), "x")
	assert.ErrorIs(t, err, context.Canceled)
	require.Error(t, err)
}
