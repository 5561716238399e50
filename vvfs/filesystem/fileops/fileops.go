// Package fileops performs the filesystem mutations a user issues. It never
// touches the fact graph: callers report the resulting changes to the engine
// themselves, or leave them to a running watcher.
package fileops

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

var (
	ErrNotFound     = errors.New("item does not exist")
	ErrExists       = errors.New("an item with that name already exists")
	ErrNotDirectory = errors.New("not a directory")
	ErrIsDirectory  = errors.New("is a directory")
	ErrInvalidName  = errors.New("invalid name")
)

// Opener launches a platform command; replaced in tests.
type Opener func(ctx context.Context, path string) error

// FileOps provides low-level file system operations
type FileOps struct {
	maxWorkers int
	opener     Opener
	logger     zerolog.Logger
}

// NewFileOps creates a new file operations instance
func NewFileOps(logger zerolog.Logger) *FileOps {
	return &FileOps{
		maxWorkers: 4,
		opener:     openWithPlatform,
		logger:     logger.With().Str("component", "fileops").Logger(),
	}
}

// WithOpener swaps the command used by OpenWithDefaultApp.
func (fo *FileOps) WithOpener(opener Opener) *FileOps {
	fo.opener = opener
	return fo
}

var _ FileOpsInterface = (*FileOps)(nil)

// CreateFile creates an empty file called name inside dir and returns its path.
func (fo *FileOps) CreateFile(ctx context.Context, dir, name string) (string, error) {
	target, err := fo.prepareChild(ctx, dir, name)
	if err != nil {
		return "", err
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", errors.Wrapf(err, "failed to create file %s", target)
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrapf(err, "failed to close file %s", target)
	}

	fo.logger.Debug().Str("path", target).Msg("File created")
	return target, nil
}

// CreateFolder creates the folder name inside dir and returns its path.
func (fo *FileOps) CreateFolder(ctx context.Context, dir, name string) (string, error) {
	target, err := fo.prepareChild(ctx, dir, name)
	if err != nil {
		return "", err
	}

	if err := os.Mkdir(target, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create folder %s", target)
	}

	fo.logger.Debug().Str("path", target).Msg("Folder created")
	return target, nil
}

// DeleteItem removes a file, or a folder with everything in it.
func (fo *FileOps) DeleteItem(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Lstat(path)
	if err != nil {
		return notFound(err, path)
	}

	if info.IsDir() {
		err = os.RemoveAll(path)
	} else {
		err = os.Remove(path)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to delete %s", path)
	}

	fo.logger.Debug().Str("path", path).Bool("folder", info.IsDir()).Msg("Item deleted")
	return nil
}

// RenameItem gives oldPath a new name within the same folder and returns the
// new path.
func (fo *FileOps) RenameItem(ctx context.Context, oldPath, newName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := os.Lstat(oldPath); err != nil {
		return "", notFound(err, oldPath)
	}

	parent := filepath.Dir(filepath.Clean(oldPath))
	if parent == filepath.Clean(oldPath) {
		return "", errors.Newf("cannot rename root directory %s", oldPath)
	}

	target, err := fo.prepareChild(ctx, parent, newName)
	if err != nil {
		return "", err
	}

	if err := os.Rename(oldPath, target); err != nil {
		return "", errors.Wrapf(err, "failed to rename %s", oldPath)
	}

	fo.logger.Debug().Str("from", oldPath).Str("to", target).Msg("Item renamed")
	return target, nil
}

// ReadText returns the contents of a file.
func (fo *FileOps) ReadText(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", notFound(err, path)
	}
	if info.IsDir() {
		return "", errors.Wrapf(ErrIsDirectory, "cannot read %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read %s", path)
	}
	return string(data), nil
}

// WriteText replaces the contents of a file, creating it if needed.
func (fo *FileOps) WriteText(ctx context.Context, path, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return errors.Wrapf(ErrIsDirectory, "cannot write %s", path)
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

// OpenWithDefaultApp hands a file to the desktop's default application.
func (fo *FileOps) OpenWithDefaultApp(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return notFound(err, path)
	}
	if info.IsDir() {
		return errors.Wrapf(ErrIsDirectory, "cannot open %s with default app", path)
	}

	if err := fo.opener(ctx, path); err != nil {
		return errors.Wrapf(err, "failed to open %s", path)
	}
	return nil
}

// CopyItems copies each source into destination and returns how many were
// copied. Missing sources, name clashes and failed copies are skipped.
func (fo *FileOps) CopyItems(ctx context.Context, sources []string, destination string) (int, error) {
	return fo.batch(ctx, sources, destination, "copy", func(src, dst string) error {
		info, err := os.Stat(src)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return copyDir(src, dst)
		}
		return copyFile(src, dst, info.Mode())
	})
}

// MoveItems moves each source into destination and returns how many were
// moved, skipping the same cases as CopyItems.
func (fo *FileOps) MoveItems(ctx context.Context, sources []string, destination string) (int, error) {
	return fo.batch(ctx, sources, destination, "move", os.Rename)
}

func (fo *FileOps) batch(ctx context.Context, sources []string, destination, op string, apply func(src, dst string) error) (int, error) {
	info, err := os.Stat(destination)
	if err != nil {
		return 0, notFound(err, destination)
	}
	if !info.IsDir() {
		return 0, errors.Wrapf(ErrNotDirectory, "destination %s", destination)
	}

	var done atomic.Int64
	p := pool.New().WithContext(ctx).WithMaxGoroutines(fo.maxWorkers)
	for _, src := range sources {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}

			dst := filepath.Join(destination, filepath.Base(src))
			if _, err := os.Lstat(src); err != nil {
				return nil
			}
			if _, err := os.Lstat(dst); err == nil {
				fo.logger.Debug().Str("path", dst).Msgf("Skipping %s, destination exists", op)
				return nil
			}

			if err := apply(src, dst); err != nil {
				fo.logger.Warn().Err(err).Str("src", src).Str("dst", dst).Msgf("Failed to %s item", op)
				return nil
			}
			done.Add(1)
			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return int(done.Load()), err
	}
	return int(done.Load()), nil
}

func (fo *FileOps) prepareChild(ctx context.Context, dir, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validateName(name); err != nil {
		return "", err
	}

	info, err := os.Stat(dir)
	if err != nil {
		return "", notFound(err, dir)
	}
	if !info.IsDir() {
		return "", errors.Wrapf(ErrNotDirectory, "%s", dir)
	}

	target := filepath.Join(dir, name)
	if _, err := os.Lstat(target); err == nil {
		return "", errors.Wrapf(ErrExists, "%s", target)
	}
	return target, nil
}

func validateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return errors.Wrapf(ErrInvalidName, "%q", name)
	case strings.ContainsAny(name, `/\`+"\x00"):
		return errors.Wrapf(ErrInvalidName, "%q contains a separator", name)
	}
	return nil
}

func notFound(err error, path string) error {
	if os.IsNotExist(err) {
		return errors.Wrapf(ErrNotFound, "%s", path)
	}
	return errors.Wrapf(err, "failed to access %s", path)
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode.Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(p, target, info.Mode())
	})
}

func openWithPlatform(ctx context.Context, path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", path)
	case "windows":
		cmd = exec.CommandContext(ctx, "cmd", "/c", "start", "", path)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", path)
	}
	return cmd.Start()
}
