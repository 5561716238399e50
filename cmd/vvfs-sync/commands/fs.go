package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/facts"
	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/filesystem/fileops"
	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/filesystem/watcher"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var fsCmd = &cobra.Command{
	Use:   "fs",
	Short: "Change files and record the change in the fact graph",
	Long: `fs performs file operations and feeds the resulting changes through the
same change queue the watcher uses, so the fact graph follows without a
running watch.

Examples:
  vvfs-sync fs touch ~/notes todo.md
  vvfs-sync fs mkdir ~/notes archive
  vvfs-sync fs mv ~/notes/todo.md done.md
  vvfs-sync fs cp ~/notes/archive ~/notes/done.md
  vvfs-sync fs rm ~/notes/archive`,
}

var fsTouchCmd = &cobra.Command{
	Use:   "touch <dir> <name>",
	Short: "Create an empty file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFileOps(cmd, func(ctx context.Context, ops fileops.FileOpsInterface) ([]watcher.Event, error) {
			p, err := ops.CreateFile(ctx, args[0], args[1])
			if err != nil {
				return nil, err
			}
			pterm.Success.Printf("Created %s\n", p)
			return []watcher.Event{changeEvent(watcher.EventCreate, p)}, nil
		})
	},
}

var fsMkdirCmd = &cobra.Command{
	Use:   "mkdir <dir> <name>",
	Short: "Create a folder",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFileOps(cmd, func(ctx context.Context, ops fileops.FileOpsInterface) ([]watcher.Event, error) {
			p, err := ops.CreateFolder(ctx, args[0], args[1])
			if err != nil {
				return nil, err
			}
			pterm.Success.Printf("Created %s\n", p)
			return []watcher.Event{changeEvent(watcher.EventCreate, p)}, nil
		})
	},
}

var fsRmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Delete a file or folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFileOps(cmd, func(ctx context.Context, ops fileops.FileOpsInterface) ([]watcher.Event, error) {
			if err := ops.DeleteItem(ctx, args[0]); err != nil {
				return nil, err
			}
			pterm.Success.Printf("Deleted %s\n", args[0])
			return []watcher.Event{changeEvent(watcher.EventRemove, args[0])}, nil
		})
	},
}

var fsMvCmd = &cobra.Command{
	Use:   "mv <path> <new-name>",
	Short: "Rename a file or folder in place",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFileOps(cmd, func(ctx context.Context, ops fileops.FileOpsInterface) ([]watcher.Event, error) {
			p, err := ops.RenameItem(ctx, args[0], args[1])
			if err != nil {
				return nil, err
			}
			pterm.Success.Printf("Renamed to %s\n", p)
			ev := changeEvent(watcher.EventRename, p)
			ev.FromPath = slashAbs(args[0])
			return []watcher.Event{ev}, nil
		})
	},
}

var fsCpCmd = &cobra.Command{
	Use:   "cp <destination> <source>...",
	Short: "Copy items into a folder",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFileOps(cmd, func(ctx context.Context, ops fileops.FileOpsInterface) ([]watcher.Event, error) {
			n, err := ops.CopyItems(ctx, args[1:], args[0])
			if err != nil {
				return nil, err
			}
			pterm.Success.Printf("Copied %d of %d items\n", n, len(args)-1)
			return arrivals(args[0], args[1:]), nil
		})
	},
}

var fsMoveCmd = &cobra.Command{
	Use:   "move <destination> <source>...",
	Short: "Move items into a folder",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFileOps(cmd, func(ctx context.Context, ops fileops.FileOpsInterface) ([]watcher.Event, error) {
			n, err := ops.MoveItems(ctx, args[1:], args[0])
			if err != nil {
				return nil, err
			}
			pterm.Success.Printf("Moved %d of %d items\n", n, len(args)-1)

			var events []watcher.Event
			for _, src := range args[1:] {
				ev := changeEvent(watcher.EventRename, filepath.Join(args[0], filepath.Base(src)))
				ev.FromPath = slashAbs(src)
				events = append(events, ev)
			}
			return events, nil
		})
	},
}

var fsCatCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Print a text file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := fileops.NewFileOps(zeroLogger()).ReadText(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), text)
		return err
	},
}

var fsWriteCmd = &cobra.Command{
	Use:   "write <path> <text>",
	Short: "Replace the contents of a file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withFileOps(cmd, func(ctx context.Context, ops fileops.FileOpsInterface) ([]watcher.Event, error) {
			_, statErr := os.Stat(args[0])
			if err := ops.WriteText(ctx, args[0], args[1]); err != nil {
				return nil, err
			}
			kind := watcher.EventModify
			if statErr != nil {
				kind = watcher.EventCreate
			}
			return []watcher.Event{changeEvent(kind, args[0])}, nil
		})
	},
}

var fsOpenCmd = &cobra.Command{
	Use:   "open <path>",
	Short: "Open a file with the system default application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return fileops.NewFileOps(zeroLogger()).OpenWithDefaultApp(cmd.Context(), args[0])
	},
}

func init() {
	fsCmd.AddCommand(fsTouchCmd, fsMkdirCmd, fsRmCmd, fsMvCmd, fsCpCmd, fsMoveCmd, fsCatCmd, fsWriteCmd, fsOpenCmd)
	RootCmd.AddCommand(fsCmd)
}

// withFileOps runs op and applies the changes it reports to the fact graph.
func withFileOps(cmd *cobra.Command, op func(ctx context.Context, ops fileops.FileOpsInterface) ([]watcher.Event, error)) error {
	ctx := cmd.Context()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	events, err := op(ctx, fileops.NewFileOps(s.logger))
	if err != nil {
		return err
	}
	for _, ev := range events {
		s.engine.PushFSEvent(ev)
	}
	return s.engine.Flush(ctx)
}

// arrivals reports a create for each source's copy inside destination.
func arrivals(destination string, sources []string) []watcher.Event {
	events := make([]watcher.Event, 0, len(sources))
	for _, src := range sources {
		events = append(events, changeEvent(watcher.EventCreate, filepath.Join(destination, filepath.Base(src))))
	}
	return events
}

func changeEvent(kind watcher.EventKind, path string) watcher.Event {
	return watcher.Event{Kind: kind, Path: slashAbs(path), Timestamp: time.Now()}
}

func slashAbs(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return facts.NormalizePath(filepath.ToSlash(p))
}
