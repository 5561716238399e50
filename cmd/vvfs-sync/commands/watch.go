package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/engine"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var skipScanFlag bool

var watchCmd = &cobra.Command{
	Use:   "watch <root>",
	Short: "Ingest a directory tree and follow its changes until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&skipScanFlag, "skip-scan", false, "do not run the initial scan first")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root, err := absRoot(args[0])
	if err != nil {
		return err
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	unsubscribe := s.engine.Subscribe(func(ev engine.Event) {
		switch ev.Type {
		case engine.EventFSBatchApplied:
			pterm.Info.Printf("Applied %d changes in %dms\n", ev.EventCount, ev.DurationMs)
		case engine.EventError:
			pterm.Error.Printf("%s: %s\n", ev.Code, ev.Message)
		}
	})
	defer unsubscribe()

	if !skipScanFlag {
		cmd.SetContext(ctx)
		if _, err := scanWithProgress(cmd, s.engine, root); err != nil {
			return err
		}
	}

	pterm.Info.Printf("Watching %s, press Ctrl+C to stop\n", root)
	if err := s.engine.Watch(ctx, root); err != nil {
		return err
	}

	// Apply what arrived before the interrupt.
	return s.engine.Flush(context.WithoutCancel(ctx))
}
