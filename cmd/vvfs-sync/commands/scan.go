package commands

import (
	"path/filepath"
	"time"

	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/engine"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan <root>",
	Short: "Ingest a directory tree once",
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	root, err := absRoot(args[0])
	if err != nil {
		return err
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	result, err := scanWithProgress(cmd, s.engine, root)
	if err != nil {
		return err
	}

	pterm.Success.Printf("Scanned %s entries under %s in %s (%s new)\n",
		humanize.Comma(int64(result.Total)),
		result.Root,
		result.Duration.Round(time.Millisecond),
		humanize.Comma(int64(result.Created)))
	return nil
}

// scanWithProgress runs the initial scan and renders its progress.
func scanWithProgress(cmd *cobra.Command, eng *engine.Engine, root string) (engine.ScanResult, error) {
	progress := make(chan engine.ScanProgress, 16)
	done := make(chan struct{})

	go func() {
		defer close(done)
		var bar *pterm.ProgressbarPrinter
		for p := range progress {
			switch p.Phase {
			case engine.PhaseListing:
				pterm.Info.Printf("Found %s entries\n", humanize.Comma(int64(p.Total)))
				if p.Total > 0 {
					bar, _ = pterm.DefaultProgressbar.
						WithTotal(p.Total).
						WithTitle("Ingesting").
						WithWriter(cmd.OutOrStdout()).
						Start()
				}
			case engine.PhaseIngesting:
				if bar == nil {
					continue
				}
				bar.Current = p.Processed
				bar.UpdateTitle("Ingesting " + rate(p.FilesPerSecond) + ", ETA " + p.ETA.Round(time.Second).String())
				bar.Add(0)
			case engine.PhaseDone:
				if bar != nil {
					bar.Stop()
				}
			}
		}
	}()

	result, err := eng.InitialScan(cmd.Context(), root, progress)
	close(progress)
	<-done
	if err != nil {
		return result, errors.Wrapf(err, "scan of %s failed", root)
	}
	return result, nil
}

func rate(perSecond float64) string {
	return humanize.CommafWithDigits(perSecond, 0) + " entries/s"
}

func absRoot(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve %s", p)
	}
	return filepath.ToSlash(abs), nil
}
