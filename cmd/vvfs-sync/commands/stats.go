package commands

import (
	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show fact store and identity map counters",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := s.engine.StoreStats(ctx)
	if err != nil {
		return err
	}

	data := pterm.TableData{
		{"Counter", "Value"},
		{"Tracked paths", humanize.Comma(int64(s.engine.Tracked()))},
		{"Entities", humanize.Comma(stats.Entities)},
		{"Facts", humanize.Comma(stats.Facts)},
		{"Links", humanize.Comma(stats.Links)},
		{"Retracted facts", humanize.Comma(stats.RetractedFacts)},
		{"Retracted links", humanize.Comma(stats.RetractedLinks)},
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).WithWriter(cmd.OutOrStdout()).Render()
}
