package commands

import (
	"fmt"

	"github.com/ZanzyTHEbar/vvfs-sync/vvfs/facts"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <path>",
	Short: "Show the entity, facts and children tracked at a path",
	Args:  cobra.ExactArgs(1),
	RunE:  runLookup,
}

func runLookup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	path, err := absRoot(args[0])
	if err != nil {
		return err
	}

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	id, ok := s.engine.IDForPath(path)
	if !ok {
		pterm.Warning.Printf("%s is not tracked\n", path)
		return nil
	}

	fs, err := s.engine.LookupPath(ctx, path)
	if err != nil {
		return err
	}

	data := pterm.TableData{{"Attribute", "Value"}}
	for _, f := range fs {
		data = append(data, []string{f.Attribute, fmt.Sprint(f.Value)})
	}
	pterm.Info.Printf("%s is %s\n", path, id)
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).WithWriter(cmd.OutOrStdout()).Render(); err != nil {
		return err
	}

	children, err := s.engine.LookupChildren(ctx, path)
	if err != nil {
		return err
	}
	if len(children) == 0 {
		return nil
	}

	items := make([]pterm.BulletListItem, 0, len(children))
	for _, c := range children {
		items = append(items, pterm.BulletListItem{Level: 0, Text: facts.GetBaseName(c)})
	}
	return pterm.DefaultBulletList.WithItems(items).WithWriter(cmd.OutOrStdout()).Render()
}
