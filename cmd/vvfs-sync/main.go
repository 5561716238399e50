package main

import (
	"os"

	"github.com/ZanzyTHEbar/vvfs-sync/cmd/vvfs-sync/commands"
)

func main() {
	if err := commands.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
