// Package cmds wires the stackctl subcommands.
package cmds

import (
	"github.com/spf13/cobra"
)

func AddCommands(root *cobra.Command) error {
	root.AddCommand(
		newUpCmd(),
		newDownCmd(),
		newStatusCmd(),
		newPlanCmd(),
		newWatchCmd(),
	)
	return nil
}
