package cmds

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/stackctl/pkg/tui"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live per-service state view for the running stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}

			p := tea.NewProgram(tui.NewModel(opts.Root, interval), tea.WithAltScreen())
			if _, err := p.Run(); err != nil {
				return errors.Wrap(err, "watch")
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Refresh interval")
	return cmd
}
