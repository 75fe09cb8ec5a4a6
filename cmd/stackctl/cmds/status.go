package cmds

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-go-golems/stackctl/pkg/proc"
	"github.com/go-go-golems/stackctl/pkg/state"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var tailLines int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-service state, reasons and process stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			st, err := state.Load(opts.Root)
			if err != nil {
				return err
			}

			type svc struct {
				Name     string          `json:"name"`
				Public   string          `json:"public_name,omitempty"`
				State    string          `json:"state"`
				Reason   string          `json:"reason,omitempty"`
				PID      int             `json:"pid,omitempty"`
				Alive    bool            `json:"alive"`
				Restarts int             `json:"restarts,omitempty"`
				Stats    *proc.Stats     `json:"stats,omitempty"`
				Exit     *state.ExitInfo `json:"exit,omitempty"`
			}

			var services []svc
			for _, s := range st.Services {
				alive := state.ProcessAlive(s.PID)
				entry := svc{
					Name:     s.Name,
					Public:   s.PublicName,
					State:    s.State,
					Reason:   s.Reason,
					PID:      s.PID,
					Alive:    alive,
					Restarts: s.Restarts,
				}

				if alive {
					if stats, err := proc.ReadStats(s.PID, nil); err == nil {
						entry.Stats = stats
					}
				} else if s.ExitInfo != "" {
					if _, err := os.Stat(s.ExitInfo); err == nil {
						if ei, err := state.ReadExitInfo(s.ExitInfo); err == nil {
							if tailLines > 0 && len(ei.StderrTail) > tailLines {
								ei.StderrTail = append([]string{}, ei.StderrTail[len(ei.StderrTail)-tailLines:]...)
							}
							entry.Exit = ei
						}
					}
				}

				services = append(services, entry)
			}

			b, err := json.MarshalIndent(map[string]any{
				"project":  st.Project,
				"network":  st.Network,
				"services": services,
			}, "", "  ")
			if err != nil {
				return errors.Wrap(err, "marshal status")
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}

	cmd.Flags().IntVar(&tailLines, "tail-lines", 25, "How many stderr lines to include for dead services")
	return cmd
}
