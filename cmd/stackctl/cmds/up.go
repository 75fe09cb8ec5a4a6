package cmds

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-go-golems/stackctl/pkg/compose"
	"github.com/go-go-golems/stackctl/pkg/launcher"
	"github.com/go-go-golems/stackctl/pkg/runtime"
	"github.com/go-go-golems/stackctl/pkg/state"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newUpCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Launch the stack and supervise it (resolve + gate + probe + restart)",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			if err := opts.requireFile(); err != nil {
				return err
			}

			if _, err := os.Stat(state.StatePath(opts.Root)); err == nil {
				if !force {
					return errors.New("state exists; run stackctl down first or use --force")
				}
				log.Info().Msg("existing state found; stopping first (--force)")
				if err := stopFromState(cmd.Context(), opts); err != nil {
					return err
				}
			}

			project, err := compose.LoadFile(opts.File, opts.ProjectName)
			if err != nil {
				return err
			}

			l := launcher.New(
				project,
				runtime.NewProcessRuntime(),
				&runtime.LocalBuilder{Root: opts.Root},
				launcher.Options{
					Root:            opts.Root,
					DepTimeout:      opts.DepTimeout,
					ShutdownTimeout: opts.Timeout,
				},
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			upErr := l.Up(ctx)
			if upErr != nil && ctx.Err() == nil {
				// Pre-flight graph errors abort before anything starts.
				if snapshot := l.Snapshot(); len(snapshot.Services) == 0 {
					return upErr
				}
				log.Error().Err(upErr).Msg("stack did not reach steady state")
			}
			if ctx.Err() == nil {
				printSummary(cmd, l)
				if upErr == nil {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "ok, supervising (ctrl-c to stop)")
				}
			}

			<-ctx.Done()
			stop()

			stopCtx, cancel := context.WithTimeout(context.Background(), opts.Timeout+10*time.Second)
			defer cancel()
			if err := l.Stop(stopCtx); err != nil {
				return err
			}
			log.Info().Msg("stack stopped")
			return upErr
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Stop existing state before starting")
	return cmd
}

func printSummary(cmd *cobra.Command, l *launcher.Launcher) {
	for _, svc := range l.Snapshot().Services {
		line := fmt.Sprintf("%-20s %s", svc.Name, svc.State)
		if svc.Reason != "" {
			line += " (" + svc.Reason + ")"
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), line)
	}
}

func stopFromState(ctx context.Context, opts rootOptions) error {
	st, err := state.Load(opts.Root)
	if err != nil {
		return err
	}
	for i := len(st.Services) - 1; i >= 0; i-- {
		svc := st.Services[i]
		if svc.PID <= 0 || !state.ProcessAlive(svc.PID) {
			continue
		}
		if err := runtime.TerminateGroup(ctx, svc.PID, opts.Timeout); err != nil {
			log.Warn().Err(err).Str("service", svc.Name).Msg("stop leftover service")
		}
	}
	return state.Remove(opts.Root)
}
