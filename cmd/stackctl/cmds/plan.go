package cmds

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-go-golems/stackctl/pkg/compose"
	"github.com/go-go-golems/stackctl/pkg/graph"
	"github.com/spf13/cobra"
)

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Resolve the dependency graph and print the start order",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := getRootOptions(cmd)
			if err != nil {
				return err
			}
			if err := opts.requireFile(); err != nil {
				return err
			}

			project, err := compose.LoadFile(opts.File, opts.ProjectName)
			if err != nil {
				return err
			}
			order, err := graph.Resolve(project)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "project: %s\n", project.Name)
			if project.Network.Name != "" {
				_, _ = fmt.Fprintf(out, "network: %s\n", project.Network.Name)
			}
			for i, name := range order {
				svc := project.Services[name]
				line := fmt.Sprintf("%2d. %s", i+1, name)
				if deps := describeDeps(svc); deps != "" {
					line += "  (after " + deps + ")"
				}
				if svc.Health != nil {
					line += "  [healthcheck]"
				}
				_, _ = fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}

func describeDeps(svc *compose.Service) string {
	if len(svc.DependsOn) == 0 {
		return ""
	}
	parts := make([]string, 0, len(svc.DependsOn))
	for dep, cond := range svc.DependsOn {
		parts = append(parts, fmt.Sprintf("%s: %s", dep, cond))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}
