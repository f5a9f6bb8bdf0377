package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/archctx/internal/engine/depgraph"
)

// FlagCheck makes the graph command fail on an unhealthy graph.
const FlagCheck = "check"

// ErrUnhealthy is returned by commands that found problems in the stored
// documents.
var ErrUnhealthy = errors.New("problems found")

func newGraphCommand(st *state) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Show the service dependency graph",
		Long: `Show the service dependency graph built from every service's dependencies.

With --check the command fails when the graph contains a cycle, a
dependency on a service that does not exist, or a tenant override for a
service that does not exist.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := st.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Manager().CheckGraph(cmd.Context())
			if err != nil {
				return err
			}
			if err := st.write(cmd, report); err != nil {
				return err
			}

			if !check || report.Healthy() {
				return nil
			}
			var problems []string
			if report.Cycle.HasCycle {
				problems = append(problems, "cycle "+depgraph.FormatCycle(report.Cycle.Cycle))
			}
			if len(report.Missing) > 0 {
				problems = append(problems, "unknown services "+strings.Join(report.Missing, ", "))
			}
			if len(report.StaleOverrides) > 0 {
				names := make([]string, len(report.StaleOverrides))
				for i, o := range report.StaleOverrides {
					names[i] = o.String()
				}
				problems = append(problems, "overrides of unknown services "+strings.Join(names, ", "))
			}
			return fmt.Errorf("%w: %s", ErrUnhealthy, strings.Join(problems, "; "))
		},
		DisableAutoGenTag: true,
	}

	cmd.Flags().BoolVar(&check, FlagCheck, false, "fail when the graph has a cycle, a dangling dependency or a stale tenant override")
	return cmd
}
