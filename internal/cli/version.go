package cli

import (
	"github.com/spf13/cobra"
)

func newVersionCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return st.write(cmd, st.build)
		},
		DisableAutoGenTag: true,
	}
}
