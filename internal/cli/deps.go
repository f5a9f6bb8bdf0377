package cli

import (
	"github.com/spf13/cobra"
)

func newDepsCommand(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "deps",
		Aliases: []string{"dependencies"},
		Short:   "Change service dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		DisableAutoGenTag: true,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add {from} {to}",
		Short: "Record that one service depends on another",
		Long: `Record that one service depends on another.

Both services must exist. A dependency that would close a cycle is refused
and the cycle is reported.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := st.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Manager().AddDependency(cmd.Context(), args[0], args[1])
		},
		DisableAutoGenTag: true,
	})

	cmd.AddCommand(&cobra.Command{
		Use:     "remove {from} {to}",
		Aliases: []string{"rm"},
		Short:   "Remove a dependency between two services",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := st.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Manager().RemoveDependency(cmd.Context(), args[0], args[1])
		},
		DisableAutoGenTag: true,
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "dependents {name}",
		Short: "List the services that depend on a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := st.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			names, err := a.Manager().Dependents(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if names == nil {
				names = []string{}
			}
			return st.write(cmd, names)
		},
		DisableAutoGenTag: true,
	})

	return cmd
}
