package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/archctx/internal/app"
)

func newValidateCommand(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check every document against its schema",
		Long: `Check every document against its schema, independent of the
store.validate setting, and report the documents that fail.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := st.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			problems, err := a.Validate(cmd.Context())
			if err != nil {
				return err
			}
			if problems == nil {
				problems = []app.Problem{}
			}
			if err := st.write(cmd, problems); err != nil {
				return err
			}
			if len(problems) > 0 {
				return fmt.Errorf("%w: %d invalid documents", ErrUnhealthy, len(problems))
			}
			return nil
		},
		DisableAutoGenTag: true,
	}
}
