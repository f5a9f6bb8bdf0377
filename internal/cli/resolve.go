package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/archctx/internal/engine/resolve"
	"github.com/dshills/archctx/internal/settings"
)

// Flags of the resolve commands.
const (
	// FlagEnv selects the environment a service is resolved for.
	FlagEnv = "env"
	// FlagTenant selects the tenant whose overrides are applied.
	FlagTenant = "tenant"
	// FlagSources adds per-value contributions to the report.
	FlagSources = "sources"
	// FlagArrays overrides the merge.arrays setting.
	FlagArrays = "arrays"
	// FlagPath prints a single value of the merged configuration.
	FlagPath = "path"
)

// ErrNoValue is returned when --path names nothing in the merged
// configuration.
var ErrNoValue = errors.New("no value at path")

func newResolveCommand(st *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "resolve",
		Aliases: []string{"r"},
		Short:   "Resolve the effective configuration of a service or environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		DisableAutoGenTag: true,
	}
	cmd.AddCommand(newResolveServiceCommand(st))
	cmd.AddCommand(newResolveEnvironmentCommand(st))
	return cmd
}

func newResolveServiceCommand(st *state) *cobra.Command {
	var (
		env, tenant, arrays, path string
		sources                   bool
	)

	cmd := &cobra.Command{
		Use:     "service {name}",
		Aliases: []string{"svc", "s"},
		Short:   "Resolve a service, optionally for an environment and tenant",
		Args:    cobra.ExactArgs(1),
		Example: strings.TrimSpace(`
archctx resolve service api
archctx resolve service api --env prod --tenant acme -o json
archctx resolve service api --env prod --sources --arrays concat
archctx resolve service api --env prod --path scaling.max
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := st.open(cmd, func(s *settings.Settings) {
				if cmd.Flags().Changed(FlagArrays) {
					s.Merge.Arrays = arrays
				}
				if sources {
					s.Merge.TrackSources = &sources
				}
			})
			if err != nil {
				return err
			}
			defer a.Close()

			rc, err := a.Engine().ResolveService(cmd.Context(), args[0], resolve.Query{Environment: env, Tenant: tenant})
			if err != nil {
				return err
			}
			return st.writeResolved(cmd, rc, path)
		},
		DisableAutoGenTag: true,
	}

	cmd.Flags().StringVarP(&env, FlagEnv, "e", "", "environment to resolve for")
	cmd.Flags().StringVarP(&tenant, FlagTenant, "t", "", "tenant to resolve for")
	cmd.Flags().BoolVar(&sources, FlagSources, false, "report which layer set each value")
	cmd.Flags().StringVar(&arrays, FlagArrays, "replace", "array merge strategy (replace, concat)")
	cmd.Flags().StringVar(&path, FlagPath, "", "print only the value at this dot-separated path")
	return cmd
}

func newResolveEnvironmentCommand(st *state) *cobra.Command {
	var tenant, path string

	cmd := &cobra.Command{
		Use:     "environment {name}",
		Aliases: []string{"env", "e"},
		Short:   "Resolve an environment, optionally for a tenant",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := st.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			rc, err := a.Engine().ResolveEnvironment(cmd.Context(), args[0], tenant)
			if err != nil {
				return err
			}
			return st.writeResolved(cmd, rc, path)
		},
		DisableAutoGenTag: true,
	}

	cmd.Flags().StringVarP(&tenant, FlagTenant, "t", "", "tenant to resolve for")
	cmd.Flags().StringVar(&path, FlagPath, "", "print only the value at this dot-separated path")
	return cmd
}

// writeResolved writes the full report, or only the value at path.
func (st *state) writeResolved(cmd *cobra.Command, rc *resolve.Context, path string) error {
	if path == "" {
		return st.write(cmd, rc.Report())
	}
	v, ok := rc.Merged.GetPath(path)
	if !ok {
		return fmt.Errorf("%w %q in %s '%s'", ErrNoValue, path, rc.Kind.Singular(), rc.Entity)
	}
	return st.write(cmd, v.ToAny())
}
