// Package cli implements the archctx command line.
package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dshills/archctx/internal/app"
	"github.com/dshills/archctx/internal/logging"
	"github.com/dshills/archctx/internal/settings"
)

// Persistent flag names.
const (
	// FlagConfig points at the settings file. Defaults to <root>/archctx.toml.
	FlagConfig = "config"
	// FlagRoot is the document store root.
	FlagRoot = "root"
	// FlagLogLevel sets the log level (debug, info, warn, error).
	FlagLogLevel = "log-level"
	// FlagOutput selects the output format (yaml, json).
	FlagOutput = "output"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version string `json:"version" yaml:"version"`
	Commit  string `json:"commit" yaml:"commit"`
	Date    string `json:"date" yaml:"date"`
}

// state is shared by every command of one invocation.
type state struct {
	build BuildInfo

	configPath string
	root       string
	logLevel   string
	output     string
}

// New returns the root command.
func New(build BuildInfo) *cobra.Command {
	st := &state{build: build}

	cmd := &cobra.Command{
		Use:   "archctx [sub-command]",
		Short: "Resolve layered architecture configuration",
		Long: `archctx resolves the effective configuration of services and environments
from a directory of YAML documents:

  system/defaults.yaml   system-wide defaults
  services/*.yaml        one document per service
  environments/*.yaml    one document per environment
  tenants/*.yaml         one document per tenant

Layers are deep-merged from system defaults up to tenant service overrides.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: st.preRun,
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&st.configPath, FlagConfig, "", "settings file (default <root>/"+settings.FileName+")")
	flags.StringVar(&st.root, FlagRoot, "", "directory holding the configuration documents")
	flags.StringVar(&st.logLevel, FlagLogLevel, "", "log level (debug, info, warn, error)")
	flags.StringVarP(&st.output, FlagOutput, "o", FormatYAML, "output format (yaml, json)")

	cmd.AddCommand(newResolveCommand(st))
	cmd.AddCommand(newGraphCommand(st))
	cmd.AddCommand(newDepsCommand(st))
	cmd.AddCommand(newValidateCommand(st))
	cmd.AddCommand(newVersionCommand(st))
	return cmd
}

func (st *state) preRun(cmd *cobra.Command, _ []string) error {
	if _, err := parseFormat(st.output); err != nil {
		return err
	}
	if st.logLevel != "" {
		if _, ok := logging.LookupLevel(st.logLevel); !ok {
			return fmt.Errorf("invalid log level %q (must be debug, info, warn, or error)", st.logLevel)
		}
	}
	return nil
}

// settings loads the settings file and applies the persistent flags on top.
func (st *state) settings() (*settings.Settings, error) {
	path := st.configPath
	if path == "" {
		dir := st.root
		if dir == "" {
			dir = "."
		}
		path = filepath.Join(dir, settings.FileName)
	}

	s, err := settings.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	if st.root != "" {
		s.Root = st.root
	}
	if st.logLevel != "" {
		s.Log.Level = st.logLevel
	}
	return s, nil
}

// open builds the application for one command. mutate may adjust the
// settings before the components are created.
func (st *state) open(cmd *cobra.Command, mutate func(*settings.Settings)) (*app.Application, error) {
	s, err := st.settings()
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(s)
	}

	cfg := logging.DefaultConfig()
	cfg.Level = s.LogLevel()
	cfg.Output = cmd.ErrOrStderr()

	return app.New(app.Options{
		Settings: s,
		Logger:   logging.WithComponent(logging.New(cfg), cmd.Name()),
	})
}

// write renders v in the selected output format.
func (st *state) write(cmd *cobra.Command, v any) error {
	format, err := parseFormat(st.output)
	if err != nil {
		return err
	}
	return render(cmd.OutOrStdout(), format, v)
}
