// Package cli implements the kblayout command line.
package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dshills/kblayout/internal/config"
	"github.com/dshills/kblayout/internal/logging"
)

// RootOptions holds global flags and the state resolved from them before
// any subcommand runs.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string

	// Config and Logger are populated by the root command's pre-run hook.
	Config *config.Config
	Logger *logging.Logger
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "kblayout",
		Short: "Keyboard layout change notifications",
		Long: `kblayout watches the system keyboard layout and notifies a consumer
whenever it changes.

The consumer is either a Lua script registering a handler with
keyboard.on_did_change_layout, a terminal status view, or, by default,
a line printed for every change.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", config.DefaultPath(), "path to configuration file (toml or yaml)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level override (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format override (auto|console|json)")

	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewCurrentCommand(opts))
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// resolve loads the configuration, applies flag overrides and builds the
// logger.
func (o *RootOptions) resolve(logOut io.Writer) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return err
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Log.Format = o.LogFormat
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	o.Config = cfg
	o.Logger = logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: logging.Format(cfg.Log.Format),
		Output: logOut,
	})
	logging.SetDefault(o.Logger)
	return nil
}
