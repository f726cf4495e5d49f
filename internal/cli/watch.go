package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"

	"github.com/dshills/kblayout/internal/app"
	"github.com/dshills/kblayout/internal/metrics"
	"github.com/dshills/kblayout/internal/ui"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Script      string
	TUI         bool
	MetricsAddr string
	Source      string

	// NewScreen creates the terminal screen for --tui (for testing).
	// If nil, defaults to tcell.NewScreen.
	NewScreen func() (tcell.Screen, error)
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Notify on keyboard layout changes",
		Long: `Watch the keyboard layout until interrupted.

Without --script each change prints the new layout. With --script the Lua
script is loaded once the consumer loop is running and receives changes
through keyboard.on_did_change_layout. --tui shows a live status view
instead.

Example:
  kblayout watch
  kblayout watch --script ~/.config/kblayout/init.lua
  kblayout watch --source poll --metrics-addr 127.0.0.1:9464`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Script, "script", "", "Lua script to load (overrides script.path)")
	cmd.Flags().BoolVar(&opts.TUI, "tui", false, "show a terminal status view")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve metrics on this address (enables metrics)")
	cmd.Flags().StringVar(&opts.Source, "source", "", "layout change source override (file|poll|manual)")

	return cmd
}

func runWatch(parent context.Context, opts *WatchOptions, out io.Writer) error {
	cfg := opts.Config
	if opts.Source != "" {
		cfg.Source.Kind = opts.Source
	}
	if opts.MetricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = opts.MetricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	script := cfg.Script.Path
	if opts.Script != "" {
		script = opts.Script
	}
	if opts.TUI && script != "" {
		return errors.New("--tui cannot be combined with a script")
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	appOpts := app.Options{Config: cfg, Logger: opts.Logger}
	if cfg.Metrics.Enabled {
		appOpts.Metrics = metrics.New(metrics.WithRuntimeCollectors())
	}

	if opts.TUI {
		return watchTUI(ctx, opts, appOpts)
	}

	inst, err := app.New(appOpts)
	if err != nil {
		return err
	}
	defer inst.Shutdown()

	if appOpts.Metrics != nil {
		go func() {
			if err := appOpts.Metrics.Serve(ctx, cfg.Metrics.Addr, inst.Health, opts.Logger.WithComponent("metrics")); err != nil {
				opts.Logger.Error("metrics server: %v", err)
			}
		}()
	}

	runErr := make(chan error, 1)
	go func() { runErr <- inst.Run(ctx) }()

	if script != "" {
		if err := inst.LoadScript(ctx, script); err != nil {
			inst.Shutdown()
			<-runErr
			return err
		}
		opts.Logger.Info("loaded script %s", script)
	} else if err := inst.OnDidChangeKeyboardLayout(printer(ctx, inst, out)); err != nil {
		// The callback stays registered; the source may recover.
		opts.Logger.Warn("layout change notifications unavailable: %v", err)
	}

	return <-runErr
}

// printer returns a callback writing the new layout to out.
func printer(ctx context.Context, inst *app.Instance, out io.Writer) func() {
	return func() {
		info, err := inst.CurrentLayout(ctx)
		if err != nil {
			fmt.Fprintf(out, "layout changed (unreadable: %v)\n", err)
			return
		}
		fmt.Fprintf(out, "layout changed: %s\n", formatText(info))
	}
}

func watchTUI(ctx context.Context, opts *WatchOptions, appOpts app.Options) error {
	newScreen := opts.NewScreen
	if newScreen == nil {
		newScreen = tcell.NewScreen
	}
	screen, err := newScreen()
	if err != nil {
		return fmt.Errorf("creating screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("initializing screen: %w", err)
	}
	defer screen.Fini()

	if appOpts.Metrics != nil {
		// The UI owns its instance, so health tracks the serving context.
		go func() {
			health := func() error { return ctx.Err() }
			if err := appOpts.Metrics.Serve(ctx, appOpts.Config.Metrics.Addr, health, opts.Logger.WithComponent("metrics")); err != nil {
				opts.Logger.Error("metrics server: %v", err)
			}
		}()
	}

	err = ui.Run(ctx, screen, appOpts)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
