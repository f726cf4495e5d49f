package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dshills/kblayout/internal/app"
	"github.com/dshills/kblayout/internal/config"
	"github.com/dshills/kblayout/internal/layout"
)

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// CurrentOptions holds flags for the current command.
type CurrentOptions struct {
	*RootOptions
	Format string
}

// currentLayout is the JSON form of the current command's output.
type currentLayout struct {
	layout.Info
	Name string `json:"name,omitempty"`
	ISO  bool   `json:"iso"`
}

// NewCurrentCommand creates the current command.
func NewCurrentCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CurrentOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "current",
		Short: "Print the active keyboard layout",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runCurrent(ctx, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "text", "output format (json|text)")

	return cmd
}

func runCurrent(ctx context.Context, opts *CurrentOptions, out io.Writer) error {
	// Nothing is subscribed, so the source kind only selects the reader.
	cfg := *opts.Config
	if cfg.Source.Kind == config.SourceManual {
		cfg.Source.Kind = config.SourceFile
	}

	inst, err := app.New(app.Options{Config: &cfg, Logger: opts.Logger})
	if err != nil {
		return err
	}
	defer inst.Shutdown()

	info, err := inst.CurrentLayout(ctx)
	if err != nil {
		return fmt.Errorf("reading layout: %w", err)
	}

	if opts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(currentLayout{Info: info, Name: info.DisplayName(), ISO: info.IsISO()})
	}
	fmt.Fprintln(out, formatText(info))
	return nil
}

// formatText renders info on one line, e.g. "Germany (nodeadkeys) [de(nodeadkeys),us] pc105 ISO".
func formatText(info layout.Info) string {
	s := fmt.Sprintf("%s [%s]", info.DisplayName(), info.String())
	if info.Model != "" {
		s += " " + info.Model
	}
	if info.IsISO() {
		s += " ISO"
	} else {
		s += " ANSI"
	}
	return s
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
