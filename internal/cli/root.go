package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/cartctx"
	"github.com/roach88/cartctx/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Config   string
	Database string
	BaseURL  string

	// clientOpts are appended when opening the client. Tests use this to
	// inject a deterministic clock and id source.
	clientOpts []cartctx.Option
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the cartctx CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cartctx",
		Short: "cartctx - session identity and cart context",
		Long: `Inspect and drive the storefront cart context from a terminal.

Every command opens the local session store, resolves the current identity,
and talks to the cart backend the same way the app does.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	// Bad flags are command errors, like bad arguments.
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	})

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite session store (overrides storage.path)")
	cmd.PersistentFlags().StringVar(&opts.BaseURL, "base-url", "", "backend base URL (overrides backend.base_url)")

	// Add subcommands
	cmd.AddCommand(NewSessionCommand(opts))
	cmd.AddCommand(NewAuthCommand(opts))
	cmd.AddCommand(NewCartCommand(opts))
	cmd.AddCommand(NewNotifyCommand(opts))
	cmd.AddCommand(NewPricingCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// openClient loads config, applies flag overrides, and opens the client.
// The caller must Close it.
func (o *RootOptions) openClient(cmd *cobra.Command) (*cartctx.Client, error) {
	cfg, err := config.Load(o.Config)
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, ErrCode: ErrCodeConfig, Message: "failed to load config", Err: err}
	}
	if o.Database != "" {
		cfg.DBPath = o.Database
	}
	if o.BaseURL != "" {
		cfg.BaseURL = o.BaseURL
	}

	level := cfg.LogLevel
	if o.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	opts := append([]cartctx.Option{cartctx.WithLogger(logger)}, o.clientOpts...)
	c, err := cartctx.Open(cfg, opts...)
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, ErrCode: ErrCodeStorage, Message: "failed to open session store", Err: err}
	}
	return c, nil
}

// withClient opens the client, runs fn, reports any error through the
// formatter, and closes the client.
func (o *RootOptions) withClient(cmd *cobra.Command, fn func(c *cartctx.Client, out *OutputFormatter) error) error {
	out := o.formatter(cmd)
	c, err := o.openClient(cmd)
	if err != nil {
		return out.Fail(err)
	}
	defer c.Close()

	if err := fn(c, out); err != nil {
		return out.Fail(err)
	}
	return nil
}
