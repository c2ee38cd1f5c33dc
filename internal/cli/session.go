package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/cartctx"
	"github.com/roach88/cartctx/internal/model"
)

// NewSessionCommand creates the session command group.
func NewSessionCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and change the current session identity",
	}
	cmd.AddCommand(newSessionShowCommand(opts))
	cmd.AddCommand(newSessionRotateCommand(opts))
	cmd.AddCommand(newSessionModeCommand(opts))
	cmd.AddCommand(newSessionAddressCommand(opts))
	return cmd
}

func newSessionShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current identity, creating a guest session if none exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(c *cartctx.Client, out *OutputFormatter) error {
				return out.Success(currentIdentity(cmd, c))
			})
		},
	}
}

func newSessionRotateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "Replace the current mode's session with a new one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(c *cartctx.Client, out *OutputFormatter) error {
				id, err := c.RotateSession(cmd.Context())
				if err != nil {
					return classify("failed to rotate session", err)
				}
				out.VerboseLog("rotated to %s", id)
				return out.Success(currentIdentity(cmd, c))
			})
		},
	}
}

func newSessionModeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mode <individual|business>",
		Short: "Switch account mode",
		Long: `Switch account mode. Each mode keeps its own session, so switching
back restores the previous mode's cart.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(c *cartctx.Client, out *OutputFormatter) error {
				lt, ok := model.ParseLoginType(args[0])
				if !ok {
					return &ExitError{
						Code:    ExitCommandError,
						ErrCode: ErrCodeValidation,
						Message: fmt.Sprintf("unknown login type %q: must be individual or business", args[0]),
					}
				}
				if err := c.SetLoginType(cmd.Context(), lt); err != nil {
					return classify("failed to set login type", err)
				}
				return out.Success(currentIdentity(cmd, c))
			})
		},
	}
}

func newSessionAddressCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "address [address-id]",
		Short: "Set the delivery address sent with cart fetches (no argument clears it)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(c *cartctx.Client, out *OutputFormatter) error {
				id := ""
				if len(args) == 1 {
					id = args[0]
				}
				if err := c.SetSelectedAddress(cmd.Context(), id); err != nil {
					return classify("failed to set address", err)
				}
				if id == "" {
					return out.Success("Address cleared")
				}
				return out.Success("Address set")
			})
		},
	}
}

func currentIdentity(cmd *cobra.Command, c *cartctx.Client) identityView {
	v := identityView{SessionIdentity: c.Identity(cmd.Context())}
	if nc, ok := c.NotificationContext(cmd.Context()); ok {
		v.Notification = &nc
	}
	return v
}
