package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/cartctx"
)

// NewNotifyCommand creates the notify command group.
func NewNotifyCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Enter, inspect and leave a notification cart context",
		Long: `A notification can point at a cart owned by another session. Entering it
shadows the current session until "notify restore" reinstates the original.`,
	}
	cmd.AddCommand(newNotifyOpenCommand(opts))
	cmd.AddCommand(newNotifyPayloadCommand(opts))
	cmd.AddCommand(newNotifyRestoreCommand(opts))
	cmd.AddCommand(newNotifyStatusCommand(opts))
	return cmd
}

func newNotifyOpenCommand(opts *RootOptions) *cobra.Command {
	var negotiation string
	cmd := &cobra.Command{
		Use:   "open <cart-id> <session-id>",
		Short: "Load a notification cart",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(c *cartctx.Client, out *OutputFormatter) error {
				res, err := c.LoadCartFromNotification(cmd.Context(), args[0], args[1], negotiation)
				if err != nil {
					return classify("failed to load notification cart", err)
				}
				return out.Success(enterView{res})
			})
		},
	}
	cmd.Flags().StringVar(&negotiation, "negotiation", "", "negotiation id carried by the notification")
	return cmd
}

func newNotifyPayloadCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "payload [file]",
		Short: "Load the cart referenced by a raw push payload (stdin when no file)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(c *cartctx.Client, out *OutputFormatter) error {
				raw, err := readPayload(cmd, args)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read payload", err)
				}
				res, err := c.HandleNotification(cmd.Context(), raw)
				if err != nil {
					return classify("failed to handle notification", err)
				}
				return out.Success(enterView{res})
			})
		},
	}
}

func readPayload(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(args[0])
}

func newNotifyRestoreCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Leave the notification context and reinstate the original session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(c *cartctx.Client, out *OutputFormatter) error {
				return out.Success(restoredView{c.RestoreOriginalSession(cmd.Context())})
			})
		},
	}
}

func newNotifyStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active notification context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(c *cartctx.Client, out *OutputFormatter) error {
				nc, ok := c.NotificationContext(cmd.Context())
				v := contextView{Active: ok}
				if ok {
					v.Context = &nc
				}
				return out.Success(v)
			})
		},
	}
}
