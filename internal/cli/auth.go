package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/cartctx"
)

// AuthOptions holds flags for auth login.
type AuthOptions struct {
	*RootOptions
	AccessToken  string
	RefreshToken string
	NoMerge      bool
}

// NewAuthCommand creates the auth command group.
func NewAuthCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Store or clear credentials",
	}
	cmd.AddCommand(newAuthLoginCommand(rootOpts))
	cmd.AddCommand(newAuthLogoutCommand(rootOpts))
	return cmd
}

func newAuthLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AuthOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store tokens issued by the sign-in flow and merge the guest cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(c *cartctx.Client, out *OutputFormatter) error {
				access := strings.TrimSpace(opts.AccessToken)
				if access == "" {
					return &ExitError{Code: ExitCommandError, ErrCode: ErrCodeValidation, Message: "--access-token is required"}
				}
				if err := c.SetTokens(cmd.Context(), access, strings.TrimSpace(opts.RefreshToken)); err != nil {
					return classify("failed to store tokens", err)
				}
				if opts.NoMerge {
					return out.Success(currentIdentity(cmd, c))
				}
				cart, err := c.MergeGuestCart(cmd.Context())
				if err != nil {
					return classify("failed to merge guest cart", err)
				}
				return out.Success(mergeView{Merged: cart != nil, Cart: cart})
			})
		},
	}

	cmd.Flags().StringVar(&opts.AccessToken, "access-token", "", "access token (required)")
	cmd.Flags().StringVar(&opts.RefreshToken, "refresh-token", "", "refresh token")
	cmd.Flags().BoolVar(&opts.NoMerge, "no-merge", false, "skip merging the guest cart")

	return cmd
}

func newAuthLogoutCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear stored tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(c *cartctx.Client, out *OutputFormatter) error {
				if err := c.ClearTokens(cmd.Context()); err != nil {
					return classify("failed to clear tokens", err)
				}
				return out.Success("Signed out")
			})
		},
	}
}
