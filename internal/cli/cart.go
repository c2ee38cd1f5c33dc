package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/cartctx"
)

// CartItemOptions holds flags shared by add and remove.
type CartItemOptions struct {
	*RootOptions
	Variant  string
	Quantity int
}

func (o *CartItemOptions) variantID() *string {
	if o.Variant == "" {
		return nil
	}
	v := o.Variant
	return &v
}

// NewCartCommand creates the cart command group.
func NewCartCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Read and mutate the current cart",
		Long: `Read and mutate the cart of the current session.

Every mutation is followed by a fresh fetch, so the printed cart always
reflects the backend's totals.

Examples:
  cartctx cart get --refresh
  cartctx cart add prod_1 --qty 2 --variant red
  cartctx cart coupon "  SAVE10 "`,
	}
	cmd.AddCommand(newCartGetCommand(opts))
	cmd.AddCommand(newCartAddCommand(opts))
	cmd.AddCommand(newCartUpdateCommand(opts))
	cmd.AddCommand(newCartRemoveCommand(opts))
	cmd.AddCommand(newCartClearCommand(opts))
	cmd.AddCommand(newCartCouponCommand(opts))
	cmd.AddCommand(newCartUncouponCommand(opts))
	cmd.AddCommand(newCartMergeCommand(opts))
	cmd.AddCommand(newCartTierPricingCommand(opts))
	return cmd
}

func newCartGetCommand(opts *RootOptions) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Fetch the current cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(c *cartctx.Client, out *OutputFormatter) error {
				cart, err := c.GetCart(cmd.Context(), refresh)
				if err != nil {
					return classify("failed to fetch cart", err)
				}
				return out.Success(cartView{cart})
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass intermediate caches")
	return cmd
}

func newCartAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CartItemOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product to the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(c *cartctx.Client, out *OutputFormatter) error {
				if opts.Quantity <= 0 {
					return &ExitError{Code: ExitCommandError, ErrCode: ErrCodeValidation, Message: "--qty must be positive"}
				}
				item := cartctx.AddItemRequest{
					ProductID: args[0],
					VariantID: opts.variantID(),
					Quantity:  opts.Quantity,
				}
				cart, err := c.AddCartItem(cmd.Context(), item)
				if err != nil {
					return classify("failed to add item", err)
				}
				key := cartctx.CartItem{ProductID: item.ProductID, VariantID: item.VariantID}.Key()
				return out.Success(addedView{cartView{cart}, key})
			})
		},
	}
	cmd.Flags().StringVar(&opts.Variant, "variant", "", "variant id")
	cmd.Flags().IntVar(&opts.Quantity, "qty", 1, "quantity")
	return cmd
}

func newCartUpdateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "update <item-id> <quantity>",
		Short: "Set the quantity of a cart line",
		Long: `Set the quantity of a cart line. A quantity of zero is rejected; use
"cart remove" to delete a line.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(c *cartctx.Client, out *OutputFormatter) error {
				qty, err := strconv.Atoi(args[1])
				if err != nil || qty <= 0 {
					return &ExitError{
						Code:    ExitCommandError,
						ErrCode: ErrCodeValidation,
						Message: fmt.Sprintf("invalid quantity %q: must be a positive integer", args[1]),
					}
				}
				cart, err := c.UpdateCartItem(cmd.Context(), args[0], qty)
				if err != nil {
					return classify("failed to update item", err)
				}
				return out.Success(cartView{cart})
			})
		},
	}
}

func newCartRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CartItemOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "remove <product-id>",
		Short: "Remove a product line from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(c *cartctx.Client, out *OutputFormatter) error {
				cart, err := c.RemoveCartItem(cmd.Context(), args[0], opts.variantID())
				if err != nil {
					return classify("failed to remove item", err)
				}
				return out.Success(cartView{cart})
			})
		},
	}
	cmd.Flags().StringVar(&opts.Variant, "variant", "", "variant id")
	return cmd
}

func newCartClearCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every line from the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(c *cartctx.Client, out *OutputFormatter) error {
				cart, err := c.ClearCart(cmd.Context())
				if err != nil {
					return classify("failed to clear cart", err)
				}
				return out.Success(cartView{cart})
			})
		},
	}
}

func newCartCouponCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "coupon <code>",
		Short: "Apply a coupon code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(c *cartctx.Client, out *OutputFormatter) error {
				res, err := c.ApplyCoupon(cmd.Context(), args[0])
				if err != nil {
					return classify("failed to apply coupon", err)
				}
				return out.Success(couponView{res})
			})
		},
	}
}

func newCartUncouponCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "uncoupon",
		Short: "Remove the applied coupon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(c *cartctx.Client, out *OutputFormatter) error {
				res, err := c.RemoveCoupon(cmd.Context())
				if err != nil {
					return classify("failed to remove coupon", err)
				}
				return out.Success(couponView{res})
			})
		},
	}
}

func newCartMergeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "merge",
		Short: "Merge the guest cart into the signed-in cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(c *cartctx.Client, out *OutputFormatter) error {
				cart, err := c.MergeGuestCart(cmd.Context())
				if err != nil {
					return classify("failed to merge guest cart", err)
				}
				return out.Success(mergeView{Merged: cart != nil, Cart: cart})
			})
		},
	}
}

func newCartTierPricingCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tier-pricing",
		Short: "Reprice the cart with business quantity tiers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(c *cartctx.Client, out *OutputFormatter) error {
				cart, err := c.ApplyTierPricing(cmd.Context())
				if err != nil {
					return classify("failed to apply tier pricing", err)
				}
				return out.Success(cartView{cart})
			})
		},
	}
}
