package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/cartctx"
)

// NegotiateOptions holds flags for pricing negotiate.
type NegotiateOptions struct {
	*RootOptions
	Variant  string
	Quantity int
	Price    float64
	Note     string
}

// NewPricingCommand creates the pricing command group.
func NewPricingCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pricing",
		Short: "Business pricing: quantity tiers and negotiations",
	}
	cmd.AddCommand(newPricingTierCommand(opts))
	cmd.AddCommand(newPricingNegotiateCommand(opts))
	return cmd
}

func newPricingTierCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tier <product-id>",
		Short: "Show quantity tiers for a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(c *cartctx.Client, out *OutputFormatter) error {
				tp, err := c.TierPricing(cmd.Context(), args[0])
				if err != nil {
					return classify("failed to fetch tier pricing", err)
				}
				return out.Success(tierView{tp})
			})
		},
	}
}

func newPricingNegotiateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NegotiateOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "negotiate <product-id>",
		Short: "Propose a price for a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withClient(cmd, func(c *cartctx.Client, out *OutputFormatter) error {
				req := cartctx.NegotiationRequest{
					ProductID:     args[0],
					Quantity:      opts.Quantity,
					ProposedPrice: opts.Price,
					Note:          opts.Note,
				}
				if opts.Variant != "" {
					v := opts.Variant
					req.VariantID = &v
				}
				neg, err := c.CreateNegotiation(cmd.Context(), req)
				if err != nil {
					return classify("failed to create negotiation", err)
				}
				return out.Success(negotiationView{neg})
			})
		},
	}
	cmd.Flags().StringVar(&opts.Variant, "variant", "", "variant id")
	cmd.Flags().IntVar(&opts.Quantity, "qty", 0, "quantity (required)")
	cmd.Flags().Float64Var(&opts.Price, "price", 0, "proposed unit price (required)")
	cmd.Flags().StringVar(&opts.Note, "note", "", "note for the seller")
	_ = cmd.MarkFlagRequired("qty")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}
