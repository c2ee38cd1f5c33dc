package cli

import (
	"fmt"
	"strings"

	"github.com/roach88/cartctx"
)

// cartView renders a cart snapshot.
type cartView struct {
	*cartctx.Cart
}

func (v cartView) Text() string {
	if v.Cart == nil {
		return "No cart"
	}
	var b strings.Builder
	if v.ID != "" {
		fmt.Fprintf(&b, "Cart %s\n", v.ID)
	}
	if v.IsEmpty() {
		b.WriteString("  (empty)\n")
	}
	for _, it := range v.Items {
		variant := ""
		if it.VariantID != nil {
			variant = "/" + *it.VariantID
		}
		fmt.Fprintf(&b, "  %s%s x%d @ %.2f\n", it.ProductID, variant, it.Quantity, it.Price)
	}
	if v.CouponCode != "" {
		fmt.Fprintf(&b, "Coupon: %s\n", v.CouponCode)
	}
	fmt.Fprintf(&b, "Items: %d\n", v.ItemCount())
	fmt.Fprintf(&b, "Total payable: %.2f", v.Totals.TotalPayable)
	return b.String()
}

// addedView renders a cart after an add, leading with the line that was added.
type addedView struct {
	cartView
	key cartctx.ItemKey
}

func (v addedView) Text() string {
	line := v.Find(v.key)
	if line == nil {
		return v.cartView.Text()
	}
	name := line.ProductID
	if line.VariantID != nil {
		name += "/" + *line.VariantID
	}
	return fmt.Sprintf("Added %s (now x%d)\n%s", name, line.Quantity, v.cartView.Text())
}

// identityView renders the current identity and overlay state.
type identityView struct {
	cartctx.SessionIdentity
	Notification *cartctx.NotificationContext `json:"notification,omitempty"`
}

func (v identityView) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Login type:    %s\n", v.LoginType)
	fmt.Fprintf(&b, "Session:       %s\n", v.SessionID)
	fmt.Fprintf(&b, "Authenticated: %t", v.IsAuthenticated)
	if v.Notification != nil {
		fmt.Fprintf(&b, "\nNotification:  cart %s (original session %q)", v.Notification.CartID, v.Notification.OriginalSessionID)
	}
	return b.String()
}

type couponView struct {
	cartctx.CouponResult
}

func (v couponView) Text() string {
	if !v.Success {
		if v.Code != "" {
			return fmt.Sprintf("Coupon rejected [%s]: %s", v.Code, v.Error)
		}
		return "Coupon rejected: " + v.Error
	}
	return "Coupon updated\n" + cartView{v.Data}.Text()
}

type contextView struct {
	Active  bool                         `json:"active"`
	Context *cartctx.NotificationContext `json:"context,omitempty"`
}

func (v contextView) Text() string {
	if !v.Active || v.Context == nil {
		return "No notification context"
	}
	nc := v.Context
	var b strings.Builder
	fmt.Fprintf(&b, "Notification cart:    %s\n", nc.CartID)
	fmt.Fprintf(&b, "Notification session: %s\n", nc.SessionID)
	if nc.NegotiationID != "" {
		fmt.Fprintf(&b, "Negotiation:          %s\n", nc.NegotiationID)
	}
	fmt.Fprintf(&b, "Original session:     %q (%s)", nc.OriginalSessionID, nc.OriginalLoginType)
	return b.String()
}

type enterView struct {
	cartctx.EnterResult
}

func (v enterView) Text() string {
	if v.Skip {
		return "Duplicate notification ignored"
	}
	return "Notification cart loaded\n" + cartView{v.Cart}.Text()
}

type restoredView struct {
	cartctx.Restored
}

func (v restoredView) Text() string {
	s := fmt.Sprintf("Restored %s session %s", v.LoginType, v.SessionID)
	if v.Synthesized {
		s += " (new guest session)"
	}
	if v.Degraded {
		s += " (storage degraded)"
	}
	return s
}

type mergeView struct {
	Merged bool          `json:"merged"`
	Cart   *cartctx.Cart `json:"cart,omitempty"`
}

func (v mergeView) Text() string {
	if !v.Merged {
		return "Nothing to merge"
	}
	return "Guest cart merged\n" + cartView{v.Cart}.Text()
}

type tierView struct {
	*cartctx.TierPricing
}

func (v tierView) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tiers for %s", v.ProductID)
	for _, t := range v.Tiers {
		upper := "+"
		if t.MaxQuantity != nil {
			upper = fmt.Sprintf("-%d", *t.MaxQuantity)
		}
		fmt.Fprintf(&b, "\n  %d%s: %.2f", t.MinQuantity, upper, t.Price)
	}
	return b.String()
}

type negotiationView struct {
	*cartctx.Negotiation
}

func (v negotiationView) Text() string {
	return fmt.Sprintf("Negotiation %s: %s", v.ID, v.Status)
}
