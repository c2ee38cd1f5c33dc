package harness

import (
	"context"
	"fmt"

	"github.com/roach88/cartctx"
)

// opFunc executes one step against the harness client.
type opFunc func(ctx context.Context, h *Harness, a args) (any, error)

// ops maps step op names to client calls.
var ops = map[string]opFunc{
	"identity": func(ctx context.Context, h *Harness, a args) (any, error) {
		return h.client.Identity(ctx), nil
	},
	"set_login_type": func(ctx context.Context, h *Harness, a args) (any, error) {
		if err := h.client.SetLoginType(ctx, cartctx.LoginType(a.str("login_type"))); err != nil {
			return nil, err
		}
		return h.client.Identity(ctx), nil
	},
	"rotate_session": func(ctx context.Context, h *Harness, a args) (any, error) {
		id, err := h.client.RotateSession(ctx)
		return map[string]any{"sessionId": id}, err
	},
	"set_address": func(ctx context.Context, h *Harness, a args) (any, error) {
		return nil, h.client.SetSelectedAddress(ctx, a.str("address_id"))
	},
	"set_tokens": func(ctx context.Context, h *Harness, a args) (any, error) {
		return nil, h.client.SetTokens(ctx, a.str("access_token"), a.str("refresh_token"))
	},
	"clear_tokens": func(ctx context.Context, h *Harness, a args) (any, error) {
		return nil, h.client.ClearTokens(ctx)
	},
	"get_cart": func(ctx context.Context, h *Harness, a args) (any, error) {
		return h.client.GetCart(ctx, a.boolean("force_refresh"))
	},
	"add_item": func(ctx context.Context, h *Harness, a args) (any, error) {
		return h.client.AddCartItem(ctx, cartctx.AddItemRequest{
			ProductID: a.str("product_id"),
			VariantID: a.strPtr("variant_id"),
			Quantity:  a.integer("quantity"),
		})
	},
	"update_item": func(ctx context.Context, h *Harness, a args) (any, error) {
		return h.client.UpdateCartItem(ctx, a.str("item_id"), a.integer("quantity"))
	},
	"remove_item": func(ctx context.Context, h *Harness, a args) (any, error) {
		return h.client.RemoveCartItem(ctx, a.str("product_id"), a.strPtr("variant_id"))
	},
	"clear_cart": func(ctx context.Context, h *Harness, a args) (any, error) {
		return h.client.ClearCart(ctx)
	},
	"apply_coupon": func(ctx context.Context, h *Harness, a args) (any, error) {
		return h.client.ApplyCoupon(ctx, a.str("code"))
	},
	"remove_coupon": func(ctx context.Context, h *Harness, a args) (any, error) {
		return h.client.RemoveCoupon(ctx)
	},
	"merge_guest_cart": func(ctx context.Context, h *Harness, a args) (any, error) {
		cart, err := h.client.MergeGuestCart(ctx)
		return map[string]any{"merged": cart != nil, "cart": cart}, err
	},
	"apply_tier_pricing": func(ctx context.Context, h *Harness, a args) (any, error) {
		return h.client.ApplyTierPricing(ctx)
	},
	"tier_pricing": func(ctx context.Context, h *Harness, a args) (any, error) {
		return h.client.TierPricing(ctx, a.str("product_id"))
	},
	"create_negotiation": func(ctx context.Context, h *Harness, a args) (any, error) {
		return h.client.CreateNegotiation(ctx, cartctx.NegotiationRequest{
			ProductID:     a.str("product_id"),
			VariantID:     a.strPtr("variant_id"),
			Quantity:      a.integer("quantity"),
			ProposedPrice: a.number("proposed_price"),
			Note:          a.str("note"),
		})
	},
	"load_notification": func(ctx context.Context, h *Harness, a args) (any, error) {
		return h.client.LoadCartFromNotification(ctx, a.str("cart_id"), a.str("session_id"), a.str("negotiation_id"))
	},
	"handle_notification": func(ctx context.Context, h *Harness, a args) (any, error) {
		return h.client.HandleNotification(ctx, []byte(a.str("payload")))
	},
	"restore": func(ctx context.Context, h *Harness, a args) (any, error) {
		return h.client.RestoreOriginalSession(ctx), nil
	},
	"notification_context": func(ctx context.Context, h *Harness, a args) (any, error) {
		nc, ok := h.client.NotificationContext(ctx)
		out := map[string]any{"active": ok}
		if ok {
			out["context"] = nc
		}
		return out, nil
	},
	"create_new_cart": func(ctx context.Context, h *Harness, a args) (any, error) {
		return h.client.CreateNewCart(), nil
	},
	"advance": func(ctx context.Context, h *Harness, a args) (any, error) {
		h.advance(a.integer("ms"))
		return nil, nil
	},
}

// args wraps step arguments decoded from YAML.
type args map[string]interface{}

func (a args) str(key string) string {
	switch v := a[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// strPtr returns nil when key is absent or null.
func (a args) strPtr(key string) *string {
	if a[key] == nil {
		return nil
	}
	s := a.str(key)
	return &s
}

func (a args) integer(key string) int {
	switch v := a[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func (a args) number(key string) float64 {
	switch v := a[key].(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	default:
		return 0
	}
}

func (a args) boolean(key string) bool {
	v, _ := a[key].(bool)
	return v
}
