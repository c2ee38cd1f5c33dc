// Package gateway is the cart protocol client. It resolves the current
// identity for every call, classifies backend failures, and self-heals the
// recoverable ones: a 401 clears credentials and a 404 on fetch unwinds any
// notification overlay. Both return an empty cart.
//
// The gateway holds no cart state; every mutation is followed by a fresh
// fetch because the backend's totals are authoritative.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/roach88/cartctx/internal/fault"
	"github.com/roach88/cartctx/internal/model"
	"github.com/roach88/cartctx/internal/overlay"
)

// Sessions is the identity source.
type Sessions interface {
	Identity(ctx context.Context) model.SessionIdentity
	CurrentSessionID(ctx context.Context) (string, bool)
	SelectedAddressID(ctx context.Context) string
}

// Credentials is the token store. Clear runs after a 401.
type Credentials interface {
	AccessToken(ctx context.Context) (string, bool)
	Clear(ctx context.Context) error
}

// Overlay is the notification context the gateway must unwind when the
// referenced cart disappears.
type Overlay interface {
	IsNotificationCart(ctx context.Context) bool
	Restore(ctx context.Context) overlay.Restored
}

// CouponResult is the uniform coupon outcome. Backend rejections are values,
// not errors.
type CouponResult struct {
	Success bool        `json:"success"`
	Data    *model.Cart `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// AddItemRequest describes a line to add.
type AddItemRequest struct {
	ProductID string
	VariantID *string
	Quantity  int
}

// Gateway issues cart calls on behalf of the current identity.
type Gateway struct {
	transport Transport
	sessions  Sessions
	tokens    Credentials
	overlay   Overlay
	logger    *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithOverlay attaches the notification overlay. Without one, 404 recovery
// never restores.
func WithOverlay(o Overlay) Option {
	return func(g *Gateway) { g.overlay = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// New creates a Gateway.
func New(t Transport, sessions Sessions, tokens Credentials, opts ...Option) *Gateway {
	g := &Gateway{
		transport: t,
		sessions:  sessions,
		tokens:    tokens,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GetCart fetches the current cart. forceRefresh bypasses intermediate caches.
func (g *Gateway) GetCart(ctx context.Context, forceRefresh bool) (*model.Cart, error) {
	const op = "cart.get"

	ident := g.sessions.Identity(ctx)
	if ident.SessionID == "" {
		return nil, fault.Validation(op, "no session available")
	}

	q := url.Values{}
	q.Set("sessionId", ident.SessionID)
	q.Set("loginType", ident.LoginType.String())
	if addr := g.sessions.SelectedAddressID(ctx); addr != "" {
		q.Set("addressId", addr)
	}
	q.Set("isNotificationCart", strconv.FormatBool(g.inNotification(ctx)))

	req := Request{Method: http.MethodGet, Path: "/api/cart", Query: q}
	if forceRefresh {
		req.Header = map[string]string{"Cache-Control": "no-cache"}
	}

	var cart model.Cart
	err := g.transport.Do(ctx, req, &cart)
	if err == nil {
		return cart.Normalize(), nil
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusNotFound:
			g.logger.Info("cart not found, returning empty cart", "session_id", ident.SessionID)
			if g.inNotification(ctx) {
				g.overlay.Restore(ctx)
			}
			return g.CreateNewCart(), nil
		case http.StatusUnauthorized:
			g.expireCredentials(ctx)
			return g.CreateNewCart(), nil
		}
	}
	return nil, fault.Network(op, err)
}

// AddItem adds a line and returns the refreshed cart.
func (g *Gateway) AddItem(ctx context.Context, item AddItemRequest) (*model.Cart, error) {
	const op = "cart.add_item"

	productID := strings.TrimSpace(item.ProductID)
	if productID == "" {
		return nil, fault.Validation(op, "product id is required")
	}
	sid, err := g.requireSession(ctx, op)
	if err != nil {
		return nil, err
	}

	body := struct {
		ProductID string  `json:"productId"`
		VariantID *string `json:"variantId,omitempty"`
		Quantity  int     `json:"quantity"`
		SessionID string  `json:"sessionId"`
	}{productID, item.VariantID, item.Quantity, sid}

	return g.mutate(ctx, op, Request{Method: http.MethodPost, Path: "/api/cart/item", Body: body})
}

// UpdateItem sets the quantity of itemID and returns the refreshed cart.
// Routing a zero quantity to RemoveItem is the caller's job.
func (g *Gateway) UpdateItem(ctx context.Context, itemID string, quantity int) (*model.Cart, error) {
	const op = "cart.update_item"

	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return nil, fault.Validation(op, "item id is required")
	}
	sid, err := g.requireSession(ctx, op)
	if err != nil {
		return nil, err
	}

	body := struct {
		SessionID string `json:"sessionId"`
		Quantity  int    `json:"quantity"`
	}{sid, quantity}

	return g.mutate(ctx, op, Request{
		Method: http.MethodPut,
		Path:   "/api/cart/item/" + url.PathEscape(itemID),
		Body:   body,
	})
}

// RemoveItem deletes the (productID, variantID) line and returns the
// refreshed cart.
func (g *Gateway) RemoveItem(ctx context.Context, productID string, variantID *string) (*model.Cart, error) {
	const op = "cart.remove_item"

	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, fault.Validation(op, "product id is required")
	}
	sid, err := g.requireSession(ctx, op)
	if err != nil {
		return nil, err
	}

	body := struct {
		SessionID string  `json:"sessionId"`
		ProductID string  `json:"productId"`
		VariantID *string `json:"variantId"`
	}{sid, productID, variantID}

	return g.mutate(ctx, op, Request{Method: http.MethodDelete, Path: "/api/cart/item", Body: body})
}

// ClearCart removes every line and returns the refreshed cart.
func (g *Gateway) ClearCart(ctx context.Context) (*model.Cart, error) {
	const op = "cart.clear"

	sid, err := g.requireSession(ctx, op)
	if err != nil {
		return nil, err
	}
	body := struct {
		SessionID string `json:"sessionId"`
	}{sid}
	return g.mutate(ctx, op, Request{Method: http.MethodDelete, Path: "/api/cart/clear", Body: body})
}

// ApplyCoupon applies code to the cart. The code is trimmed and NFC
// normalized; an empty code fails before any request.
func (g *Gateway) ApplyCoupon(ctx context.Context, code string) (CouponResult, error) {
	const op = "cart.apply_coupon"

	code = model.NormalizeText(strings.TrimSpace(code))
	if code == "" {
		return CouponResult{}, fault.Validation(op, "coupon code is required")
	}
	sid, err := g.requireSession(ctx, op)
	if err != nil {
		return CouponResult{}, err
	}

	body := struct {
		CouponCode string `json:"couponCode"`
		SessionID  string `json:"sessionId"`
	}{code, sid}

	return g.coupon(ctx, op, Request{Method: http.MethodPost, Path: "/api/cart/coupon", Body: body})
}

// RemoveCoupon removes any applied coupon.
func (g *Gateway) RemoveCoupon(ctx context.Context) (CouponResult, error) {
	const op = "cart.remove_coupon"

	sid, err := g.requireSession(ctx, op)
	if err != nil {
		return CouponResult{}, err
	}
	body := struct {
		SessionID string `json:"sessionId"`
	}{sid}

	return g.coupon(ctx, op, Request{Method: http.MethodDelete, Path: "/api/cart/coupon", Body: body})
}

// MergeGuestCart folds the stored anonymous cart into the signed-in user's
// cart. With no access token or no stored session it returns (nil, nil)
// without a request. Safe to call on every login.
func (g *Gateway) MergeGuestCart(ctx context.Context) (*model.Cart, error) {
	const op = "cart.merge"

	if _, ok := g.tokens.AccessToken(ctx); !ok {
		return nil, nil
	}
	sid, ok := g.sessions.CurrentSessionID(ctx)
	if !ok {
		return nil, nil
	}

	var cart model.Cart
	err := g.transport.Do(ctx, Request{
		Method:     http.MethodPost,
		Path:       "/api/cart/merge/" + url.PathEscape(sid),
		Idempotent: true,
	}, &cart)
	if err != nil {
		return nil, g.classify(ctx, op, err)
	}
	g.logger.Info("guest cart merged", "session_id", sid)
	return cart.Normalize(), nil
}

// CreateNewCart returns a fresh empty cart. No I/O.
func (g *Gateway) CreateNewCart() *model.Cart {
	return model.NewEmptyCart()
}

// ApplyTierPricing asks the backend to reprice the cart with quantity tiers.
// Business mode only.
func (g *Gateway) ApplyTierPricing(ctx context.Context) (*model.Cart, error) {
	const op = "cart.apply_tier_pricing"

	ident := g.sessions.Identity(ctx)
	if ident.SessionID == "" {
		return nil, fault.Validation(op, "no session available")
	}
	if ident.LoginType != model.LoginBusiness {
		return nil, fault.Validation(op, "tier pricing requires business mode")
	}

	body := struct {
		SessionID string `json:"sessionId"`
		LoginType string `json:"loginType"`
	}{ident.SessionID, ident.LoginType.String()}

	return g.mutate(ctx, op, Request{Method: http.MethodPost, Path: "/api/cart/apply-tier-pricing", Body: body})
}

// TierPricing returns the quantity tiers for productID.
func (g *Gateway) TierPricing(ctx context.Context, productID string) (*model.TierPricing, error) {
	const op = "pricing.tier"

	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, fault.Validation(op, "product id is required")
	}

	q := url.Values{}
	q.Set("productId", productID)
	var out model.TierPricing
	if err := g.transport.Do(ctx, Request{Method: http.MethodGet, Path: "/api/pricing/tier", Query: q}, &out); err != nil {
		return nil, g.classify(ctx, op, err)
	}
	if out.ProductID == "" {
		out.ProductID = productID
	}
	if out.Tiers == nil {
		out.Tiers = []model.PriceTier{}
	}
	return &out, nil
}

// CreateNegotiation opens a price negotiation for the current session.
func (g *Gateway) CreateNegotiation(ctx context.Context, req model.NegotiationRequest) (*model.Negotiation, error) {
	const op = "negotiation.create"

	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		return nil, fault.Validation(op, "product id is required")
	}
	if req.Quantity <= 0 {
		return nil, fault.Validation(op, "quantity must be positive")
	}
	if req.ProposedPrice <= 0 {
		return nil, fault.Validation(op, "proposed price must be positive")
	}
	sid, err := g.requireSession(ctx, op)
	if err != nil {
		return nil, err
	}

	body := struct {
		model.NegotiationRequest
		SessionID string `json:"sessionId"`
	}{req, sid}

	var out model.Negotiation
	if err := g.transport.Do(ctx, Request{Method: http.MethodPost, Path: "/api/negotiation/create", Body: body}, &out); err != nil {
		return nil, g.classify(ctx, op, err)
	}
	return &out, nil
}

// mutate sends req and re-fetches the cart.
func (g *Gateway) mutate(ctx context.Context, op string, req Request) (*model.Cart, error) {
	if err := g.transport.Do(ctx, req, nil); err != nil {
		return nil, g.classify(ctx, op, err)
	}
	return g.GetCart(ctx, true)
}

func (g *Gateway) coupon(ctx context.Context, op string, req Request) (CouponResult, error) {
	var cart model.Cart
	err := g.transport.Do(ctx, req, &cart)
	if err == nil {
		return CouponResult{Success: true, Data: cart.Normalize()}, nil
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.Rejected() {
		if httpErr.StatusCode == http.StatusUnauthorized {
			g.expireCredentials(ctx)
		}
		return CouponResult{Success: false, Error: httpErr.Message, Code: httpErr.Code}, nil
	}
	return CouponResult{}, fault.Network(op, err)
}

// classify turns a transport error into the error that crosses the boundary.
// A 401 still clears credentials so the next call proceeds as a guest.
func (g *Gateway) classify(ctx context.Context, op string, err error) error {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized {
		g.expireCredentials(ctx)
	}
	return fault.Network(op, err)
}

func (g *Gateway) requireSession(ctx context.Context, op string) (string, error) {
	sid := g.sessions.Identity(ctx).SessionID
	if sid == "" {
		return "", fault.Validation(op, "no session available")
	}
	return sid, nil
}

func (g *Gateway) expireCredentials(ctx context.Context) {
	g.logger.Info("credentials expired, clearing tokens")
	if err := g.tokens.Clear(ctx); err != nil {
		g.logger.Warn("token clear failed", "error", err)
	}
}

func (g *Gateway) inNotification(ctx context.Context) bool {
	return g.overlay != nil && g.overlay.IsNotificationCart(ctx)
}
