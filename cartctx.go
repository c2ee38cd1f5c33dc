// Package cartctx is the session identity and cart context layer of a
// storefront client.
//
// A Client resolves which anonymous or authenticated session a cart belongs
// to, forwards cart mutations to the backend, and lets a push notification
// temporarily redirect the active cart before the original session is
// restored:
//
//	c, err := cartctx.Open(config.Default())
//	if err != nil { ... }
//	defer c.Close()
//
//	cart, err := c.GetCart(ctx, false)
//	res, err := c.LoadCartFromNotification(ctx, "cart123", "sidNotif", "")
//	restored := c.RestoreOriginalSession(ctx)
//
// Only validation and network failures are returned. Expired credentials and
// missing carts are recovered internally and surface as an empty cart.
package cartctx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/roach88/cartctx/internal/clock"
	"github.com/roach88/cartctx/internal/config"
	"github.com/roach88/cartctx/internal/credential"
	"github.com/roach88/cartctx/internal/fault"
	"github.com/roach88/cartctx/internal/gateway"
	"github.com/roach88/cartctx/internal/model"
	"github.com/roach88/cartctx/internal/notification"
	"github.com/roach88/cartctx/internal/overlay"
	"github.com/roach88/cartctx/internal/session"
	"github.com/roach88/cartctx/internal/store"
)

type (
	Cart                = model.Cart
	CartItem            = model.CartItem
	ItemKey             = model.ItemKey
	LoginType           = model.LoginType
	SessionIdentity     = model.SessionIdentity
	NotificationContext = model.NotificationContext
	TierPricing         = model.TierPricing
	NegotiationRequest  = model.NegotiationRequest
	Negotiation         = model.Negotiation
	AddItemRequest      = gateway.AddItemRequest
	CouponResult        = gateway.CouponResult
	EnterResult         = overlay.EnterResult
	Restored            = overlay.Restored
)

const (
	LoginIndividual = model.LoginIndividual
	LoginBusiness   = model.LoginBusiness
)

// IsValidation reports whether err is a fail-fast input error.
func IsValidation(err error) bool { return fault.IsValidation(err) }

// IsNetwork reports whether err is a backend or transport failure the caller
// may retry.
func IsNetwork(err error) bool { return fault.IsNetwork(err) }

type options struct {
	logger     *slog.Logger
	clock      clock.Clock
	suffix     session.SuffixGenerator
	httpClient *http.Client
	corrIDs    func() string
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock replaces the wall clock used for session ids and debouncing.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithSessionSuffix replaces the random session id suffix source.
func WithSessionSuffix(g session.SuffixGenerator) Option {
	return func(o *options) { o.suffix = g }
}

// WithHTTPClient replaces the HTTP client used for backend calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithCorrelationIDs replaces the X-Correlation-Id generator.
func WithCorrelationIDs(gen func() string) Option {
	return func(o *options) { o.corrIDs = gen }
}

// Client is the library entry point. It is safe for one cooperative caller;
// independent reads may run concurrently.
type Client struct {
	store    *store.Store
	tokens   *credential.Tokens
	sessions *session.Store
	overlay  *overlay.Overlay
	gateway  *gateway.Gateway
	logger   *slog.Logger
}

// Open opens the local store at cfg.DBPath and wires the client.
func Open(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open client: %w", err)
	}

	tokens := credential.New(st, o.logger)

	sessOpts := []session.Option{session.WithLogger(o.logger)}
	if o.clock != nil {
		sessOpts = append(sessOpts, session.WithClock(o.clock))
	}
	if o.suffix != nil {
		sessOpts = append(sessOpts, session.WithSuffixGenerator(o.suffix))
	}
	sessions := session.New(st, tokens, sessOpts...)

	trOpts := []gateway.TransportOption{
		gateway.WithTransportLogger(o.logger),
		gateway.WithMaxRetries(cfg.MaxRetries),
	}
	// A caller-supplied client keeps its own timeout.
	if o.httpClient != nil {
		trOpts = append(trOpts, gateway.WithHTTPClient(o.httpClient))
	} else {
		trOpts = append(trOpts, gateway.WithTimeout(cfg.Timeout))
	}
	if o.corrIDs != nil {
		trOpts = append(trOpts, gateway.WithCorrelationIDs(o.corrIDs))
	}
	transport := gateway.NewHTTPTransport(cfg.BaseURL, tokens, trOpts...)

	// The overlay fetches through the gateway and the gateway unwinds the
	// overlay on 404, so the loader closes over gw.
	var gw *gateway.Gateway
	ovOpts := []overlay.Option{
		overlay.WithLogger(o.logger),
		overlay.WithDebounce(cfg.Debounce),
	}
	if o.clock != nil {
		ovOpts = append(ovOpts, overlay.WithClock(o.clock))
	}
	ov := overlay.New(st, sessions, overlay.LoaderFunc(func(ctx context.Context) (*model.Cart, error) {
		return gw.GetCart(ctx, true)
	}), ovOpts...)
	gw = gateway.New(transport, sessions, tokens,
		gateway.WithOverlay(ov),
		gateway.WithLogger(o.logger),
	)

	return &Client{
		store:    st,
		tokens:   tokens,
		sessions: sessions,
		overlay:  ov,
		gateway:  gw,
		logger:   o.logger,
	}, nil
}

// Close releases the local store.
func (c *Client) Close() error {
	return c.store.Close()
}

// Identity returns the current identity, creating a guest session if needed.
func (c *Client) Identity(ctx context.Context) SessionIdentity {
	return c.sessions.Identity(ctx)
}

// SetLoginType switches account mode. Each mode keeps its own session.
//
// Only an unknown mode is reported. If the preference cannot be written the
// fault is logged and the previous mode stays in effect.
func (c *Client) SetLoginType(ctx context.Context, lt LoginType) error {
	err := c.sessions.SetLoginType(ctx, lt)
	if fault.IsStorage(err) {
		c.logger.Warn("login type persist failed", "login_type", lt, "error", err)
		return nil
	}
	return err
}

// RotateSession replaces the session of the current mode with a new one.
func (c *Client) RotateSession(ctx context.Context) (string, error) {
	id, ok := c.sessions.GetOrCreateSessionID(ctx, "", true)
	if !ok {
		return "", fault.Validation("client.rotate_session", "session storage unavailable")
	}
	return id, nil
}

// SetSelectedAddress records the delivery address sent with cart fetches.
func (c *Client) SetSelectedAddress(ctx context.Context, addressID string) error {
	return c.sessions.SetSelectedAddressID(ctx, addressID)
}

// SetTokens stores credentials issued by the sign-in flow.
func (c *Client) SetTokens(ctx context.Context, access, refresh string) error {
	return c.tokens.Set(ctx, access, refresh)
}

// ClearTokens signs the user out locally.
func (c *Client) ClearTokens(ctx context.Context) error {
	return c.tokens.Clear(ctx)
}

// GetCart fetches the current cart.
func (c *Client) GetCart(ctx context.Context, forceRefresh bool) (*Cart, error) {
	return c.gateway.GetCart(ctx, forceRefresh)
}

// AddCartItem adds a line and returns the refreshed cart.
func (c *Client) AddCartItem(ctx context.Context, item AddItemRequest) (*Cart, error) {
	return c.gateway.AddItem(ctx, item)
}

// UpdateCartItem sets a line's quantity. A zero quantity should be routed to
// RemoveCartItem by the caller.
func (c *Client) UpdateCartItem(ctx context.Context, itemID string, quantity int) (*Cart, error) {
	return c.gateway.UpdateItem(ctx, itemID, quantity)
}

// RemoveCartItem removes the (productID, variantID) line.
func (c *Client) RemoveCartItem(ctx context.Context, productID string, variantID *string) (*Cart, error) {
	return c.gateway.RemoveItem(ctx, productID, variantID)
}

// ClearCart empties the cart.
func (c *Client) ClearCart(ctx context.Context) (*Cart, error) {
	return c.gateway.ClearCart(ctx)
}

// ApplyCoupon applies code. Rejections come back in CouponResult.
func (c *Client) ApplyCoupon(ctx context.Context, code string) (CouponResult, error) {
	return c.gateway.ApplyCoupon(ctx, code)
}

// RemoveCoupon removes the applied coupon.
func (c *Client) RemoveCoupon(ctx context.Context) (CouponResult, error) {
	return c.gateway.RemoveCoupon(ctx)
}

// MergeGuestCart folds the guest cart into the signed-in cart. It returns
// (nil, nil) when there is nothing to merge.
func (c *Client) MergeGuestCart(ctx context.Context) (*Cart, error) {
	return c.gateway.MergeGuestCart(ctx)
}

// ApplyTierPricing reprices the cart with quantity tiers. Business mode only.
func (c *Client) ApplyTierPricing(ctx context.Context) (*Cart, error) {
	return c.gateway.ApplyTierPricing(ctx)
}

// TierPricing returns the quantity tiers for productID.
func (c *Client) TierPricing(ctx context.Context, productID string) (*TierPricing, error) {
	return c.gateway.TierPricing(ctx, productID)
}

// CreateNegotiation opens a price negotiation.
func (c *Client) CreateNegotiation(ctx context.Context, req NegotiationRequest) (*Negotiation, error) {
	return c.gateway.CreateNegotiation(ctx, req)
}

// LoadCartFromNotification shadows the current session with the
// notification's session and loads its cart.
func (c *Client) LoadCartFromNotification(ctx context.Context, cartID, sessionID, negotiationID string) (EnterResult, error) {
	return c.overlay.Enter(ctx, cartID, sessionID, negotiationID)
}

// HandleNotification parses a raw push payload and loads its cart.
func (c *Client) HandleNotification(ctx context.Context, payload []byte) (EnterResult, error) {
	p, err := notification.Parse(payload)
	if err != nil {
		return EnterResult{}, err
	}
	c.logger.Debug("notification received", "type", p.Type, "cart_id", p.CartID)
	return c.overlay.Enter(ctx, p.CartID, p.SessionID, p.NegotiationID)
}

// RestoreOriginalSession leaves any notification context.
func (c *Client) RestoreOriginalSession(ctx context.Context) Restored {
	return c.overlay.Restore(ctx)
}

// NotificationContext returns the active notification context, if any.
func (c *Client) NotificationContext(ctx context.Context) (NotificationContext, bool) {
	return c.overlay.Context(ctx)
}

// CreateNewCart returns a fresh empty cart without I/O.
func (c *Client) CreateNewCart() *Cart {
	return c.gateway.CreateNewCart()
}
