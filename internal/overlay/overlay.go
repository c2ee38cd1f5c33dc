// Package overlay temporarily redirects the active cart context to a cart
// referenced by a push notification, and later restores the user's original
// session.
//
// Every transition is persisted before it takes effect so a process killed
// mid-flow can still unwind: the read accessors always consult storage, never
// an in-memory copy.
//
// States:
//
//	Inactive --Enter--> Active --Restore--> Restoring --> Inactive
package overlay

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/roach88/cartctx/internal/clock"
	"github.com/roach88/cartctx/internal/fault"
	"github.com/roach88/cartctx/internal/model"
	"github.com/roach88/cartctx/internal/session"
	"github.com/roach88/cartctx/internal/store"
)

// DefaultDebounce is the window in which a repeated Enter for the same cart
// is treated as a duplicate delivery.
const DefaultDebounce = 3000 * time.Millisecond

const activeFlag = "true"

// State is the overlay lifecycle state.
type State string

const (
	StateInactive  State = "inactive"
	StateActive    State = "active"
	StateRestoring State = "restoring"
)

// CartLoader fetches the cart under the current session pointer.
type CartLoader interface {
	LoadCart(ctx context.Context) (*model.Cart, error)
}

// LoaderFunc adapts a function to CartLoader.
type LoaderFunc func(ctx context.Context) (*model.Cart, error)

// LoadCart calls f.
func (f LoaderFunc) LoadCart(ctx context.Context) (*model.Cart, error) {
	return f(ctx)
}

// EnterResult is the outcome of Enter.
type EnterResult struct {
	// Skip is true when the call was debounced. No fetch happened.
	Skip bool `json:"skip"`

	// Cart is the notification cart, nil when skipped.
	Cart *model.Cart `json:"cart,omitempty"`
}

// Restored reports what Restore reinstated.
type Restored struct {
	SessionID string          `json:"sessionId"`
	LoginType model.LoginType `json:"loginType"`

	// Synthesized is true when no original session existed and a new guest
	// session was minted.
	Synthesized bool `json:"synthesized"`

	// Degraded is true when storage failed and state could not be fully restored.
	Degraded bool `json:"degraded,omitempty"`
}

// Overlay owns the NotificationContext record.
type Overlay struct {
	kv       store.KV
	sessions *session.Store
	loader   CartLoader
	clock    clock.Clock
	debounce time.Duration
	logger   *slog.Logger

	mu          sync.Mutex
	restoring   bool
	lastCartID  string
	lastEnterAt time.Time
}

// Option configures an Overlay.
type Option func(*Overlay)

// WithClock sets the clock used for debouncing.
func WithClock(c clock.Clock) Option {
	return func(o *Overlay) { o.clock = c }
}

// WithDebounce overrides DefaultDebounce. Zero disables debouncing.
func WithDebounce(d time.Duration) Option {
	return func(o *Overlay) { o.debounce = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Overlay) { o.logger = l }
}

// New creates an Overlay. kv must be the same storage sessions writes to.
func New(kv store.KV, sessions *session.Store, loader CartLoader, opts ...Option) *Overlay {
	o := &Overlay{
		kv:       kv,
		sessions: sessions,
		loader:   loader,
		clock:    clock.System{},
		debounce: DefaultDebounce,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Enter shadows the current session with notificationSessionID and loads
// cartID's cart.
//
// The original session, the notification fields, the active flag and the new
// current pointer are committed as one transaction. If loading the cart fails,
// Restore runs before the error is returned so the normal session is never
// left shadowed behind a dead context.
func (o *Overlay) Enter(ctx context.Context, cartID, notificationSessionID, negotiationID string) (EnterResult, error) {
	cartID = strings.TrimSpace(cartID)
	notificationSessionID = strings.TrimSpace(notificationSessionID)
	negotiationID = strings.TrimSpace(negotiationID)

	if cartID == "" {
		return EnterResult{}, fault.Validation("overlay.enter", "cart id is required")
	}
	if notificationSessionID == "" {
		return EnterResult{}, fault.Validation("overlay.enter", "notification session id is required")
	}

	if o.isDuplicate(cartID) {
		o.logger.Info("notification debounced", "cart_id", cartID)
		return EnterResult{Skip: true}, nil
	}

	b, err := o.entryBatch(ctx, cartID, notificationSessionID, negotiationID)
	if err == nil {
		o.logger.Debug("notification context staged", "cart_id", cartID, "keys", b.Keys())
		err = o.kv.Commit(ctx, b)
	}
	if err != nil {
		o.clearDebounce(cartID)
		o.logger.Warn("notification context persist failed", "cart_id", cartID, "error", err)
		return EnterResult{}, storageUnavailable(err)
	}

	original, _, _ := b.Value(store.KeyOriginalSessionID)
	o.logger.Info("notification context entered",
		"cart_id", cartID,
		"session_id", notificationSessionID,
		"negotiation_id", negotiationID,
		"original_session_id", original,
	)

	cart, err := o.loader.LoadCart(ctx)
	if err != nil {
		o.logger.Warn("notification cart load failed, restoring", "cart_id", cartID, "error", err)
		o.Restore(ctx)
		o.clearDebounce(cartID)
		return EnterResult{}, err
	}

	return EnterResult{Cart: cart}, nil
}

// storageUnavailable reports a failed Enter write the same way a failed
// session rotation is reported. Nothing was committed.
func storageUnavailable(err error) error {
	return &fault.Error{Kind: fault.KindValidation, Op: "overlay.enter", Message: "session storage unavailable", Err: err}
}

// entryBatch builds the grouped write for Enter. When an overlay is already
// active its original session is kept, so chained notifications unwind to the
// user's real session rather than to a previous notification session.
func (o *Overlay) entryBatch(ctx context.Context, cartID, sessionID, negotiationID string) (*store.Batch, error) {
	existing, active, err := o.load(ctx)
	if err != nil {
		return nil, err
	}

	lt := o.sessions.ResolveLoginType(ctx)
	b := new(store.Batch)

	if active {
		b.Set(store.KeyOriginalSessionID, existing.OriginalSessionID)
		if existing.OriginalLoginType.Valid() {
			b.Set(store.KeyOriginalLoginType, existing.OriginalLoginType.String())
		}
	} else {
		// "" records that no session existed.
		original, _ := o.sessions.CurrentSessionID(ctx)
		b.Set(store.KeyOriginalSessionID, original)
		b.Set(store.KeyOriginalLoginType, lt.String())
	}

	b.Set(store.KeyNotificationSessionID, sessionID)
	b.Set(store.KeyNotificationCartID, cartID)
	b.Set(store.KeyIsNotificationCart, activeFlag)
	if negotiationID != "" {
		b.Set(store.KeyCurrentNegotiationID, negotiationID)
	} else {
		b.Delete(store.KeyCurrentNegotiationID)
	}

	return b.Merge(o.sessions.CurrentBatch(lt, sessionID)), nil
}

// Restore reinstates the original session and clears every notification key
// in one commit. With no recorded original it mints a new guest session.
//
// Restore never returns an error: storage faults are logged and reported
// through Restored.Degraded.
func (o *Overlay) Restore(ctx context.Context) Restored {
	o.mu.Lock()
	o.restoring = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.restoring = false
		o.mu.Unlock()
	}()

	b := new(store.Batch).Delete(store.NotificationKeys...)

	vals, err := o.kv.GetMany(ctx, store.KeyOriginalSessionID, store.KeyOriginalLoginType)
	if err != nil {
		o.logger.Warn("original session read failed", "error", err)
		vals = map[string]string{}
	}

	lt, ok := model.ParseLoginType(vals[store.KeyOriginalLoginType])
	if !ok {
		lt = o.sessions.ResolveLoginType(ctx)
	}

	out := Restored{LoginType: lt, Degraded: err != nil}
	if original := vals[store.KeyOriginalSessionID]; original != "" {
		out.SessionID = original
	} else {
		out.SessionID = o.sessions.NewSessionID(lt)
		out.Synthesized = true
	}

	b.Set(store.KeyLoginType, lt.String()).Merge(o.sessions.CurrentBatch(lt, out.SessionID))

	if err := o.kv.Commit(ctx, b); err != nil {
		o.logger.Error("notification context restore failed", "error", err)
		out.Degraded = true
		return out
	}

	o.logger.Info("original session restored",
		"session_id", out.SessionID,
		"login_type", lt,
		"synthesized", out.Synthesized,
	)
	return out
}

// IsNotificationCart reports whether an overlay is persisted as active.
// Storage faults read as inactive.
func (o *Overlay) IsNotificationCart(ctx context.Context) bool {
	v, _, err := o.kv.Get(ctx, store.KeyIsNotificationCart)
	if err != nil {
		o.logger.Warn("notification flag read failed", "error", err)
		return false
	}
	return v == activeFlag
}

// Context returns the persisted notification context. ok is false when no
// overlay is active or storage is unavailable.
func (o *Overlay) Context(ctx context.Context) (model.NotificationContext, bool) {
	nc, active, err := o.load(ctx)
	if err != nil {
		o.logger.Warn("notification context read failed", "error", err)
		return model.NotificationContext{}, false
	}
	return nc, active
}

// State reports the lifecycle state.
func (o *Overlay) State(ctx context.Context) State {
	o.mu.Lock()
	restoring := o.restoring
	o.mu.Unlock()
	if restoring {
		return StateRestoring
	}
	if o.IsNotificationCart(ctx) {
		return StateActive
	}
	return StateInactive
}

func (o *Overlay) load(ctx context.Context) (model.NotificationContext, bool, error) {
	vals, err := o.kv.GetMany(ctx, store.NotificationKeys...)
	if err != nil {
		return model.NotificationContext{}, false, err
	}
	active := vals[store.KeyIsNotificationCart] == activeFlag
	lt, _ := model.ParseLoginType(vals[store.KeyOriginalLoginType])
	return model.NotificationContext{
		CartID:             vals[store.KeyNotificationCartID],
		SessionID:          vals[store.KeyNotificationSessionID],
		NegotiationID:      vals[store.KeyCurrentNegotiationID],
		IsNotificationCart: active,
		OriginalSessionID:  vals[store.KeyOriginalSessionID],
		OriginalLoginType:  lt,
	}, active, nil
}

// isDuplicate records the attempt and reports whether cartID was entered
// within the debounce window.
func (o *Overlay) isDuplicate(cartID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := o.clock.Now()
	if o.debounce > 0 && cartID == o.lastCartID && now.Sub(o.lastEnterAt) < o.debounce {
		return true
	}
	o.lastCartID = cartID
	o.lastEnterAt = now
	return false
}

// clearDebounce forgets a failed attempt so the user can retry immediately.
func (o *Overlay) clearDebounce(cartID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastCartID == cartID {
		o.lastCartID = ""
		o.lastEnterAt = time.Time{}
	}
}
