package overlay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cartctx/internal/fault"
	"github.com/roach88/cartctx/internal/model"
	"github.com/roach88/cartctx/internal/session"
	"github.com/roach88/cartctx/internal/store"
	"github.com/roach88/cartctx/internal/testutil"
)

type countingLoader struct {
	calls int
	err   error
	// seen records the session id current at each load.
	seen     []string
	sessions *session.Store
}

func (l *countingLoader) LoadCart(ctx context.Context) (*model.Cart, error) {
	l.calls++
	if l.sessions != nil {
		id, _ := l.sessions.CurrentSessionID(ctx)
		l.seen = append(l.seen, id)
	}
	if l.err != nil {
		return nil, l.err
	}
	return &model.Cart{ID: "cart123", Items: []model.CartItem{{ProductID: "p1", Quantity: 1}}}, nil
}

type fixture struct {
	kv       *testutil.FaultyKV
	sessions *session.Store
	loader   *countingLoader
	clock    *testutil.FakeClock
	overlay  *Overlay
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kv := testutil.NewFaultyKV(testutil.OpenStore(t))
	clk := testutil.NewFakeClock()
	sessions := session.New(kv, nil, session.WithClock(clk), session.WithLogger(discardLogger()))
	loader := &countingLoader{sessions: sessions}
	ov := New(kv, sessions, loader, WithClock(clk), WithLogger(discardLogger()))
	return &fixture{kv: kv, sessions: sessions, loader: loader, clock: clk, overlay: ov}
}

// seedOriginal makes sidOrig the current individual session.
func (f *fixture) seedOriginal(t *testing.T) {
	t.Helper()
	require.NoError(t, f.kv.Commit(context.Background(), new(store.Batch).
		Set(store.KeyLoginType, "individual").
		Set(store.KeySessionIndividual, "sidOrig").
		Set(store.KeySessionID, "sidOrig")))
}

func TestEnter_ShadowsCurrentSession(t *testing.T) {
	f := newFixture(t)
	f.seedOriginal(t)
	ctx := context.Background()

	res, err := f.overlay.Enter(ctx, "cart123", "sidNotif", "")
	require.NoError(t, err)
	assert.False(t, res.Skip)
	require.NotNil(t, res.Cart)

	id, ok := f.sessions.CurrentSessionID(ctx)
	require.True(t, ok)
	assert.Equal(t, "sidNotif", id)

	nc, active := f.overlay.Context(ctx)
	require.True(t, active)
	assert.Equal(t, "cart123", nc.CartID)
	assert.Equal(t, "sidNotif", nc.SessionID)
	assert.True(t, nc.IsNotificationCart)
	assert.Equal(t, "sidOrig", nc.OriginalSessionID)
	assert.Equal(t, model.LoginIndividual, nc.OriginalLoginType)

	// The fetch ran under the shadowed pointer.
	assert.Equal(t, []string{"sidNotif"}, f.loader.seen)
	assert.True(t, f.overlay.IsNotificationCart(ctx))
	assert.Equal(t, StateActive, f.overlay.State(ctx))
}

func TestEnter_SingleGroupedCommit(t *testing.T) {
	f := newFixture(t)
	f.seedOriginal(t)
	before := f.kv.Commits()

	_, err := f.overlay.Enter(context.Background(), "cart123", "sidNotif", "neg_7")
	require.NoError(t, err)
	assert.Equal(t, before+1, f.kv.Commits())

	nc, _ := f.overlay.Context(context.Background())
	assert.Equal(t, "neg_7", nc.NegotiationID)
}

func TestEnter_LogsStagedKeysAndOriginal(t *testing.T) {
	f := newFixture(t)
	f.seedOriginal(t)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ov := New(f.kv, f.sessions, f.loader, WithClock(f.clock), WithLogger(logger))

	_, err := ov.Enter(context.Background(), "cart123", "sidNotif", "")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "notification context staged")
	assert.Contains(t, out, store.KeyNotificationCartID)
	assert.Contains(t, out, store.KeySessionID)
	assert.Contains(t, out, "original_session_id=sidOrig")
}

func TestEnter_ValidationLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	f.seedOriginal(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		cartID    string
		sessionID string
	}{
		{"missing cart", "", "sidNotif"},
		{"blank cart", "   ", "sidNotif"},
		{"missing session", "cart123", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.overlay.Enter(ctx, tt.cartID, tt.sessionID, "")
			require.Error(t, err)
			assert.True(t, fault.IsValidation(err))
		})
	}

	assert.False(t, f.overlay.IsNotificationCart(ctx))
	id, _ := f.sessions.CurrentSessionID(ctx)
	assert.Equal(t, "sidOrig", id)
	assert.Zero(t, f.loader.calls)
}

func TestEnterRestore_RoundTrip(t *testing.T) {
	f := newFixture(t)
	f.seedOriginal(t)
	ctx := context.Background()

	require.NoError(t, f.sessions.SetLoginType(ctx, model.LoginBusiness))
	require.NoError(t, f.kv.Commit(ctx, new(store.Batch).
		Set(store.KeySessionBusiness, "sidBiz").
		Set(store.KeySessionID, "sidBiz")))

	_, err := f.overlay.Enter(ctx, "cart123", "sid2", "neg_1")
	require.NoError(t, err)

	restored := f.overlay.Restore(ctx)
	assert.Equal(t, "sidBiz", restored.SessionID)
	assert.Equal(t, model.LoginBusiness, restored.LoginType)
	assert.False(t, restored.Synthesized)
	assert.False(t, restored.Degraded)

	id, ok := f.sessions.CurrentSessionID(ctx)
	require.True(t, ok)
	assert.Equal(t, "sidBiz", id)
	assert.Equal(t, model.LoginBusiness, f.sessions.ResolveLoginType(ctx))

	generic, _, err := f.kv.Get(ctx, store.KeySessionID)
	require.NoError(t, err)
	assert.Equal(t, "sidBiz", generic)

	leftovers, err := f.kv.GetMany(ctx, store.NotificationKeys...)
	require.NoError(t, err)
	assert.Empty(t, leftovers)
	assert.Equal(t, StateInactive, f.overlay.State(ctx))
}

func TestRestore_NoOriginalSynthesizesGuest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	restored := f.overlay.Restore(ctx)
	assert.True(t, restored.Synthesized)
	assert.Regexp(t, `^sid_individual_\d+_[A-Za-z0-9]{8}$`, restored.SessionID)

	id, ok := f.sessions.CurrentSessionID(ctx)
	require.True(t, ok)
	assert.Equal(t, restored.SessionID, id)
}

func TestRestore_EmptySentinelSynthesizesNewSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// No session existed before the notification.
	_, err := f.overlay.Enter(ctx, "cart123", "sidNotif", "")
	require.NoError(t, err)

	nc, active := f.overlay.Context(ctx)
	require.True(t, active)
	assert.Equal(t, "", nc.OriginalSessionID)

	restored := f.overlay.Restore(ctx)
	assert.True(t, restored.Synthesized)
	assert.NotEqual(t, "sidNotif", restored.SessionID)
	assert.NotEmpty(t, restored.SessionID)
}

func TestEnter_DebouncesSameCart(t *testing.T) {
	f := newFixture(t)
	f.seedOriginal(t)
	ctx := context.Background()

	first, err := f.overlay.Enter(ctx, "cart123", "sidNotif", "")
	require.NoError(t, err)
	assert.False(t, first.Skip)

	f.clock.Advance(2999 * time.Millisecond)
	second, err := f.overlay.Enter(ctx, "cart123", "sidNotif", "")
	require.NoError(t, err)
	assert.True(t, second.Skip)
	assert.Nil(t, second.Cart)

	assert.Equal(t, 1, f.loader.calls)
}

func TestEnter_DebounceExpires(t *testing.T) {
	f := newFixture(t)
	f.seedOriginal(t)
	ctx := context.Background()

	_, err := f.overlay.Enter(ctx, "cart123", "sidNotif", "")
	require.NoError(t, err)

	f.clock.Advance(DefaultDebounce)
	res, err := f.overlay.Enter(ctx, "cart123", "sidNotif", "")
	require.NoError(t, err)
	assert.False(t, res.Skip)
	assert.Equal(t, 2, f.loader.calls)
}

func TestEnter_DifferentCartNotDebounced(t *testing.T) {
	f := newFixture(t)
	f.seedOriginal(t)
	ctx := context.Background()

	_, err := f.overlay.Enter(ctx, "cart123", "sidNotif", "")
	require.NoError(t, err)
	res, err := f.overlay.Enter(ctx, "cart456", "sidNotif2", "")
	require.NoError(t, err)
	assert.False(t, res.Skip)

	// Chained notification keeps the real original.
	nc, _ := f.overlay.Context(ctx)
	assert.Equal(t, "cart456", nc.CartID)
	assert.Equal(t, "sidOrig", nc.OriginalSessionID)

	restored := f.overlay.Restore(ctx)
	assert.Equal(t, "sidOrig", restored.SessionID)
}

func TestEnter_LoadFailureRestores(t *testing.T) {
	f := newFixture(t)
	f.seedOriginal(t)
	ctx := context.Background()
	loadErr := errors.New("backend unavailable")
	f.loader.err = loadErr

	_, err := f.overlay.Enter(ctx, "cart123", "sidNotif", "")
	require.ErrorIs(t, err, loadErr)

	assert.False(t, f.overlay.IsNotificationCart(ctx))
	id, _ := f.sessions.CurrentSessionID(ctx)
	assert.Equal(t, "sidOrig", id)

	// A retry right away is not swallowed by the debounce.
	f.loader.err = nil
	res, err := f.overlay.Enter(ctx, "cart123", "sidNotif", "")
	require.NoError(t, err)
	assert.False(t, res.Skip)
}

func TestEnter_StorageFaultKeepsOriginal(t *testing.T) {
	tests := []struct {
		name string
		arm  func(kv *testutil.FaultyKV, on bool)
	}{
		{"commit fails", (*testutil.FaultyKV).FailCommits},
		{"read fails", (*testutil.FaultyKV).FailReads},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seedOriginal(t)
			ctx := context.Background()

			tt.arm(f.kv, true)
			_, err := f.overlay.Enter(ctx, "cart123", "sidNotif", "")
			require.Error(t, err)
			assert.True(t, fault.IsValidation(err))
			assert.False(t, fault.IsStorage(err))
			assert.Contains(t, err.Error(), "session storage unavailable")
			assert.ErrorIs(t, err, testutil.ErrInjected)
			assert.Zero(t, f.loader.calls)

			tt.arm(f.kv, false)
			id, _ := f.sessions.CurrentSessionID(ctx)
			assert.Equal(t, "sidOrig", id)
			assert.False(t, f.overlay.IsNotificationCart(ctx))

			// The failed attempt does not debounce the next one.
			res, err := f.overlay.Enter(ctx, "cart123", "sidNotif", "")
			require.NoError(t, err)
			assert.False(t, res.Skip)
		})
	}
}

func TestRestore_StorageFaultIsDegradedNotFatal(t *testing.T) {
	f := newFixture(t)
	f.seedOriginal(t)
	ctx := context.Background()

	_, err := f.overlay.Enter(ctx, "cart123", "sidNotif", "")
	require.NoError(t, err)

	f.kv.FailCommits(true)
	restored := f.overlay.Restore(ctx)
	assert.True(t, restored.Degraded)
	assert.Equal(t, "sidOrig", restored.SessionID)
}

func TestAccessors_ReflectPersistedState(t *testing.T) {
	f := newFixture(t)
	f.seedOriginal(t)
	ctx := context.Background()

	_, err := f.overlay.Enter(ctx, "cart123", "sidNotif", "")
	require.NoError(t, err)

	// A fresh instance over the same storage (process restart) sees the overlay.
	restarted := New(f.kv, f.sessions, f.loader, WithLogger(discardLogger()))
	assert.True(t, restarted.IsNotificationCart(ctx))
	nc, ok := restarted.Context(ctx)
	require.True(t, ok)
	assert.Equal(t, "cart123", nc.CartID)

	restored := restarted.Restore(ctx)
	assert.Equal(t, "sidOrig", restored.SessionID)
	assert.False(t, f.overlay.IsNotificationCart(ctx))

	f.kv.FailReads(true)
	assert.False(t, f.overlay.IsNotificationCart(ctx))
	_, ok = f.overlay.Context(ctx)
	assert.False(t, ok)
}
